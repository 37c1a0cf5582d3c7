package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBareKinds(t *testing.T) {
	assert.Equal(t, "book", Action{Kind: Book}.ID())

	a, err := Parse("main_menu")
	require.NoError(t, err)
	assert.Equal(t, MainMenu, a.Kind)
}

func TestPayloadSurvivesSeparatorsInValues(t *testing.T) {
	in := Action{
		Kind:      Confirm,
		Procedure: "LIMPIEZA",
		Date:      "2026-10-15",
		Period:    "morning",
		Hour:      "09:00",
		Name:      "Ana__Lopez: de la O",
	}
	id := in.ID()
	assert.LessOrEqual(t, len(id), 256)

	out, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUpgradeCarriesBothSlots(t *testing.T) {
	in := Action{Kind: UpgradeAccept, Slot: "2026-10-15T09:00:00-07:00", From: "2026-10-15T13:00:00-07:00"}
	out, err := Parse(in.ID())
	require.NoError(t, err)
	assert.Equal(t, in.Slot, out.Slot)
	assert.Equal(t, in.From, out.From)
}

func TestUnknownAndCorruptIDs(t *testing.T) {
	a, err := Parse("day_2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, Unknown, a.Kind)

	a, err = Parse("hour:%%%")
	assert.Error(t, err)
	assert.Equal(t, Unknown, a.Kind)
}
