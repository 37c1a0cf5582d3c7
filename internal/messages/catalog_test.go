package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

var tijuana = time.FixedZone("PDT", -7*60*60)

func TestFormatWhen(t *testing.T) {
	ts := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	assert.Equal(t, "jueves 15 de octubre, 09:00", FormatWhen(ts, clinic.Spanish))
	assert.Equal(t, "Thursday, October 15, 09:00", FormatWhen(ts, clinic.English))
}

func TestMainMenuButtons(t *testing.T) {
	c := NewCatalog(clinic.Default(tijuana))
	msg := c.MainMenu("5216641234567", clinic.Spanish)

	require.NotNil(t, msg.Interactive)
	assert.Equal(t, "button", msg.Interactive.Type)
	require.Len(t, msg.Interactive.Action.Buttons, 3)
	assert.Equal(t, "book", msg.Interactive.Action.Buttons[0].Reply.ID)
	assert.Equal(t, "location", msg.Interactive.Action.Buttons[1].Reply.ID)
}

func TestTimeListRowsRoundTrip(t *testing.T) {
	c := NewCatalog(clinic.Default(tijuana))
	next := actions.Action{Procedure: "LIMPIEZA", Date: "2026-10-15", Period: "morning"}
	msg := c.TimeList("521", clinic.Spanish, []string{"09:00", "09:40"}, next)

	require.NotNil(t, msg.Interactive)
	rows := msg.Interactive.Action.Sections[0].Rows
	require.Len(t, rows, 3)

	a, err := actions.Parse(rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, actions.ChooseHour, a.Kind)
	assert.Equal(t, "09:40", a.Hour)
	assert.Equal(t, "2026-10-15", a.Date)
	assert.Equal(t, "advisor", rows[2].ID)
}

func TestPreConfirmCarriesBooking(t *testing.T) {
	c := NewCatalog(clinic.Default(tijuana))
	start := time.Date(2026, 10, 15, 9, 40, 0, 0, tijuana)
	confirm := actions.Action{Kind: actions.Confirm, Procedure: "LIMPIEZA", Name: "Ana López", Slot: c.clinic.FormatSlot(start)}
	msg := c.PreConfirm("521", clinic.Spanish, confirm, start)

	require.NotNil(t, msg.Interactive)
	assert.Contains(t, msg.Interactive.Body.Text, "Ana López")
	assert.Contains(t, msg.Interactive.Body.Text, "09:40")

	a, err := actions.Parse(msg.Interactive.Action.Buttons[0].Reply.ID)
	require.NoError(t, err)
	assert.Equal(t, confirm, a)
}

func TestReminderTemplateFallback(t *testing.T) {
	c := NewCatalog(clinic.Default(tijuana))
	start := time.Date(2026, 10, 15, 12, 20, 0, 0, tijuana)
	msg := c.Reminder3hTemplate("521", clinic.Spanish, "Ana López", start)

	require.NotNil(t, msg.Template)
	assert.Equal(t, "appointment_scheduling", msg.Template.Name)
	assert.Equal(t, "es_MX", msg.Template.Language.Code)
	params := msg.Template.Components[0].Parameters
	require.Len(t, params, 2)
	assert.Equal(t, "Ana", params[0].Text)
	assert.True(t, strings.HasSuffix(params[1].Text, "12:20"))
}

func TestUpgradeOfferIDs(t *testing.T) {
	c := NewCatalog(clinic.Default(tijuana))
	slot := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	from := time.Date(2026, 10, 16, 17, 0, 0, 0, tijuana)
	msg := c.UpgradeOffer("521", clinic.English, slot, from)

	a, err := actions.Parse(msg.Interactive.Action.Buttons[0].Reply.ID)
	require.NoError(t, err)
	assert.Equal(t, actions.UpgradeAccept, a.Kind)
	assert.Equal(t, c.clinic.FormatSlot(slot), a.Slot)
	assert.Equal(t, c.clinic.FormatSlot(from), a.From)
}
