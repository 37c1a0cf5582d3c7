package clinic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tijuana = time.FixedZone("UTC-7", -7*60*60)

func TestSlotTimesFollowsGrid(t *testing.T) {
	c := Default(tijuana)

	morning := c.SlotTimes(Morning)
	assert.Equal(t, []string{"09:00", "09:40", "10:20", "11:00", "11:40", "12:20", "13:00", "13:40", "14:20", "15:00"}, morning)

	evening := c.SlotTimes(Evening)
	require.NotEmpty(t, evening)
	assert.Equal(t, "15:40", evening[0])
	assert.Equal(t, "21:00", evening[len(evening)-1])
}

func TestSlotAndFormat(t *testing.T) {
	c := Default(tijuana)

	start, err := c.Slot("2026-10-15", "09:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15T09:00:00-07:00", c.FormatSlot(start))

	parsed, err := c.ParseSlot("2026-10-15T16:00:00Z")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(start))
	assert.Equal(t, "2026-10-15", c.LocalDate(parsed))

	_, err = c.Slot("2026-13-40", "09:00")
	assert.Error(t, err)
}

func TestPeriodOf(t *testing.T) {
	c := Default(tijuana)
	morning, _ := c.Slot("2026-10-15", "14:20")
	evening, _ := c.Slot("2026-10-15", "15:40")
	assert.Equal(t, Morning, c.PeriodOf(morning))
	assert.Equal(t, Evening, c.PeriodOf(evening))
}

func TestUpcomingDaysStartTomorrow(t *testing.T) {
	c := Default(tijuana)
	now := time.Date(2026, 10, 14, 23, 30, 0, 0, tijuana)

	days := c.UpcomingDays(now)
	require.Len(t, days, 7)
	assert.Equal(t, "2026-10-15", days[0])
	assert.Equal(t, "2026-10-21", days[6])
}

func TestProcedureCatalogue(t *testing.T) {
	c := Default(tijuana)

	p, ok := c.Procedure(Whitening)
	require.True(t, ok)
	assert.Equal(t, 60*time.Minute, p.Duration)
	assert.Equal(t, "5", p.ColorID)
	assert.Equal(t, "💎 Whitening", p.Label(English))

	matched, ok := c.Match("quiero una limpieza")
	require.True(t, ok)
	assert.Equal(t, Cleaning, matched.Code)

	assert.Equal(t, c.PostAppointmentDocURL, c.PostAppointmentDoc(PostDocumentKey, Cleaning))
	assert.Contains(t, c.PreAppointmentDoc(RootCanal), "pre_endodoncia.pdf")
	assert.Equal(t, English, ParseLanguage("EN"))
	assert.Equal(t, Spanish, ParseLanguage("fr"))
}
