// Package clinic holds the static catalogue of the practice: procedures,
// opening grid, location and patient documents.
package clinic

import (
	"fmt"
	"strings"
	"time"
)

// Language is a patient's conversation language.
type Language string

const (
	Spanish Language = "es"
	English Language = "en"
)

// ParseLanguage returns the language for code, falling back to Spanish.
func ParseLanguage(code string) Language {
	if strings.EqualFold(strings.TrimSpace(code), string(English)) {
		return English
	}
	return Spanish
}

// Period splits the day into the two bookable blocks.
type Period string

const (
	Morning Period = "morning"
	Evening Period = "evening"
)

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case Morning, Evening:
		return Period(s), true
	}
	return "", false
}

// Location is where the clinic sits on the map.
type Location struct {
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
}

// Window is a block of bookable start times, both ends inclusive, in
// "15:04" notation.
type Window struct {
	First string
	Last  string
}

// Clinic is the practice configuration used across the booking flow.
type Clinic struct {
	Location Location
	TimeZone *time.Location

	Procedures []Procedure

	Windows  map[Period]Window
	SlotStep time.Duration
	// MaxSlots caps the number of time rows offered per list.
	MaxSlots int
	// BookingDays is how many days, starting tomorrow, the day list offers.
	BookingDays int

	PreAppointmentDocURL  string
	PostAppointmentDocURL string
	DocumentFilename      string

	AgentPhones []string
}

// Default returns the catalogue of the Tijuana practice in loc.
func Default(loc *time.Location) *Clinic {
	if loc == nil {
		loc = time.FixedZone("UTC-7", -7*60*60)
	}
	return &Clinic{
		Location: Location{
			Name:      "Consultorio Dental Dr. López",
			Address:   "Av. Revolución 123, Tijuana",
			Latitude:  32.525,
			Longitude: -117.019,
		},
		TimeZone:   loc,
		Procedures: defaultProcedures(),
		Windows: map[Period]Window{
			Morning: {First: "09:00", Last: "15:00"},
			Evening: {First: "15:40", Last: "21:00"},
		},
		SlotStep:              40 * time.Minute,
		MaxSlots:              9,
		BookingDays:           7,
		PreAppointmentDocURL:  "https://raw.githubusercontent.com/Dxz23/Dentist-BOT/main/Antes_consulta.pdf",
		PostAppointmentDocURL: "https://raw.githubusercontent.com/Dxz23/Dentist-BOT/main/Despues_consulta.pdf",
		DocumentFilename:      "Indicaciones.pdf",
	}
}

// Procedure looks up a procedure by code.
func (c *Clinic) Procedure(code ProcedureCode) (Procedure, bool) {
	for _, p := range c.Procedures {
		if p.Code == code {
			return p, true
		}
	}
	return Procedure{}, false
}

// Label returns the display label of code in lang, or the raw code.
func (c *Clinic) Label(code ProcedureCode, lang Language) string {
	if p, ok := c.Procedure(code); ok {
		return p.Label(lang)
	}
	return string(code)
}

// SlotTimes lists every start time of the period grid in "15:04" notation.
func (c *Clinic) SlotTimes(period Period) []string {
	w, ok := c.Windows[period]
	if !ok || c.SlotStep <= 0 {
		return nil
	}
	first, err1 := time.Parse("15:04", w.First)
	last, err2 := time.Parse("15:04", w.Last)
	if err1 != nil || err2 != nil {
		return nil
	}
	var out []string
	for t := first; !t.After(last); t = t.Add(c.SlotStep) {
		out = append(out, t.Format("15:04"))
	}
	return out
}

// PeriodOf returns the period whose window contains the given start time.
func (c *Clinic) PeriodOf(t time.Time) Period {
	hm := t.In(c.TimeZone).Format("15:04")
	if w, ok := c.Windows[Evening]; ok && hm >= w.First {
		return Evening
	}
	return Morning
}

// Slot resolves a local date ("2006-01-02") and hour ("15:04") to an instant.
func (c *Clinic) Slot(date, hour string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hour, c.TimeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("clinic: invalid slot %q %q: %w", date, hour, err)
	}
	return t, nil
}

// LocalDate formats t as a clinic-local calendar date.
func (c *Clinic) LocalDate(t time.Time) string {
	return t.In(c.TimeZone).Format("2006-01-02")
}

// StartOfDay parses a local date and returns its midnight.
func (c *Clinic) StartOfDay(date string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", date, c.TimeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("clinic: invalid date %q: %w", date, err)
	}
	return t, nil
}

// UpcomingDays returns the bookable local dates, starting the day after now.
func (c *Clinic) UpcomingDays(now time.Time) []string {
	local := now.In(c.TimeZone)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.TimeZone)
	days := make([]string, 0, c.BookingDays)
	for i := 1; i <= c.BookingDays; i++ {
		days = append(days, midnight.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return days
}

// FormatSlot renders a start time as an RFC 3339 string in clinic time.
func (c *Clinic) FormatSlot(t time.Time) string {
	return t.In(c.TimeZone).Format(time.RFC3339)
}

// ParseSlot parses an RFC 3339 start time.
func (c *Clinic) ParseSlot(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("clinic: invalid start time %q: %w", s, err)
	}
	return t.In(c.TimeZone), nil
}

// PreAppointmentDoc returns the document sent right after booking.
func (c *Clinic) PreAppointmentDoc(code ProcedureCode) string {
	if p, ok := c.Procedure(code); ok && p.PreDocURL != "" {
		return p.PreDocURL
	}
	return c.PreAppointmentDocURL
}

// PostAppointmentDoc resolves a ledger document key to a URL.
func (c *Clinic) PostAppointmentDoc(key string, code ProcedureCode) string {
	if key == "" || key == PostDocumentKey {
		return c.PostAppointmentDocURL
	}
	if p, ok := c.Procedure(ProcedureCode(key)); ok && p.PreDocURL != "" {
		return p.PreDocURL
	}
	if p, ok := c.Procedure(code); ok && p.PreDocURL != "" {
		return p.PreDocURL
	}
	return c.PostAppointmentDocURL
}

// PostDocumentKey marks rows that receive the generic after-care document.
const PostDocumentKey = "POST"
