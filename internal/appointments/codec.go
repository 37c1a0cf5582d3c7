package appointments

import (
	"strings"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

// Column positions of the ledger row (A..N).
const (
	ColTimestamp = iota
	ColName
	ColPhone
	ColDateTime
	ColProcedure
	ColStatus
	ColLanguage
	ColDocumentKey
	ColPDFSent
	ColFollowUpDate
	ColFollowUpSent
	ColConfirmSent
	ColReminderAck
	ColNudge2hSent

	ColumnCount
)

// EncodeRow renders a record as positional cells, times in loc.
func EncodeRow(r Record, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	cells := make([]string, ColumnCount)
	cells[ColTimestamp] = r.CreatedAt
	cells[ColName] = r.Name
	cells[ColPhone] = r.Phone
	cells[ColDateTime] = formatTime(r.StartTime, loc)
	cells[ColProcedure] = string(r.Procedure)
	cells[ColStatus] = string(r.Status)
	cells[ColLanguage] = string(r.Language)
	cells[ColDocumentKey] = r.DocumentKey
	cells[ColPDFSent] = formatBool(r.PDFSent)
	cells[ColFollowUpDate] = formatTime(r.FollowUpDate, loc)
	cells[ColFollowUpSent] = formatBool(r.FollowUpSent)
	cells[ColConfirmSent] = formatBool(r.Confirm3hSent)
	cells[ColReminderAck] = formatBool(r.ReminderAck)
	cells[ColNudge2hSent] = formatBool(r.Nudge2hSent)
	return cells
}

// DecodeRow parses positional cells. Short rows and malformed cells decode to
// zero values; a row without a parsable start time is never Active.
func DecodeRow(cells []string, loc *time.Location) Record {
	if loc == nil {
		loc = time.UTC
	}
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	return Record{
		CreatedAt:     cell(ColTimestamp),
		Name:          cell(ColName),
		Phone:         cell(ColPhone),
		StartTime:     parseTime(cell(ColDateTime), loc),
		Procedure:     clinic.ProcedureCode(cell(ColProcedure)),
		Status:        Status(strings.ToUpper(cell(ColStatus))),
		Language:      clinic.ParseLanguage(cell(ColLanguage)),
		DocumentKey:   cell(ColDocumentKey),
		PDFSent:       parseBool(cell(ColPDFSent)),
		FollowUpDate:  parseTime(cell(ColFollowUpDate), loc),
		FollowUpSent:  parseBool(cell(ColFollowUpSent)),
		Confirm3hSent: parseBool(cell(ColConfirmSent)),
		ReminderAck:   parseBool(cell(ColReminderAck)),
		Nudge2hSent:   parseBool(cell(ColNudge2hSent)),
	}
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func parseTime(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc)
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t
	}
	return time.Time{}
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "TRUE")
}
