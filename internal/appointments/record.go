// Package appointments models the appointment ledger: one append-only row per
// booking, with status and reminder flags updated in place.
package appointments

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

// Status is the lifecycle state of a ledger row.
type Status string

const (
	Confirmed Status = "CONFIRMADA"
	Completed Status = "COMPLETADA"
	Cancelled Status = "CANCELADA"
)

// CreatedAtLayout is fixed width so lexicographic order matches time order.
const CreatedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StampCreatedAt renders a creation instant for the TIMESTAMP column.
func StampCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}

// Key identifies an appointment for its whole life. It never changes on
// reschedule.
type Key struct {
	CreatedAt string
	Phone     string
}

const keySeparator = "__"

func (k Key) String() string {
	return k.CreatedAt + keySeparator + k.Phone
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.CreatedAt == "" && k.Phone == ""
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	idx := strings.LastIndex(s, keySeparator)
	if idx <= 0 || idx+len(keySeparator) >= len(s) {
		return Key{}, fmt.Errorf("appointments: malformed key %q", s)
	}
	return Key{CreatedAt: s[:idx], Phone: s[idx+len(keySeparator):]}, nil
}

// Record is one ledger row.
type Record struct {
	CreatedAt     string
	Name          string
	Phone         string
	StartTime     time.Time
	Procedure     clinic.ProcedureCode
	Status        Status
	Language      clinic.Language
	DocumentKey   string
	PDFSent       bool
	FollowUpDate  time.Time
	FollowUpSent  bool
	Confirm3hSent bool
	ReminderAck   bool
	Nudge2hSent   bool
}

// Key returns the record's identity.
func (r Record) Key() Key {
	return Key{CreatedAt: r.CreatedAt, Phone: r.Phone}
}

// Active reports whether the row still holds its slot.
func (r Record) Active() bool {
	return !r.StartTime.IsZero() && r.Status != Cancelled
}

// Row is a record with its 1-based ledger position.
type Row struct {
	Index  int
	Record Record
}

// ErrRowNotFound is returned when an update addresses a missing row.
var ErrRowNotFound = errors.New("appointments: row not found")

// ActiveAt returns the non-cancelled rows starting at start, earliest
// creation first.
func ActiveAt(rows []Row, start time.Time) []Row {
	var out []Row
	for _, row := range rows {
		if row.Record.Active() && row.Record.StartTime.Equal(start) {
			out = append(out, row)
		}
	}
	SortByCreation(out)
	return out
}

// SortByCreation orders rows by creation stamp. Ties fall back to phone and
// then ledger position so every reader agrees on the order.
func SortByCreation(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Record, rows[j].Record
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.Phone != b.Phone {
			return a.Phone < b.Phone
		}
		return rows[i].Index < rows[j].Index
	})
}

// FindByKey locates the row with the given identity.
func FindByKey(rows []Row, key Key) (Row, bool) {
	for _, row := range rows {
		if row.Record.Key() == key {
			return row, true
		}
	}
	return Row{}, false
}

// FindActive locates the non-cancelled row at start, optionally for phone.
func FindActive(rows []Row, start time.Time, phone string) (Row, bool) {
	for _, row := range ActiveAt(rows, start) {
		if phone == "" || row.Record.Phone == phone {
			return row, true
		}
	}
	return Row{}, false
}

// HasFuture reports whether phone holds a non-cancelled appointment after now.
func HasFuture(rows []Row, phone string, now time.Time) bool {
	for _, row := range rows {
		if row.Record.Phone == phone && row.Record.Active() && row.Record.StartTime.After(now) {
			return true
		}
	}
	return false
}
