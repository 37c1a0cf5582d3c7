package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

var tijuana = time.FixedZone("UTC-7", -7*60*60)

func TestStampCreatedAtSortsLexicographically(t *testing.T) {
	base := time.Date(2026, 10, 14, 9, 0, 5, 100_000_000, time.UTC)
	earlier := StampCreatedAt(base)
	later := StampCreatedAt(base.Add(20 * time.Millisecond))

	assert.Len(t, earlier, len(later))
	assert.Less(t, earlier, later)
	assert.Equal(t, "2026-10-14T09:00:05.100000000Z", earlier)
}

func TestKeyRoundTrip(t *testing.T) {
	key := Key{CreatedAt: "2026-10-14T09:00:05.100000000Z", Phone: "5216641234567"}
	parsed, err := ParseKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseKey("no-separator")
	assert.Error(t, err)
}

func TestCodecColumns(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	rec := Record{
		CreatedAt:     "2026-10-14T16:00:00.000000000Z",
		Name:          "Ana Lopez",
		Phone:         "5216641234567",
		StartTime:     start,
		Procedure:     clinic.Cleaning,
		Status:        Confirmed,
		Language:      clinic.Spanish,
		DocumentKey:   clinic.PostDocumentKey,
		FollowUpDate:  start.AddDate(0, 6, 0),
		Confirm3hSent: true,
	}

	cells := EncodeRow(rec, tijuana)
	require.Len(t, cells, ColumnCount)
	assert.Equal(t, "2026-10-15T09:00:00-07:00", cells[ColDateTime])
	assert.Equal(t, "CONFIRMADA", cells[ColStatus])
	assert.Equal(t, "TRUE", cells[ColConfirmSent])
	assert.Equal(t, "FALSE", cells[ColNudge2hSent])

	decoded := DecodeRow(cells, tijuana)
	assert.True(t, decoded.StartTime.Equal(start))
	assert.True(t, decoded.Confirm3hSent)
	assert.False(t, decoded.ReminderAck)
	assert.Equal(t, rec.Key(), decoded.Key())
}

func TestDecodeShortAndHeaderRows(t *testing.T) {
	header := DecodeRow([]string{"TIMESTAMP", "NAME", "PHONE", "DATETIME", "PROCEDURE", "STATUS"}, tijuana)
	assert.False(t, header.Active())

	short := DecodeRow([]string{"ts", "Ana", "521", "2026-10-15T09:00:00-07:00"}, tijuana)
	assert.True(t, short.Active())
	assert.False(t, short.PDFSent)
}

func TestActiveAtOrdersByCreation(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	rows := []Row{
		{Index: 1, Record: Record{CreatedAt: "b", Phone: "1", StartTime: start, Status: Confirmed}},
		{Index: 2, Record: Record{CreatedAt: "a", Phone: "2", StartTime: start, Status: Confirmed}},
		{Index: 3, Record: Record{CreatedAt: "0", Phone: "3", StartTime: start, Status: Cancelled}},
		{Index: 4, Record: Record{CreatedAt: "a", Phone: "0", StartTime: start.UTC(), Status: Confirmed}},
	}

	active := ActiveAt(rows, start)
	require.Len(t, active, 3)
	assert.Equal(t, []int{4, 2, 1}, []int{active[0].Index, active[1].Index, active[2].Index})

	row, ok := FindActive(rows, start, "1")
	require.True(t, ok)
	assert.Equal(t, 1, row.Index)

	assert.True(t, HasFuture(rows, "2", start.Add(-time.Hour)))
	assert.False(t, HasFuture(rows, "3", start.Add(-time.Hour)))
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Append(ctx, Record{Name: "Ana"}))
	require.NoError(t, l.Append(ctx, Record{Name: "Luis"}))

	rows, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[1].Index)

	updated := rows[1].Record
	updated.Status = Cancelled
	require.NoError(t, l.Update(ctx, 2, updated))
	assert.ErrorIs(t, l.Update(ctx, 3, updated), ErrRowNotFound)

	rows, _ = l.List(ctx)
	assert.Equal(t, Cancelled, rows[1].Record.Status)
}
