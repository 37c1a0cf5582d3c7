package appointments

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

func TestPostgresLedgerAppendAndList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewPostgresLedger(mock, tijuana)
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	rec := Record{
		CreatedAt: "2026-10-14T16:00:00.000000000Z",
		Name:      "Ana Lopez",
		Phone:     "5216641234567",
		StartTime: start,
		Procedure: clinic.Cleaning,
		Status:    Confirmed,
		Language:  clinic.Spanish,
	}

	mock.ExpectExec("INSERT INTO appointment_ledger").
		WithArgs(rec.CreatedAt, rec.Name, rec.Phone, rec.StartTime, "LIMPIEZA", "CONFIRMADA", "es", "",
			false, pgxmock.AnyArg(), false, false, false, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, ledger.Append(context.Background(), rec))

	columns := []string{"row_id", "created_key", "name", "phone", "start_time", "procedure", "status", "language",
		"document_key", "pdf_sent", "follow_up_date", "follow_up_sent", "confirm_3h_sent", "reminder_ack", "nudge_2h_sent"}
	var noFollowUp *time.Time
	mock.ExpectQuery("SELECT row_id").WillReturnRows(pgxmock.NewRows(columns).
		AddRow(1, rec.CreatedAt, rec.Name, rec.Phone, start.UTC(), "LIMPIEZA", "CONFIRMADA", "es",
			"", false, noFollowUp, false, true, false, false))

	rows, err := ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Index)
	assert.True(t, rows[0].Record.StartTime.Equal(start))
	assert.True(t, rows[0].Record.Confirm3hSent)
	assert.True(t, rows[0].Record.FollowUpDate.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerUpdateMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewPostgresLedger(mock, tijuana)
	mock.ExpectExec("UPDATE appointment_ledger").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = ledger.Update(context.Background(), 7, Record{Status: Cancelled})
	assert.ErrorIs(t, err, ErrRowNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
