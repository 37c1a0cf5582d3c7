package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLedger stores rows in the appointment_ledger table. The serial
// row_id doubles as the 1-based ledger position.
type PostgresLedger struct {
	db  DB
	loc *time.Location
}

// NewPostgresLedger wraps a pgx pool or connection.
func NewPostgresLedger(db DB, loc *time.Location) *PostgresLedger {
	if db == nil {
		panic("appointments: db required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresLedger{db: db, loc: loc}
}

const ledgerColumns = `created_key, name, phone, start_time, procedure, status, language, document_key,
		pdf_sent, follow_up_date, follow_up_sent, confirm_3h_sent, reminder_ack, nudge_2h_sent`

func (l *PostgresLedger) Append(ctx context.Context, r Record) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO appointment_ledger (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.CreatedAt, r.Name, r.Phone, r.StartTime, string(r.Procedure), string(r.Status), string(r.Language), r.DocumentKey,
		r.PDFSent, nullableTime(r.FollowUpDate), r.FollowUpSent, r.Confirm3hSent, r.ReminderAck, r.Nudge2hSent,
	)
	if err != nil {
		return fmt.Errorf("appointments: append row: %w", err)
	}
	return nil
}

func (l *PostgresLedger) List(ctx context.Context) ([]Row, error) {
	rows, err := l.db.Query(ctx, `SELECT row_id, `+ledgerColumns+` FROM appointment_ledger ORDER BY row_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row                     Row
			procedure, status, lang string
			followUp                *time.Time
		)
		r := &row.Record
		if err := rows.Scan(&row.Index, &r.CreatedAt, &r.Name, &r.Phone, &r.StartTime, &procedure, &status, &lang,
			&r.DocumentKey, &r.PDFSent, &followUp, &r.FollowUpSent, &r.Confirm3hSent, &r.ReminderAck, &r.Nudge2hSent); err != nil {
			return nil, fmt.Errorf("appointments: scan row: %w", err)
		}
		r.Procedure = clinic.ProcedureCode(procedure)
		r.Status = Status(status)
		r.Language = clinic.ParseLanguage(lang)
		r.StartTime = r.StartTime.In(l.loc)
		if followUp != nil {
			r.FollowUpDate = followUp.In(l.loc)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate rows: %w", err)
	}
	return out, nil
}

func (l *PostgresLedger) Update(ctx context.Context, index int, r Record) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE appointment_ledger SET
			created_key = $2, name = $3, phone = $4, start_time = $5, procedure = $6, status = $7, language = $8,
			document_key = $9, pdf_sent = $10, follow_up_date = $11, follow_up_sent = $12, confirm_3h_sent = $13,
			reminder_ack = $14, nudge_2h_sent = $15, updated_at = now()
		WHERE row_id = $1`,
		index, r.CreatedAt, r.Name, r.Phone, r.StartTime, string(r.Procedure), string(r.Status), string(r.Language),
		r.DocumentKey, r.PDFSent, nullableTime(r.FollowUpDate), r.FollowUpSent, r.Confirm3hSent, r.ReminderAck, r.Nudge2hSent,
	)
	if err != nil {
		return fmt.Errorf("appointments: update row %d: %w", index, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Ledger = (*PostgresLedger)(nil)
