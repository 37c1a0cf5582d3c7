package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, name, phone, message, status, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.Name,
		req.Phone,
		req.Message,
		string(StatusPending),
		req.source(),
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:        id.String(),
		Name:      req.Name,
		Phone:     req.Phone,
		Message:   req.Message,
		Status:    StatusPending,
		Source:    req.source(),
		CreatedAt: createdAt,
	}, nil
}

const selectLead = `SELECT id, name, phone, message, status, source, created_at FROM leads`

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead   Lead
		id     uuid.UUID
		status string
	)
	if err := row.Scan(&id, &lead.Name, &lead.Phone, &lead.Message, &status, &lead.Source, &lead.CreatedAt); err != nil {
		return nil, err
	}
	lead.ID = id.String()
	lead.Status = Status(status)
	return &lead, nil
}

// GetByID fetches a lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrLeadNotFound
	}
	lead, err := scanLead(r.db.QueryRow(ctx, selectLead+` WHERE id = $1`, parsed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	query := selectLead + ` WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.limit())
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

var _ Repository = (*PostgresRepository)(nil)
