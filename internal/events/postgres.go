package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresProcessedStore keeps seen message ids in processed_events so every
// replica shares one dedup view.
type PostgresProcessedStore struct {
	db execer
}

func NewPostgresProcessedStore(pool *pgxpool.Pool) *PostgresProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PostgresProcessedStore{db: pool}
}

func newPostgresProcessedStore(db execer) *PostgresProcessedStore {
	if db == nil {
		panic("events: db required")
	}
	return &PostgresProcessedStore{db: db}
}

// MarkProcessed reports true only for the first insert of (provider, eventID).
func (s *PostgresProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (provider, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune deletes ids recorded before cutoff. Cloud API retries stop well
// inside a day, so older rows only cost index space.
func (s *PostgresProcessedStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("events: prune processed: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ ProcessedStore = (*PostgresProcessedStore)(nil)
