package appointments

import (
	"context"
	"sync"
)

// Ledger is the row store behind every appointment. Rows are addressed by
// their 1-based position and are never deleted.
type Ledger interface {
	Append(ctx context.Context, r Record) error
	List(ctx context.Context) ([]Row, error)
	Update(ctx context.Context, index int, r Record) error
}

// MemoryLedger keeps rows in process memory.
type MemoryLedger struct {
	mu   sync.RWMutex
	rows []Record
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(ctx context.Context, r Record) error {
	l.mu.Lock()
	l.rows = append(l.rows, r)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) List(ctx context.Context) ([]Row, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Row, len(l.rows))
	for i, r := range l.rows {
		out[i] = Row{Index: i + 1, Record: r}
	}
	return out, nil
}

func (l *MemoryLedger) Update(ctx context.Context, index int, r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 1 || index > len(l.rows) {
		return ErrRowNotFound
	}
	l.rows[index-1] = r
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)
