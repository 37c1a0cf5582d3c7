package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
}

// InMemoryRepository keeps leads in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Phone:     req.Phone,
		Message:   req.Message,
		Status:    StatusPending,
		Source:    req.source(),
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	return lead, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}

	return lead, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	out := make([]*Lead, 0, len(r.leads))
	for _, l := range r.leads {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

// SheetWriter mirrors leads into the clinic spreadsheet.
type SheetWriter interface {
	AppendLead(ctx context.Context, lead Lead) error
}

// MirroredRepository stores leads in a primary repository and copies every
// new lead to the spreadsheet the front desk works from. Mirror failures are
// logged only.
type MirroredRepository struct {
	Repository
	sheet  SheetWriter
	logger *logging.Logger
}

// NewMirroredRepository wraps primary.
func NewMirroredRepository(primary Repository, sheet SheetWriter, logger *logging.Logger) *MirroredRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &MirroredRepository{Repository: primary, sheet: sheet, logger: logger}
}

func (m *MirroredRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	lead, err := m.Repository.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if m.sheet != nil {
		if err := m.sheet.AppendLead(ctx, *lead); err != nil {
			m.logger.Warn("leads: sheet mirror failed", "lead_id", lead.ID, "error", err)
		}
	}
	return lead, nil
}

var (
	_ Repository = (*InMemoryRepository)(nil)
	_ Repository = (*MirroredRepository)(nil)
)
