package leads

import (
	"strings"
	"time"
)

// Status tracks whether staff already answered a lead.
type Status string

const (
	StatusPending   Status = "PENDIENTE"
	StatusContacted Status = "CONTACTADO"
)

// Lead is a patient question handed to a human advisor.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateLeadRequest represents a captured advisor request.
type CreateLeadRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingContact
	}
	return nil
}

func (r *CreateLeadRequest) source() string {
	if r.Source == "" {
		return "whatsapp"
	}
	return r.Source
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Limit  int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}
