package leads

import "errors"

// Validate returns the first two; GetByID returns ErrLeadNotFound, which the
// admin handler maps to 404.
var (
	ErrInvalidName    = errors.New("leads: name is required")
	ErrMissingContact = errors.New("leads: phone is required")
	ErrLeadNotFound   = errors.New("leads: lead not found")
)
