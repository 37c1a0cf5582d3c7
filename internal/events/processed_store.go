// Package events remembers which webhook deliveries were already handled so
// retried deliveries are dropped.
package events

import "context"

// ProviderWhatsApp namespaces Cloud API message ids.
const ProviderWhatsApp = "whatsapp"

// ProcessedStore records webhook events that were already handled.
type ProcessedStore interface {
	// MarkProcessed records the event id for the provider, returning false if
	// it was already recorded.
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}
