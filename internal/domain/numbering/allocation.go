package numbering

import (
	"context"
	"time"
)

// Allocation is one issued document number. Degraded marks a number that was
// synthesized after the atomic allocation path was exhausted by conflicts; it
// was never durably reserved and can collide with a later regular allocation.
type Allocation struct {
	Number          int64        `json:"number"`
	FormattedNumber string       `json:"formatted_number"`
	Format          string       `json:"format"`
	DocumentType    DocumentType `json:"document_type"`
	Degraded        bool         `json:"degraded"`
}

// AllocationCache stores issued allocations under a caller-supplied
// idempotency key, so a retried document-creation request receives the
// number it was already given instead of consuming a fresh one.
type AllocationCache interface {
	// Get returns the cached allocation for the key, if present
	Get(ctx context.Context, key string) (*Allocation, bool, error)

	// Put stores an allocation under the key with a TTL
	Put(ctx context.Context, key string, allocation *Allocation, ttl time.Duration) error

	// Close releases the store's resources
	Close() error
}
