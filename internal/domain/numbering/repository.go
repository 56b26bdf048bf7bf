package numbering

import (
	"context"

	"github.com/google/uuid"
)

// SequenceRepository is the persistence contract for sequences.
// Implementations must map a duplicate (tenant, document type) insert to
// shared.ErrAlreadyExists and a failed version check to
// shared.ErrConcurrencyConflict so the allocator can retry.
type SequenceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Sequence, error)
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Sequence, error)
	FindByType(ctx context.Context, tenantID uuid.UUID, docType DocumentType) (*Sequence, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]Sequence, error)

	// Create inserts a new sequence; the unique index on
	// (tenant_id, document_type) makes concurrent first-use creation safe
	Create(ctx context.Context, seq *Sequence) error

	// SaveWithLock persists the aggregate only if the stored version still
	// matches the version the aggregate was read at
	SaveWithLock(ctx context.Context, seq *Sequence) error

	DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error
}

// DocumentNumberSource exposes the display numbers of documents already
// persisted for a tenant and type. Document creation paths outside the
// allocator can write numbers the counter never issued; the reconciler
// scans this source to heal the drift.
type DocumentNumberSource interface {
	NumbersInUse(ctx context.Context, tenantID uuid.UUID, docType DocumentType) ([]string, error)
}
