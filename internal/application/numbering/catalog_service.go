package numbering

import (
	"context"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
)

// CatalogService exposes the admin read/update surface over a tenant's
// sequences. These are infrequent operator actions; a lost optimistic-lock
// race is reported as a conflict instead of being retried.
type CatalogService struct {
	sequenceRepo numbering.SequenceRepository
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(sequenceRepo numbering.SequenceRepository) *CatalogService {
	return &CatalogService{sequenceRepo: sequenceRepo}
}

// GetSequences returns all sequences for a tenant
func (s *CatalogService) GetSequences(ctx context.Context, tenantID uuid.UUID) ([]SequenceResponse, error) {
	sequences, err := s.sequenceRepo.FindAllForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	responses := make([]SequenceResponse, len(sequences))
	for i := range sequences {
		responses[i] = *toSequenceResponse(&sequences[i])
	}
	return responses, nil
}

// GetSequence returns a single sequence by ID within a tenant
func (s *CatalogService) GetSequence(ctx context.Context, tenantID, id uuid.UUID) (*SequenceResponse, error) {
	seq, err := s.sequenceRepo.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toSequenceResponse(seq), nil
}

// UpdateSequence applies an operator correction. Editing the counter
// recomputes the cached formatted preview; lowering it requires Force.
func (s *CatalogService) UpdateSequence(ctx context.Context, tenantID, id uuid.UUID, req UpdateSequenceRequest) (*SequenceResponse, error) {
	seq, err := s.sequenceRepo.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	update := numbering.SequenceUpdate{
		Format:     req.Format,
		NextNumber: req.NextNumber,
		ForceLower: req.Force,
		CanEdit:    req.CanEdit,
		CanDelete:  req.CanDelete,
	}
	if err := seq.ApplyUpdate(update); err != nil {
		return nil, err
	}

	if err := s.sequenceRepo.SaveWithLock(ctx, seq); err != nil {
		return nil, err
	}
	return toSequenceResponse(seq), nil
}

// DeleteSequence removes a sequence where the tenant permits it. This is an
// administrative override; the allocator recreates the sequence from the
// factory defaults on next use.
func (s *CatalogService) DeleteSequence(ctx context.Context, tenantID, id uuid.UUID) error {
	seq, err := s.sequenceRepo.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !seq.CanDelete {
		return shared.NewDomainError("SEQUENCE_NOT_DELETABLE", "This sequence is locked against deletion")
	}
	return s.sequenceRepo.DeleteForTenant(ctx, tenantID, id)
}
