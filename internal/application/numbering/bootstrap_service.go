package numbering

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BootstrapService materializes the factory sequence catalog for a tenant.
// It runs on every onboarding pass, so it must be idempotent: existing
// sequences are returned untouched, missing ones are created with defaults.
type BootstrapService struct {
	sequenceRepo numbering.SequenceRepository
	logger       *zap.Logger
}

// NewBootstrapService creates a new BootstrapService
func NewBootstrapService(sequenceRepo numbering.SequenceRepository, logger *zap.Logger) *BootstrapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootstrapService{
		sequenceRepo: sequenceRepo,
		logger:       logger,
	}
}

// CreateDefaultSequences ensures one sequence per known document type exists
// for the tenant and returns the full set in catalog order
func (s *BootstrapService) CreateDefaultSequences(ctx context.Context, tenantID uuid.UUID) ([]SequenceResponse, error) {
	responses := make([]SequenceResponse, 0, len(numbering.AllDocumentTypes()))

	for _, docType := range numbering.AllDocumentTypes() {
		seq, err := s.ensureSequence(ctx, tenantID, docType)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *toSequenceResponse(seq))
	}

	s.logger.Info("bootstrapped default sequences",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("count", len(responses)))
	return responses, nil
}

func (s *BootstrapService) ensureSequence(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Sequence, error) {
	existing, err := s.sequenceRepo.FindByType(ctx, tenantID, docType)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	seq, err := numbering.NewSequenceFromDefaults(tenantID, docType)
	if err != nil {
		return nil, err
	}
	if err := s.sequenceRepo.Create(ctx, seq); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Concurrent onboarding pass created it first
			return s.sequenceRepo.FindByType(ctx, tenantID, docType)
		}
		return nil, err
	}
	return seq, nil
}
