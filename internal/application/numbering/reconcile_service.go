package numbering

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// reconcileAttempts bounds the CAS retry when racing a concurrent allocation.
// Losing every attempt is harmless: the counter only moved further ahead.
const reconcileAttempts = 3

// ReconcileService raises a stored counter past the highest number embedded
// in already-persisted documents. Other code paths (imports, legacy records)
// can write documents whose numbers the allocator never issued; without this
// catch-up the allocator would eventually hand out a duplicate.
type ReconcileService struct {
	sequenceRepo numbering.SequenceRepository
	documents    numbering.DocumentNumberSource
	logger       *zap.Logger
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(
	sequenceRepo numbering.SequenceRepository,
	documents numbering.DocumentNumberSource,
	logger *zap.Logger,
) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		sequenceRepo: sequenceRepo,
		documents:    documents,
		logger:       logger,
	}
}

// Reconcile advances the sequence for the pair to one past the highest
// number found in persisted documents. The counter never regresses; when no
// document exceeds it, nothing is written.
func (s *ReconcileService) Reconcile(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) error {
	if !docType.IsValid() {
		return shared.NewDomainError("INVALID_DOCUMENT_TYPE", fmt.Sprintf("Unknown document type %q", docType))
	}

	// Reconciliation is best effort. A failed scan must never turn into a
	// caller-visible error; the counter simply stays where it was.
	numbers, err := s.documents.NumbersInUse(ctx, tenantID, docType)
	if err != nil {
		s.logger.Warn("document scan failed, leaving counter untouched",
			zap.String("tenant_id", tenantID.String()),
			zap.String("document_type", string(docType)),
			zap.Error(err))
		return nil
	}
	if len(numbers) == 0 {
		return nil
	}

	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		seq, err := s.sequenceRepo.FindByType(ctx, tenantID, docType)
		if errors.Is(err, shared.ErrNotFound) {
			seq, err = s.createDefault(ctx, tenantID, docType)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		highest := highestNumber(numbers, seq.Format)
		if !seq.AdvanceTo(highest + 1) {
			return nil
		}

		switch err := s.sequenceRepo.SaveWithLock(ctx, seq); {
		case err == nil:
			s.logger.Info("reconciled sequence counter",
				zap.String("tenant_id", tenantID.String()),
				zap.String("document_type", string(docType)),
				zap.Int64("next_number", seq.NextNumber))
			return nil
		case errors.Is(err, shared.ErrConcurrencyConflict):
			// A concurrent allocation moved the counter; re-read and re-check
			continue
		default:
			return err
		}
	}
	return nil
}

// createDefault materializes the sequence so the catch-up has a row to
// advance; a concurrent creation wins harmlessly.
func (s *ReconcileService) createDefault(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Sequence, error) {
	seq, err := numbering.NewSequenceFromDefaults(tenantID, docType)
	if err != nil {
		return nil, err
	}
	if err := s.sequenceRepo.Create(ctx, seq); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return s.sequenceRepo.FindByType(ctx, tenantID, docType)
		}
		return nil, err
	}
	return seq, nil
}

// highestNumber extracts the maximum raw number across the documents'
// display numbers under the sequence's pattern
func highestNumber(numbers []string, format string) int64 {
	var highest int64 = -1
	for _, display := range numbers {
		if n, ok := numbering.ExtractNumber(display, format); ok && n > highest {
			highest = n
		}
	}
	return highest
}
