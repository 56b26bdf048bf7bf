package numbering

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// AllocatorMetrics receives counters from the allocation hot path.
// The telemetry layer provides the OpenTelemetry-backed implementation.
type AllocatorMetrics interface {
	RecordAllocation(ctx context.Context, docType numbering.DocumentType, degraded bool, duration time.Duration)
	RecordConflict(ctx context.Context, docType numbering.DocumentType)
}

// AllocatorConfig bounds the retry loop and the degraded fallback
type AllocatorConfig struct {
	MaxAttempts    int           // hard cap on atomic attempts
	BaseBackoff    time.Duration // first retry delay, doubled per attempt
	MaxBackoff     time.Duration // ceiling for the exponential delay
	FallbackRange  int64         // modulus for the time-derived fallback number
	IdempotencyTTL time.Duration // retention for idempotent allocation results
}

// DefaultAllocatorConfig returns the production defaults
func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		MaxAttempts:    5,
		BaseBackoff:    20 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		FallbackRange:  100_000_000,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// AllocatorService issues the next document number for a (tenant, document
// type) pair. Allocation is an optimistic read-increment-write against the
// sequence row: the version check inside the write detects a concurrent
// allocation, and the service backs off and retries up to MaxAttempts.
// Contention never surfaces to the caller as an error; exhausting the retry
// budget yields an explicitly degraded, non-durable number instead.
type AllocatorService struct {
	sequenceRepo numbering.SequenceRepository
	reconciler   *ReconcileService
	cache        numbering.AllocationCache
	metrics      AllocatorMetrics
	logger       *zap.Logger
	config       AllocatorConfig
}

// AllocatorOption configures optional collaborators
type AllocatorOption func(*AllocatorService)

// WithReconciler makes the allocator heal counter drift for document types
// whose numbers can originate outside it, before each allocation
func WithReconciler(r *ReconcileService) AllocatorOption {
	return func(s *AllocatorService) { s.reconciler = r }
}

// WithAllocationCache enables idempotent allocations
func WithAllocationCache(c numbering.AllocationCache) AllocatorOption {
	return func(s *AllocatorService) { s.cache = c }
}

// WithAllocatorMetrics wires allocation counters
func WithAllocatorMetrics(m AllocatorMetrics) AllocatorOption {
	return func(s *AllocatorService) { s.metrics = m }
}

// NewAllocatorService creates a new AllocatorService
func NewAllocatorService(
	sequenceRepo numbering.SequenceRepository,
	logger *zap.Logger,
	config AllocatorConfig,
	opts ...AllocatorOption,
) *AllocatorService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultAllocatorConfig().MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultAllocatorConfig().BaseBackoff
	}
	if config.MaxBackoff < config.BaseBackoff {
		config.MaxBackoff = DefaultAllocatorConfig().MaxBackoff
	}
	if config.FallbackRange <= 0 {
		config.FallbackRange = DefaultAllocatorConfig().FallbackRange
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &AllocatorService{
		sequenceRepo: sequenceRepo,
		logger:       logger,
		config:       config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllocateNext issues the next number for the pair. Successful non-degraded
// allocations for the same pair are strictly increasing; gaps can occur when
// a caller discards an issued number, duplicates cannot.
func (s *AllocatorService) AllocateNext(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*AllocationResponse, error) {
	allocation, err := s.allocate(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}
	return toAllocationResponse(allocation), nil
}

// AllocateNextIdempotent issues the next number, replaying the original
// allocation when the same idempotency key is presented again. An empty key
// degrades to a plain allocation.
func (s *AllocatorService) AllocateNextIdempotent(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType, idempotencyKey string) (*AllocationResponse, error) {
	if idempotencyKey == "" || s.cache == nil {
		return s.AllocateNext(ctx, tenantID, docType)
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", tenantID, docType, idempotencyKey)
	if cached, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
		// A broken cache must not block numbering; allocate normally
		s.logger.Warn("allocation cache read failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("document_type", string(docType)),
			zap.Error(err))
	} else if ok {
		return toAllocationResponse(cached), nil
	}

	allocation, err := s.allocate(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, cacheKey, allocation, s.config.IdempotencyTTL); err != nil {
		s.logger.Warn("allocation cache write failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("document_type", string(docType)),
			zap.Error(err))
	}
	return toAllocationResponse(allocation), nil
}

func (s *AllocatorService) allocate(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Allocation, error) {
	if !docType.IsValid() {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_TYPE", fmt.Sprintf("Unknown document type %q", docType))
	}

	// Documents of drift-prone types can carry numbers this counter never
	// issued; raise the counter past them before allocating. Failures here
	// only log: the stored counter is the best-effort truth then.
	if s.reconciler != nil && docType.NeedsReconciliation() {
		if err := s.reconciler.Reconcile(ctx, tenantID, docType); err != nil {
			s.logger.Warn("pre-allocation reconciliation failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("document_type", string(docType)),
				zap.Error(err))
		}
	}

	start := time.Now()
	lastFormat := ""

	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		seq, err := s.sequenceRepo.FindByType(ctx, tenantID, docType)
		if errors.Is(err, shared.ErrNotFound) {
			allocation, created, err := s.createAndAllocate(ctx, tenantID, docType)
			if err != nil {
				return nil, err
			}
			if created {
				s.observe(ctx, docType, allocation, start, attempt)
				return allocation, nil
			}
			// Lost the creation race; the row exists now, re-read it
			continue
		}
		if err != nil {
			return nil, err
		}
		lastFormat = seq.Format

		number, formatted := seq.Advance()
		switch err := s.sequenceRepo.SaveWithLock(ctx, seq); {
		case err == nil:
			allocation := &numbering.Allocation{
				Number:          number,
				FormattedNumber: formatted,
				Format:          seq.Format,
				DocumentType:    docType,
			}
			s.observe(ctx, docType, allocation, start, attempt)
			return allocation, nil
		case errors.Is(err, shared.ErrConcurrencyConflict):
			if s.metrics != nil {
				s.metrics.RecordConflict(ctx, docType)
			}
			s.sleep(attempt)
		default:
			return nil, err
		}
	}

	allocation := s.fallbackAllocation(tenantID, docType, lastFormat)
	s.logger.Warn("allocation retries exhausted, issuing degraded number",
		zap.String("tenant_id", tenantID.String()),
		zap.String("document_type", string(docType)),
		zap.Int64("number", allocation.Number),
		zap.Int("attempts", s.config.MaxAttempts))
	if s.metrics != nil {
		s.metrics.RecordAllocation(ctx, docType, true, time.Since(start))
	}
	return allocation, nil
}

// createAndAllocate lazily creates the sequence from the factory catalog and
// issues its first number. The insert itself is the atomic claim: when a
// concurrent caller wins, created is false and the caller must re-read.
func (s *AllocatorService) createAndAllocate(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Allocation, bool, error) {
	seq, err := numbering.NewSequenceFromDefaults(tenantID, docType)
	if err != nil {
		return nil, false, err
	}

	number, formatted := seq.Advance()
	if err := s.sequenceRepo.Create(ctx, seq); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &numbering.Allocation{
		Number:          number,
		FormattedNumber: formatted,
		Format:          seq.Format,
		DocumentType:    docType,
	}, true, nil
}

// fallbackAllocation synthesizes a time-derived number after the retry budget
// is exhausted. It is not reserved anywhere and may collide with a regularly
// issued number; callers see Degraded and operators see the warn log. The
// tradeoff keeps document creation available through sustained contention or
// a store outage.
func (s *AllocatorService) fallbackAllocation(tenantID uuid.UUID, docType numbering.DocumentType, format string) *numbering.Allocation {
	if format == "" {
		if defaults, ok := docType.Defaults(); ok {
			format = defaults.Format
		}
	}

	number := time.Now().UnixNano() % s.config.FallbackRange
	return &numbering.Allocation{
		Number:          number,
		FormattedNumber: numbering.FormatNumber(number, format),
		Format:          format,
		DocumentType:    docType,
		Degraded:        true,
	}
}

func (s *AllocatorService) observe(ctx context.Context, docType numbering.DocumentType, allocation *numbering.Allocation, start time.Time, attempt int) {
	s.logger.Info("allocated document number",
		zap.String("document_type", string(docType)),
		zap.Int64("number", allocation.Number),
		zap.String("formatted_number", allocation.FormattedNumber),
		zap.Int("attempt", attempt))
	if s.metrics != nil {
		s.metrics.RecordAllocation(ctx, docType, false, time.Since(start))
	}
}

// sleep backs off exponentially with jitter before the next attempt
func (s *AllocatorService) sleep(attempt int) {
	delay := s.config.BaseBackoff << uint(attempt)
	if delay > s.config.MaxBackoff {
		delay = s.config.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(s.config.BaseBackoff)))
	time.Sleep(delay + jitter)
}
