// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"github.com/invoicehub/backend/internal/domain/numbering"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// NumberingMetrics tracks document number allocation activity. It satisfies
// the allocator's metrics hook and is wired in at startup.
type NumberingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	allocationsTotal   *Counter
	conflictsTotal     *Counter
	allocationDuration *Histogram
}

// NumberingMetricsConfig holds configuration for numbering metrics.
type NumberingMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewNumberingMetrics creates a new NumberingMetrics instance.
func NewNumberingMetrics(cfg NumberingMetricsConfig) (*NumberingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	nm := &NumberingMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	nm.allocationsTotal, err = NewCounter(
		cfg.Meter,
		"numbering_allocation_total",
		"Total number of document numbers allocated",
		"{allocations}",
	)
	if err != nil {
		return nil, err
	}

	nm.conflictsTotal, err = NewCounter(
		cfg.Meter,
		"numbering_allocation_conflict_total",
		"Total number of optimistic lock conflicts during allocation",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	nm.allocationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "numbering_allocation_duration_seconds",
		Description: "Wall time of a single allocation including retries",
		Unit:        "s",
		Boundaries:  AllocationDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return nm, nil
}

// RecordAllocation records a completed allocation. Degraded allocations are
// labeled separately so the fallback rate can be alerted on.
func (nm *NumberingMetrics) RecordAllocation(ctx context.Context, docType numbering.DocumentType, degraded bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		AttrDocumentType.String(string(docType)),
		AttrDegraded.Bool(degraded),
	}
	nm.allocationsTotal.Inc(ctx, attrs...)
	nm.allocationDuration.RecordDuration(ctx, duration, attrs...)
}

// RecordConflict records a lost optimistic lock race that will be retried.
func (nm *NumberingMetrics) RecordConflict(ctx context.Context, docType numbering.DocumentType) {
	nm.conflictsTotal.Inc(ctx, AttrDocumentType.String(string(docType)))
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewNumberingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
