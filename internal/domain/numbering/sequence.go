package numbering

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
)

// Sequence is the counter aggregate for one (tenant, document type) pair.
// It owns the next number to hand out and the tenant-configured display
// format. All concurrent mutation goes through optimistic locking on the
// aggregate version; the allocator retries on conflict. Every mutator bumps
// the version exactly once, so a save always checks against the read state.
type Sequence struct {
	shared.TenantAggregateRoot
	DocumentType  DocumentType `gorm:"type:varchar(30);not null;uniqueIndex:idx_sequences_tenant_type,priority:2"`
	Format        string       `gorm:"type:varchar(100);not null"`
	NextNumber    int64        `gorm:"not null"`
	NextFormatted string       `gorm:"type:varchar(130);not null"`
	CanEdit       bool         `gorm:"not null;default:true"`
	CanDelete     bool         `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Sequence) TableName() string {
	return "sequences"
}

// NewSequence creates a sequence with an explicit format and starting number
func NewSequence(tenantID uuid.UUID, docType DocumentType, format string, start int64) (*Sequence, error) {
	if !docType.IsValid() {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_TYPE", fmt.Sprintf("Unknown document type %q", docType))
	}
	if err := validateFormat(format); err != nil {
		return nil, err
	}
	if start < 0 {
		return nil, shared.NewDomainError("INVALID_NEXT_NUMBER", "Starting number cannot be negative")
	}

	s := &Sequence{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DocumentType:        docType,
		Format:              format,
		NextNumber:          start,
		CanEdit:             true,
		CanDelete:           false,
	}
	s.refreshFormatted()
	return s, nil
}

// NewSequenceFromDefaults creates a sequence from the factory catalog entry
// for the document type
func NewSequenceFromDefaults(tenantID uuid.UUID, docType DocumentType) (*Sequence, error) {
	defaults, ok := docType.Defaults()
	if !ok {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_TYPE", fmt.Sprintf("Unknown document type %q", docType))
	}
	return NewSequence(tenantID, docType, defaults.Format, defaults.Start)
}

// Advance hands out the current next number and steps the counter.
// Returns the allocated raw number and its formatted rendering.
func (s *Sequence) Advance() (int64, string) {
	number := s.NextNumber
	formatted := FormatNumber(number, s.Format)
	s.NextNumber = number + 1
	s.refreshFormatted()
	s.touch()
	return number, formatted
}

// AdvanceTo raises the counter to the given value during reconciliation.
// The counter never moves backwards; a target at or below the current value
// is a no-op and returns false.
func (s *Sequence) AdvanceTo(next int64) bool {
	if next <= s.NextNumber {
		return false
	}
	s.NextNumber = next
	s.refreshFormatted()
	s.touch()
	return true
}

// SequenceUpdate is an operator correction to a sequence. Nil fields are
// left unchanged. ForceLower must be set to lower the counter, since that
// reissues numbers.
type SequenceUpdate struct {
	Format     *string
	NextNumber *int64
	ForceLower bool
	CanEdit    *bool
	CanDelete  *bool
}

// ApplyUpdate validates and applies an operator correction as one atomic
// aggregate mutation
func (s *Sequence) ApplyUpdate(update SequenceUpdate) error {
	if (update.Format != nil || update.NextNumber != nil) && !s.CanEdit {
		return shared.NewDomainError("SEQUENCE_NOT_EDITABLE", "This sequence is locked against edits")
	}
	if update.Format != nil {
		if err := validateFormat(*update.Format); err != nil {
			return err
		}
	}
	if update.NextNumber != nil {
		next := *update.NextNumber
		if next < 0 {
			return shared.NewDomainError("INVALID_NEXT_NUMBER", "Next number cannot be negative")
		}
		if next < s.NextNumber && !update.ForceLower {
			return shared.NewDomainError("SEQUENCE_REGRESSION", fmt.Sprintf("Lowering the counter from %d to %d would reissue numbers", s.NextNumber, next))
		}
	}

	if update.Format != nil {
		s.Format = *update.Format
	}
	if update.NextNumber != nil {
		s.NextNumber = *update.NextNumber
	}
	if update.CanEdit != nil {
		s.CanEdit = *update.CanEdit
	}
	if update.CanDelete != nil {
		s.CanDelete = *update.CanDelete
	}
	s.refreshFormatted()
	s.touch()
	return nil
}

// PreviewNext returns the formatted rendering of the next number without
// consuming it
func (s *Sequence) PreviewNext() string {
	return FormatNumber(s.NextNumber, s.Format)
}

func (s *Sequence) refreshFormatted() {
	s.NextFormatted = FormatNumber(s.NextNumber, s.Format)
}

func (s *Sequence) touch() {
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}

func validateFormat(format string) error {
	if format == "" {
		return shared.NewDomainError("INVALID_FORMAT", "Format cannot be empty")
	}
	if len(format) > 100 {
		return shared.NewDomainError("INVALID_FORMAT", "Format cannot exceed 100 characters")
	}
	return nil
}
