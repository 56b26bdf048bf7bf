package numbering

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
)

// =============================================================================
// Sequence DTOs
// =============================================================================

// SequenceResponse represents a sequence in API responses
type SequenceResponse struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	DocumentType  string    `json:"document_type"`
	Format        string    `json:"format"`
	NextNumber    int64     `json:"next_number"`
	NextFormatted string    `json:"next_formatted"`
	CanEdit       bool      `json:"can_edit"`
	CanDelete     bool      `json:"can_delete"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UpdateSequenceRequest represents an admin update of a sequence.
// Force must be set to lower the counter, since that reissues numbers.
type UpdateSequenceRequest struct {
	Format     *string `json:"format" binding:"omitempty,min=1,max=100"`
	NextNumber *int64  `json:"next_number" binding:"omitempty,min=0"`
	Force      bool    `json:"force"`
	CanEdit    *bool   `json:"can_edit"`
	CanDelete  *bool   `json:"can_delete"`
}

// AllocationResponse represents an issued document number
type AllocationResponse struct {
	Number          int64  `json:"number"`
	FormattedNumber string `json:"formatted_number"`
	Format          string `json:"format"`
	DocumentType    string `json:"document_type"`
	Degraded        bool   `json:"degraded"`
}

// toSequenceResponse maps a sequence aggregate to its response DTO
func toSequenceResponse(seq *numbering.Sequence) *SequenceResponse {
	return &SequenceResponse{
		ID:            seq.ID,
		TenantID:      seq.TenantID,
		DocumentType:  string(seq.DocumentType),
		Format:        seq.Format,
		NextNumber:    seq.NextNumber,
		NextFormatted: seq.NextFormatted,
		CanEdit:       seq.CanEdit,
		CanDelete:     seq.CanDelete,
		CreatedAt:     seq.CreatedAt,
		UpdatedAt:     seq.UpdatedAt,
	}
}

// toAllocationResponse maps an allocation to its response DTO
func toAllocationResponse(a *numbering.Allocation) *AllocationResponse {
	return &AllocationResponse{
		Number:          a.Number,
		FormattedNumber: a.FormattedNumber,
		Format:          a.Format,
		DocumentType:    string(a.DocumentType),
		Degraded:        a.Degraded,
	}
}
