package document

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Document is a minimal issued business document (invoice, quote, delivery
// note, ...). It carries the display number it was issued under; that number
// may come from the allocator or, for imported and legacy records, from
// outside it. The numbering reconciler scans these records to keep the
// counters ahead of every number in use.
type Document struct {
	shared.TenantAggregateRoot
	DocumentType   numbering.DocumentType `gorm:"type:varchar(30);not null;index:idx_documents_tenant_type,priority:2"`
	DocumentNumber string                 `gorm:"type:varchar(130);not null;uniqueIndex:idx_documents_tenant_number,priority:2"`
	RawNumber      int64                  `gorm:"not null"`
	Total          decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Currency       string                 `gorm:"type:varchar(3);not null;default:'EUR'"`
	IssuedAt       time.Time              `gorm:"not null;index"`
	Remark         string                 `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (Document) TableName() string {
	return "documents"
}

// NewDocument creates an issued document carrying an already assigned number
func NewDocument(
	tenantID uuid.UUID,
	docType numbering.DocumentType,
	documentNumber string,
	rawNumber int64,
	total decimal.Decimal,
	issuedAt time.Time,
) (*Document, error) {
	if !docType.IsValid() {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_TYPE", "Unknown document type")
	}
	if documentNumber == "" {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_NUMBER", "Document number cannot be empty")
	}
	if len(documentNumber) > 130 {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_NUMBER", "Document number cannot exceed 130 characters")
	}
	if total.LessThan(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Document total cannot be negative")
	}
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	return &Document{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DocumentType:        docType,
		DocumentNumber:      documentNumber,
		RawNumber:           rawNumber,
		Total:               total,
		Currency:            "EUR",
		IssuedAt:            issuedAt,
	}, nil
}
