package document

import (
	"context"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
)

// DocumentRepository is the persistence contract for issued documents
type DocumentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Document, error)
	FindAllByType(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) ([]Document, error)
	Save(ctx context.Context, doc *Document) error
	DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error
}
