package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/document"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormDocumentRepository implements DocumentRepository using GORM.
// It also serves as the numbering.DocumentNumberSource the reconciler
// scans for numbers assigned outside the allocator.
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// FindByID finds a document by its ID
func (r *GormDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	var doc document.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// FindAllByType returns all documents of a type for a tenant
func (r *GormDocumentRepository) FindAllByType(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) ([]document.Document, error) {
	var docs []document.Document
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_type = ?", tenantID, docType).
		Order("issued_at ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Save creates or updates a document
func (r *GormDocumentRepository) Save(ctx context.Context, doc *document.Document) error {
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// DeleteForTenant deletes a document within a tenant
func (r *GormDocumentRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&document.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// NumbersInUse returns the display numbers of every persisted document of
// the given type for the tenant
func (r *GormDocumentRepository) NumbersInUse(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) ([]string, error) {
	var numbers []string
	if err := r.db.WithContext(ctx).
		Model(&document.Document{}).
		Where("tenant_id = ? AND document_type = ?", tenantID, docType).
		Pluck("document_number", &numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

// Ensure GormDocumentRepository implements both contracts
var (
	_ document.DocumentRepository    = (*GormDocumentRepository)(nil)
	_ numbering.DocumentNumberSource = (*GormDocumentRepository)(nil)
)
