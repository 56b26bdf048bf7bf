package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSequenceRepository implements SequenceRepository using GORM.
// The gorm.DB must be opened with TranslateError enabled so unique index
// violations surface as gorm.ErrDuplicatedKey.
type GormSequenceRepository struct {
	db *gorm.DB
}

// NewGormSequenceRepository creates a new GormSequenceRepository
func NewGormSequenceRepository(db *gorm.DB) *GormSequenceRepository {
	return &GormSequenceRepository{db: db}
}

// FindByID finds a sequence by its ID
func (r *GormSequenceRepository) FindByID(ctx context.Context, id uuid.UUID) (*numbering.Sequence, error) {
	var seq numbering.Sequence
	if err := r.db.WithContext(ctx).First(&seq, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &seq, nil
}

// FindByIDForTenant finds a sequence by ID within a tenant
func (r *GormSequenceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*numbering.Sequence, error) {
	var seq numbering.Sequence
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&seq).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &seq, nil
}

// FindByType finds the sequence for a (tenant, document type) pair
func (r *GormSequenceRepository) FindByType(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Sequence, error) {
	var seq numbering.Sequence
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_type = ?", tenantID, docType).
		First(&seq).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &seq, nil
}

// FindAllForTenant returns all sequences for a tenant ordered by document type
func (r *GormSequenceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]numbering.Sequence, error) {
	var sequences []numbering.Sequence
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("document_type ASC").
		Find(&sequences).Error; err != nil {
		return nil, err
	}
	return sequences, nil
}

// Create inserts a new sequence. The unique index on
// (tenant_id, document_type) rejects a concurrent duplicate creation, which
// is mapped to shared.ErrAlreadyExists so the caller can reload instead.
func (r *GormSequenceRepository) Create(ctx context.Context, seq *numbering.Sequence) error {
	if err := r.db.WithContext(ctx).Create(seq).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock persists the sequence only if the stored version still matches
// the version the aggregate was read at. A lost race surfaces as
// shared.ErrConcurrencyConflict; the allocator backs off and retries.
func (r *GormSequenceRepository) SaveWithLock(ctx context.Context, seq *numbering.Sequence) error {
	result := r.db.WithContext(ctx).
		Model(&numbering.Sequence{}).
		Where("id = ? AND version = ?", seq.ID, seq.Version-1).
		Select("next_number", "next_formatted", "format", "can_edit", "can_delete", "version", "updated_at").
		Updates(seq)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// DeleteForTenant deletes a sequence within a tenant
func (r *GormSequenceRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&numbering.Sequence{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormSequenceRepository implements the interface
var _ numbering.SequenceRepository = (*GormSequenceRepository)(nil)
