package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sequenceTableSQLite mirrors the sequences table for SQLite tests, including
// the composite unique index that migrations create on Postgres
type sequenceTableSQLite struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"not null;uniqueIndex:idx_sequences_tenant_type,priority:1"`
	DocumentType  string `gorm:"not null;uniqueIndex:idx_sequences_tenant_type,priority:2"`
	Format        string `gorm:"not null"`
	NextNumber    int64  `gorm:"not null"`
	NextFormatted string `gorm:"not null"`
	CanEdit       bool   `gorm:"not null;default:true"`
	CanDelete     bool   `gorm:"not null;default:false"`
	Version       int    `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (sequenceTableSQLite) TableName() string {
	return "sequences"
}

func setupSequenceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&sequenceTableSQLite{})
	require.NoError(t, err)

	return db
}

func mustSequence(t *testing.T, tenantID uuid.UUID, docType numbering.DocumentType) *numbering.Sequence {
	t.Helper()
	seq, err := numbering.NewSequenceFromDefaults(tenantID, docType)
	require.NoError(t, err)
	return seq
}

func TestGormSequenceRepository_CreateAndFind(t *testing.T) {
	db := setupSequenceTestDB(t)
	repo := NewGormSequenceRepository(db)
	ctx := context.Background()

	t.Run("creates and reads back a sequence", func(t *testing.T) {
		tenantID := uuid.New()
		seq := mustSequence(t, tenantID, numbering.DocumentTypeInvoice)

		require.NoError(t, repo.Create(ctx, seq))

		found, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, err)
		assert.Equal(t, seq.ID, found.ID)
		assert.Equal(t, "RE-{number}", found.Format)
		assert.Equal(t, int64(1001), found.NextNumber)
		assert.Equal(t, "RE-1001", found.NextFormatted)
		assert.Equal(t, 1, found.Version)
	})

	t.Run("duplicate creation maps to already exists", func(t *testing.T) {
		tenantID := uuid.New()
		require.NoError(t, repo.Create(ctx, mustSequence(t, tenantID, numbering.DocumentTypeQuote)))

		err := repo.Create(ctx, mustSequence(t, tenantID, numbering.DocumentTypeQuote))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("same type for another tenant is allowed", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, mustSequence(t, uuid.New(), numbering.DocumentTypeCreditNote)))
		require.NoError(t, repo.Create(ctx, mustSequence(t, uuid.New(), numbering.DocumentTypeCreditNote)))
	})

	t.Run("missing sequence yields not found", func(t *testing.T) {
		_, err := repo.FindByType(ctx, uuid.New(), numbering.DocumentTypeInvoice)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("find by id scoped to tenant", func(t *testing.T) {
		tenantID := uuid.New()
		seq := mustSequence(t, tenantID, numbering.DocumentTypeOrderConfirmation)
		require.NoError(t, repo.Create(ctx, seq))

		found, err := repo.FindByIDForTenant(ctx, tenantID, seq.ID)
		require.NoError(t, err)
		assert.Equal(t, seq.ID, found.ID)

		_, err = repo.FindByIDForTenant(ctx, uuid.New(), seq.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSequenceRepository_FindAllForTenant(t *testing.T) {
	db := setupSequenceTestDB(t)
	repo := NewGormSequenceRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	for _, docType := range numbering.AllDocumentTypes() {
		require.NoError(t, repo.Create(ctx, mustSequence(t, tenantID, docType)))
	}
	// Another tenant's sequence must not leak into the listing
	require.NoError(t, repo.Create(ctx, mustSequence(t, uuid.New(), numbering.DocumentTypeInvoice)))

	sequences, err := repo.FindAllForTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, sequences, len(numbering.AllDocumentTypes()))

	for i := 1; i < len(sequences); i++ {
		assert.LessOrEqual(t, string(sequences[i-1].DocumentType), string(sequences[i].DocumentType))
	}
}

func TestGormSequenceRepository_SaveWithLock(t *testing.T) {
	ctx := context.Background()

	t.Run("persists an advanced counter", func(t *testing.T) {
		db := setupSequenceTestDB(t)
		repo := NewGormSequenceRepository(db)
		tenantID := uuid.New()
		seq := mustSequence(t, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, repo.Create(ctx, seq))

		number, formatted := seq.Advance()
		assert.Equal(t, int64(1001), number)
		assert.Equal(t, "RE-1001", formatted)

		require.NoError(t, repo.SaveWithLock(ctx, seq))

		found, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, err)
		assert.Equal(t, int64(1002), found.NextNumber)
		assert.Equal(t, "RE-1002", found.NextFormatted)
		assert.Equal(t, 2, found.Version)
	})

	t.Run("stale aggregate loses the race", func(t *testing.T) {
		db := setupSequenceTestDB(t)
		repo := NewGormSequenceRepository(db)
		tenantID := uuid.New()
		seq := mustSequence(t, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, repo.Create(ctx, seq))

		// Two readers load the same row
		first, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, err)
		second, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, err)

		first.Advance()
		require.NoError(t, repo.SaveWithLock(ctx, first))

		second.Advance()
		err = repo.SaveWithLock(ctx, second)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

		// The winner's write is intact
		found, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeInvoice)
		require.NoError(t, err)
		assert.Equal(t, int64(1002), found.NextNumber)
		assert.Equal(t, 2, found.Version)
	})

	t.Run("persists flag changes", func(t *testing.T) {
		db := setupSequenceTestDB(t)
		repo := NewGormSequenceRepository(db)
		tenantID := uuid.New()
		seq := mustSequence(t, tenantID, numbering.DocumentTypeCustomer)
		require.NoError(t, repo.Create(ctx, seq))

		canEdit := false
		canDelete := true
		require.NoError(t, seq.ApplyUpdate(numbering.SequenceUpdate{CanEdit: &canEdit, CanDelete: &canDelete}))
		require.NoError(t, repo.SaveWithLock(ctx, seq))

		found, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeCustomer)
		require.NoError(t, err)
		assert.False(t, found.CanEdit)
		assert.True(t, found.CanDelete)
	})
}

func TestGormSequenceRepository_DeleteForTenant(t *testing.T) {
	db := setupSequenceTestDB(t)
	repo := NewGormSequenceRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	seq := mustSequence(t, tenantID, numbering.DocumentTypeSupplier)
	require.NoError(t, repo.Create(ctx, seq))

	t.Run("wrong tenant cannot delete", func(t *testing.T) {
		err := repo.DeleteForTenant(ctx, uuid.New(), seq.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("deletes within the tenant", func(t *testing.T) {
		require.NoError(t, repo.DeleteForTenant(ctx, tenantID, seq.ID))

		_, err := repo.FindByType(ctx, tenantID, numbering.DocumentTypeSupplier)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

// newMockSequenceRepository creates a GormSequenceRepository with a mocked SQL
// connection to assert the exact statements issued against Postgres
func newMockSequenceRepository(t *testing.T) (*GormSequenceRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSequenceRepository(gormDB), mock, mockDB
}

func TestGormSequenceRepository_SaveWithLock_SQL(t *testing.T) {
	t.Run("guards the update with the previous version", func(t *testing.T) {
		repo, mock, mockDB := newMockSequenceRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		seq := mustSequence(t, tenantID, numbering.DocumentTypeInvoice)
		seq.Advance() // version is now 2, the row still holds 1

		mock.ExpectExec(`UPDATE "sequences" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), seq)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero affected rows is a conflict", func(t *testing.T) {
		repo, mock, mockDB := newMockSequenceRepository(t)
		defer mockDB.Close()

		seq := mustSequence(t, uuid.New(), numbering.DocumentTypeInvoice)
		seq.Advance()

		mock.ExpectExec(`UPDATE "sequences"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), seq)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
