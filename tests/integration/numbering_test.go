package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	"github.com/invoicehub/backend/internal/domain/document"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/infrastructure/persistence"
)

// newNumberingServices wires the numbering stack against a real database
func newNumberingServices(tdb *TestDB) (*numberingapp.AllocatorService, *numberingapp.ReconcileService, *numberingapp.CatalogService, *numberingapp.BootstrapService) {
	sequenceRepo := persistence.NewGormSequenceRepository(tdb.DB)
	documentRepo := persistence.NewGormDocumentRepository(tdb.DB)

	reconciler := numberingapp.NewReconcileService(sequenceRepo, documentRepo, nil)
	allocator := numberingapp.NewAllocatorService(
		sequenceRepo,
		nil,
		numberingapp.AllocatorConfig{
			MaxAttempts:    50,
			BaseBackoff:    2 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
			FallbackRange:  100_000_000,
			IdempotencyTTL: time.Hour,
		},
		numberingapp.WithReconciler(reconciler),
	)
	catalog := numberingapp.NewCatalogService(sequenceRepo)
	bootstrap := numberingapp.NewBootstrapService(sequenceRepo, nil)

	return allocator, reconciler, catalog, bootstrap
}

func TestNumbering_ConcurrentAllocation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	allocator, _, _, _ := newNumberingServices(tdb)

	tenantID := uuid.New()
	ctx := context.Background()

	const workers = 10
	const perWorker = 5

	var wg sync.WaitGroup
	results := make(chan *numberingapp.AllocationResponse, workers*perWorker)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				allocation, err := allocator.AllocateNext(ctx, tenantID, numbering.DocumentTypeInvoice)
				assert.NoError(t, err)
				if allocation != nil {
					results <- allocation
				}
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	count := 0
	for allocation := range results {
		count++
		assert.False(t, allocation.Degraded, "no allocation should degrade under normal contention")
		assert.False(t, seen[allocation.FormattedNumber], "duplicate number issued: %s", allocation.FormattedNumber)
		seen[allocation.FormattedNumber] = true
	}
	require.Equal(t, workers*perWorker, count)

	// The counter ends exactly start + issued
	sequenceRepo := persistence.NewGormSequenceRepository(tdb.DB)
	seq, err := sequenceRepo.FindByType(ctx, tenantID, numbering.DocumentTypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, int64(1001+workers*perWorker), seq.NextNumber)
}

func TestNumbering_ConcurrentLazyCreation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	allocator, _, _, _ := newNumberingServices(tdb)

	tenantID := uuid.New()
	ctx := context.Background()

	// Both goroutines race to create the missing sequence; the unique index
	// picks one winner and the loser reloads
	const racers = 4
	var wg sync.WaitGroup
	results := make(chan *numberingapp.AllocationResponse, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allocation, err := allocator.AllocateNext(ctx, tenantID, numbering.DocumentTypeCustomer)
			assert.NoError(t, err)
			if allocation != nil {
				results <- allocation
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for allocation := range results {
		assert.False(t, seen[allocation.Number])
		seen[allocation.Number] = true
	}
	assert.Len(t, seen, racers)
}

func TestNumbering_TenantIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	allocator, _, _, _ := newNumberingServices(tdb)

	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	allocA, err := allocator.AllocateNext(ctx, tenantA, numbering.DocumentTypeQuote)
	require.NoError(t, err)
	allocB, err := allocator.AllocateNext(ctx, tenantB, numbering.DocumentTypeQuote)
	require.NoError(t, err)

	// Each tenant starts its own series at the factory default
	assert.Equal(t, int64(1001), allocA.Number)
	assert.Equal(t, int64(1001), allocB.Number)
	assert.Equal(t, "AN-1001", allocA.FormattedNumber)
	assert.Equal(t, "AN-1001", allocB.FormattedNumber)
}

func TestNumbering_ReconcileAgainstDocuments(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	allocator, reconciler, _, _ := newNumberingServices(tdb)
	documentRepo := persistence.NewGormDocumentRepository(tdb.DB)

	ctx := context.Background()
	tenantID := uuid.New()

	// A document imported outside the allocator carries a number far ahead
	// of the counter
	imported, err := document.NewDocument(
		tenantID,
		numbering.DocumentTypeInvoice,
		"RE-2500",
		2500,
		decimal.NewFromInt(100),
		time.Now(),
	)
	require.NoError(t, err)
	require.NoError(t, documentRepo.Save(ctx, imported))

	require.NoError(t, reconciler.Reconcile(ctx, tenantID, numbering.DocumentTypeInvoice))

	// The next allocation lands past the imported number
	allocation, err := allocator.AllocateNext(ctx, tenantID, numbering.DocumentTypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, int64(2501), allocation.Number)
	assert.Equal(t, "RE-2501", allocation.FormattedNumber)
}

func TestNumbering_DuplicateDocumentNumberRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	documentRepo := persistence.NewGormDocumentRepository(tdb.DB)

	ctx := context.Background()
	tenantID := uuid.New()

	first, err := document.NewDocument(tenantID, numbering.DocumentTypeInvoice, "RE-9001", 9001, decimal.NewFromInt(10), time.Now())
	require.NoError(t, err)
	require.NoError(t, documentRepo.Save(ctx, first))

	// Same display number within the tenant violates the unique index
	dup, err := document.NewDocument(tenantID, numbering.DocumentTypeInvoice, "RE-9001", 9001, decimal.NewFromInt(20), time.Now())
	require.NoError(t, err)
	assert.Error(t, documentRepo.Save(ctx, dup))

	// Another tenant may reuse the same display number
	other, err := document.NewDocument(uuid.New(), numbering.DocumentTypeInvoice, "RE-9001", 9001, decimal.NewFromInt(30), time.Now())
	require.NoError(t, err)
	assert.NoError(t, documentRepo.Save(ctx, other))
}

func TestNumbering_BootstrapAndCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	_, _, catalog, bootstrap := newNumberingServices(tdb)

	ctx := context.Background()
	tenantID := uuid.New()

	created, err := bootstrap.CreateDefaultSequences(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, created, len(numbering.AllDocumentTypes()))

	// Bootstrap is idempotent
	again, err := bootstrap.CreateDefaultSequences(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, again, len(numbering.AllDocumentTypes()))

	sequences, err := catalog.GetSequences(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, sequences, len(numbering.AllDocumentTypes()))

	byType := make(map[string]numberingapp.SequenceResponse, len(sequences))
	for _, s := range sequences {
		byType[s.DocumentType] = s
	}
	assert.Equal(t, "RE-1001", byType["INVOICE"].NextFormatted)
	assert.Equal(t, "KD-001", byType["CUSTOMER"].NextFormatted)
}
