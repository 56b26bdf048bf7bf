package numbering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockSequenceRepository is a mock implementation of SequenceRepository
type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) FindByID(ctx context.Context, id uuid.UUID) (*numbering.Sequence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numbering.Sequence), args.Error(1)
}

func (m *MockSequenceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*numbering.Sequence, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numbering.Sequence), args.Error(1)
}

func (m *MockSequenceRepository) FindByType(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Sequence, error) {
	args := m.Called(ctx, tenantID, docType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numbering.Sequence), args.Error(1)
}

func (m *MockSequenceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]numbering.Sequence, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]numbering.Sequence), args.Error(1)
}

func (m *MockSequenceRepository) Create(ctx context.Context, seq *numbering.Sequence) error {
	args := m.Called(ctx, seq)
	return args.Error(0)
}

func (m *MockSequenceRepository) SaveWithLock(ctx context.Context, seq *numbering.Sequence) error {
	args := m.Called(ctx, seq)
	return args.Error(0)
}

func (m *MockSequenceRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockDocumentNumberSource is a mock implementation of DocumentNumberSource
type MockDocumentNumberSource struct {
	mock.Mock
}

func (m *MockDocumentNumberSource) NumbersInUse(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) ([]string, error) {
	args := m.Called(ctx, tenantID, docType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// =============================================================================
// In-memory fakes
// =============================================================================

// fakeSequenceStore is a thread-safe in-memory SequenceRepository with real
// optimistic-lock semantics, used to exercise the allocator's retry loop
// under genuine goroutine contention.
type fakeSequenceStore struct {
	mu   sync.Mutex
	rows map[string]numbering.Sequence
}

func newFakeSequenceStore() *fakeSequenceStore {
	return &fakeSequenceStore{rows: make(map[string]numbering.Sequence)}
}

func storeKey(tenantID uuid.UUID, docType numbering.DocumentType) string {
	return fmt.Sprintf("%s|%s", tenantID, docType)
}

func (f *fakeSequenceStore) FindByID(ctx context.Context, id uuid.UUID) (*numbering.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			copied := row
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeSequenceStore) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*numbering.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id && row.TenantID == tenantID {
			copied := row
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeSequenceStore) FindByType(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[storeKey(tenantID, docType)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := row
	return &copied, nil
}

func (f *fakeSequenceStore) FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]numbering.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []numbering.Sequence
	for _, row := range f.rows {
		if row.TenantID == tenantID {
			result = append(result, row)
		}
	}
	return result, nil
}

func (f *fakeSequenceStore) Create(ctx context.Context, seq *numbering.Sequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := storeKey(seq.TenantID, seq.DocumentType)
	if _, ok := f.rows[key]; ok {
		return shared.ErrAlreadyExists
	}
	f.rows[key] = *seq
	return nil
}

func (f *fakeSequenceStore) SaveWithLock(ctx context.Context, seq *numbering.Sequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := storeKey(seq.TenantID, seq.DocumentType)
	current, ok := f.rows[key]
	if !ok {
		return shared.ErrNotFound
	}
	if current.Version != seq.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	f.rows[key] = *seq
	return nil
}

func (f *fakeSequenceStore) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, row := range f.rows {
		if row.ID == id && row.TenantID == tenantID {
			delete(f.rows, key)
			return nil
		}
	}
	return shared.ErrNotFound
}

var _ numbering.SequenceRepository = (*fakeSequenceStore)(nil)

// fakeAllocationCache is a minimal map-backed AllocationCache
type fakeAllocationCache struct {
	mu      sync.Mutex
	entries map[string]numbering.Allocation
}

func newFakeAllocationCache() *fakeAllocationCache {
	return &fakeAllocationCache{entries: make(map[string]numbering.Allocation)}
}

func (c *fakeAllocationCache) Get(ctx context.Context, key string) (*numbering.Allocation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	allocation, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	copied := allocation
	return &copied, true, nil
}

func (c *fakeAllocationCache) Put(ctx context.Context, key string, allocation *numbering.Allocation, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *allocation
	return nil
}

func (c *fakeAllocationCache) Close() error { return nil }

var _ numbering.AllocationCache = (*fakeAllocationCache)(nil)

// testAllocatorConfig keeps retry delays negligible in tests
func testAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		MaxAttempts:    5,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		FallbackRange:  100_000_000,
		IdempotencyTTL: time.Minute,
	}
}
