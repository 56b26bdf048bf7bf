package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mapAllocationCache is a minimal AllocationCache backed by a map
type mapAllocationCache struct {
	mu      sync.Mutex
	entries map[string]*numbering.Allocation
}

func newMapAllocationCache() *mapAllocationCache {
	return &mapAllocationCache{entries: make(map[string]*numbering.Allocation)}
}

func (c *mapAllocationCache) Get(_ context.Context, key string) (*numbering.Allocation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	allocation, ok := c.entries[key]
	return allocation, ok, nil
}

func (c *mapAllocationCache) Put(_ context.Context, key string, allocation *numbering.Allocation, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = allocation
	return nil
}

func (c *mapAllocationCache) Close() error { return nil }

var _ numbering.AllocationCache = (*mapAllocationCache)(nil)

func setupNumberingTestRouter(opts ...numberingapp.AllocatorOption) (*gin.Engine, *MockSequenceRepository, *MockDocumentNumberSource, *NumberingHandler) {
	gin.SetMode(gin.TestMode)

	mockRepo := new(MockSequenceRepository)
	mockDocs := new(MockDocumentNumberSource)
	allocator := numberingapp.NewAllocatorService(mockRepo, nil, numberingapp.DefaultAllocatorConfig(), opts...)
	reconciler := numberingapp.NewReconcileService(mockRepo, mockDocs, nil)
	handler := NewNumberingHandler(allocator, reconciler)

	router := gin.New()
	router.POST("/numbering/:documentType/next", handler.AllocateNext)
	router.POST("/numbering/:documentType/reconcile", handler.Reconcile)

	return router, mockRepo, mockDocs, handler
}

func allocateRequest(tenantID uuid.UUID, docType, idempotencyKey string) *http.Request {
	req, _ := http.NewRequest(http.MethodPost, "/numbering/"+docType+"/next", nil)
	req.Header.Set("X-Tenant-ID", tenantID.String())
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}
	return req
}

func TestNumberingHandler_AllocateNext(t *testing.T) {
	t.Run("should allocate the next invoice number", func(t *testing.T) {
		router, mockRepo, _, _ := setupNumberingTestRouter()
		tenantID := uuid.New()
		seq := createTestSequence(t, tenantID, numbering.DocumentTypeInvoice)

		mockRepo.On("FindByType", mock.Anything, tenantID, numbering.DocumentTypeInvoice).Return(seq, nil)
		mockRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*numbering.Sequence")).Return(nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, allocateRequest(tenantID, "INVOICE", ""))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(1001), data["number"])
		assert.Equal(t, "RE-1001", data["formatted_number"])
		assert.Equal(t, "INVOICE", data["document_type"])
		assert.Equal(t, false, data["degraded"])
	})

	t.Run("should lazily create a missing sequence", func(t *testing.T) {
		router, mockRepo, _, _ := setupNumberingTestRouter()
		tenantID := uuid.New()

		mockRepo.On("FindByType", mock.Anything, tenantID, numbering.DocumentTypeQuote).Return(nil, shared.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*numbering.Sequence")).Return(nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, allocateRequest(tenantID, "QUOTE", ""))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "AN-1001", data["formatted_number"])
		mockRepo.AssertExpectations(t)
	})

	t.Run("should reject an unknown document type", func(t *testing.T) {
		router, _, _, _ := setupNumberingTestRouter()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, allocateRequest(uuid.New(), "RECEIPT", ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeInvalidDocumentType, resp.Error.Code)
	})

	t.Run("should reject requests without a tenant", func(t *testing.T) {
		router, _, _, _ := setupNumberingTestRouter()

		req, _ := http.NewRequest(http.MethodPost, "/numbering/INVOICE/next", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should replay the allocation for the same idempotency key", func(t *testing.T) {
		router, mockRepo, _, _ := setupNumberingTestRouter(
			numberingapp.WithAllocationCache(newMapAllocationCache()),
		)
		tenantID := uuid.New()
		seq := createTestSequence(t, tenantID, numbering.DocumentTypeInvoice)

		mockRepo.On("FindByType", mock.Anything, tenantID, numbering.DocumentTypeInvoice).Return(seq, nil).Once()
		mockRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*numbering.Sequence")).Return(nil).Once()

		first := httptest.NewRecorder()
		router.ServeHTTP(first, allocateRequest(tenantID, "INVOICE", "req-abc"))
		require.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		router.ServeHTTP(second, allocateRequest(tenantID, "INVOICE", "req-abc"))
		require.Equal(t, http.StatusOK, second.Code)

		var firstResp, secondResp dto.Response
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

		firstData := firstResp.Data.(map[string]interface{})
		secondData := secondResp.Data.(map[string]interface{})
		assert.Equal(t, firstData["number"], secondData["number"])
		assert.Equal(t, firstData["formatted_number"], secondData["formatted_number"])

		// The store was only hit once
		mockRepo.AssertExpectations(t)
	})
}

func TestNumberingHandler_Reconcile(t *testing.T) {
	t.Run("should raise the counter past persisted documents", func(t *testing.T) {
		router, mockRepo, mockDocs, _ := setupNumberingTestRouter()
		tenantID := uuid.New()
		seq := createTestSequence(t, tenantID, numbering.DocumentTypeCustomer)

		mockDocs.On("NumbersInUse", mock.Anything, tenantID, numbering.DocumentTypeCustomer).
			Return([]string{"KD-007", "KD-042"}, nil)
		mockRepo.On("FindByType", mock.Anything, tenantID, numbering.DocumentTypeCustomer).Return(seq, nil)
		mockRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*numbering.Sequence")).Return(nil)

		req, _ := http.NewRequest(http.MethodPost, "/numbering/CUSTOMER/reconcile", nil)
		req.Header.Set("X-Tenant-ID", tenantID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, int64(43), seq.NextNumber)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should reject an unknown document type", func(t *testing.T) {
		router, _, _, _ := setupNumberingTestRouter()

		req, _ := http.NewRequest(http.MethodPost, "/numbering/RECEIPT/reconcile", nil)
		req.Header.Set("X-Tenant-ID", uuid.New().String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeInvalidDocumentType, resp.Error.Code)
	})

	t.Run("should report a failed document scan", func(t *testing.T) {
		router, _, mockDocs, _ := setupNumberingTestRouter()
		tenantID := uuid.New()

		mockDocs.On("NumbersInUse", mock.Anything, tenantID, numbering.DocumentTypeInvoice).
			Return(nil, assert.AnError)

		req, _ := http.NewRequest(http.MethodPost, "/numbering/INVOICE/reconcile", nil)
		req.Header.Set("X-Tenant-ID", tenantID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
