package handler

import (
	"github.com/gin-gonic/gin"
	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	"github.com/invoicehub/backend/internal/domain/numbering"
)

// IdempotencyKeyHeader carries the caller's allocation idempotency key
const IdempotencyKeyHeader = "X-Idempotency-Key"

// NumberingHandler handles document number allocation endpoints
type NumberingHandler struct {
	BaseHandler
	allocatorService *numberingapp.AllocatorService
	reconcileService *numberingapp.ReconcileService
}

// NewNumberingHandler creates a new NumberingHandler
func NewNumberingHandler(
	allocatorService *numberingapp.AllocatorService,
	reconcileService *numberingapp.ReconcileService,
) *NumberingHandler {
	return &NumberingHandler{
		allocatorService: allocatorService,
		reconcileService: reconcileService,
	}
}

// AllocateNext godoc
// @ID           allocateNextNumber
//
//	@Summary		Allocate the next document number
//	@Description	Issue the next number for the document type. Passing the same X-Idempotency-Key replays the original allocation.
//	@Tags			numbering
//	@Produce		json
//	@Param			X-Tenant-ID			header		string	true	"Tenant ID"
//	@Param			X-Idempotency-Key	header		string	false	"Idempotency key"
//	@Param			documentType		path		string	true	"Document type"
//	@Success		200					{object}	APIResponse[numberingapp.AllocationResponse]
//	@Failure		400					{object}	ErrorResponse
//	@Failure		401					{object}	ErrorResponse
//	@Failure		500					{object}	ErrorResponse
//	@Router			/numbering/{documentType}/next [post]
func (h *NumberingHandler) AllocateNext(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	docType := numbering.DocumentType(c.Param("documentType"))
	idempotencyKey := c.GetHeader(IdempotencyKeyHeader)

	allocation, err := h.allocatorService.AllocateNextIdempotent(c.Request.Context(), tenantID, docType, idempotencyKey)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, allocation)
}

// Reconcile godoc
// @ID           reconcileSequence
//
//	@Summary		Reconcile a sequence counter
//	@Description	Raise the counter past the highest number found in persisted documents of this type
//	@Tags			numbering
//	@Produce		json
//	@Param			X-Tenant-ID		header	string	true	"Tenant ID"
//	@Param			documentType	path	string	true	"Document type"
//	@Success		204
//	@Failure		400	{object}	ErrorResponse
//	@Failure		401	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/numbering/{documentType}/reconcile [post]
func (h *NumberingHandler) Reconcile(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	docType := numbering.DocumentType(c.Param("documentType"))

	if err := h.reconcileService.Reconcile(c.Request.Context(), tenantID, docType); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}
