package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
)

// SequenceHandler handles the admin surface over a tenant's number sequences
type SequenceHandler struct {
	BaseHandler
	catalogService   *numberingapp.CatalogService
	bootstrapService *numberingapp.BootstrapService
}

// NewSequenceHandler creates a new SequenceHandler
func NewSequenceHandler(
	catalogService *numberingapp.CatalogService,
	bootstrapService *numberingapp.BootstrapService,
) *SequenceHandler {
	return &SequenceHandler{
		catalogService:   catalogService,
		bootstrapService: bootstrapService,
	}
}

// UpdateSequenceRequest represents a request to update a sequence
//
//	@Description	Request body for updating a number sequence
type UpdateSequenceRequest struct {
	Format     *string `json:"format" binding:"omitempty,min=1,max=100" example:"RE-{number}"`
	NextNumber *int64  `json:"next_number" binding:"omitempty,min=0" example:"1050"`
	Force      bool    `json:"force" example:"false"`
	CanEdit    *bool   `json:"can_edit" example:"true"`
	CanDelete  *bool   `json:"can_delete" example:"false"`
}

// List godoc
// @ID           listSequences
//
//	@Summary		List number sequences
//	@Description	List all number sequences for the tenant
//	@Tags			sequences
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	true	"Tenant ID"
//	@Success		200			{object}	APIResponse[[]numberingapp.SequenceResponse]
//	@Failure		401			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/numbering/sequences [get]
func (h *SequenceHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	sequences, err := h.catalogService.GetSequences(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, sequences)
}

// GetByID godoc
// @ID           getSequenceById
//
//	@Summary		Get a number sequence
//	@Description	Retrieve a single number sequence by its ID
//	@Tags			sequences
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	true	"Tenant ID"
//	@Param			id			path		string	true	"Sequence ID"
//	@Success		200			{object}	APIResponse[numberingapp.SequenceResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/numbering/sequences/{id} [get]
func (h *SequenceHandler) GetByID(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sequence ID")
		return
	}

	sequence, err := h.catalogService.GetSequence(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, sequence)
}

// Update godoc
// @ID           updateSequence
//
//	@Summary		Update a number sequence
//	@Description	Apply an operator correction to a sequence. Lowering the counter requires force.
//	@Tags			sequences
//	@Accept			json
//	@Produce		json
//	@Param			X-Tenant-ID	header		string					true	"Tenant ID"
//	@Param			id			path		string					true	"Sequence ID"
//	@Param			request		body		UpdateSequenceRequest	true	"Sequence update request"
//	@Success		200			{object}	APIResponse[numberingapp.SequenceResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/numbering/sequences/{id} [patch]
func (h *SequenceHandler) Update(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sequence ID")
		return
	}

	var req UpdateSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := numberingapp.UpdateSequenceRequest{
		Format:     req.Format,
		NextNumber: req.NextNumber,
		Force:      req.Force,
		CanEdit:    req.CanEdit,
		CanDelete:  req.CanDelete,
	}

	sequence, err := h.catalogService.UpdateSequence(c.Request.Context(), tenantID, id, appReq)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, sequence)
}

// Delete godoc
// @ID           deleteSequence
//
//	@Summary		Delete a number sequence
//	@Description	Delete a sequence where the tenant permits it. The next allocation recreates it from defaults.
//	@Tags			sequences
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	true	"Tenant ID"
//	@Param			id			path		string	true	"Sequence ID"
//	@Success		204
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		422	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/numbering/sequences/{id} [delete]
func (h *SequenceHandler) Delete(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sequence ID")
		return
	}

	if err := h.catalogService.DeleteSequence(c.Request.Context(), tenantID, id); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// Bootstrap godoc
// @ID           bootstrapSequences
//
//	@Summary		Bootstrap default sequences
//	@Description	Ensure one sequence per known document type exists for the tenant. Idempotent.
//	@Tags			sequences
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	true	"Tenant ID"
//	@Success		200			{object}	APIResponse[[]numberingapp.SequenceResponse]
//	@Failure		401			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/numbering/sequences/defaults [post]
func (h *SequenceHandler) Bootstrap(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	sequences, err := h.bootstrapService.CreateDefaultSequences(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, sequences)
}
