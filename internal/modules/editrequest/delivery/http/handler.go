package http

import (
	"net/http"

	"anoa.com/studentrecords/internal/middleware"
	"anoa.com/studentrecords/internal/modules/editrequest/dto"
	"anoa.com/studentrecords/internal/modules/editrequest/service"
	"anoa.com/studentrecords/pkg/response"
	"anoa.com/studentrecords/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EditRequestHandler struct {
	service service.EditRequestService
}

func NewEditRequestHandler(service service.EditRequestService) *EditRequestHandler {
	return &EditRequestHandler{service: service}
}

func (h *EditRequestHandler) CreateEditRequest(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req dto.CreateEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	resp, err := h.service.Create(c.Request.Context(), user, req, response.GetRequestMeta(c))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Edit request submitted. An administrator will review it shortly.",
		"data":    resp,
	})
}

func (h *EditRequestHandler) ListMine(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var filter dto.EditRequestFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	resp, err := h.service.ListMine(c.Request.Context(), user, filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *EditRequestHandler) List(c *gin.Context) {
	var filter dto.EditRequestFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	resp, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *EditRequestHandler) Get(c *gin.Context) {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid edit request ID"})
		return
	}

	resp, err := h.service.Get(c.Request.Context(), user, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *EditRequestHandler) Resolve(c *gin.Context) {
	admin, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid edit request ID"})
		return
	}

	var req dto.ResolveEditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
			return
		}
	}

	resp, err := h.service.Resolve(c.Request.Context(), admin, id, req.ResolutionNote, response.GetRequestMeta(c))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Edit request marked as resolved.",
		"data":    resp,
	})
}

func (h *EditRequestHandler) Dismiss(c *gin.Context) {
	admin, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid edit request ID"})
		return
	}

	resp, err := h.service.Dismiss(c.Request.Context(), admin, id, response.GetRequestMeta(c))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Edit request dismissed.",
		"data":    resp,
	})
}

func (h *EditRequestHandler) MarkAllRead(c *gin.Context) {
	admin, err := middleware.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.service.MarkAllRead(c.Request.Context(), admin); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All edit requests marked as read"})
}
