package handlers

import (
	"fmt"
	"net/http"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/services"
	"school_resources_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestHandler holds the resource request service.
type RequestHandler struct {
	requestService services.RequestService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(rs services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: rs}
}

// CreateRequest files a pending resource request owned by the caller.
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.CreateResourceRequestRequest
	if !bindJSON(c, "CreateRequest", &req) {
		return
	}

	created, err := h.requestService.CreateRequest(c.Request.Context(), p, req)
	if err != nil {
		respondServiceError(c, "CreateRequest", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *RequestHandler) GetRequests(c *gin.Context) {
	var filters models.ResourceRequestFilters
	if !bindQuery(c, &filters) {
		return
	}
	normalizePage(&filters.Page, &filters.PageSize)

	requests, total, err := h.requestService.GetRequests(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "GetRequests", err)
		return
	}
	if requests == nil {
		requests = []models.ResourceRequest{}
	}
	respondPage(c, requests, total, filters.Page, filters.PageSize)
}

func (h *RequestHandler) GetRequestByID(c *gin.Context) {
	id, ok := pathID(c, "request")
	if !ok {
		return
	}
	req, err := h.requestService.GetRequestByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "GetRequestByID", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// TransitionRequest applies fulfill, reject or cancel to a request.
func (h *RequestHandler) TransitionRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "request")
	if !ok {
		return
	}
	var body services.TransitionRequest
	if !bindJSON(c, "TransitionRequest", &body) {
		return
	}
	action, valid := models.ParseAction(body.Action)
	if !valid {
		utils.RespondValidationFailed(c, fmt.Sprintf("unknown action %q", body.Action))
		return
	}

	req, err := h.requestService.Transition(c.Request.Context(), p, id, action)
	if err != nil {
		respondServiceError(c, "TransitionRequest", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *RequestHandler) CancelRequest(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "request")
	if !ok {
		return
	}

	req, err := h.requestService.Cancel(c.Request.Context(), p, id)
	if err != nil {
		respondServiceError(c, "CancelRequest", err)
		return
	}
	c.JSON(http.StatusOK, req)
}
