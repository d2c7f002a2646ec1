package handlers

import (
	"fmt"
	"net/http"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/services"
	"school_resources_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// LabHandler holds the lab scheduling service.
type LabHandler struct {
	labService services.LabService
}

// NewLabHandler creates a new LabHandler.
func NewLabHandler(ls services.LabService) *LabHandler {
	return &LabHandler{labService: ls}
}

func (h *LabHandler) CreateLab(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.CreateLabRequest
	if !bindJSON(c, "CreateLab", &req) {
		return
	}

	lab, err := h.labService.CreateLab(c.Request.Context(), p, req)
	if err != nil {
		respondServiceError(c, "CreateLab", err)
		return
	}
	c.JSON(http.StatusCreated, lab)
}

func (h *LabHandler) GetLabs(c *gin.Context) {
	labs, err := h.labService.GetLabs(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetLabs", err)
		return
	}
	if labs == nil {
		labs = []models.Lab{}
	}
	c.JSON(http.StatusOK, labs)
}

func (h *LabHandler) GetAvailableLabs(c *gin.Context) {
	labs, err := h.labService.GetAvailableLabs(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetAvailableLabs", err)
		return
	}
	if labs == nil {
		labs = []models.Lab{}
	}
	c.JSON(http.StatusOK, labs)
}

// ReserveLab creates a pending booking if the slot does not overlap a held one.
func (h *LabHandler) ReserveLab(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.ReserveLabRequest
	if !bindJSON(c, "ReserveLab", &req) {
		return
	}

	booking, err := h.labService.Reserve(c.Request.Context(), p, req)
	if err != nil {
		respondServiceError(c, "ReserveLab", err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *LabHandler) GetBookings(c *gin.Context) {
	var filters models.LabBookingFilters
	if !bindQuery(c, &filters) {
		return
	}
	normalizePage(&filters.Page, &filters.PageSize)

	bookings, total, err := h.labService.GetBookings(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "GetBookings", err)
		return
	}
	if bookings == nil {
		bookings = []models.LabBooking{}
	}
	respondPage(c, bookings, total, filters.Page, filters.PageSize)
}

func (h *LabHandler) GetRecentBookings(c *gin.Context) {
	bookings, err := h.labService.GetRecentBookings(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetRecentBookings", err)
		return
	}
	if bookings == nil {
		bookings = []models.LabBooking{}
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *LabHandler) GetBookingByID(c *gin.Context) {
	id, ok := pathID(c, "booking")
	if !ok {
		return
	}
	booking, err := h.labService.GetBookingByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "GetBookingByID", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// DecideBooking approves or rejects a pending booking.
func (h *LabHandler) DecideBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "booking")
	if !ok {
		return
	}
	var req services.DecisionRequest
	if !bindJSON(c, "DecideBooking", &req) {
		return
	}
	decision, valid := models.ParseAction(req.Decision)
	if !valid || (decision != models.ActionApprove && decision != models.ActionReject) {
		utils.RespondValidationFailed(c, fmt.Sprintf("decision must be approve or reject, got %q", req.Decision))
		return
	}

	booking, err := h.labService.Decide(c.Request.Context(), p, id, decision)
	if err != nil {
		respondServiceError(c, "DecideBooking", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *LabHandler) CancelBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "booking")
	if !ok {
		return
	}

	booking, err := h.labService.Cancel(c.Request.Context(), p, id)
	if err != nil {
		respondServiceError(c, "CancelBooking", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *LabHandler) AnnotateBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "booking")
	if !ok {
		return
	}
	var req services.AnnotateBookingRequest
	if !bindJSON(c, "AnnotateBooking", &req) {
		return
	}

	booking, err := h.labService.Annotate(c.Request.Context(), p, id, req.Notes)
	if err != nil {
		respondServiceError(c, "AnnotateBooking", err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
