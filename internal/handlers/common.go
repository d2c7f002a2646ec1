package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"school_resources_backend/internal/middleware"
	"school_resources_backend/internal/models"
	"school_resources_backend/internal/services"
	"school_resources_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// respondServiceError maps ledger and service errors to the API error envelope.
// Conflict is checked first: a fulfilment refused for stock wraps both Conflict and NegativeStock.
func respondServiceError(c *gin.Context, op string, err error) {
	var apiErr *utils.APIError
	switch {
	case errors.Is(err, services.ErrConflict):
		apiErr = utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "The operation conflicted with a concurrent change; reload and retry.", err.Error())
	case errors.Is(err, services.ErrNotFound):
		apiErr = utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Resource not found.", err.Error())
	case errors.Is(err, services.ErrForbidden):
		apiErr = utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "You are not permitted to perform this action.", err.Error())
	case errors.Is(err, services.ErrInvalidState):
		apiErr = utils.NewAPIError(http.StatusConflict, utils.ErrCodeInvalidState, "The entity is not in a state that allows this action.", err.Error())
	case errors.Is(err, services.ErrNegativeStock):
		apiErr = utils.NewAPIError(http.StatusConflict, utils.ErrCodeInsufficientStock, "Insufficient stock.", err.Error())
	case errors.Is(err, services.ErrOutOfStock):
		apiErr = utils.NewAPIError(http.StatusConflict, utils.ErrCodeOutOfStock, "No copies available.", err.Error())
	case errors.Is(err, services.ErrOverlap):
		apiErr = utils.NewAPIError(http.StatusConflict, utils.ErrCodeOverlap, "The lab is already reserved for an overlapping slot.", err.Error())
	case errors.Is(err, services.ErrInUse):
		apiErr = utils.NewAPIError(http.StatusConflict, utils.ErrCodeInUse, "The item is referenced by pending requests.", err.Error())
	case errors.Is(err, services.ErrValidation):
		apiErr = utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Validation failed: "+err.Error(), err.Error())
	default:
		utils.LogError(err, op+": unexpected error", map[string]interface{}{"request_id": c.GetString(utils.RequestIDKey)})
		apiErr = utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal server error.", "Internal error")
	}
	utils.RespondWithError(c, apiErr)
}

// principal returns the authenticated caller or answers 401 itself.
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Authentication required.", ""))
	}
	return p, ok
}

// pathID parses the :id path parameter or answers 400 itself.
func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := utils.ParsePositiveID(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Invalid "+what+" ID format.", err.Error()))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, op string, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.LogDebug(op+": failed to bind JSON", map[string]interface{}{"error": err.Error()})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Invalid query parameters: "+err.Error(), err.Error()))
		return false
	}
	return true
}

func normalizePage(page, pageSize *int) {
	if *page <= 0 {
		*page = 1
	}
	if *pageSize <= 0 {
		*pageSize = defaultPageSize
	}
	if *pageSize > maxPageSize {
		*pageSize = maxPageSize
	}
}

func respondPage(c *gin.Context, data interface{}, total, page, pageSize int) {
	c.JSON(http.StatusOK, gin.H{
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
