package handlers

import (
	"net/http"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// InventoryHandler holds the inventory service.
type InventoryHandler struct {
	inventoryService services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(is services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: is}
}

// CreateItem handles registration of a new inventory item.
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.CreateInventoryItemRequest
	if !bindJSON(c, "CreateItem", &req) {
		return
	}

	item, err := h.inventoryService.CreateItem(c.Request.Context(), p, req)
	if err != nil {
		respondServiceError(c, "CreateItem", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetItems handles listing inventory with filters and pagination.
func (h *InventoryHandler) GetItems(c *gin.Context) {
	var filters models.InventoryFilters
	if !bindQuery(c, &filters) {
		return
	}
	normalizePage(&filters.Page, &filters.PageSize)

	items, total, err := h.inventoryService.GetItems(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "GetItems", err)
		return
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	respondPage(c, items, total, filters.Page, filters.PageSize)
}

// GetLowStockItems lists items at or below their threshold.
func (h *InventoryHandler) GetLowStockItems(c *gin.Context) {
	items, err := h.inventoryService.GetLowStockItems(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetLowStockItems", err)
		return
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *InventoryHandler) GetItemByID(c *gin.Context) {
	id, ok := pathID(c, "item")
	if !ok {
		return
	}
	item, err := h.inventoryService.GetItemByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "GetItemByID", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateItem changes descriptive fields; quantity only moves through adjust and restock.
func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "item")
	if !ok {
		return
	}
	var req services.UpdateInventoryItemRequest
	if !bindJSON(c, "UpdateItem", &req) {
		return
	}

	item, err := h.inventoryService.UpdateItem(c.Request.Context(), p, id, req)
	if err != nil {
		respondServiceError(c, "UpdateItem", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "item")
	if !ok {
		return
	}
	var req services.AdjustStockRequest
	if !bindJSON(c, "AdjustStock", &req) {
		return
	}

	item, err := h.inventoryService.Adjust(c.Request.Context(), p, id, req)
	if err != nil {
		respondServiceError(c, "AdjustStock", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *InventoryHandler) RestockItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "item")
	if !ok {
		return
	}
	var req services.RestockRequest
	if !bindJSON(c, "RestockItem", &req) {
		return
	}

	item, err := h.inventoryService.Restock(c.Request.Context(), p, id, req)
	if err != nil {
		respondServiceError(c, "RestockItem", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RetireItem takes an item out of circulation. Movements are kept.
func (h *InventoryHandler) RetireItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "item")
	if !ok {
		return
	}

	item, err := h.inventoryService.Retire(c.Request.Context(), p, id)
	if err != nil {
		respondServiceError(c, "RetireItem", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetMovements handles fetching the movement history of one item.
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	id, ok := pathID(c, "item")
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", defaultPageSize)
	normalizePage(&page, &pageSize)

	movements, total, err := h.inventoryService.GetMovements(c.Request.Context(), id, page, pageSize)
	if err != nil {
		respondServiceError(c, "GetMovements", err)
		return
	}
	if movements == nil {
		movements = []models.InventoryMovement{}
	}
	respondPage(c, movements, total, page, pageSize)
}
