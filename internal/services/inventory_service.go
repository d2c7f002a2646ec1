package services

import (
	"context"
	"fmt"
	"strings"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

// stockControl may create, adjust, restock and retire inventory.
var stockControl = models.NewRoleSet(models.RoleStorekeeper, models.RoleAdmin)

// --- Inventory DTOs ---
type CreateInventoryItemRequest struct {
	Name       string `json:"name" binding:"required"`
	Category   string `json:"category" binding:"required"`
	Department string `json:"department"`
	Quantity   *int   `json:"quantity" binding:"required"`
	Threshold  int    `json:"threshold"`
}

type UpdateInventoryItemRequest struct {
	Name       *string `json:"name"`
	Category   *string `json:"category"`
	Department *string `json:"department"`
	Threshold  *int    `json:"threshold"`
}

type AdjustStockRequest struct {
	Delta  int     `json:"delta" binding:"required"`
	Reason *string `json:"reason"`
}

type RestockRequest struct {
	Quantity int     `json:"quantity" binding:"required"`
	Reason   *string `json:"reason"`
}

// InventoryService is the Resource Ledger's entry point.
type InventoryService interface {
	CreateItem(ctx context.Context, p models.Principal, req CreateInventoryItemRequest) (*models.InventoryItem, error)
	GetItemByID(ctx context.Context, id int64) (*models.InventoryItem, error)
	GetItems(ctx context.Context, filters models.InventoryFilters) ([]models.InventoryItem, int, error)
	GetLowStockItems(ctx context.Context) ([]models.InventoryItem, error)
	UpdateItem(ctx context.Context, p models.Principal, id int64, req UpdateInventoryItemRequest) (*models.InventoryItem, error)
	Adjust(ctx context.Context, p models.Principal, id int64, req AdjustStockRequest) (*models.InventoryItem, error)
	Restock(ctx context.Context, p models.Principal, id int64, req RestockRequest) (*models.InventoryItem, error)
	Retire(ctx context.Context, p models.Principal, id int64) (*models.InventoryItem, error)
	GetMovements(ctx context.Context, id int64, page, pageSize int) ([]models.InventoryMovement, int, error)
}

type inventoryService struct {
	repo    repositories.InventoryRepository
	gate    Gate
	metrics *Metrics
}

// NewInventoryService creates a new instance of InventoryService.
func NewInventoryService(repo repositories.InventoryRepository, gate Gate, metrics *Metrics) InventoryService {
	return &inventoryService{repo: repo, gate: gate, metrics: metrics}
}

func (s *inventoryService) CreateItem(ctx context.Context, p models.Principal, req CreateInventoryItemRequest) (item *models.InventoryItem, err error) {
	if _, err := authorize(ctx, s.gate, p, stockControl, "create inventory items"); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !models.IsValidInventoryCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, req.Category)
	}
	if req.Quantity == nil || *req.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be zero or more", ErrValidation)
	}
	if req.Threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must be zero or more", ErrValidation)
	}

	done := s.metrics.track("inventory.create")
	defer func() { done(err) }()

	item, err = s.repo.CreateItem(ctx, &models.InventoryItem{
		Name:       strings.TrimSpace(req.Name),
		Category:   req.Category,
		Department: strings.TrimSpace(req.Department),
		Quantity:   *req.Quantity,
		Threshold:  req.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}
	return item, nil
}

func (s *inventoryService) GetItemByID(ctx context.Context, id int64) (*models.InventoryItem, error) {
	return s.repo.GetItemByID(ctx, id)
}

func (s *inventoryService) GetItems(ctx context.Context, filters models.InventoryFilters) ([]models.InventoryItem, int, error) {
	if filters.Category != nil && *filters.Category != "" && !models.IsValidInventoryCategory(*filters.Category) {
		return nil, 0, fmt.Errorf("%w: unknown category %q", ErrValidation, *filters.Category)
	}
	return s.repo.GetItems(ctx, filters)
}

func (s *inventoryService) GetLowStockItems(ctx context.Context) ([]models.InventoryItem, error) {
	items, _, err := s.repo.GetItems(ctx, models.InventoryFilters{LowStockOnly: true})
	return items, err
}

func (s *inventoryService) UpdateItem(ctx context.Context, p models.Principal, id int64, req UpdateInventoryItemRequest) (*models.InventoryItem, error) {
	if _, err := authorize(ctx, s.gate, p, stockControl, "update inventory items"); err != nil {
		return nil, err
	}
	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if utils.IsEmpty(*req.Name) {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		if !models.IsValidInventoryCategory(*req.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, *req.Category)
		}
		item.Category = *req.Category
	}
	if req.Department != nil {
		item.Department = strings.TrimSpace(*req.Department)
	}
	if req.Threshold != nil {
		if *req.Threshold < 0 {
			return nil, fmt.Errorf("%w: threshold must be zero or more", ErrValidation)
		}
		item.Threshold = *req.Threshold
	}
	return s.repo.UpdateItemDetails(ctx, item)
}

func (s *inventoryService) Adjust(ctx context.Context, p models.Principal, id int64, req AdjustStockRequest) (*models.InventoryItem, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrValidation)
	}
	movementType := models.MovementTypeAdjustment
	if req.Delta > 0 {
		movementType = models.MovementTypeRestock
	}
	return s.adjust(ctx, p, id, req.Delta, movementType, req.Reason)
}

func (s *inventoryService) Restock(ctx context.Context, p models.Principal, id int64, req RestockRequest) (*models.InventoryItem, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive", ErrValidation)
	}
	return s.adjust(ctx, p, id, req.Quantity, models.MovementTypeRestock, req.Reason)
}

func (s *inventoryService) adjust(ctx context.Context, p models.Principal, id int64, delta int, movementType string, reason *string) (item *models.InventoryItem, err error) {
	if _, err := authorize(ctx, s.gate, p, stockControl, "adjust stock"); err != nil {
		return nil, err
	}

	if reason != nil {
		reason = utils.OptionalText(*reason)
	}

	done := s.metrics.track("inventory.adjust")
	defer func() { done(err) }()

	item, err = s.repo.AdjustQuantity(ctx, id, delta, models.InventoryMovement{
		PrincipalID:  p.ID,
		MovementType: movementType,
		Reason:       reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to adjust item %d by %d: %w", id, delta, err)
	}
	if item.IsLowStock() {
		utils.LogWarn("Inventory item below threshold", map[string]interface{}{
			"item_id":   item.ID,
			"quantity":  item.Quantity,
			"threshold": item.Threshold,
		})
	}
	return item, nil
}

func (s *inventoryService) Retire(ctx context.Context, p models.Principal, id int64) (item *models.InventoryItem, err error) {
	if _, err := authorize(ctx, s.gate, p, stockControl, "retire inventory items"); err != nil {
		return nil, err
	}

	done := s.metrics.track("inventory.retire")
	defer func() { done(err) }()

	item, err = s.repo.RetireItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retire item %d: %w", id, err)
	}
	return item, nil
}

func (s *inventoryService) GetMovements(ctx context.Context, id int64, page, pageSize int) ([]models.InventoryMovement, int, error) {
	if _, err := s.repo.GetItemByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.repo.GetMovements(ctx, id, page, pageSize)
}
