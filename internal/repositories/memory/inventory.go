package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

func itemKey(id int64) string { return "item:" + utils.Int64ToStr(id) }

func (s *Store) CreateItem(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	created := *item
	s.write(func() {
		now := s.nowFn()
		created.ID = s.nextID()
		created.Retired = false
		created.CreatedAt = now
		created.UpdatedAt = now
		s.items[created.ID] = created
	})
	return &created, nil
}

func (s *Store) GetItemByID(_ context.Context, id int64) (*models.InventoryItem, error) {
	var (
		item models.InventoryItem
		ok   bool
	)
	s.read(func() { item, ok = s.items[id] })
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetItems(_ context.Context, filters models.InventoryFilters) ([]models.InventoryItem, int, error) {
	matched := []models.InventoryItem{}
	s.read(func() {
		for _, item := range s.items {
			if item.Retired && !filters.IncludeRetired {
				continue
			}
			if filters.LowStockOnly && !item.IsLowStock() {
				continue
			}
			if filters.Category != nil && *filters.Category != "" && item.Category != *filters.Category {
				continue
			}
			if filters.Department != nil && *filters.Department != "" && item.Department != *filters.Department {
				continue
			}
			matched = append(matched, item)
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})
	return page(matched, filters.Page, filters.PageSize), len(matched), nil
}

func (s *Store) UpdateItemDetails(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(itemKey(item.ID))
	defer unlock()

	var (
		updated models.InventoryItem
		ok      bool
	)
	s.write(func() {
		updated, ok = s.items[item.ID]
		if !ok {
			return
		}
		updated.Name = item.Name
		updated.Category = item.Category
		updated.Department = item.Department
		updated.Threshold = item.Threshold
		updated.UpdatedAt = s.nowFn()
		s.items[item.ID] = updated
	})
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &updated, nil
}

func (s *Store) AdjustQuantity(ctx context.Context, id int64, delta int, movement models.InventoryMovement) (*models.InventoryItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(itemKey(id))
	defer unlock()

	var (
		current models.InventoryItem
		ok      bool
	)
	s.read(func() { current, ok = s.items[id] })
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if current.Retired {
		return nil, fmt.Errorf("%w: item %d is retired", repositories.ErrInvalidState, id)
	}
	return s.applyDelta(current, delta, movement, nil)
}

// applyDelta requires the caller to hold the item's key lock. also, when set, runs in
// the same map write so readers never see the delta without it.
func (s *Store) applyDelta(current models.InventoryItem, delta int, movement models.InventoryMovement, also func()) (*models.InventoryItem, error) {
	if current.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w: item %d has %d, adjustment %d", repositories.ErrNegativeStock, current.ID, current.Quantity, delta)
	}

	updated := current
	s.write(func() {
		now := s.nowFn()
		updated.Quantity += delta
		updated.UpdatedAt = now
		if movement.MovementType == models.MovementTypeRestock {
			restocked := now
			updated.LastRestocked = &restocked
		}
		s.items[updated.ID] = updated

		movement.ID = s.nextID()
		movement.ItemID = updated.ID
		movement.QuantityChanged = delta
		movement.QuantityAfter = updated.Quantity
		movement.MovementDate = now
		s.movements[updated.ID] = append(s.movements[updated.ID], movement)

		if also != nil {
			also()
		}
	})
	return &updated, nil
}

func (s *Store) RetireItem(ctx context.Context, id int64) (*models.InventoryItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(itemKey(id))
	defer unlock()

	var (
		item    models.InventoryItem
		ok      bool
		pending int
	)
	s.read(func() {
		item, ok = s.items[id]
		for _, req := range s.requests {
			if req.Status == models.StatusPending && req.InventoryItemID != nil && *req.InventoryItemID == id {
				pending++
			}
		}
	})
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if item.Retired {
		return &item, nil
	}
	if pending > 0 {
		return nil, fmt.Errorf("%w: item %d is linked to %d pending request(s)", repositories.ErrInUse, id, pending)
	}

	s.write(func() {
		item.Retired = true
		item.UpdatedAt = s.nowFn()
		s.items[id] = item
	})
	return &item, nil
}

func (s *Store) GetMovements(_ context.Context, itemID int64, pageNum, pageSize int) ([]models.InventoryMovement, int, error) {
	var movements []models.InventoryMovement
	s.read(func() {
		movements = append([]models.InventoryMovement{}, s.movements[itemID]...)
	})
	sortByIDDesc(movements, func(m models.InventoryMovement) int64 { return m.ID })
	return page(movements, pageNum, pageSize), len(movements), nil
}

// matchItem finds the oldest non-retired item whose name equals name, ignoring case.
func (s *Store) matchItem(name string) (int64, bool) {
	var (
		found int64
		ok    bool
	)
	s.read(func() {
		for id, item := range s.items {
			if item.Retired || !strings.EqualFold(item.Name, name) {
				continue
			}
			if !ok || id < found {
				found, ok = id, true
			}
		}
	})
	return found, ok
}
