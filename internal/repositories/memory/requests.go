package memory

import (
	"context"
	"fmt"
	"strings"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

func requestKey(id int64) string { return "request:" + utils.Int64ToStr(id) }

func (s *Store) CreateRequest(ctx context.Context, req *models.ResourceRequest) (*models.ResourceRequest, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	created := *req

	if created.InventoryItemID != nil {
		itemID := *created.InventoryItemID
		unlock := s.locks.lock(itemKey(itemID))
		defer unlock()

		item, err := s.GetItemByID(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("%w: inventory item %d", repositories.ErrNotFound, itemID)
		}
		if item.Retired {
			return nil, fmt.Errorf("%w: inventory item %d is retired", repositories.ErrInvalidState, itemID)
		}
		s.insertRequest(&created)
		return &created, nil
	}

	// The match is re-checked under the item lock; a retire or rename in between means
	// looking again.
	for {
		itemID, ok := s.matchItem(created.ResourceName)
		if !ok {
			s.insertRequest(&created)
			return &created, nil
		}
		unlock := s.locks.lock(itemKey(itemID))
		item, err := s.GetItemByID(ctx, itemID)
		if err == nil && !item.Retired && strings.EqualFold(item.Name, created.ResourceName) {
			created.InventoryItemID = &itemID
			s.insertRequest(&created)
			unlock()
			return &created, nil
		}
		unlock()
	}
}

func (s *Store) insertRequest(req *models.ResourceRequest) {
	s.write(func() {
		now := s.nowFn()
		req.ID = s.nextID()
		req.Status = models.StatusPending
		req.CreatedAt = now
		req.UpdatedAt = now
		s.requests[req.ID] = *req
	})
}

func (s *Store) GetRequestByID(_ context.Context, id int64) (*models.ResourceRequest, error) {
	var (
		req models.ResourceRequest
		ok  bool
	)
	s.read(func() { req, ok = s.requests[id] })
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &req, nil
}

func (s *Store) GetRequests(_ context.Context, filters models.ResourceRequestFilters) ([]models.ResourceRequest, int, error) {
	matched := []models.ResourceRequest{}
	s.read(func() {
		for _, req := range s.requests {
			if filters.Status != nil && *filters.Status != "" && string(req.Status) != *filters.Status {
				continue
			}
			if filters.RequesterID != nil && req.RequesterID != *filters.RequesterID {
				continue
			}
			matched = append(matched, req)
		}
	})
	sortByIDDesc(matched, func(r models.ResourceRequest) int64 { return r.ID })
	return page(matched, filters.Page, filters.PageSize), len(matched), nil
}

func (s *Store) TransitionRequest(ctx context.Context, id int64, t repositories.Transition) (*models.ResourceRequest, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, false, err
	}
	unlockRequest := s.locks.lock(requestKey(id))
	defer unlockRequest()

	current, err := s.GetRequestByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status == t.To {
		return current, false, nil
	}
	if current.Status != models.StatusPending {
		return nil, false, fmt.Errorf("%w: request %d is %s", repositories.ErrInvalidState, id, current.Status)
	}

	updated := *current
	commit := func() {
		updated.Status = t.To
		updated.UpdatedAt = s.nowFn()
		s.requests[id] = updated
	}

	if t.To == models.StatusFulfilled && current.InventoryItemID != nil {
		itemID := *current.InventoryItemID
		unlockItem := s.locks.lock(itemKey(itemID))
		defer unlockItem()

		item, err := s.GetItemByID(ctx, itemID)
		if err != nil {
			return nil, false, err
		}
		reason := fmt.Sprintf("fulfilled request %d", current.ID)
		requestID := current.ID
		movement := models.InventoryMovement{
			PrincipalID:  t.PrincipalID,
			MovementType: models.MovementTypeFulfillment,
			Reason:       &reason,
			RequestID:    &requestID,
		}
		if _, err := s.applyDelta(*item, -current.Quantity, movement, commit); err != nil {
			return nil, false, err
		}
		return &updated, true, nil
	}

	s.write(commit)
	return &updated, true, nil
}
