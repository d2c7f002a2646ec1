package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"school_resources_backend/internal/models"
)

// RequestRepository defines the resource request operations.
type RequestRepository interface {
	// CreateRequest resolves the inventory link and inserts a pending request in one unit.
	CreateRequest(ctx context.Context, req *models.ResourceRequest) (*models.ResourceRequest, error)
	GetRequestByID(ctx context.Context, id int64) (*models.ResourceRequest, error)
	GetRequests(ctx context.Context, filters models.ResourceRequestFilters) ([]models.ResourceRequest, int, error)
	// TransitionRequest moves a pending request to t.To. Fulfilment draws the linked item down
	// by the requested quantity. The bool reports whether anything changed.
	TransitionRequest(ctx context.Context, id int64, t Transition) (*models.ResourceRequest, bool, error)
}

type requestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new instance of RequestRepository.
func NewRequestRepository(db *sql.DB) RequestRepository {
	return &requestRepository{db: db}
}

const selectRequestFields = `id, requester_id, resource_name, resource_type, quantity, description,
	inventory_item_id, status, created_at, updated_at`

func scanRequest(row scanner, extra ...interface{}) (*models.ResourceRequest, error) {
	var req models.ResourceRequest
	var itemID sql.NullInt64

	dest := []interface{}{
		&req.ID, &req.RequesterID, &req.ResourceName, &req.ResourceType, &req.Quantity, &req.Description,
		&itemID, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning resource request: %v", ErrDatabaseError, err)
	}
	if itemID.Valid {
		req.InventoryItemID = &itemID.Int64
	}
	return &req, nil
}

func (r *requestRepository) CreateRequest(ctx context.Context, req *models.ResourceRequest) (*models.ResourceRequest, error) {
	err := withTx(ctx, r.db, "creating resource request", func(tx *sql.Tx) error {
		if req.InventoryItemID != nil {
			var retired bool
			err := tx.QueryRowContext(ctx, "SELECT retired FROM inventory_items WHERE id = $1 FOR SHARE", *req.InventoryItemID).Scan(&retired)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: inventory item %d", ErrNotFound, *req.InventoryItemID)
			}
			if err != nil {
				return fmt.Errorf("%w: locking inventory item %d: %v", ErrDatabaseError, *req.InventoryItemID, err)
			}
			if retired {
				return fmt.Errorf("%w: inventory item %d is retired", ErrInvalidState, *req.InventoryItemID)
			}
		} else {
			var itemID int64
			matchQuery := `SELECT id FROM inventory_items
			               WHERE lower(name) = lower($1) AND retired = FALSE
			               ORDER BY id LIMIT 1 FOR SHARE`
			err := tx.QueryRowContext(ctx, matchQuery, req.ResourceName).Scan(&itemID)
			switch {
			case err == nil:
				req.InventoryItemID = &itemID
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("%w: matching inventory item for %q: %v", ErrDatabaseError, req.ResourceName, err)
			}
		}

		query := `INSERT INTO resource_requests
		            (requester_id, resource_name, resource_type, quantity, description, inventory_item_id, status, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		          RETURNING id, created_at, updated_at`
		currentTime := time.Now()
		req.Status = models.StatusPending
		err := tx.QueryRowContext(ctx, query,
			req.RequesterID, req.ResourceName, req.ResourceType, req.Quantity, req.Description,
			req.InventoryItemID, req.Status, currentTime, currentTime,
		).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return mapDBError(err, "inserting resource request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepository) GetRequestByID(ctx context.Context, id int64) (*models.ResourceRequest, error) {
	query := "SELECT " + selectRequestFields + " FROM resource_requests WHERE id = $1"
	return scanRequest(r.db.QueryRowContext(ctx, query, id))
}

func (r *requestRepository) GetRequests(ctx context.Context, filters models.ResourceRequestFilters) ([]models.ResourceRequest, int, error) {
	requests := []models.ResourceRequest{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + selectRequestFields + ", COUNT(*) OVER() AS total_count FROM resource_requests")

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}
	if filters.RequesterID != nil {
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", argCount))
		args = append(args, *filters.RequesterID)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")

	if limit, offset, ok := pageArgs(filters.Page, filters.PageSize); ok {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying resource requests: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		req, scanErr := scanRequest(rows, &totalCount)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		requests = append(requests, *req)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating resource requests: %v", ErrDatabaseError, err)
	}
	return requests, totalCount, nil
}

func (r *requestRepository) TransitionRequest(ctx context.Context, id int64, t Transition) (*models.ResourceRequest, bool, error) {
	var result *models.ResourceRequest
	applied := false

	err := withTx(ctx, r.db, "transitioning resource request", func(tx *sql.Tx) error {
		lockQuery := "SELECT " + selectRequestFields + " FROM resource_requests WHERE id = $1 FOR UPDATE"
		current, err := scanRequest(tx.QueryRowContext(ctx, lockQuery, id))
		if err != nil {
			return err
		}
		if current.Status == t.To {
			result = current
			return nil
		}
		if current.Status != models.StatusPending {
			return fmt.Errorf("%w: request %d is %s", ErrInvalidState, id, current.Status)
		}

		if t.To == models.StatusFulfilled && current.InventoryItemID != nil {
			item, err := lockItem(ctx, tx, *current.InventoryItemID)
			if err != nil {
				return err
			}
			reason := fmt.Sprintf("fulfilled request %d", current.ID)
			movement := models.InventoryMovement{
				PrincipalID:  t.PrincipalID,
				MovementType: models.MovementTypeFulfillment,
				Reason:       &reason,
				RequestID:    &current.ID,
			}
			if _, err := applyDelta(ctx, tx, item, -current.Quantity, movement); err != nil {
				return err
			}
		}

		query := `UPDATE resource_requests SET status = $1, updated_at = $2 WHERE id = $3 RETURNING ` + selectRequestFields
		result, err = scanRequest(tx.QueryRowContext(ctx, query, t.To, time.Now(), id))
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}
