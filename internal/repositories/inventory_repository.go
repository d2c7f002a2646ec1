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

// InventoryRepository defines the Resource Ledger operations.
type InventoryRepository interface {
	CreateItem(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	GetItemByID(ctx context.Context, id int64) (*models.InventoryItem, error)
	GetItems(ctx context.Context, filters models.InventoryFilters) ([]models.InventoryItem, int, error) // Items, total count
	UpdateItemDetails(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	// AdjustQuantity applies delta and records movement (type, principal, reason) in one unit.
	AdjustQuantity(ctx context.Context, id int64, delta int, movement models.InventoryMovement) (*models.InventoryItem, error)
	RetireItem(ctx context.Context, id int64) (*models.InventoryItem, error)
	GetMovements(ctx context.Context, itemID int64, page, pageSize int) ([]models.InventoryMovement, int, error)
}

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new instance of InventoryRepository.
func NewInventoryRepository(db *sql.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

const selectItemFields = `id, name, category, department, quantity, threshold, retired, last_restocked, created_at, updated_at`

func scanItem(row scanner, extra ...interface{}) (*models.InventoryItem, error) {
	var item models.InventoryItem
	var lastRestocked sql.NullTime

	dest := []interface{}{
		&item.ID, &item.Name, &item.Category, &item.Department, &item.Quantity, &item.Threshold,
		&item.Retired, &lastRestocked, &item.CreatedAt, &item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning inventory item: %v", ErrDatabaseError, err)
	}
	if lastRestocked.Valid {
		item.LastRestocked = &lastRestocked.Time
	}
	return &item, nil
}

func (r *inventoryRepository) CreateItem(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	query := `INSERT INTO inventory_items (name, category, department, quantity, threshold, retired, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
	          RETURNING id, created_at, updated_at`

	currentTime := time.Now()
	item.Retired = false
	err := r.db.QueryRowContext(ctx, query,
		item.Name, item.Category, item.Department, item.Quantity, item.Threshold, currentTime, currentTime,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err, "creating inventory item")
	}
	return item, nil
}

func (r *inventoryRepository) GetItemByID(ctx context.Context, id int64) (*models.InventoryItem, error) {
	query := "SELECT " + selectItemFields + " FROM inventory_items WHERE id = $1"
	return scanItem(r.db.QueryRowContext(ctx, query, id))
}

func (r *inventoryRepository) GetItems(ctx context.Context, filters models.InventoryFilters) ([]models.InventoryItem, int, error) {
	items := []models.InventoryItem{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + selectItemFields + ", COUNT(*) OVER() AS total_count FROM inventory_items")

	var conditions []string
	var args []interface{}
	argCount := 1

	if !filters.IncludeRetired {
		conditions = append(conditions, "retired = FALSE")
	}
	if filters.LowStockOnly {
		conditions = append(conditions, "quantity < threshold")
	}
	if filters.Category != nil && *filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argCount))
		args = append(args, *filters.Category)
		argCount++
	}
	if filters.Department != nil && *filters.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", argCount))
		args = append(args, *filters.Department)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY name, id")

	if limit, offset, ok := pageArgs(filters.Page, filters.PageSize); ok {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying inventory items: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, scanErr := scanItem(rows, &totalCount)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating inventory items: %v", ErrDatabaseError, err)
	}
	return items, totalCount, nil
}

func (r *inventoryRepository) UpdateItemDetails(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	query := `UPDATE inventory_items SET name = $1, category = $2, department = $3, threshold = $4, updated_at = $5
	          WHERE id = $6
	          RETURNING ` + selectItemFields
	return scanItem(r.db.QueryRowContext(ctx, query,
		item.Name, item.Category, item.Department, item.Threshold, time.Now(), item.ID,
	))
}

func (r *inventoryRepository) AdjustQuantity(ctx context.Context, id int64, delta int, movement models.InventoryMovement) (*models.InventoryItem, error) {
	var updated *models.InventoryItem
	err := withTx(ctx, r.db, "adjusting inventory item", func(tx *sql.Tx) error {
		current, err := lockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Retired {
			return fmt.Errorf("%w: item %d is retired", ErrInvalidState, id)
		}
		updated, err = applyDelta(ctx, tx, current, delta, movement)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *inventoryRepository) RetireItem(ctx context.Context, id int64) (*models.InventoryItem, error) {
	var retired *models.InventoryItem
	err := withTx(ctx, r.db, "retiring inventory item", func(tx *sql.Tx) error {
		current, err := lockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Retired {
			retired = current
			return nil
		}

		var pending int
		checkQuery := "SELECT COUNT(*) FROM resource_requests WHERE inventory_item_id = $1 AND status = $2"
		if err := tx.QueryRowContext(ctx, checkQuery, id, models.StatusPending).Scan(&pending); err != nil {
			return fmt.Errorf("%w: checking if item %d is in use: %v", ErrDatabaseError, id, err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: item %d is linked to %d pending request(s)", ErrInUse, id, pending)
		}

		query := `UPDATE inventory_items SET retired = TRUE, updated_at = $1 WHERE id = $2 RETURNING ` + selectItemFields
		retired, err = scanItem(tx.QueryRowContext(ctx, query, time.Now(), id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return retired, nil
}

// lockItem reads an item row under FOR UPDATE inside tx.
func lockItem(ctx context.Context, executor SQLExecutor, id int64) (*models.InventoryItem, error) {
	query := "SELECT " + selectItemFields + " FROM inventory_items WHERE id = $1 FOR UPDATE"
	return scanItem(executor.QueryRowContext(ctx, query, id))
}

// applyDelta writes quantity+delta for a locked item and logs the movement.
// The item must already be locked by the caller's transaction.
func applyDelta(ctx context.Context, executor SQLExecutor, current *models.InventoryItem, delta int, movement models.InventoryMovement) (*models.InventoryItem, error) {
	if current.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w: item %d has %d, adjustment %d", ErrNegativeStock, current.ID, current.Quantity, delta)
	}

	now := time.Now()
	var restockedAt *time.Time
	if movement.MovementType == models.MovementTypeRestock {
		restockedAt = &now
	}

	query := `UPDATE inventory_items
	          SET quantity = quantity + $1, updated_at = $2, last_restocked = COALESCE($3, last_restocked)
	          WHERE id = $4
	          RETURNING ` + selectItemFields
	updated, err := scanItem(executor.QueryRowContext(ctx, query, delta, now, restockedAt, current.ID))
	if err != nil {
		return nil, err
	}

	movement.ItemID = current.ID
	movement.QuantityChanged = delta
	movement.QuantityAfter = updated.Quantity
	movement.MovementDate = now
	if _, err := createMovement(ctx, executor, &movement); err != nil {
		return nil, err
	}
	return updated, nil
}
