package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"school_resources_backend/internal/models"
)

// createMovement inserts one movement row. It runs on the executor of the adjust that caused it.
func createMovement(ctx context.Context, executor SQLExecutor, movement *models.InventoryMovement) (int64, error) {
	query := `INSERT INTO inventory_movements
	          (item_id, principal_id, movement_type, quantity_changed, quantity_after, reason, request_id, movement_date)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		movement.ItemID, movement.PrincipalID, movement.MovementType, movement.QuantityChanged,
		movement.QuantityAfter, movement.Reason, movement.RequestID, movement.MovementDate,
	).Scan(&movement.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating inventory movement: %v", ErrDatabaseError, err)
	}
	return movement.ID, nil
}

func (r *inventoryRepository) GetMovements(ctx context.Context, itemID int64, page, pageSize int) ([]models.InventoryMovement, int, error) {
	movements := []models.InventoryMovement{}
	totalCount := 0

	query := `SELECT id, item_id, principal_id, movement_type, quantity_changed, quantity_after,
	            reason, request_id, movement_date, COUNT(*) OVER() AS total_count
	          FROM inventory_movements
	          WHERE item_id = $1
	          ORDER BY movement_date DESC, id DESC`
	args := []interface{}{itemID}
	if limit, offset, ok := pageArgs(page, pageSize); ok {
		query += " LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting inventory movements: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var movement models.InventoryMovement
		var reason sql.NullString
		var requestID sql.NullInt64

		if err := rows.Scan(
			&movement.ID, &movement.ItemID, &movement.PrincipalID, &movement.MovementType,
			&movement.QuantityChanged, &movement.QuantityAfter, &reason, &requestID,
			&movement.MovementDate, &totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning inventory movement: %v", ErrDatabaseError, err)
		}
		if reason.Valid {
			movement.Reason = &reason.String
		}
		if requestID.Valid {
			movement.RequestID = &requestID.Int64
		}
		movements = append(movements, movement)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating inventory movements: %v", ErrDatabaseError, err)
	}
	return movements, totalCount, nil
}
