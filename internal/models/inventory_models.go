package models

import (
	"encoding/json"
	"time"
)

// Inventory categories.
const (
	CategoryStationery = "stationery"
	CategoryEquipment  = "equipment"
	CategoryFurniture  = "furniture"
	CategoryOther      = "other"
)

// IsValidInventoryCategory checks the category against the known set.
func IsValidInventoryCategory(c string) bool {
	switch c {
	case CategoryStationery, CategoryEquipment, CategoryFurniture, CategoryOther:
		return true
	}
	return false
}

// InventoryItem is a stock-controlled resource held by the store.
type InventoryItem struct {
	ID            int64      `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Category      string     `json:"category" db:"category"`
	Department    string     `json:"department" db:"department"`
	Quantity      int        `json:"quantity" db:"quantity"`
	Threshold     int        `json:"threshold" db:"threshold"`
	Retired       bool       `json:"retired" db:"retired"`
	LastRestocked *time.Time `json:"last_restocked,omitempty" db:"last_restocked"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLowStock is computed on read and never persisted.
func (i InventoryItem) IsLowStock() bool {
	return i.Quantity < i.Threshold
}

// MarshalJSON adds the low-stock projection to the wire form.
func (i InventoryItem) MarshalJSON() ([]byte, error) {
	type plain InventoryItem
	return json.Marshal(struct {
		plain
		IsLowStock bool `json:"is_low_stock"`
	}{plain(i), i.IsLowStock()})
}

// Movement types recorded for every quantity change.
const (
	MovementTypeRestock     = "restock"
	MovementTypeAdjustment  = "adjustment"
	MovementTypeFulfillment = "fulfillment"
)

// InventoryMovement represents a change in stock for an item
type InventoryMovement struct {
	ID              int64     `json:"id" db:"id"`
	ItemID          int64     `json:"item_id" db:"item_id"`
	PrincipalID     int64     `json:"principal_id" db:"principal_id"`
	MovementType    string    `json:"movement_type" db:"movement_type"`
	QuantityChanged int       `json:"quantity_changed" db:"quantity_changed"`
	QuantityAfter   int       `json:"quantity_after" db:"quantity_after"`
	Reason          *string   `json:"reason,omitempty" db:"reason"`
	RequestID       *int64    `json:"request_id,omitempty" db:"request_id"`
	MovementDate    time.Time `json:"movement_date" db:"movement_date"`
}

// InventoryFilters defines the available filters for querying inventory.
type InventoryFilters struct {
	Category       *string `form:"category"`
	Department     *string `form:"department"`
	LowStockOnly   bool    `form:"low_stock"`
	IncludeRetired bool    `form:"include_retired"`
	Page           int     `form:"page"`
	PageSize       int     `form:"page_size"`
}
