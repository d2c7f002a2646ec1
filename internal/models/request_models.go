package models

import "time"

// ResourceRequest is a teacher's request for resources from the store.
type ResourceRequest struct {
	ID              int64     `json:"id" db:"id"`
	RequesterID     int64     `json:"requester_id" db:"requester_id"`
	ResourceName    string    `json:"resource_name" db:"resource_name"`
	ResourceType    string    `json:"resource_type" db:"resource_type"`
	Quantity        int       `json:"quantity" db:"quantity"`
	Description     string    `json:"description" db:"description"`
	InventoryItemID *int64    `json:"inventory_item_id,omitempty" db:"inventory_item_id"`
	Status          Status    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

func (r ResourceRequest) LifecycleStatus() Status { return r.Status }
func (r ResourceRequest) OwnerID() int64          { return r.RequesterID }

// ResourceRequestFilters defines the available filters for querying requests.
type ResourceRequestFilters struct {
	Status      *string `form:"status"`
	RequesterID *int64  `form:"requester_id"`
	Page        int     `form:"page"`
	PageSize    int     `form:"page_size"`
}
