package model

import "time"

// Item is a stocked article. Quantity is a projection of the ledger and is
// never negative; only the reconciliation path changes it.
type Item struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	CategoryID  *int64    `json:"category_id,omitempty" db:"category_id"`
	WarehouseID int64     `json:"warehouse_id" db:"warehouse_id"`
	Quantity    int64     `json:"quantity" db:"quantity"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ItemFilter narrows item listings. Zero values mean "any".
type ItemFilter struct {
	WarehouseID *int64
	CategoryID  *int64
	MaxQuantity *int64
	Search      string
	Limit       int
	Offset      int
}
