package model

// WarehouseTotals is the per-warehouse stock summary.
type WarehouseTotals struct {
	WarehouseID   int64  `json:"warehouse_id" db:"warehouse_id"`
	WarehouseName string `json:"warehouse_name" db:"warehouse_name"`
	TotalItems    int64  `json:"total_items" db:"total_items"`
	TotalQuantity int64  `json:"total_quantity" db:"total_quantity"`
}

// CategoryCount is one slice of the category distribution.
type CategoryCount struct {
	CategoryID    *int64 `json:"category_id" db:"category_id"`
	CategoryName  string `json:"category_name" db:"category_name"`
	TotalItems    int64  `json:"total_items" db:"total_items"`
	TotalQuantity int64  `json:"total_quantity" db:"total_quantity"`
}

// ItemDrift reports an item whose quantity differs from the sum of its
// ledger deltas. Drift is positive when clamping absorbed part of a decrease.
type ItemDrift struct {
	ItemID      int64  `json:"item_id" db:"item_id"`
	ItemName    string `json:"item_name" db:"item_name"`
	WarehouseID int64  `json:"warehouse_id" db:"warehouse_id"`
	Quantity    int64  `json:"quantity" db:"quantity"`
	LedgerSum   int64  `json:"ledger_sum" db:"ledger_sum"`
	Drift       int64  `json:"drift" db:"drift"`
}
