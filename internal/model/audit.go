package model

import "time"

// AuditType is the breadth of a physical count.
type AuditType string

const (
	AuditFull    AuditType = "full"
	AuditPartial AuditType = "partial"
	AuditSpot    AuditType = "spot"
)

// Valid reports whether t is a known audit type.
func (t AuditType) Valid() bool {
	return t == AuditFull || t == AuditPartial || t == AuditSpot
}

// AuditStatus is the state of an inventory audit.
type AuditStatus string

const (
	AuditPending    AuditStatus = "pending"
	AuditInProgress AuditStatus = "in_progress"
	AuditCompleted  AuditStatus = "completed"
	AuditCancelled  AuditStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s AuditStatus) Terminal() bool {
	return s == AuditCompleted || s == AuditCancelled
}

// InventoryAudit groups the counts taken in one warehouse.
type InventoryAudit struct {
	ID          int64       `json:"id" db:"id"`
	WarehouseID int64       `json:"warehouse_id" db:"warehouse_id"`
	UserID      int64       `json:"user_id" db:"user_id"`
	AuditType   AuditType   `json:"audit_type" db:"audit_type"`
	Status      AuditStatus `json:"status" db:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	Notes       string      `json:"notes" db:"notes"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// AuditDetail is one counted item. Discrepancy is actual minus expected and
// is fixed when the row is written.
type AuditDetail struct {
	ID               int64     `json:"id" db:"id"`
	AuditID          int64     `json:"inventory_audit_id" db:"inventory_audit_id"`
	ItemID           int64     `json:"item_id" db:"item_id"`
	ExpectedQuantity int64     `json:"expected_quantity" db:"expected_quantity"`
	ActualQuantity   int64     `json:"actual_quantity" db:"actual_quantity"`
	Discrepancy      int64     `json:"discrepancy" db:"discrepancy"`
	Notes            string    `json:"notes" db:"notes"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	WarehouseID *int64
	UserID      *int64
	Status      *AuditStatus
	Limit       int
	Offset      int
}

// DiscrepancyFilter narrows audit detail listings.
type DiscrepancyFilter struct {
	WarehouseID    *int64
	AuditID        *int64
	IncludeMatched bool
	Limit          int
	Offset         int
}
