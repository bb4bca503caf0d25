package repository

import (
	"context"
	"errors"

	"stockledger-api/internal/model"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("record not found")

// WarehouseRepository defines warehouse data access methods.
type WarehouseRepository interface {
	CreateWarehouse(ctx context.Context, w *model.Warehouse) error
	UpdateWarehouse(ctx context.Context, w *model.Warehouse) error
	DeleteWarehouse(ctx context.Context, id int64) error
	GetWarehouse(ctx context.Context, id int64) (*model.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]model.Warehouse, error)
}

// CategoryRepository defines category data access methods.
type CategoryRepository interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// ItemRepository defines item data access methods, including the quantity
// store. ApplyDelta is the only way quantities change.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *model.Item) error
	// UpdateItem changes descriptive fields only. Quantity and warehouse are untouched.
	UpdateItem(ctx context.Context, item *model.Item) error
	DeleteItem(ctx context.Context, id int64) error
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	ListItems(ctx context.Context, f model.ItemFilter) ([]model.Item, error)
	CountItemsInWarehouse(ctx context.Context, warehouseID int64) (int64, error)

	// GetQuantity returns the current projected quantity of an item.
	GetQuantity(ctx context.Context, itemID int64) (int64, error)

	// ApplyDelta sets quantity to max(0, quantity+delta) in one step and
	// reports the values before and after.
	ApplyDelta(ctx context.Context, itemID, delta int64) (model.QuantityChange, error)
}

// UserRepository defines user data access methods.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByNationalID(ctx context.Context, nationalID string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CountUsersInWarehouse(ctx context.Context, warehouseID int64) (int64, error)
}

// TransactionRepository is the append-only ledger. There is no update or delete.
type TransactionRepository interface {
	AppendTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactions(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, error)
	CountTransactionsForItem(ctx context.Context, itemID int64) (int64, error)
}

// AuditRepository defines inventory audit data access methods.
type AuditRepository interface {
	CreateAudit(ctx context.Context, a *model.InventoryAudit) error
	GetAudit(ctx context.Context, id int64) (*model.InventoryAudit, error)
	// GetAuditForUpdate reads an audit and holds a row lock for the rest of
	// the transaction. Outside a transaction it behaves like GetAudit.
	GetAuditForUpdate(ctx context.Context, id int64) (*model.InventoryAudit, error)
	ListAudits(ctx context.Context, f model.AuditFilter) ([]model.InventoryAudit, error)

	// TransitionAudit moves an audit to status `to` only if its current status
	// is one of `from`. It returns false when no row matched.
	TransitionAudit(ctx context.Context, id int64, from []model.AuditStatus, to model.AuditStatus) (bool, error)

	// AddAuditDetail inserts a counted line. An audit holds at most one
	// line per item.
	AddAuditDetail(ctx context.Context, d *model.AuditDetail) error
	HasAuditDetail(ctx context.Context, auditID, itemID int64) (bool, error)
	ListAuditDetails(ctx context.Context, f model.DiscrepancyFilter) ([]model.AuditDetail, error)
}

// ReportRepository defines read-only aggregate queries.
type ReportRepository interface {
	WarehouseTotals(ctx context.Context, warehouseID *int64) ([]model.WarehouseTotals, error)
	CategoryDistribution(ctx context.Context, warehouseID *int64) ([]model.CategoryCount, error)
	LedgerDrift(ctx context.Context, warehouseID *int64) ([]model.ItemDrift, error)
}

// Queries is the full read/write surface, available both directly on a
// Store and inside an atomic unit.
type Queries interface {
	WarehouseRepository
	CategoryRepository
	ItemRepository
	UserRepository
	TransactionRepository
	AuditRepository
	ReportRepository
}

// Store is the persistence boundary of the ledger.
type Store interface {
	Queries

	// WithinTx runs fn in a single atomic unit. The unit commits when fn
	// returns nil and rolls back otherwise. A *TxError is returned when the
	// outcome of the unit could not be determined.
	WithinTx(ctx context.Context, fn func(q Queries) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Stats returns statistics about the database.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Driver returns the backend name (sqlite, postgres, mysql).
	Driver() string

	// Close closes the repository connection.
	Close() error
}

// TxError reports an atomic unit whose rollback or commit failed, leaving
// the persisted state unknown.
type TxError struct {
	Stage string // "commit" or "rollback"
	Cause error  // the error that aborted the unit, if any
	Err   error
}

func (e *TxError) Error() string {
	if e.Cause != nil {
		return "transaction " + e.Stage + " failed: " + e.Err.Error() + " (after: " + e.Cause.Error() + ")"
	}
	return "transaction " + e.Stage + " failed: " + e.Err.Error()
}

func (e *TxError) Unwrap() error { return e.Err }
