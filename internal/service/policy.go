package service

import (
	"stockledger-api/internal/model"
)

// Policy decides whether a caller may read or change warehouse-scoped data.
// Admins are allowed everything; employees only their assigned warehouse.
type Policy struct{}

// Authenticate rejects a missing identity before any role is considered.
func (Policy) Authenticate(caller *model.Identity) error {
	if caller == nil || caller.UserID == 0 {
		return unauthenticated()
	}
	if !caller.Role.Valid() {
		return forbidden("unknown role")
	}
	return nil
}

// CheckWarehouse allows admins and employees assigned to warehouseID.
func (p Policy) CheckWarehouse(caller *model.Identity, warehouseID int64) error {
	if err := p.Authenticate(caller); err != nil {
		return err
	}
	if caller.IsAdmin() {
		return nil
	}
	if caller.WarehouseID == nil || *caller.WarehouseID != warehouseID {
		return forbidden("warehouse is outside your assignment")
	}
	return nil
}

// CheckItem applies CheckWarehouse to the item's owning warehouse.
func (p Policy) CheckItem(caller *model.Identity, item *model.Item) error {
	return p.CheckWarehouse(caller, item.WarehouseID)
}

// RequireAdmin allows admins only.
func (p Policy) RequireAdmin(caller *model.Identity) error {
	if err := p.Authenticate(caller); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return forbidden("admin role required")
	}
	return nil
}

// CheckHistory allows admins and the subject of a transaction history.
func (p Policy) CheckHistory(caller *model.Identity, subjectUserID int64) error {
	if err := p.Authenticate(caller); err != nil {
		return err
	}
	if caller.IsAdmin() || caller.UserID == subjectUserID {
		return nil
	}
	return forbidden("history of another user")
}

// ScopeWarehouse narrows a listing to what the caller may see. Admins get
// the requested warehouse (nil meaning all); employees are pinned to their
// own warehouse and denied any other.
func (p Policy) ScopeWarehouse(caller *model.Identity, requested *int64) (*int64, error) {
	if err := p.Authenticate(caller); err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return requested, nil
	}
	if caller.WarehouseID == nil {
		return nil, forbidden("no warehouse assigned")
	}
	if requested != nil && *requested != *caller.WarehouseID {
		return nil, forbidden("warehouse is outside your assignment")
	}
	wh := *caller.WarehouseID
	return &wh, nil
}
