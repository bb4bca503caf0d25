package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stockledger-api/internal/model"
	"stockledger-api/internal/notify"
	"stockledger-api/internal/repository"
	"stockledger-api/pkg/uid"
)

// CatalogService manages master data: warehouses, categories, items and
// users. Referential integrity is enforced here, not by the store.
type CatalogService struct {
	store    repository.Store
	engine   *Engine
	policy   Policy
	notifier notify.Publisher
	log      *zap.Logger
}

// NewCatalogService creates a catalog service. Initial stock of new items is
// recorded through engine.
func NewCatalogService(store repository.Store, engine *Engine, notifier notify.Publisher, log *zap.Logger) *CatalogService {
	return &CatalogService{
		store:    store,
		engine:   engine,
		notifier: notifier,
		log:      log.With(zap.String("component", "Catalog")),
	}
}

// WarehouseInput creates or edits a warehouse.
type WarehouseInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateWarehouse adds a warehouse. Admin only.
func (s *CatalogService) CreateWarehouse(ctx context.Context, caller *model.Identity, in WarehouseInput) (*model.Warehouse, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := requireText("name", name); err != nil {
		return nil, err
	}

	w := &model.Warehouse{Name: name, Description: strings.TrimSpace(in.Description)}
	if err := s.store.CreateWarehouse(ctx, w); err != nil {
		return nil, err
	}
	s.engine.committed(ctx, []int64{w.ID})
	s.announce(ctx, "warehouse.created", fmt.Sprintf("Warehouse %s created", w.Name))
	return w, nil
}

// UpdateWarehouse edits a warehouse. Admin only.
func (s *CatalogService) UpdateWarehouse(ctx context.Context, caller *model.Identity, id int64, in WarehouseInput) (*model.Warehouse, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := requireText("name", name); err != nil {
		return nil, err
	}

	w, err := s.store.GetWarehouse(ctx, id)
	if err != nil {
		return nil, lookup(err, "warehouse", id)
	}
	w.Name, w.Description = name, strings.TrimSpace(in.Description)
	if err := s.store.UpdateWarehouse(ctx, w); err != nil {
		return nil, lookup(err, "warehouse", id)
	}
	s.engine.committed(ctx, []int64{w.ID})
	s.announce(ctx, "warehouse.updated", fmt.Sprintf("Warehouse %s updated", w.Name))
	return w, nil
}

// DeleteWarehouse removes a warehouse that no item or user references. Admin only.
func (s *CatalogService) DeleteWarehouse(ctx context.Context, caller *model.Identity, id int64) error {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return err
	}

	w, err := s.store.GetWarehouse(ctx, id)
	if err != nil {
		return lookup(err, "warehouse", id)
	}

	// Counts and delete share a unit so no item can slip in between.
	err = s.store.WithinTx(ctx, func(q repository.Queries) error {
		items, err := q.CountItemsInWarehouse(ctx, id)
		if err != nil {
			return err
		}
		if items > 0 {
			return validationError("id", fmt.Sprintf("warehouse still holds %d items", items))
		}
		users, err := q.CountUsersInWarehouse(ctx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			return validationError("id", fmt.Sprintf("warehouse still has %d assigned users", users))
		}
		return q.DeleteWarehouse(ctx, id)
	})
	if err != nil {
		return err
	}

	s.engine.committed(ctx, []int64{id})
	s.announce(ctx, "warehouse.deleted", fmt.Sprintf("Warehouse %s deleted", w.Name))
	return nil
}

// GetWarehouse returns a warehouse in the caller's scope.
func (s *CatalogService) GetWarehouse(ctx context.Context, caller *model.Identity, id int64) (*model.Warehouse, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	w, err := s.store.GetWarehouse(ctx, id)
	if err != nil {
		return nil, lookup(err, "warehouse", id)
	}
	if err := s.policy.CheckWarehouse(caller, id); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWarehouses returns every warehouse for admins and the assigned one
// for employees.
func (s *CatalogService) ListWarehouses(ctx context.Context, caller *model.Identity) ([]model.Warehouse, error) {
	scope, err := s.policy.ScopeWarehouse(caller, nil)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		return all, nil
	}
	visible := []model.Warehouse{}
	for _, w := range all {
		if w.ID == *scope {
			visible = append(visible, w)
		}
	}
	return visible, nil
}

// CategoryInput creates a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCategory adds a category. Admin only.
func (s *CatalogService) CreateCategory(ctx context.Context, caller *model.Identity, in CategoryInput) (*model.Category, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := requireText("name", name); err != nil {
		return nil, err
	}
	c := &model.Category{Name: name, Description: strings.TrimSpace(in.Description)}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCategories returns all categories.
func (s *CatalogService) ListCategories(ctx context.Context, caller *model.Identity) ([]model.Category, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	return s.store.ListCategories(ctx)
}

// ItemInput creates or edits an item. Quantity is only read on create;
// afterwards quantities change through ledger operations.
type ItemInput struct {
	Name        string `json:"name"`
	CategoryID  *int64 `json:"category_id,omitempty"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description"`
}

// CreateItem adds an item to a warehouse in the caller's scope. A positive
// initial quantity is recorded as an adjustment so the ledger accounts for
// every unit.
func (s *CatalogService) CreateItem(ctx context.Context, caller *model.Identity, in ItemInput) (*model.Item, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := firstError(
		requireText("name", name),
		requireID("warehouse_id", in.WarehouseID),
	); err != nil {
		return nil, err
	}
	if in.Quantity < 0 {
		return nil, validationError("quantity", "must not be negative")
	}
	if err := s.checkReferences(ctx, in.WarehouseID, in.CategoryID); err != nil {
		return nil, err
	}
	if err := s.policy.CheckWarehouse(caller, in.WarehouseID); err != nil {
		return nil, err
	}

	item := &model.Item{
		Name:        name,
		CategoryID:  in.CategoryID,
		WarehouseID: in.WarehouseID,
		Description: strings.TrimSpace(in.Description),
	}
	groupID := uid.New()

	err := s.store.WithinTx(ctx, func(q repository.Queries) error {
		item.Quantity = 0
		if err := q.CreateItem(ctx, item); err != nil {
			return err
		}
		if in.Quantity == 0 {
			return nil
		}
		tx, err := s.engine.applyLeg(ctx, q, caller.UserID, groupID, leg{
			itemID: item.ID, typ: model.TxAdjustment, delta: in.Quantity, notes: "initial stock",
		})
		if err != nil {
			return err
		}
		item.Quantity = tx.QuantityAfter
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.log.Info("item created", zap.Int64("item_id", item.ID), zap.Int64("warehouse_id", item.WarehouseID), zap.Int64("quantity", item.Quantity))
	s.engine.committed(ctx, []int64{item.WarehouseID})
	qty := item.Quantity
	s.notifier.Publish(ctx, model.Notification{
		Type:     model.NotifySuccess,
		Event:    "item.created",
		Message:  fmt.Sprintf("Item %s created", item.Name),
		Quantity: &qty,
		Target:   model.Broadcast(),
	})
	return item, nil
}

// UpdateItem edits the descriptive fields of an item. The owning warehouse
// cannot change and the quantity is ignored.
func (s *CatalogService) UpdateItem(ctx context.Context, caller *model.Identity, id int64, in ItemInput) (*model.Item, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := requireText("name", name); err != nil {
		return nil, err
	}

	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, lookup(err, "item", id)
	}
	if err := s.policy.CheckItem(caller, item); err != nil {
		return nil, err
	}
	if in.WarehouseID != 0 && in.WarehouseID != item.WarehouseID {
		return nil, validationError("warehouse_id", "an item cannot move between warehouses; use a transfer")
	}
	if err := s.checkReferences(ctx, item.WarehouseID, in.CategoryID); err != nil {
		return nil, err
	}

	item.Name, item.CategoryID, item.Description = name, in.CategoryID, strings.TrimSpace(in.Description)
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, lookup(err, "item", id)
	}
	s.engine.committed(ctx, []int64{item.WarehouseID})
	return item, nil
}

// DeleteItem removes an item that has no ledger history. Admin only.
func (s *CatalogService) DeleteItem(ctx context.Context, caller *model.Identity, id int64) error {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return err
	}
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return lookup(err, "item", id)
	}

	err = s.store.WithinTx(ctx, func(q repository.Queries) error {
		n, err := q.CountTransactionsForItem(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return validationError("id", fmt.Sprintf("item has %d ledger entries and cannot be deleted", n))
		}
		return q.DeleteItem(ctx, id)
	})
	if err != nil {
		return err
	}

	s.engine.committed(ctx, []int64{item.WarehouseID})
	s.announce(ctx, "item.deleted", fmt.Sprintf("Item %s deleted", item.Name))
	return nil
}

// GetItem returns an item in the caller's scope.
func (s *CatalogService) GetItem(ctx context.Context, caller *model.Identity, id int64) (*model.Item, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, lookup(err, "item", id)
	}
	if err := s.policy.CheckItem(caller, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns items in the caller's scope.
func (s *CatalogService) ListItems(ctx context.Context, caller *model.Identity, f model.ItemFilter) ([]model.Item, error) {
	wh, err := s.policy.ScopeWarehouse(caller, f.WarehouseID)
	if err != nil {
		return nil, err
	}
	f.WarehouseID = wh
	return s.store.ListItems(ctx, f)
}

// UserInput creates a user.
type UserInput struct {
	NationalID  string     `json:"national_id"`
	Name        string     `json:"name"`
	Role        model.Role `json:"role"`
	WarehouseID *int64     `json:"warehouse_id,omitempty"`
}

// CreateUser adds a user. Employees must be assigned to an existing
// warehouse; admins carry none. Admin only.
func (s *CatalogService) CreateUser(ctx context.Context, caller *model.Identity, in UserInput) (*model.User, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	nationalID, name := strings.TrimSpace(in.NationalID), strings.TrimSpace(in.Name)
	if err := firstError(
		requireText("national_id", nationalID),
		requireText("name", name),
	); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, validationError("role", "must be admin or employee")
	}

	u := &model.User{NationalID: nationalID, Name: name, Role: in.Role}
	if in.Role == model.RoleEmployee {
		if in.WarehouseID == nil {
			return nil, validationError("warehouse_id", "is required for employees")
		}
		if _, err := s.store.GetWarehouse(ctx, *in.WarehouseID); err != nil {
			return nil, lookup(err, "warehouse", *in.WarehouseID)
		}
		wh := *in.WarehouseID
		u.WarehouseID = &wh
	}

	if existing, err := s.store.GetUserByNationalID(ctx, nationalID); err == nil && existing != nil {
		return nil, validationError("national_id", "is already registered")
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns a user to an admin or to the user themselves.
func (s *CatalogService) GetUser(ctx context.Context, caller *model.Identity, id int64) (*model.User, error) {
	if err := s.policy.CheckHistory(caller, id); err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, lookup(err, "user", id)
	}
	return u, nil
}

// ListUsers returns all users. Admin only.
func (s *CatalogService) ListUsers(ctx context.Context, caller *model.Identity) ([]model.User, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

func (s *CatalogService) checkReferences(ctx context.Context, warehouseID int64, categoryID *int64) error {
	if _, err := s.store.GetWarehouse(ctx, warehouseID); err != nil {
		return lookup(err, "warehouse", warehouseID)
	}
	if categoryID != nil {
		if _, err := s.store.GetCategory(ctx, *categoryID); err != nil {
			return lookup(err, "category", *categoryID)
		}
	}
	return nil
}

func (s *CatalogService) announce(ctx context.Context, event, message string) {
	s.notifier.Publish(ctx, model.Notification{
		Type:    model.NotifyInfo,
		Event:   event,
		Message: message,
		Target:  model.Broadcast(),
	})
}
