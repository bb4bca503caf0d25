package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger-api/internal/model"
)

const itemColumns = "i.id, i.name, i.category_id, i.warehouse_id, i.quantity, i.description, i.created_at, i.updated_at"

// CreateWarehouse inserts a warehouse and sets its id.
func (q *queries) CreateWarehouse(ctx context.Context, w *model.Warehouse) error {
	w.CreatedAt = time.Now().UTC()
	id, err := q.insert(ctx,
		`INSERT INTO warehouses (name, description, created_at) VALUES (?, ?, ?)`,
		w.Name, w.Description, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create warehouse: %w", err)
	}
	w.ID = id
	return nil
}

// UpdateWarehouse changes name and description.
func (q *queries) UpdateWarehouse(ctx context.Context, w *model.Warehouse) error {
	err := q.execOne(ctx, `UPDATE warehouses SET name = ?, description = ? WHERE id = ?`,
		w.Name, w.Description, w.ID)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to update warehouse: %w", err)
	}
	return err
}

// DeleteWarehouse removes a warehouse row. Callers check references first.
func (q *queries) DeleteWarehouse(ctx context.Context, id int64) error {
	err := q.execOne(ctx, `DELETE FROM warehouses WHERE id = ?`, id)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to delete warehouse: %w", err)
	}
	return err
}

// GetWarehouse retrieves a warehouse by id.
func (q *queries) GetWarehouse(ctx context.Context, id int64) (*model.Warehouse, error) {
	var w model.Warehouse
	if err := q.get(ctx, &w, `SELECT id, name, description, created_at FROM warehouses WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWarehouses returns all warehouses ordered by name.
func (q *queries) ListWarehouses(ctx context.Context) ([]model.Warehouse, error) {
	warehouses := []model.Warehouse{}
	if err := q.sel(ctx, &warehouses, `SELECT id, name, description, created_at FROM warehouses ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	return warehouses, nil
}

// CreateCategory inserts a category and sets its id.
func (q *queries) CreateCategory(ctx context.Context, c *model.Category) error {
	id, err := q.insert(ctx, `INSERT INTO categories (name, description) VALUES (?, ?)`, c.Name, c.Description)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	c.ID = id
	return nil
}

// GetCategory retrieves a category by id.
func (q *queries) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	var c model.Category
	if err := q.get(ctx, &c, `SELECT id, name, description FROM categories WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (q *queries) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories := []model.Category{}
	if err := q.sel(ctx, &categories, `SELECT id, name, description FROM categories ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CreateItem inserts an item with the quantity it carries and sets its id.
func (q *queries) CreateItem(ctx context.Context, item *model.Item) error {
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	id, err := q.insert(ctx, `
		INSERT INTO items (name, category_id, warehouse_id, quantity, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.CategoryID, item.WarehouseID, item.Quantity, item.Description, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	item.ID = id
	return nil
}

// UpdateItem changes descriptive fields.
func (q *queries) UpdateItem(ctx context.Context, item *model.Item) error {
	item.UpdatedAt = time.Now().UTC()
	err := q.execOne(ctx, `UPDATE items SET name = ?, category_id = ?, description = ?, updated_at = ? WHERE id = ?`,
		item.Name, item.CategoryID, item.Description, item.UpdatedAt, item.ID)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return err
}

// DeleteItem removes an item row. Callers check ledger references first.
func (q *queries) DeleteItem(ctx context.Context, id int64) error {
	err := q.execOne(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return err
}

// GetItem retrieves an item by id.
func (q *queries) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	var item model.Item
	if err := q.get(ctx, &item, `SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns items matching the filter ordered by name.
func (q *queries) ListItems(ctx context.Context, f model.ItemFilter) ([]model.Item, error) {
	var w where
	if f.WarehouseID != nil {
		w.add("i.warehouse_id = ?", *f.WarehouseID)
	}
	if f.CategoryID != nil {
		w.add("i.category_id = ?", *f.CategoryID)
	}
	if f.MaxQuantity != nil {
		w.add("i.quantity <= ?", *f.MaxQuantity)
	}
	if f.Search != "" {
		w.add("LOWER(i.name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}

	query, args := paginate(`SELECT `+itemColumns+` FROM items i`+w.String()+` ORDER BY i.name, i.id`, w.args, f.Limit, f.Offset)

	items := []model.Item{}
	if err := q.sel(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// CountItemsInWarehouse counts items owned by a warehouse.
func (q *queries) CountItemsInWarehouse(ctx context.Context, warehouseID int64) (int64, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM items WHERE warehouse_id = ?`, warehouseID); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// CreateUser inserts a user and sets its id.
func (q *queries) CreateUser(ctx context.Context, u *model.User) error {
	id, err := q.insert(ctx, `INSERT INTO users (national_id, name, role, warehouse_id) VALUES (?, ?, ?, ?)`,
		u.NationalID, u.Name, u.Role, u.WarehouseID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser retrieves a user by id.
func (q *queries) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := q.get(ctx, &u, `SELECT id, national_id, name, role, warehouse_id FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByNationalID retrieves a user by national identifier.
func (q *queries) GetUserByNationalID(ctx context.Context, nationalID string) (*model.User, error) {
	var u model.User
	if err := q.get(ctx, &u, `SELECT id, national_id, name, role, warehouse_id FROM users WHERE national_id = ?`, nationalID); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (q *queries) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := q.sel(ctx, &users, `SELECT id, national_id, name, role, warehouse_id FROM users ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CountUsersInWarehouse counts users assigned to a warehouse.
func (q *queries) CountUsersInWarehouse(ctx context.Context, warehouseID int64) (int64, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM users WHERE warehouse_id = ?`, warehouseID); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

