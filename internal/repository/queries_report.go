package repository

import (
	"context"
	"fmt"

	"stockledger-api/internal/model"
)

// WarehouseTotals sums item counts and quantities per warehouse. Warehouses
// without items report zeros.
func (q *queries) WarehouseTotals(ctx context.Context, warehouseID *int64) ([]model.WarehouseTotals, error) {
	var w where
	if warehouseID != nil {
		w.add("w.id = ?", *warehouseID)
	}

	rows := []model.WarehouseTotals{}
	err := q.sel(ctx, &rows, `
		SELECT w.id AS warehouse_id, w.name AS warehouse_name,
			COUNT(i.id) AS total_items, COALESCE(SUM(i.quantity), 0) AS total_quantity
		FROM warehouses w
		LEFT JOIN items i ON i.warehouse_id = w.id`+w.String()+`
		GROUP BY w.id, w.name
		ORDER BY w.name, w.id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute warehouse totals: %w", err)
	}
	return rows, nil
}

// CategoryDistribution groups items by category. Items without a category
// are reported under "Uncategorized".
func (q *queries) CategoryDistribution(ctx context.Context, warehouseID *int64) ([]model.CategoryCount, error) {
	var w where
	if warehouseID != nil {
		w.add("i.warehouse_id = ?", *warehouseID)
	}

	rows := []model.CategoryCount{}
	err := q.sel(ctx, &rows, `
		SELECT i.category_id AS category_id, COALESCE(c.name, 'Uncategorized') AS category_name,
			COUNT(i.id) AS total_items, COALESCE(SUM(i.quantity), 0) AS total_quantity
		FROM items i
		LEFT JOIN categories c ON c.id = i.category_id`+w.String()+`
		GROUP BY i.category_id, c.name
		ORDER BY category_name`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute category distribution: %w", err)
	}
	return rows, nil
}

// LedgerDrift lists items whose quantity differs from the sum of their
// ledger deltas.
func (q *queries) LedgerDrift(ctx context.Context, warehouseID *int64) ([]model.ItemDrift, error) {
	var w where
	if warehouseID != nil {
		w.add("i.warehouse_id = ?", *warehouseID)
	}

	rows := []model.ItemDrift{}
	err := q.sel(ctx, &rows, `
		SELECT i.id AS item_id, i.name AS item_name, i.warehouse_id AS warehouse_id, i.quantity AS quantity,
			COALESCE(SUM(t.delta), 0) AS ledger_sum,
			i.quantity - COALESCE(SUM(t.delta), 0) AS drift
		FROM items i
		LEFT JOIN transactions t ON t.item_id = i.id`+w.String()+`
		GROUP BY i.id, i.name, i.warehouse_id, i.quantity
		HAVING i.quantity <> COALESCE(SUM(t.delta), 0)
		ORDER BY i.id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ledger drift: %w", err)
	}
	return rows, nil
}
