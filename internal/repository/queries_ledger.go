package repository

import (
	"context"
	"fmt"
	"time"

	"stockledger-api/internal/model"
)

const transactionColumns = `t.id, t.item_id, t.user_id, t.type, t.delta, t.recipient, t.notes,
	t.expected_quantity, t.actual_quantity, t.discrepancy, t.audit_id, t.group_id, t.quantity_after, t.created_at`

// GetQuantity returns the current quantity of an item.
func (q *queries) GetQuantity(ctx context.Context, itemID int64) (int64, error) {
	var qty int64
	if err := q.get(ctx, &qty, `SELECT quantity FROM items WHERE id = ?`, itemID); err != nil {
		return 0, err
	}
	return qty, nil
}

// ApplyDelta moves an item's quantity by delta, flooring at zero. The row is
// locked for the rest of the enclosing transaction on backends that support it.
func (q *queries) ApplyDelta(ctx context.Context, itemID, delta int64) (model.QuantityChange, error) {
	var change model.QuantityChange

	if err := q.get(ctx, &change.Before, `SELECT quantity FROM items WHERE id = ?`+q.d.forUpdate, itemID); err != nil {
		return change, err
	}

	update := `UPDATE items SET quantity = ` + q.d.greatest + `(0, quantity + ?), updated_at = ? WHERE id = ?`
	now := time.Now().UTC()

	if q.d.returning {
		if err := q.get(ctx, &change.After, update+` RETURNING quantity`, delta, now, itemID); err != nil {
			return change, fmt.Errorf("failed to apply delta: %w", err)
		}
		return change, nil
	}

	if err := q.execOne(ctx, update, delta, now, itemID); err != nil {
		return change, fmt.Errorf("failed to apply delta: %w", err)
	}
	if err := q.get(ctx, &change.After, `SELECT quantity FROM items WHERE id = ?`, itemID); err != nil {
		return change, fmt.Errorf("failed to read quantity: %w", err)
	}
	return change, nil
}

// AppendTransaction writes a ledger entry and sets its id.
func (q *queries) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	id, err := q.insert(ctx, `
		INSERT INTO transactions (item_id, user_id, type, delta, recipient, notes,
			expected_quantity, actual_quantity, discrepancy, audit_id, group_id, quantity_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ItemID, t.UserID, t.Type, t.Delta, t.Recipient, t.Notes,
		t.ExpectedQuantity, t.ActualQuantity, t.Discrepancy, t.AuditID, t.GroupID, t.QuantityAfter, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	t.ID = id
	return nil
}

// ListTransactions returns ledger entries newest first.
func (q *queries) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, error) {
	from := ` FROM transactions t`

	var w where
	if f.WarehouseID != nil {
		from += ` JOIN items i ON i.id = t.item_id`
		w.add("i.warehouse_id = ?", *f.WarehouseID)
	}
	if f.ItemID != nil {
		w.add("t.item_id = ?", *f.ItemID)
	}
	if f.UserID != nil {
		w.add("t.user_id = ?", *f.UserID)
	}
	if f.Type != nil {
		w.add("t.type = ?", *f.Type)
	}
	if f.From != nil {
		w.add("t.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		w.add("t.created_at <= ?", f.To.UTC())
	}

	query, args := paginate(`SELECT `+transactionColumns+from+w.String()+` ORDER BY t.created_at DESC, t.id DESC`, w.args, f.Limit, f.Offset)

	txs := []model.Transaction{}
	if err := q.sel(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// CountTransactionsForItem counts ledger entries referencing an item.
func (q *queries) CountTransactionsForItem(ctx context.Context, itemID int64) (int64, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM transactions WHERE item_id = ?`, itemID); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
