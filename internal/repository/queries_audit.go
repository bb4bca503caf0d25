package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"stockledger-api/internal/model"
)

const auditColumns = `a.id, a.warehouse_id, a.user_id, a.audit_type, a.status, a.started_at, a.completed_at, a.notes, a.created_at`

const auditDetailColumns = `d.id, d.inventory_audit_id, d.item_id, d.expected_quantity, d.actual_quantity, d.discrepancy, d.notes, d.created_at`

// CreateAudit inserts an audit and sets its id.
func (q *queries) CreateAudit(ctx context.Context, a *model.InventoryAudit) error {
	a.CreatedAt = time.Now().UTC()
	id, err := q.insert(ctx, `
		INSERT INTO inventory_audits (warehouse_id, user_id, audit_type, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.WarehouseID, a.UserID, a.AuditType, a.Status, a.Notes, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit: %w", err)
	}
	a.ID = id
	return nil
}

// GetAudit retrieves an audit by id.
func (q *queries) GetAudit(ctx context.Context, id int64) (*model.InventoryAudit, error) {
	var a model.InventoryAudit
	if err := q.get(ctx, &a, `SELECT `+auditColumns+` FROM inventory_audits a WHERE a.id = ?`, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAuditForUpdate retrieves an audit and locks its row until the
// surrounding transaction ends, so status transitions wait for the caller.
func (q *queries) GetAuditForUpdate(ctx context.Context, id int64) (*model.InventoryAudit, error) {
	var a model.InventoryAudit
	if err := q.get(ctx, &a, `SELECT `+auditColumns+` FROM inventory_audits a WHERE a.id = ?`+q.d.forUpdate, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAudits returns audits newest first.
func (q *queries) ListAudits(ctx context.Context, f model.AuditFilter) ([]model.InventoryAudit, error) {
	var w where
	if f.WarehouseID != nil {
		w.add("a.warehouse_id = ?", *f.WarehouseID)
	}
	if f.UserID != nil {
		w.add("a.user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		w.add("a.status = ?", *f.Status)
	}

	query, args := paginate(`SELECT `+auditColumns+` FROM inventory_audits a`+w.String()+` ORDER BY a.created_at DESC, a.id DESC`, w.args, f.Limit, f.Offset)

	audits := []model.InventoryAudit{}
	if err := q.sel(ctx, &audits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	return audits, nil
}

// TransitionAudit performs a compare-and-set on the audit status, stamping
// started_at or completed_at as appropriate.
func (q *queries) TransitionAudit(ctx context.Context, id int64, from []model.AuditStatus, to model.AuditStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	set := `status = ?`
	args := []interface{}{to}
	now := time.Now().UTC()
	switch to {
	case model.AuditInProgress:
		set += `, started_at = ?`
		args = append(args, now)
	case model.AuditCompleted:
		set += `, completed_at = ?`
		args = append(args, now)
	}
	args = append(args, id, from)

	query, args, err := sqlx.In(`UPDATE inventory_audits SET `+set+` WHERE id = ? AND status IN (?)`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to build transition: %w", err)
	}

	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition audit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to transition audit: %w", err)
	}
	return n == 1, nil
}

// AddAuditDetail inserts a counted line and sets its id.
func (q *queries) AddAuditDetail(ctx context.Context, d *model.AuditDetail) error {
	d.CreatedAt = time.Now().UTC()
	id, err := q.insert(ctx, `
		INSERT INTO audit_details (inventory_audit_id, item_id, expected_quantity, actual_quantity, discrepancy, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.AuditID, d.ItemID, d.ExpectedQuantity, d.ActualQuantity, d.Discrepancy, d.Notes, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add audit detail: %w", err)
	}
	d.ID = id
	return nil
}

// HasAuditDetail reports whether itemID was already counted in auditID.
func (q *queries) HasAuditDetail(ctx context.Context, auditID, itemID int64) (bool, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM audit_details WHERE inventory_audit_id = ? AND item_id = ?`, auditID, itemID); err != nil {
		return false, fmt.Errorf("failed to check audit detail: %w", err)
	}
	return n > 0, nil
}

// ListAuditDetails returns counted lines in insertion order. Matched lines
// are omitted unless IncludeMatched is set.
func (q *queries) ListAuditDetails(ctx context.Context, f model.DiscrepancyFilter) ([]model.AuditDetail, error) {
	from := ` FROM audit_details d`

	var w where
	if f.WarehouseID != nil {
		from += ` JOIN inventory_audits a ON a.id = d.inventory_audit_id`
		w.add("a.warehouse_id = ?", *f.WarehouseID)
	}
	if f.AuditID != nil {
		w.add("d.inventory_audit_id = ?", *f.AuditID)
	}
	if !f.IncludeMatched {
		w.add("d.discrepancy <> 0")
	}

	query, args := paginate(`SELECT `+auditDetailColumns+from+w.String()+` ORDER BY d.id`, w.args, f.Limit, f.Offset)

	details := []model.AuditDetail{}
	if err := q.sel(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit details: %w", err)
	}
	return details, nil
}
