package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/notify"
	"stockledger-api/internal/repository"
	"stockledger-api/pkg/uid"
)

var tracer = otel.Tracer("stockledger-api/internal/service")

// DefaultLowStockThreshold is the quantity at or below which an item is
// reported as low on stock.
const DefaultLowStockThreshold = 10

// EngineConfig holds reconciliation settings.
type EngineConfig struct {
	LowStockThreshold int64
}

// CommitHook is called after a unit touching the given warehouses commits.
type CommitHook func(ctx context.Context, warehouseIDs []int64)

// Engine applies ledger operations to the quantity store. Every operation
// writes its transactions and quantity changes in one atomic unit and
// publishes notifications only after the unit committed.
type Engine struct {
	store    repository.Store
	policy   Policy
	notifier notify.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	cfg      EngineConfig

	hooksMu sync.RWMutex
	hooks   []CommitHook
}

// NewEngine creates a reconciliation engine.
func NewEngine(store repository.Store, notifier notify.Publisher, m *metrics.Metrics, log *zap.Logger, cfg EngineConfig) *Engine {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = DefaultLowStockThreshold
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		metrics:  m,
		log:      log.With(zap.String("component", "ReconciliationEngine")),
		cfg:      cfg,
	}
}

// OnCommit registers a hook run after every committed unit.
func (e *Engine) OnCommit(hook CommitHook) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, hook)
	e.hooksMu.Unlock()
}

// IssueInput takes stock out of an item for a recipient.
type IssueInput struct {
	ItemID    int64  `json:"item_id"`
	Quantity  int64  `json:"quantity"`
	Recipient string `json:"recipient"`
	Notes     string `json:"notes"`
}

// ReturnInput puts stock back into an item. Condition describes the state
// of the returned goods.
type ReturnInput struct {
	ItemID    int64  `json:"item_id"`
	Quantity  int64  `json:"quantity"`
	Condition string `json:"condition"`
	Notes     string `json:"notes"`
}

// ExchangeInput swaps stock of one item for another for the same recipient.
type ExchangeInput struct {
	OutItemID   int64  `json:"out_item_id"`
	OutQuantity int64  `json:"out_quantity"`
	InItemID    int64  `json:"in_item_id"`
	InQuantity  int64  `json:"in_quantity"`
	Recipient   string `json:"recipient"`
	Notes       string `json:"notes"`
}

// AdjustInput corrects a quantity by a signed Delta, or to an absolute
// Target computed against the quantity inside the unit.
type AdjustInput struct {
	ItemID int64  `json:"item_id"`
	Delta  int64  `json:"delta"`
	Target *int64 `json:"target,omitempty"`
	Notes  string `json:"notes"`
}

// TransferInput moves stock from one item to another, usually the same
// article held in another warehouse.
type TransferInput struct {
	FromItemID int64  `json:"from_item_id"`
	ToItemID   int64  `json:"to_item_id"`
	Quantity   int64  `json:"quantity"`
	Notes      string `json:"notes"`
}

// leg is one quantity change plus its ledger row.
type leg struct {
	itemID    int64
	typ       model.TxType
	delta     int64
	target    *int64
	recipient string
	notes     string

	expected *int64
	actual   *int64
	auditID  *int64
}

// Issue records stock leaving an item.
func (e *Engine) Issue(ctx context.Context, caller *model.Identity, in IssueInput) (*model.Receipt, error) {
	if err := e.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	recipient := strings.TrimSpace(in.Recipient)
	if err := firstError(
		requireID("item_id", in.ItemID),
		requirePositive("quantity", in.Quantity),
		requireText("recipient", recipient),
	); err != nil {
		return nil, err
	}

	return e.execute(ctx, "issue", caller, []leg{{
		itemID: in.ItemID, typ: model.TxIssue, delta: -in.Quantity, recipient: recipient, notes: in.Notes,
	}})
}

// Return records stock coming back into an item.
func (e *Engine) Return(ctx context.Context, caller *model.Identity, in ReturnInput) (*model.Receipt, error) {
	if err := e.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	condition := strings.TrimSpace(in.Condition)
	if err := firstError(
		requireID("item_id", in.ItemID),
		requirePositive("quantity", in.Quantity),
		requireText("condition", condition),
	); err != nil {
		return nil, err
	}

	return e.execute(ctx, "return", caller, []leg{{
		itemID: in.ItemID, typ: model.TxReturn, delta: in.Quantity, recipient: condition, notes: in.Notes,
	}})
}

// Exchange takes OutQuantity of one item and returns InQuantity of another
// in a single unit.
func (e *Engine) Exchange(ctx context.Context, caller *model.Identity, in ExchangeInput) (*model.Receipt, error) {
	if err := e.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	recipient := strings.TrimSpace(in.Recipient)
	if err := firstError(
		requireID("out_item_id", in.OutItemID),
		requireID("in_item_id", in.InItemID),
		requirePositive("out_quantity", in.OutQuantity),
		requirePositive("in_quantity", in.InQuantity),
		requireText("recipient", recipient),
	); err != nil {
		return nil, err
	}
	if in.OutItemID == in.InItemID {
		return nil, validationError("in_item_id", "exchange requires two different items")
	}

	return e.execute(ctx, "exchange", caller, []leg{
		{itemID: in.OutItemID, typ: model.TxExchangeOut, delta: -in.OutQuantity, recipient: recipient, notes: in.Notes},
		{itemID: in.InItemID, typ: model.TxExchangeIn, delta: in.InQuantity, recipient: recipient, notes: in.Notes},
	})
}

// Adjust records a manual correction.
func (e *Engine) Adjust(ctx context.Context, caller *model.Identity, in AdjustInput) (*model.Receipt, error) {
	if err := e.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(in.Notes)
	if err := firstError(
		requireID("item_id", in.ItemID),
		requireText("notes", notes),
	); err != nil {
		return nil, err
	}

	l := leg{itemID: in.ItemID, typ: model.TxAdjustment, notes: notes}
	switch {
	case in.Target != nil && in.Delta != 0:
		return nil, validationError("target", "give either delta or target, not both")
	case in.Target != nil:
		if *in.Target < 0 {
			return nil, validationError("target", "must not be negative")
		}
		target := *in.Target
		l.target = &target
	case in.Delta == 0:
		return nil, validationError("delta", "must not be zero")
	default:
		l.delta = in.Delta
	}

	return e.execute(ctx, "adjustment", caller, []leg{l})
}

// Transfer moves Quantity from one item to another. The caller must be in
// scope for both items.
func (e *Engine) Transfer(ctx context.Context, caller *model.Identity, in TransferInput) (*model.Receipt, error) {
	if err := e.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	if err := firstError(
		requireID("from_item_id", in.FromItemID),
		requireID("to_item_id", in.ToItemID),
		requirePositive("quantity", in.Quantity),
	); err != nil {
		return nil, err
	}
	if in.FromItemID == in.ToItemID {
		return nil, validationError("to_item_id", "transfer requires two different items")
	}

	return e.execute(ctx, "transfer", caller, []leg{
		{itemID: in.FromItemID, typ: model.TxTransfer, delta: -in.Quantity, notes: in.Notes},
		{itemID: in.ToItemID, typ: model.TxTransfer, delta: in.Quantity, notes: in.Notes},
	})
}

// execute loads and authorizes every item, runs the legs in one unit and
// handles the post-commit side effects.
func (e *Engine) execute(ctx context.Context, op string, caller *model.Identity, legs []leg) (*model.Receipt, error) {
	ctx, span := tracer.Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.String("ledger.op", op),
		attribute.Int64("ledger.user_id", caller.UserID),
	))
	defer span.End()

	items := make(map[int64]*model.Item, len(legs))
	for _, l := range legs {
		if _, seen := items[l.itemID]; seen {
			continue
		}
		item, err := e.store.GetItem(ctx, l.itemID)
		if err != nil {
			return nil, e.reject(span, op, lookup(err, "item", l.itemID))
		}
		if err := e.policy.CheckItem(caller, item); err != nil {
			return nil, e.reject(span, op, err)
		}
		items[l.itemID] = item
	}

	groupID := uid.New()
	span.SetAttributes(attribute.String("ledger.group_id", groupID))

	var (
		txs       []model.Transaction
		completed int
	)
	err := e.store.WithinTx(ctx, func(q repository.Queries) error {
		txs, completed = txs[:0], 0
		for _, l := range legs {
			tx, err := e.applyLeg(ctx, q, caller.UserID, groupID, l)
			if err != nil {
				return err
			}
			txs = append(txs, tx)
			completed++
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, span, op, groupID, len(legs), completed, err)
	}

	receipt := &model.Receipt{GroupID: groupID, Transactions: txs}
	for _, tx := range txs {
		items[tx.ItemID].Quantity = tx.QuantityAfter
	}
	seen := make(map[int64]bool, len(items))
	for _, l := range legs {
		if !seen[l.itemID] {
			seen[l.itemID] = true
			receipt.Items = append(receipt.Items, *items[l.itemID])
		}
	}

	e.metrics.Operations.WithLabelValues(op, metrics.OutcomeOK).Inc()
	e.committed(ctx, warehousesOf(receipt.Items))
	e.announce(ctx, op, receipt)
	return receipt, nil
}

// applyLeg applies one quantity change and appends its ledger row inside q.
// The ledger keeps the requested delta even when the quantity was clamped.
func (e *Engine) applyLeg(ctx context.Context, q repository.Queries, userID int64, groupID string, l leg) (model.Transaction, error) {
	delta := l.delta
	if l.target != nil {
		current, err := q.GetQuantity(ctx, l.itemID)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("failed to read quantity: %w", err)
		}
		delta = *l.target - current
		if delta == 0 {
			return model.Transaction{}, validationError("target", "item is already at the target quantity")
		}
	}

	change, err := q.ApplyDelta(ctx, l.itemID, delta)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to apply delta to item %d: %w", l.itemID, err)
	}
	if change.Clamped(delta) {
		e.metrics.ClampedLegs.WithLabelValues(string(l.typ)).Inc()
		e.log.Warn("quantity clamped at zero",
			zap.Int64("item_id", l.itemID),
			zap.String("type", string(l.typ)),
			zap.Int64("requested_delta", delta),
			zap.Int64("before", change.Before),
			zap.String("group_id", groupID))
	}

	tx := model.Transaction{
		ItemID:        l.itemID,
		UserID:        userID,
		Type:          l.typ,
		Delta:         delta,
		Recipient:     l.recipient,
		Notes:         l.notes,
		AuditID:       l.auditID,
		GroupID:       groupID,
		QuantityAfter: change.After,
		CreatedAt:     time.Now().UTC(),
	}
	if l.expected != nil && l.actual != nil {
		discrepancy := *l.actual - *l.expected
		tx.ExpectedQuantity, tx.ActualQuantity, tx.Discrepancy = l.expected, l.actual, &discrepancy
	}
	if err := q.AppendTransaction(ctx, &tx); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}

// fail maps an error out of an atomic unit. Errors raised before the unit
// wrote anything are returned as they are; anything later becomes a
// ReconciliationError.
func (e *Engine) fail(ctx context.Context, span trace.Span, op, groupID string, legs, completed int, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var txErr *repository.TxError
	if errors.As(err, &txErr) {
		rerr := &ReconciliationError{Op: op, GroupID: groupID, Legs: legs, Completed: completed, RolledBack: false, Err: err}
		e.metrics.Operations.WithLabelValues(op, metrics.OutcomeFailed).Inc()
		e.metrics.ReconciliationErrors.WithLabelValues(op, "false").Inc()
		e.log.Error("atomic unit outcome unknown, reconciliation required",
			zap.String("op", op), zap.String("group_id", groupID),
			zap.Int("legs", legs), zap.Int("completed", completed), zap.Error(err))
		e.notifier.Publish(ctx, model.Notification{
			Type:    model.NotifyError,
			Event:   "reconciliation.required",
			Message: fmt.Sprintf("Reconciliation required for %s %s", op, groupID),
			Details: err.Error(),
			Target:  model.ToAdmins(),
		})
		return rerr
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		e.metrics.Operations.WithLabelValues(op, metrics.OutcomeRejected).Inc()
		return err
	}

	if completed == 0 && errors.Is(err, repository.ErrNotFound) {
		e.metrics.Operations.WithLabelValues(op, metrics.OutcomeRejected).Inc()
		return &Error{Kind: KindNotFound, Message: "item no longer exists", Err: err}
	}

	e.metrics.Operations.WithLabelValues(op, metrics.OutcomeFailed).Inc()
	e.metrics.ReconciliationErrors.WithLabelValues(op, "true").Inc()
	e.log.Warn("atomic unit rolled back",
		zap.String("op", op), zap.String("group_id", groupID),
		zap.Int("legs", legs), zap.Int("completed", completed), zap.Error(err))
	return &ReconciliationError{Op: op, GroupID: groupID, Legs: legs, Completed: completed, RolledBack: true, Err: err}
}

func (e *Engine) reject(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.Operations.WithLabelValues(op, metrics.OutcomeRejected).Inc()
	return err
}

func (e *Engine) committed(ctx context.Context, warehouseIDs []int64) {
	e.hooksMu.RLock()
	hooks := e.hooks
	e.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, warehouseIDs)
	}
}

// announce publishes the change notification and any low-stock warnings.
func (e *Engine) announce(ctx context.Context, op string, r *model.Receipt) {
	names := make(map[int64]string, len(r.Items))
	for _, item := range r.Items {
		names[item.ID] = item.Name
	}

	parts := make([]string, 0, len(r.Transactions))
	for _, tx := range r.Transactions {
		parts = append(parts, fmt.Sprintf("%s %+d %s", tx.Type.Label(), tx.Delta, names[tx.ItemID]))
	}
	n := model.Notification{
		Type:    model.NotifySuccess,
		Event:   "transaction." + op,
		Message: strings.Join(parts, "; "),
		Details: r.GroupID,
		Target:  model.Broadcast(),
	}
	if len(r.Transactions) == 1 {
		qty := r.Transactions[0].QuantityAfter
		n.Quantity = &qty
		if rcpt := r.Transactions[0].Recipient; rcpt != "" {
			n.Message += " (" + rcpt + ")"
		}
	}
	e.notifier.Publish(ctx, n)

	for _, tx := range r.Transactions {
		e.warnLowStock(ctx, tx, names[tx.ItemID])
	}
}

func (e *Engine) warnLowStock(ctx context.Context, tx model.Transaction, name string) {
	if tx.Delta >= 0 || tx.QuantityAfter > e.cfg.LowStockThreshold {
		return
	}
	qty := tx.QuantityAfter
	e.notifier.Publish(ctx, model.Notification{
		Type:     model.NotifyWarning,
		Event:    "item.low_stock",
		Message:  fmt.Sprintf("%s is low on stock: %d left", name, qty),
		Quantity: &qty,
		Target:   model.ToAdmins(),
	})
}

func warehousesOf(items []model.Item) []int64 {
	seen := make(map[int64]bool, len(items))
	var ids []int64
	for _, item := range items {
		if !seen[item.WarehouseID] {
			seen[item.WarehouseID] = true
			ids = append(ids, item.WarehouseID)
		}
	}
	return ids
}

func requireID(field string, id int64) error {
	if id <= 0 {
		return validationError(field, "is required")
	}
	return nil
}

func requirePositive(field string, v int64) error {
	if v <= 0 {
		return validationError(field, "must be greater than zero")
	}
	return nil
}

func requireText(field, v string) error {
	if v == "" {
		return validationError(field, "is required")
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
