package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/notify"
	"stockledger-api/internal/repository"
	"stockledger-api/pkg/uid"
)

// AuditService runs the audit workflow:
//
//	pending -> in_progress -> completed
//	pending | in_progress -> cancelled
//
// Counted lines are reconciled into the quantity store as they are added.
type AuditService struct {
	store    repository.Store
	engine   *Engine
	policy   Policy
	notifier notify.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewAuditService creates an audit service that reconciles through engine.
func NewAuditService(store repository.Store, engine *Engine, notifier notify.Publisher, m *metrics.Metrics, log *zap.Logger) *AuditService {
	return &AuditService{
		store:    store,
		engine:   engine,
		notifier: notifier,
		metrics:  m,
		log:      log.With(zap.String("component", "AuditWorkflow")),
	}
}

// CreateAuditInput opens an audit.
type CreateAuditInput struct {
	WarehouseID int64           `json:"warehouse_id"`
	AuditType   model.AuditType `json:"audit_type"`
	Notes       string          `json:"notes"`
}

// AddDetailInput records one counted item. ExpectedQuantity defaults to
// the item's current quantity.
type AddDetailInput struct {
	ItemID           int64  `json:"item_id"`
	ExpectedQuantity *int64 `json:"expected_quantity,omitempty"`
	ActualQuantity   int64  `json:"actual_quantity"`
	Notes            string `json:"notes"`
}

// CountResult is the outcome of AddDetail. Transaction is nil when the
// count matched and nothing was adjusted.
type CountResult struct {
	Detail      model.AuditDetail  `json:"detail"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	Item        model.Item         `json:"item"`
}

// Create opens a pending audit for a warehouse in the caller's scope.
func (s *AuditService) Create(ctx context.Context, caller *model.Identity, in CreateAuditInput) (*model.InventoryAudit, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	if err := requireID("warehouse_id", in.WarehouseID); err != nil {
		return nil, err
	}
	if !in.AuditType.Valid() {
		return nil, validationError("audit_type", "must be one of full, partial, spot")
	}
	if _, err := s.store.GetWarehouse(ctx, in.WarehouseID); err != nil {
		return nil, lookup(err, "warehouse", in.WarehouseID)
	}
	if err := s.policy.CheckWarehouse(caller, in.WarehouseID); err != nil {
		return nil, err
	}

	audit := &model.InventoryAudit{
		WarehouseID: in.WarehouseID,
		UserID:      caller.UserID,
		AuditType:   in.AuditType,
		Status:      model.AuditPending,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if err := s.store.CreateAudit(ctx, audit); err != nil {
		return nil, err
	}

	s.log.Info("audit created", zap.Int64("audit_id", audit.ID), zap.Int64("warehouse_id", audit.WarehouseID), zap.Int64("user_id", caller.UserID))
	s.publish(ctx, audit, "audit.created", fmt.Sprintf("Audit #%d (%s) opened", audit.ID, audit.AuditType))
	return audit, nil
}

// Start moves a pending audit to in_progress.
func (s *AuditService) Start(ctx context.Context, caller *model.Identity, id int64) (*model.InventoryAudit, error) {
	return s.transition(ctx, caller, id, "start", []model.AuditStatus{model.AuditPending}, model.AuditInProgress)
}

// Complete closes an in-progress audit. No details can be added afterwards.
func (s *AuditService) Complete(ctx context.Context, caller *model.Identity, id int64) (*model.InventoryAudit, error) {
	return s.transition(ctx, caller, id, "complete", []model.AuditStatus{model.AuditInProgress}, model.AuditCompleted)
}

// Cancel abandons an audit that has not completed. Adjustments already
// applied by its details stay in the ledger.
func (s *AuditService) Cancel(ctx context.Context, caller *model.Identity, id int64) (*model.InventoryAudit, error) {
	return s.transition(ctx, caller, id, "cancel", []model.AuditStatus{model.AuditPending, model.AuditInProgress}, model.AuditCancelled)
}

func (s *AuditService) transition(ctx context.Context, caller *model.Identity, id int64, verb string, from []model.AuditStatus, to model.AuditStatus) (*model.InventoryAudit, error) {
	ctx, span := tracer.Start(ctx, "audit."+verb, trace.WithAttributes(attribute.Int64("audit.id", id)))
	defer span.End()

	audit, err := s.authorized(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.TransitionAudit(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.store.GetAudit(ctx, id)
		if err != nil {
			return nil, lookup(err, "audit", id)
		}
		return nil, validationError("status", fmt.Sprintf("cannot %s an audit that is %s", verb, current.Status))
	}

	audit, err = s.store.GetAudit(ctx, id)
	if err != nil {
		return nil, lookup(err, "audit", id)
	}

	s.metrics.AuditTransitions.WithLabelValues(string(to)).Inc()
	s.log.Info("audit transitioned", zap.Int64("audit_id", id), zap.String("status", string(to)), zap.Int64("user_id", caller.UserID))
	s.publish(ctx, audit, "audit."+string(to), fmt.Sprintf("Audit #%d is now %s", audit.ID, audit.Status))
	return audit, nil
}

// AddDetail records a count for an in-progress audit. A non-zero
// discrepancy is applied to the item as an audit adjustment in the same
// unit as the detail row.
func (s *AuditService) AddDetail(ctx context.Context, caller *model.Identity, auditID int64, in AddDetailInput) (*CountResult, error) {
	ctx, span := tracer.Start(ctx, "audit.add_detail", trace.WithAttributes(attribute.Int64("audit.id", auditID)))
	defer span.End()

	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	if err := requireID("item_id", in.ItemID); err != nil {
		return nil, err
	}
	if in.ActualQuantity < 0 {
		return nil, validationError("actual_quantity", "must not be negative")
	}
	if in.ExpectedQuantity != nil && *in.ExpectedQuantity < 0 {
		return nil, validationError("expected_quantity", "must not be negative")
	}

	audit, err := s.authorized(ctx, caller, auditID)
	if err != nil {
		return nil, err
	}
	if audit.Status != model.AuditInProgress {
		return nil, validationError("status", fmt.Sprintf("details can only be added to an audit in progress, audit is %s", audit.Status))
	}

	item, err := s.store.GetItem(ctx, in.ItemID)
	if err != nil {
		return nil, lookup(err, "item", in.ItemID)
	}
	if item.WarehouseID != audit.WarehouseID {
		return nil, validationError("item_id", "item does not belong to the audited warehouse")
	}

	groupID := uid.New()
	result := &CountResult{}
	completed := 0

	err = s.store.WithinTx(ctx, func(q repository.Queries) error {
		result.Transaction, completed = nil, 0

		// The lock keeps Complete and Cancel out until this detail commits.
		current, err := q.GetAuditForUpdate(ctx, auditID)
		if err != nil {
			return lookup(err, "audit", auditID)
		}
		if current.Status != model.AuditInProgress {
			return validationError("status", fmt.Sprintf("details can only be added to an audit in progress, audit is %s", current.Status))
		}
		counted, err := q.HasAuditDetail(ctx, auditID, in.ItemID)
		if err != nil {
			return err
		}
		if counted {
			return validationError("item_id", fmt.Sprintf("item %d was already counted in audit %d", in.ItemID, auditID))
		}

		detail := model.AuditDetail{
			AuditID:        auditID,
			ItemID:         in.ItemID,
			ActualQuantity: in.ActualQuantity,
			Notes:          strings.TrimSpace(in.Notes),
		}
		if in.ExpectedQuantity != nil {
			detail.ExpectedQuantity = *in.ExpectedQuantity
		} else {
			qty, err := q.GetQuantity(ctx, in.ItemID)
			if err != nil {
				return fmt.Errorf("failed to read quantity: %w", err)
			}
			detail.ExpectedQuantity = qty
		}
		detail.Discrepancy = detail.ActualQuantity - detail.ExpectedQuantity

		if err := q.AddAuditDetail(ctx, &detail); err != nil {
			return err
		}
		completed++
		result.Detail = detail

		tx, err := s.engine.applyAuditAdjustment(ctx, q, caller.UserID, groupID, &detail)
		if err != nil {
			return err
		}
		if tx != nil {
			completed++
			result.Transaction = tx
		}
		return nil
	})
	if err != nil {
		return nil, s.engine.fail(ctx, span, "audit", groupID, 2, completed, err)
	}

	result.Item = *item
	if result.Transaction != nil {
		result.Item.Quantity = result.Transaction.QuantityAfter

		s.metrics.Operations.WithLabelValues("audit", metrics.OutcomeOK).Inc()
		receipt := &model.Receipt{GroupID: groupID, Transactions: []model.Transaction{*result.Transaction}, Items: []model.Item{result.Item}}
		s.engine.committed(ctx, []int64{item.WarehouseID})
		s.engine.announce(ctx, "audit", receipt)
	} else {
		qty, err := s.store.GetQuantity(ctx, item.ID)
		if err == nil {
			result.Item.Quantity = qty
		}
	}

	s.log.Info("audit detail recorded",
		zap.Int64("audit_id", auditID), zap.Int64("item_id", in.ItemID),
		zap.Int64("expected", result.Detail.ExpectedQuantity), zap.Int64("actual", result.Detail.ActualQuantity),
		zap.Int64("discrepancy", result.Detail.Discrepancy))
	return result, nil
}

// applyAuditAdjustment appends the audit adjustment for d inside q. A
// matched count writes nothing and returns nil.
func (e *Engine) applyAuditAdjustment(ctx context.Context, q repository.Queries, userID int64, groupID string, d *model.AuditDetail) (*model.Transaction, error) {
	if d.Discrepancy == 0 {
		return nil, nil
	}
	expected, actual, auditID := d.ExpectedQuantity, d.ActualQuantity, d.AuditID
	tx, err := e.applyLeg(ctx, q, userID, groupID, leg{
		itemID:   d.ItemID,
		typ:      model.TxAuditAdjustment,
		delta:    d.Discrepancy,
		notes:    d.Notes,
		expected: &expected,
		actual:   &actual,
		auditID:  &auditID,
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Get returns an audit visible to the caller.
func (s *AuditService) Get(ctx context.Context, caller *model.Identity, id int64) (*model.InventoryAudit, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	audit, err := s.store.GetAudit(ctx, id)
	if err != nil {
		return nil, lookup(err, "audit", id)
	}
	if err := s.policy.CheckWarehouse(caller, audit.WarehouseID); err != nil {
		return nil, err
	}
	return audit, nil
}

// List returns audits in the caller's scope.
func (s *AuditService) List(ctx context.Context, caller *model.Identity, f model.AuditFilter) ([]model.InventoryAudit, error) {
	wh, err := s.policy.ScopeWarehouse(caller, f.WarehouseID)
	if err != nil {
		return nil, err
	}
	f.WarehouseID = wh
	return s.store.ListAudits(ctx, f)
}

// Details returns the counted lines of an audit.
func (s *AuditService) Details(ctx context.Context, caller *model.Identity, id int64, includeMatched bool) ([]model.AuditDetail, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.store.ListAuditDetails(ctx, model.DiscrepancyFilter{AuditID: &id, IncludeMatched: includeMatched})
}

// authorized loads an audit the caller may act on: in scope, and either
// its owner or an admin.
func (s *AuditService) authorized(ctx context.Context, caller *model.Identity, id int64) (*model.InventoryAudit, error) {
	audit, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && audit.UserID != caller.UserID {
		return nil, forbidden("only the audit owner or an admin may change it")
	}
	return audit, nil
}

func (s *AuditService) publish(ctx context.Context, audit *model.InventoryAudit, event, message string) {
	n := model.Notification{Type: model.NotifyInfo, Event: event, Message: message}
	if audit.Status == model.AuditCompleted {
		n.Type = model.NotifySuccess
	}

	n.Target = model.ToAdmins()
	s.notifier.Publish(ctx, n)

	owner, err := s.store.GetUser(ctx, audit.UserID)
	if err == nil && owner.Role != model.RoleAdmin {
		n.Target = model.ToUser(owner.ID)
		s.notifier.Publish(ctx, n)
	}
}
