package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
)

// ReportService answers the read-only aggregate queries behind dashboards.
// Warehouse totals and category distribution are cached until the next
// commit touching the warehouse.
type ReportService struct {
	store    repository.Store
	cache    cache.Cache
	ttl      time.Duration
	lowStock int64
	policy   Policy
	log      *zap.Logger
}

// NewReportService creates a report service. A nil cache or zero ttl
// disables caching.
func NewReportService(store repository.Store, c cache.Cache, ttl time.Duration, lowStockThreshold int64, log *zap.Logger) *ReportService {
	if lowStockThreshold <= 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &ReportService{
		store:    store,
		cache:    c,
		ttl:      ttl,
		lowStock: lowStockThreshold,
		log:      log.With(zap.String("component", "Reports")),
	}
}

const (
	totalsKey     = "report:totals:"
	categoriesKey = "report:categories:"
)

func scopeKey(prefix string, warehouseID *int64) string {
	if warehouseID == nil {
		return prefix + "all"
	}
	return prefix + "w:" + strconv.FormatInt(*warehouseID, 10)
}

// Invalidate drops cached aggregates for the given warehouses and for the
// all-warehouse view. It is registered as an engine commit hook.
func (s *ReportService) Invalidate(ctx context.Context, warehouseIDs []int64) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	keys := []string{scopeKey(totalsKey, nil), scopeKey(categoriesKey, nil)}
	for _, id := range warehouseIDs {
		id := id
		keys = append(keys, scopeKey(totalsKey, &id), scopeKey(categoriesKey, &id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("failed to invalidate report cache", zap.Error(err))
	}
}

// cached loads key into dest, computing it with fill on a miss. Cache
// failures fall back to fill.
func (s *ReportService) cached(ctx context.Context, key string, dest interface{}, fill func() (interface{}, error)) error {
	compute := func() ([]byte, error) {
		v, err := fill()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}

	if s.cache == nil || s.ttl <= 0 {
		data, err := compute()
		if err != nil {
			return err
		}
		return json.Unmarshal(data, dest)
	}

	data, err := s.cache.GetOrSet(ctx, key, s.ttl, compute)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// WarehouseTotals returns item count and quantity per warehouse.
func (s *ReportService) WarehouseTotals(ctx context.Context, caller *model.Identity, warehouseID *int64) ([]model.WarehouseTotals, error) {
	scope, err := s.policy.ScopeWarehouse(caller, warehouseID)
	if err != nil {
		return nil, err
	}
	var out []model.WarehouseTotals
	err = s.cached(ctx, scopeKey(totalsKey, scope), &out, func() (interface{}, error) {
		return s.store.WarehouseTotals(ctx, scope)
	})
	return out, err
}

// CategoryDistribution returns item count and quantity per category.
func (s *ReportService) CategoryDistribution(ctx context.Context, caller *model.Identity, warehouseID *int64) ([]model.CategoryCount, error) {
	scope, err := s.policy.ScopeWarehouse(caller, warehouseID)
	if err != nil {
		return nil, err
	}
	var out []model.CategoryCount
	err = s.cached(ctx, scopeKey(categoriesKey, scope), &out, func() (interface{}, error) {
		return s.store.CategoryDistribution(ctx, scope)
	})
	return out, err
}

// LowInventory lists items at or below threshold, or the configured
// threshold when nil.
func (s *ReportService) LowInventory(ctx context.Context, caller *model.Identity, warehouseID, threshold *int64) ([]model.Item, error) {
	scope, err := s.policy.ScopeWarehouse(caller, warehouseID)
	if err != nil {
		return nil, err
	}
	limit := s.lowStock
	if threshold != nil {
		if *threshold < 0 {
			return nil, validationError("threshold", "must not be negative")
		}
		limit = *threshold
	}
	return s.store.ListItems(ctx, model.ItemFilter{WarehouseID: scope, MaxQuantity: &limit})
}

// TransactionHistory lists ledger entries. Filtering by another user's id
// requires admin; employees otherwise see their own warehouse only.
func (s *ReportService) TransactionHistory(ctx context.Context, caller *model.Identity, f model.TransactionFilter) ([]model.Transaction, error) {
	if err := s.scopeHistory(caller, &f); err != nil {
		return nil, err
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, validationError("from", "must not be after to")
	}
	return s.store.ListTransactions(ctx, f)
}

func (s *ReportService) scopeHistory(caller *model.Identity, f *model.TransactionFilter) error {
	if f.UserID != nil {
		if err := s.policy.CheckHistory(caller, *f.UserID); err != nil {
			return err
		}
		if *f.UserID == caller.UserID && f.WarehouseID == nil {
			return nil
		}
	}
	scope, err := s.policy.ScopeWarehouse(caller, f.WarehouseID)
	if err != nil {
		return err
	}
	f.WarehouseID = scope
	return nil
}

// Discrepancies lists audit details with a non-zero discrepancy.
func (s *ReportService) Discrepancies(ctx context.Context, caller *model.Identity, f model.DiscrepancyFilter) ([]model.AuditDetail, error) {
	if f.AuditID != nil {
		if err := s.policy.Authenticate(caller); err != nil {
			return nil, err
		}
		audit, err := s.store.GetAudit(ctx, *f.AuditID)
		if err != nil {
			return nil, lookup(err, "audit", *f.AuditID)
		}
		if err := s.policy.CheckWarehouse(caller, audit.WarehouseID); err != nil {
			return nil, err
		}
	}
	scope, err := s.policy.ScopeWarehouse(caller, f.WarehouseID)
	if err != nil {
		return nil, err
	}
	f.WarehouseID = scope
	return s.store.ListAuditDetails(ctx, f)
}

// Drift lists items whose quantity differs from the sum of their ledger
// deltas. Admin only.
func (s *ReportService) Drift(ctx context.Context, caller *model.Identity, warehouseID *int64) ([]model.ItemDrift, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.LedgerDrift(ctx, warehouseID)
}
