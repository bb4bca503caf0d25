package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// ReportHandler serves read-only aggregates and exports.
type ReportHandler struct {
	reports *service.ReportService
	log     *zap.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports *service.ReportService, log *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, log: log}
}

// WarehouseTotals handles GET /api/v1/reports/warehouses
func (h *ReportHandler) WarehouseTotals(w http.ResponseWriter, r *http.Request) {
	wh, err := queryInt64(r, "warehouse_id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	totals, err := h.reports.WarehouseTotals(r.Context(), caller(r), wh)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, totals)
}

// Categories handles GET /api/v1/reports/categories
func (h *ReportHandler) Categories(w http.ResponseWriter, r *http.Request) {
	wh, err := queryInt64(r, "warehouse_id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	dist, err := h.reports.CategoryDistribution(r.Context(), caller(r), wh)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, dist)
}

// LowStock handles GET /api/v1/reports/low-stock
func (h *ReportHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	wh, err := queryInt64(r, "warehouse_id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	threshold, err := queryInt64(r, "threshold")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	items, err := h.reports.LowInventory(r.Context(), caller(r), wh, threshold)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, items)
}

// Discrepancies handles GET /api/v1/reports/discrepancies
func (h *ReportHandler) Discrepancies(w http.ResponseWriter, r *http.Request) {
	var f model.DiscrepancyFilter
	var err error
	if f.WarehouseID, err = queryInt64(r, "warehouse_id"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if f.AuditID, err = queryInt64(r, "audit_id"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	f.IncludeMatched = r.URL.Query().Get("include_matched") == "true"
	f.Limit, f.Offset = pagination(r)

	details, err := h.reports.Discrepancies(r.Context(), caller(r), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.List(w, details, f.Limit, f.Offset)
}

// Drift handles GET /api/v1/reports/drift
func (h *ReportHandler) Drift(w http.ResponseWriter, r *http.Request) {
	wh, err := queryInt64(r, "warehouse_id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	drift, err := h.reports.Drift(r.Context(), caller(r), wh)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, drift)
}

// ExportTransactions handles GET /api/v1/reports/transactions.xlsx. The
// workbook is built in memory so a failure still produces a JSON error.
func (h *ReportHandler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	if r.URL.Query().Get("limit") == "" {
		f.Limit, f.Offset = 0, 0
	}

	var buf bytes.Buffer
	n, err := h.reports.ExportTransactions(r.Context(), caller(r), f, &buf)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}

	name := fmt.Sprintf("transactions-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Row-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
