package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"stockledger-api/internal/model"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"
)

// TransactionHandler exposes the ledger operations and history.
type TransactionHandler struct {
	engine  *service.Engine
	reports *service.ReportService
	log     *zap.Logger
}

// NewTransactionHandler creates a new transaction handler.
func NewTransactionHandler(engine *service.Engine, reports *service.ReportService, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{engine: engine, reports: reports, log: log}
}

// operation decodes an input of type T and runs it through the engine.
func operation[T any](h *TransactionHandler, run func(context.Context, *model.Identity, T) (*model.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in T
		if err := decode(r, &in); err != nil {
			fail(w, r, h.log, err)
			return
		}
		receipt, err := run(r.Context(), caller(r), in)
		if err != nil {
			fail(w, r, h.log, err)
			return
		}
		response.Created(w, receipt)
	}
}

// Issue handles POST /api/v1/transactions/issue
func (h *TransactionHandler) Issue() http.HandlerFunc { return operation(h, h.engine.Issue) }

// Return handles POST /api/v1/transactions/return
func (h *TransactionHandler) Return() http.HandlerFunc { return operation(h, h.engine.Return) }

// Exchange handles POST /api/v1/transactions/exchange
func (h *TransactionHandler) Exchange() http.HandlerFunc { return operation(h, h.engine.Exchange) }

// Adjust handles POST /api/v1/transactions/adjust
func (h *TransactionHandler) Adjust() http.HandlerFunc { return operation(h, h.engine.Adjust) }

// Transfer handles POST /api/v1/transactions/transfer
func (h *TransactionHandler) Transfer() http.HandlerFunc { return operation(h, h.engine.Transfer) }

// List handles GET /api/v1/transactions
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	txs, err := h.reports.TransactionHistory(r.Context(), caller(r), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.List(w, txs, f.Limit, f.Offset)
}

func transactionFilter(r *http.Request) (model.TransactionFilter, error) {
	var f model.TransactionFilter
	var err error
	if f.WarehouseID, err = queryInt64(r, "warehouse_id"); err != nil {
		return f, err
	}
	if f.ItemID, err = queryInt64(r, "item_id"); err != nil {
		return f, err
	}
	if f.UserID, err = queryInt64(r, "user_id"); err != nil {
		return f, err
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := model.ParseTxType(raw)
		if err != nil {
			return f, apierror.BadRequest(err.Error())
		}
		f.Type = &t
	}
	if f.From, err = queryTime(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		return f, err
	}
	f.Limit, f.Offset = pagination(r)
	return f, nil
}
