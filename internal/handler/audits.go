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

// AuditHandler handles the inventory audit workflow.
type AuditHandler struct {
	audits *service.AuditService
	log    *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(audits *service.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audits: audits, log: log}
}

// List handles GET /api/v1/audits
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	var f model.AuditFilter
	var err error
	if f.WarehouseID, err = queryInt64(r, "warehouse_id"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if f.UserID, err = queryInt64(r, "user_id"); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.AuditStatus(raw)
		switch s {
		case model.AuditPending, model.AuditInProgress, model.AuditCompleted, model.AuditCancelled:
			f.Status = &s
		default:
			response.Error(w, apierror.BadRequest("status must be one of pending, in_progress, completed, cancelled"))
			return
		}
	}
	f.Limit, f.Offset = pagination(r)

	audits, err := h.audits.List(r.Context(), caller(r), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.List(w, audits, f.Limit, f.Offset)
}

// Create handles POST /api/v1/audits
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateAuditInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	audit, err := h.audits.Create(r.Context(), caller(r), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.Created(w, audit)
}

// Get handles GET /api/v1/audits/{id}
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.audits.Get)
}

// Start handles POST /api/v1/audits/{id}/start
func (h *AuditHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.audits.Start)
}

// Complete handles POST /api/v1/audits/{id}/complete
func (h *AuditHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.audits.Complete)
}

// Cancel handles POST /api/v1/audits/{id}/cancel
func (h *AuditHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.audits.Cancel)
}

func (h *AuditHandler) withID(w http.ResponseWriter, r *http.Request, fn func(context.Context, *model.Identity, int64) (*model.InventoryAudit, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	audit, err := fn(r.Context(), caller(r), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, audit)
}

// AddDetail handles POST /api/v1/audits/{id}/details
func (h *AuditHandler) AddDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	var in service.AddDetailInput
	if err := decode(r, &in); err != nil {
		fail(w, r, h.log, err)
		return
	}
	result, err := h.audits.AddDetail(r.Context(), caller(r), id, in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.Created(w, result)
}

// Details handles GET /api/v1/audits/{id}/details
func (h *AuditHandler) Details(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	includeMatched := r.URL.Query().Get("include_matched") == "true"
	details, err := h.audits.Details(r.Context(), caller(r), id, includeMatched)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	response.OK(w, details)
}
