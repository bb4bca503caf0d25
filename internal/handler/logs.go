package handler

import (
	"net/http"

	"go.uber.org/zap"

	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"
)

// NotificationLogHandler serves the notification archive.
type NotificationLogHandler struct {
	archive repository.NotificationArchive
	policy  service.Policy
	log     *zap.Logger
}

// NewNotificationLogHandler creates a handler over archive, which may be nil
// when archiving is not configured.
func NewNotificationLogHandler(archive repository.NotificationArchive, log *zap.Logger) *NotificationLogHandler {
	return &NotificationLogHandler{archive: archive, log: log}
}

// List handles GET /api/v1/admin/notifications
func (h *NotificationLogHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.policy.RequireAdmin(caller(r)); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if h.archive == nil {
		response.Error(w, apierror.ServiceUnavailable("notification archive is not configured"))
		return
	}

	limit, offset := pagination(r)
	f := repository.ArchiveFilter{
		Event: r.URL.Query().Get("event"),
		Limit: limit,
		Skip:  offset,
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := model.NotificationType(raw)
		switch t {
		case model.NotifyInfo, model.NotifySuccess, model.NotifyWarning, model.NotifyError:
			f.Type = &t
		default:
			response.Error(w, apierror.BadRequest("type must be one of info, success, warning, error"))
			return
		}
	}

	logs, total, err := h.archive.ListNotifications(r.Context(), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, logs, offset/limit+1, limit, total)
}
