package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/notify"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/apierror"
	"stockledger-api/pkg/response"
)

const heartbeatInterval = 25 * time.Second

// EventHandler streams live notifications as server-sent events.
type EventHandler struct {
	hub    *notify.Hub
	policy service.Policy
	log    *zap.Logger
}

// NewEventHandler creates a new event stream handler.
func NewEventHandler(hub *notify.Hub, log *zap.Logger) *EventHandler {
	return &EventHandler{hub: hub, log: log}
}

// Stream handles GET /api/v1/events. The connection receives every
// notification published while it is open and addressed to the caller.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	identity := caller(r)
	if err := h.policy.Authenticate(identity); err != nil {
		fail(w, r, h.log, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, apierror.InternalError("streaming unsupported"))
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sub := h.hub.Subscribe(*identity)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 5000\n: subscribed %d\n\n", sub.ID())
	flusher.Flush()

	h.log.Debug("event stream opened", zap.Uint64("subscription", sub.ID()), zap.Int64("user_id", identity.UserID))
	defer h.log.Debug("event stream closed", zap.Uint64("subscription", sub.ID()))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.log.Warn("failed to encode notification", zap.String("id", n.ID), zap.Error(err))
				continue
			}
			event := n.Event
			if event == "" {
				event = "notification"
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, event, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
