// Package notify fans ledger events out to connected subscribers and to
// optional downstream sinks.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/pkg/uid"
)

// Sink receives every notification published on this instance. Sinks run on
// their own goroutine; a slow sink never delays the publisher.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n model.Notification) error
}

// Publisher is the side of the hub services depend on.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification)
}

// DeliveryError describes a notification that could not be handed to a
// subscriber or sink. It is logged, never returned to the publisher.
type DeliveryError struct {
	NotificationID string
	Subscriber     uint64
	UserID         int64
	Sink           string
	Reason         string
	Err            error
}

func (e *DeliveryError) Error() string {
	target := fmt.Sprintf("subscriber %d (user %d)", e.Subscriber, e.UserID)
	if e.Sink != "" {
		target = "sink " + e.Sink
	}
	if e.Err != nil {
		return fmt.Sprintf("delivery of %s to %s failed: %s: %v", e.NotificationID, target, e.Reason, e.Err)
	}
	return fmt.Sprintf("delivery of %s to %s failed: %s", e.NotificationID, target, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// HubConfig holds fan-out settings.
type HubConfig struct {
	// Origin identifies this API instance on relayed notifications.
	Origin string
	// SubscriberBuffer is the per-subscription queue length.
	SubscriberBuffer int
	// SinkBuffer is the per-sink queue length.
	SinkBuffer int
	// SinkTimeout bounds a single sink delivery.
	SinkTimeout time.Duration
}

// Hub delivers notifications to live subscriptions according to their
// target: broadcast to all, user to that user's subscriptions, admins to
// admin subscriptions. Notifications are not stored for later subscribers.
type Hub struct {
	cfg     HubConfig
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	sinks []*sinkWorker
	wg    sync.WaitGroup
}

// NewHub creates a hub. Sinks are attached with AddSink before use.
func NewHub(cfg HubConfig, log *zap.Logger, m *metrics.Metrics) *Hub {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.SinkBuffer <= 0 {
		cfg.SinkBuffer = 256
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if cfg.Origin == "" {
		cfg.Origin = uid.New()
	}
	return &Hub{
		cfg:     cfg,
		log:     log.With(zap.String("component", "NotificationHub")),
		metrics: m,
		subs:    make(map[uint64]*Subscription),
	}
}

// Origin returns the instance identifier stamped on local notifications.
func (h *Hub) Origin() string {
	return h.cfg.Origin
}

// AddSink attaches a downstream sink and starts its worker.
func (h *Hub) AddSink(s Sink) {
	w := &sinkWorker{sink: s, queue: make(chan model.Notification, h.cfg.SinkBuffer)}

	h.mu.Lock()
	h.sinks = append(h.sinks, w)
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runSink(w)
	}()
	h.log.Info("sink attached", zap.String("sink", s.Name()))
}

// Subscribe registers a live subscription for identity. The caller must
// Close it when the connection ends.
func (h *Hub) Subscribe(identity model.Identity) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{
		id:       h.nextID,
		identity: identity,
		ch:       make(chan model.Notification, h.cfg.SubscriberBuffer),
		hub:      h,
	}
	if h.closed {
		close(s.ch)
		s.closed = true
		return s
	}
	h.subs[s.id] = s
	h.metrics.Subscribers.Inc()
	return s
}

// Publish stamps n and hands it to eligible subscribers and every sink.
// It never blocks and never fails.
func (h *Hub) Publish(ctx context.Context, n model.Notification) {
	if n.ID == "" {
		n.ID = uid.New()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	if n.Origin == "" {
		n.Origin = h.cfg.Origin
	}
	if n.Target.Kind == "" {
		n.Target = model.Broadcast()
	}

	h.metrics.Notifications.WithLabelValues(string(n.Type)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	h.deliverLocked(n)

	for _, w := range h.sinks {
		select {
		case w.queue <- n:
		default:
			h.log.Warn("sink queue full", zap.Error(&DeliveryError{
				NotificationID: n.ID, Sink: w.sink.Name(), Reason: "queue full",
			}))
		}
	}
}

// Deliver hands n to local subscribers only. It is used for notifications
// relayed from other instances, which already reached the sinks there.
func (h *Hub) Deliver(n model.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.deliverLocked(n)
}

func (h *Hub) deliverLocked(n model.Notification) {
	for _, s := range h.subs {
		if !eligible(s.identity, n.Target) {
			continue
		}
		select {
		case s.ch <- n:
		default:
			h.metrics.DroppedNotifications.Inc()
			h.log.Warn("subscriber queue full", zap.Error(&DeliveryError{
				NotificationID: n.ID, Subscriber: s.id, UserID: s.identity.UserID, Reason: "queue full",
			}))
		}
	}
}

func eligible(id model.Identity, t model.Target) bool {
	switch t.Kind {
	case model.TargetBroadcast:
		return true
	case model.TargetUser:
		return id.UserID == t.UserID
	case model.TargetAdmins:
		return id.Role == model.RoleAdmin
	}
	return false
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and drains the sink workers.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		s.closed = true
		close(s.ch)
		h.metrics.Subscribers.Dec()
	}
	for _, w := range h.sinks {
		close(w.queue)
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.log.Info("hub closed")
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s.id)
	close(s.ch)
	h.metrics.Subscribers.Dec()
}

type sinkWorker struct {
	sink  Sink
	queue chan model.Notification
}

func (h *Hub) runSink(w *sinkWorker) {
	for n := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := w.sink.Deliver(ctx, n); err != nil {
			h.log.Warn("sink delivery failed", zap.Error(&DeliveryError{
				NotificationID: n.ID, Sink: w.sink.Name(), Reason: "sink error", Err: err,
			}))
		}
		cancel()
	}
}

// Subscription is one live receiver. Events are delivered on Events until
// Close is called or the hub shuts down.
type Subscription struct {
	id       uint64
	identity model.Identity
	ch       chan model.Notification
	hub      *Hub
	closed   bool // guarded by hub.mu
}

// ID returns the subscription identifier.
func (s *Subscription) ID() uint64 { return s.id }

// Events returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan model.Notification { return s.ch }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

var _ Publisher = (*Hub)(nil)
