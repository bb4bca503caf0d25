package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/notify"
	"stockledger-api/internal/repository"
)

// DriftScanConfig holds configuration for the drift scan scheduler.
type DriftScanConfig struct {
	// Interval is how often the scan runs. Default: 1 hour
	Interval time.Duration

	// InitialDelay is the wait before the first scan after Start.
	InitialDelay time.Duration

	// Timeout bounds a single scan.
	Timeout time.Duration
}

// DriftScanner periodically compares item quantities with the sum of their
// ledger deltas and warns admins about items that differ. Drift is expected
// after clamped decreases; a negative drift means the ledger and the
// quantity store disagree for another reason.
type DriftScanner struct {
	store    repository.ReportRepository
	notifier notify.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	config   DriftScanConfig

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewDriftScanner creates a new drift scanner.
func NewDriftScanner(store repository.ReportRepository, notifier notify.Publisher, m *metrics.Metrics, log *zap.Logger, config DriftScanConfig) *DriftScanner {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	return &DriftScanner{
		store:    store,
		notifier: notifier,
		metrics:  m,
		log:      log.With(zap.String("component", "DriftScanner")),
		config:   config,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scan loop.
func (s *DriftScanner) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info("started", zap.Duration("interval", s.config.Interval))

	go func() {
		select {
		case <-time.After(s.config.InitialDelay):
			s.scan()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *DriftScanner) run() {
	for {
		select {
		case <-s.ticker.C:
			s.scan()
		case <-s.stopCh:
			s.log.Info("stopped")
			return
		}
	}
}

func (s *DriftScanner) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.log.Error("drift scan failed", zap.Error(err))
	}
}

// RunNow performs a scan immediately and returns the drifted items.
func (s *DriftScanner) RunNow(ctx context.Context) ([]model.ItemDrift, error) {
	drift, err := s.store.LedgerDrift(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ledger drift: %w", err)
	}
	s.metrics.DriftItems.Set(float64(len(drift)))

	if len(drift) == 0 {
		s.log.Debug("no drift found")
		return drift, nil
	}

	var negative []string
	for _, d := range drift {
		if d.Drift < 0 {
			negative = append(negative, fmt.Sprintf("%s (#%d): %d", d.ItemName, d.ItemID, d.Drift))
		}
	}
	s.log.Info("drift scan complete", zap.Int("drifted_items", len(drift)), zap.Int("negative", len(negative)))

	n := model.Notification{
		Type:    model.NotifyInfo,
		Event:   "ledger.drift",
		Message: fmt.Sprintf("%d item(s) differ from their ledger history", len(drift)),
		Target:  model.ToAdmins(),
	}
	if len(negative) > 0 {
		n.Type = model.NotifyWarning
		n.Details = "negative drift: " + strings.Join(negative, ", ")
		s.log.Warn("negative drift found", zap.Strings("items", negative))
	}
	s.notifier.Publish(ctx, n)
	return drift, nil
}

// Stop stops the scheduler.
func (s *DriftScanner) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
