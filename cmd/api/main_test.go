package main

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/notify"
)

type slowSink struct {
	mu  sync.Mutex
	got int
}

func (s *slowSink) Name() string { return "slow" }

func (s *slowSink) Deliver(ctx context.Context, n model.Notification) error {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	s.got++
	s.mu.Unlock()
	return nil
}

func (s *slowSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got
}

func newHubWithBacklog(t *testing.T, n int) (*notify.Hub, *slowSink) {
	t.Helper()
	hub := notify.NewHub(notify.HubConfig{Origin: "test"}, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	sink := &slowSink{}
	hub.AddSink(sink)
	for i := 0; i < n; i++ {
		hub.Publish(context.Background(), model.Notification{Message: "queued"})
	}
	return hub, sink
}

func TestServeDrainsHubWhenListenFails(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	hub, sink := newHubWithBacklog(t, 5)
	srv := &http.Server{Addr: taken.Addr().String(), Handler: http.NotFoundHandler()}

	err = serve(context.Background(), zap.NewNop(), srv, hub, time.Second)
	assert.Error(t, err)
	assert.Equal(t, 5, sink.count(), "queued notifications reach the sink before serve returns")
}

func TestServeDrainsHubOnShutdown(t *testing.T) {
	hub, sink := newHubWithBacklog(t, 3)
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := serve(ctx, zap.NewNop(), srv, hub, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 3, sink.count())
}
