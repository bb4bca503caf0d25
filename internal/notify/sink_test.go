package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockledger-api/internal/metrics"
	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkDeliver(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	n := model.Notification{ID: "n1", Event: "transaction.issue", Message: "Issued 3"}
	require.NoError(t, sink.Deliver(context.Background(), n))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "transaction.issue", string(w.msgs[0].Key))

	var decoded model.Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "n1", decoded.ID)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestHeaderCarrier(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}

	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("baggage", "k=v")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"traceparent", "baggage"}, c.Keys())
	assert.Len(t, msg.Headers, 2)
}

type memoryArchive struct {
	stored []model.Notification
}

func (m *memoryArchive) InsertNotification(ctx context.Context, n *model.Notification) error {
	m.stored = append(m.stored, *n)
	return nil
}

func (m *memoryArchive) ListNotifications(ctx context.Context, f repository.ArchiveFilter) ([]model.Notification, int64, error) {
	return m.stored, int64(len(m.stored)), nil
}

func (m *memoryArchive) Close() error { return nil }

func TestArchiveSink(t *testing.T) {
	archive := &memoryArchive{}
	h := NewHub(HubConfig{Origin: "a"}, zaptest.NewLogger(t), metrics.New(prometheus.NewRegistry()))
	h.AddSink(NewArchiveSink(archive))

	h.Publish(context.Background(), model.Notification{Type: model.NotifyWarning, Message: "low stock"})
	h.Close()

	require.Len(t, archive.stored, 1)
	assert.Equal(t, "low stock", archive.stored[0].Message)
	assert.Equal(t, "a", archive.stored[0].Origin)
}

func TestRelayDecode(t *testing.T) {
	h := NewHub(HubConfig{Origin: "local"}, zaptest.NewLogger(t), metrics.New(prometheus.NewRegistry()))
	defer h.Close()
	r := &RedisRelay{hub: h, log: zaptest.NewLogger(t)}

	remote, _ := json.Marshal(model.Notification{ID: "r", Origin: "remote"})
	own, _ := json.Marshal(model.Notification{ID: "o", Origin: "local"})

	n, ok := r.decode(string(remote))
	assert.True(t, ok)
	assert.Equal(t, "r", n.ID)

	_, ok = r.decode(string(own))
	assert.False(t, ok, "own messages are not relayed back")

	_, ok = r.decode("{not json")
	assert.False(t, ok)

	// Relayed notifications are not re-published.
	assert.NoError(t, r.Deliver(context.Background(), model.Notification{Origin: "remote"}))
}
