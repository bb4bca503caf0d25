package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"stockledger-api/internal/model"
)

func TestDriftScannerRunNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanner := NewDriftScanner(f.store, f.notes, f.metrics, zaptest.NewLogger(t), DriftScanConfig{})

	item := f.item(t, f.main, "Fuses", 2)
	f.notes.reset()

	drift, err := scanner.RunNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
	assert.Empty(t, f.notes.events())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.DriftItems))

	_, err = f.engine.Issue(ctx, f.employee, IssueInput{ItemID: item.ID, Quantity: 5, Recipient: "r"})
	require.NoError(t, err)
	f.notes.reset()

	drift, err = scanner.RunNow(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, int64(3), drift[0].Drift)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DriftItems))

	alerts := f.notes.find("ledger.drift")
	require.Len(t, alerts, 1)
	assert.Equal(t, model.NotifyInfo, alerts[0].Type, "positive drift is the expected result of clamping")
	assert.Equal(t, model.ToAdmins(), alerts[0].Target)

	// A decrease that bypassed the ledger shows up as negative drift.
	other := f.item(t, f.main, "Relays", 5)
	_, err = f.store.ApplyDelta(ctx, other.ID, -2)
	require.NoError(t, err)
	f.notes.reset()

	drift, err = scanner.RunNow(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 2)
	byItem := map[int64]int64{}
	for _, d := range drift {
		byItem[d.ItemID] = d.Drift
	}
	assert.Equal(t, int64(3), byItem[item.ID])
	assert.Equal(t, int64(-2), byItem[other.ID])
	alerts = f.notes.find("ledger.drift")
	require.Len(t, alerts, 1)
	assert.Equal(t, model.NotifyWarning, alerts[0].Type)
	assert.Contains(t, alerts[0].Details, "Relays")
	assert.NotContains(t, alerts[0].Details, "Fuses")
}

func TestDriftScannerStartStop(t *testing.T) {
	f := newFixture(t)
	scanner := NewDriftScanner(f.store, f.notes, f.metrics, zap.NewNop(), DriftScanConfig{})
	scanner.Start()
	scanner.Start()
	scanner.Stop()
	scanner.Stop()
}
