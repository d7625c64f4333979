package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// counterValue はレジストリから指定ラベルのカウンター値を取得
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.observeReservation(ChannelPOS, "primary", time.Millisecond)
		m.observeCommit("committed", time.Millisecond)
		m.observeTransfer(MovementTypeRestock, 3)
	})
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

// TestMetrics_CoordinatorOutcome は予約結果ごとのカウンターのテスト
func TestMetrics_CoordinatorOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	ledger := new(MockLedger)
	ctx := context.Background()
	logger := zap.NewNop()
	coordinator := NewCoordinator(NewSelector(ledger, ledger, logger, nil), ledger, nil, metrics, logger, nil)
	setupStoreOnly(ctx, ledger)

	_, err = coordinator.Reserve(ctx, SmartRequest{ItemCode: "SKU9", Quantity: 2, Channel: ChannelPOS})
	require.NoError(t, err)
	_, err = coordinator.Reserve(ctx, SmartRequest{ItemCode: "SKU9", Quantity: 3, Channel: ChannelPOS})
	require.Error(t, err)

	assert.Equal(t, float64(1), counterValue(t, reg, "stock_reservations_total", map[string]string{"channel": "POS", "outcome": "primary"}))
	assert.Equal(t, float64(1), counterValue(t, reg, "stock_reservations_total", map[string]string{"channel": "POS", "outcome": "approval_required"}))

	metrics.observeTransfer(MovementTypeTransfer, 4)
	metrics.observeTransfer(MovementTypeTransfer, 0)
	assert.Equal(t, float64(4), counterValue(t, reg, "stock_transferred_units_total", map[string]string{"type": "transfer"}))
}
