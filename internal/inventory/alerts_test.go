package inventory

import (
	"context"
	"testing"

	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAlertBands(t *testing.T) {
	cases := []struct {
		onHand, threshold int
		raise, resolve    bool
	}{
		{onHand: 0, threshold: 5},
		{onHand: 1, threshold: 5, raise: true},
		{onHand: 5, threshold: 5, raise: true},
		{onHand: 6, threshold: 5, resolve: true},
		{onHand: 0, threshold: 0},
		{onHand: 1, threshold: 0, resolve: true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.raise, ShouldRaise(tc.onHand, tc.threshold), "raise(%d,%d)", tc.onHand, tc.threshold)
		assert.Equal(t, tc.resolve, ShouldResolve(tc.onHand, tc.threshold), "resolve(%d,%d)", tc.onHand, tc.threshold)
	}
}

func TestAlertMonitorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ref := env.seedProduct(t, "SKU-AL", 0, 5)
	monitor := env.engine.alerts
	ctx := context.Background()

	evaluate := func(level StockLevel) bool {
		t.Helper()
		var raised bool
		require.NoError(t, env.client.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			raised, err = monitor.Evaluate(ctx, tx, ref, level)
			return err
		}))
		return raised
	}

	assert.True(t, evaluate(StockLevel{OnHand: 4, Threshold: 5}))
	assert.False(t, evaluate(StockLevel{OnHand: 3, Threshold: 5}), "active alert is refreshed, not raised again")

	active := env.alerts(t, ref, enums.AlertStatusActive)
	require.Len(t, active, 1)
	assert.Equal(t, 3, active[0].CurrentStock)
	assert.EqualValues(t, 1, env.countEvents(t, enums.EventStockLow))

	assert.False(t, evaluate(StockLevel{OnHand: 9, Threshold: 5}))
	assert.Empty(t, env.alerts(t, ref, enums.AlertStatusActive))
	resolved := env.alerts(t, ref, enums.AlertStatusResolved)
	require.Len(t, resolved, 1)
	assert.NotNil(t, resolved[0].ResolvedAt)
	assert.EqualValues(t, 1, env.countEvents(t, enums.EventStockAlertResolved))

	assert.False(t, evaluate(StockLevel{OnHand: 10, Threshold: 5}), "resolving twice is a no-op")
	assert.EqualValues(t, 1, env.countEvents(t, enums.EventStockAlertResolved))

	assert.True(t, evaluate(StockLevel{OnHand: 2, Threshold: 5}), "a fresh dip opens a new alert")
	assert.Len(t, env.alerts(t, ref, enums.AlertStatusActive), 1)
}
