package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListLowStockSubjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.seedProduct(t, "SKU-P", 34, 5)
	q := env.seedProduct(t, "SKU-Q", 3, 10)
	env.seedProduct(t, "SKU-ZERO", 0, 10)
	env.seedProduct(t, "SKU-PLENTY", 50, 10)
	env.seedProductInStore(t, uuid.New(), "SKU-OTHER", 1, 10)
	parent := env.seedProduct(t, "SKU-PARENT", 40, 5)
	v := env.seedVariant(t, parent, "SKU-V", 2, 4)

	order := uuid.New()
	_, err := env.svc.ReserveForOrder(ctx, order, []ReserveItemInput{{Subject: p, Quantity: 30}}, ReserveOptions{})
	require.NoError(t, err)
	_, err = env.svc.ConfirmOrderReservations(ctx, order)
	require.NoError(t, err)

	rows, err := env.svc.ListLowStockSubjects(ctx, env.storeID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, v.ID, rows[0].SubjectID)
	assert.Equal(t, "Product SKU-PARENT - Variant SKU-V", rows[0].Name)
	assert.Equal(t, parent.ID, rows[0].ProductID)
	assert.Nil(t, rows[0].EstimatedDaysUntilStockout)

	assert.Equal(t, q.ID, rows[1].SubjectID)
	assert.Equal(t, 3, rows[1].CurrentStock)
	assert.Nil(t, rows[1].EstimatedDaysUntilStockout, "no consumption means no estimate")

	assert.Equal(t, p.ID, rows[2].SubjectID)
	assert.Equal(t, 4, rows[2].CurrentStock)
	require.NotNil(t, rows[2].EstimatedDaysUntilStockout)
	assert.Equal(t, 4, *rows[2].EstimatedDaysUntilStockout)
}

func TestEstimateDaysUntilStockout(t *testing.T) {
	days := func(n int) *int { return &n }
	cases := []struct {
		stock, consumed, window int
		want                    *int
	}{
		{stock: 4, consumed: 30, window: 30, want: days(4)},
		{stock: 10, consumed: 7, window: 30, want: days(42)},
		{stock: 1, consumed: 90, window: 30, want: days(0)},
		{stock: 5, consumed: 0, window: 30},
		{stock: 5, consumed: 10, window: 0},
	}
	for _, tc := range cases {
		got := EstimateDaysUntilStockout(tc.stock, tc.consumed, tc.window)
		if tc.want == nil {
			assert.Nil(t, got)
			continue
		}
		require.NotNil(t, got)
		assert.Equal(t, *tc.want, *got)
	}
}

func TestListLowStockRequiresStore(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ListLowStockSubjects(context.Background(), uuid.Nil)
	assert.Error(t, err)
}
