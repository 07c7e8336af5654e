package models

import (
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberStatusTransitions(t *testing.T) {
	assert.True(t, NumberAvailable.CanTransitionTo(NumberReserved))
	assert.False(t, NumberAvailable.CanTransitionTo(NumberSold))

	assert.True(t, NumberReserved.CanTransitionTo(NumberSold))
	assert.True(t, NumberReserved.CanTransitionTo(NumberAvailable))

	assert.False(t, NumberSold.CanTransitionTo(NumberAvailable))
	assert.False(t, NumberSold.CanTransitionTo(NumberReserved))
}

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderPending.CanTransitionTo(OrderPaid))
	assert.True(t, OrderPending.CanTransitionTo(OrderExpired))
	assert.True(t, OrderPending.CanTransitionTo(OrderCanceled))

	for _, terminal := range []OrderStatus{OrderPaid, OrderExpired, OrderCanceled} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransitionTo(OrderPending))
		assert.False(t, terminal.CanTransitionTo(OrderPaid))
	}
	assert.False(t, OrderPending.Terminal())
}

func TestOrderDueAndEffectiveStatus(t *testing.T) {
	now := time.Now().UTC()

	past, err := types.ParseDateTime(now.Add(-time.Minute))
	require.NoError(t, err)
	future, err := types.ParseDateTime(now.Add(time.Minute))
	require.NoError(t, err)

	overdue := Order{Status: OrderPending, ExpiresAt: past}
	assert.True(t, overdue.Due(now))
	assert.Equal(t, OrderExpired, overdue.EffectiveStatus(now))

	fresh := Order{Status: OrderPending, ExpiresAt: future}
	assert.False(t, fresh.Due(now))
	assert.Equal(t, OrderPending, fresh.EffectiveStatus(now))

	// A paid order past its deadline is not due; money settled in time.
	paid := Order{Status: OrderPaid, ExpiresAt: past}
	assert.False(t, paid.Due(now))
	assert.Equal(t, OrderPaid, paid.EffectiveStatus(now))
}

func TestPaymentStatusActive(t *testing.T) {
	assert.True(t, PaymentPending.Active())
	assert.True(t, PaymentInitiated.Active())
	assert.False(t, PaymentFailed.Active())
}

func TestPaymentMethodValid(t *testing.T) {
	assert.True(t, MethodPix.Valid())
	assert.True(t, MethodCard.Valid())
	assert.False(t, PaymentMethod("boleto").Valid())
}

func TestPoolCountsTotal(t *testing.T) {
	counts := PoolCounts{Available: 7, Reserved: 2, Sold: 1}
	assert.Equal(t, 10, counts.Total())
}
