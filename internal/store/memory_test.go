package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/status"
	"raffle-system/models"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	st := NewMemory()
	st.AddRaffle(models.Raffle{
		ID:           "raf-1",
		Slug:         "test",
		Status:       models.RaffleActive,
		TotalNumbers: 10,
		PriceCents:   100,
	})
	return st
}

func TestTransactionRollsBackOnError(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.RunInTransaction(ctx, func(tx Store) error {
		order := &models.Order{RaffleID: "raf-1", BuyerID: "b", Status: models.OrderPending}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if _, err := tx.ClaimNumbers(ctx, "raf-1", order.ID, []int{1, 2}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	counts, err := st.CountNumbersByStatus(ctx, "raf-1")
	require.NoError(t, err)
	assert.Equal(t, 10, counts.Available)
}

func TestTransactionCommits(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	var orderID string
	err := st.RunInTransaction(ctx, func(tx Store) error {
		order := &models.Order{RaffleID: "raf-1", BuyerID: "b", Status: models.OrderPending}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		orderID = order.ID
		claimed, err := tx.ClaimNumbers(ctx, "raf-1", order.ID, []int{1, 2})
		if err != nil {
			return err
		}
		require.Equal(t, int64(2), claimed)
		return nil
	})
	require.NoError(t, err)

	numbers, err := st.NumbersForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, numbers)
}

func TestClaimNumbersSkipsTaken(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	claimed, err := st.ClaimNumbers(ctx, "raf-1", "order-a", []int{3, 4})
	require.NoError(t, err)
	require.Equal(t, int64(2), claimed)

	claimed, err = st.ClaimNumbers(ctx, "raf-1", "order-b", []int{4, 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), claimed)
}

func TestTransitionOrderGuard(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	order := &models.Order{RaffleID: "raf-1", BuyerID: "b", Status: models.OrderPending}
	require.NoError(t, st.InsertOrder(ctx, order))

	ok, err := st.TransitionOrder(ctx, order.ID, models.OrderPending, models.OrderPaid)
	require.NoError(t, err)
	assert.True(t, ok)

	// Guard fails quietly once the row moved on.
	ok, err = st.TransitionOrder(ctx, order.ID, models.OrderPending, models.OrderExpired)
	require.NoError(t, err)
	assert.False(t, ok)

	// Illegal transitions are an error, not a silent miss.
	_, err = st.TransitionOrder(ctx, order.ID, models.OrderPaid, models.OrderPending)
	assert.Error(t, err)
}

func TestActivePaymentUniqueness(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	first := &models.Payment{OrderID: "o1", Provider: "mp", Method: models.MethodPix, Status: models.PaymentPending}
	require.NoError(t, st.InsertPayment(ctx, first))

	dup := &models.Payment{OrderID: "o1", Provider: "mp", Method: models.MethodPix, Status: models.PaymentPending}
	err := st.InsertPayment(ctx, dup)
	assert.ErrorIs(t, err, status.ErrDuplicateActivePayment)

	// A failed attempt or another method doesn't collide.
	require.NoError(t, st.InsertPayment(ctx, &models.Payment{
		OrderID: "o1", Provider: "mp", Method: models.MethodPix, Status: models.PaymentFailed,
	}))
	require.NoError(t, st.InsertPayment(ctx, &models.Payment{
		OrderID: "o1", Provider: "mp", Method: models.MethodCard, Status: models.PaymentPending,
	}))
}

func TestReleaseAndMarkSold(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	_, err := st.ClaimNumbers(ctx, "raf-1", "order-a", []int{1, 2, 3})
	require.NoError(t, err)

	sold, err := st.MarkNumbersSold(ctx, "order-a", "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sold)

	// Sold numbers are out of reach for release.
	released, err := st.ReleaseNumbersForOrder(ctx, "order-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)

	counts, err := st.CountNumbersByStatus(ctx, "raf-1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Sold)
}

func TestDuePendingOrdersOrdering(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(offset time.Duration) string {
		deadline, err := types.ParseDateTime(now.Add(offset))
		require.NoError(t, err)
		order := &models.Order{RaffleID: "raf-1", BuyerID: "b", Status: models.OrderPending, ExpiresAt: deadline}
		require.NoError(t, st.InsertOrder(ctx, order))
		return order.ID
	}

	oldest := mk(-3 * time.Minute)
	middle := mk(-2 * time.Minute)
	mk(5 * time.Minute) // not due

	due, err := st.DuePendingOrders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, oldest, due[0].ID)
	assert.Equal(t, middle, due[1].ID)

	due, err = st.DuePendingOrders(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, oldest, due[0].ID)
}

func TestRandomAvailableNumbersExcludes(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	_, err := st.ClaimNumbers(ctx, "raf-1", "order-a", []int{0, 1, 2, 3, 4})
	require.NoError(t, err)

	numbers, err := st.RandomAvailableNumbers(ctx, "raf-1", 10, []int{5, 6})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{7, 8, 9}, numbers)
}

func TestSentinelSemantics(t *testing.T) {
	st := newTestMemory(t)
	ctx := context.Background()

	_, err := st.RaffleBySlug(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrRaffleNotFound)

	_, err = st.OrderByID(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrOrderNotFound)

	payment, err := st.LatestPayment(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, payment)

	affiliate, err := st.AffiliateByCode(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, affiliate)

	order, err := st.LatestOrderForBuyer(ctx, "raf-1", "missing")
	require.NoError(t, err)
	assert.Nil(t, order)
}
