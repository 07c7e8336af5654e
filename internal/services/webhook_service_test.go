package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/realtime"
	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
)

type captureAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *captureAlerter) Alert(_ context.Context, title string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
}

func (a *captureAlerter) Titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.titles...)
}

func newWebhookFixture(t *testing.T, st *store.Memory) (*WebhookService, *mockGateway, *captureAlerter) {
	t.Helper()
	gateway := &mockGateway{name: "mockpay"}
	alerter := &captureAlerter{}
	pool := NewPoolService(st, nil, 0, 0)
	svc := NewWebhookService(st, provider.NewRegistry(gateway), pool, realtime.NopNotifier{}, alerter)
	return svc, gateway, alerter
}

func paidDelivery(orderID string) *provider.WebhookResult {
	return &provider.WebhookResult{
		OrderID:           orderID,
		ProviderReference: "ref-1",
		Paid:              true,
		Raw:               []byte(`{}`),
	}
}

func eventTypes(st *store.Memory) []string {
	var out []string
	for _, e := range st.PlatformEvents() {
		out = append(out, e.EventType)
	}
	return out
}

func TestReconcileConfirmsPayment(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1, 2, 3}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway, _ := newWebhookFixture(t, st)
	ctx := context.Background()

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(paidDelivery(orderID), nil)

	result, err := svc.Reconcile(ctx, "mockpay", &provider.WebhookRequest{Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)

	order, err := st.OrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	assert.False(t, order.PaidAt.IsZero())

	counts, err := st.CountNumbersByStatus(ctx, "raf-1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Sold)
	assert.Equal(t, 0, counts.Reserved)

	assert.Contains(t, eventTypes(st), "order_paid")
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway, _ := newWebhookFixture(t, st)
	ctx := context.Background()

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(paidDelivery(orderID), nil)

	first, err := svc.Reconcile(ctx, "mockpay", &provider.WebhookRequest{})
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, first.Outcome)

	second, err := svc.Reconcile(ctx, "mockpay", &provider.WebhookRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)

	// Still exactly one sold set; nothing double-applied.
	counts, err := st.CountNumbersByStatus(ctx, "raf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Sold)
	assert.Contains(t, eventTypes(st), "webhook_duplicate")
}

func TestReconcilePaidAfterExpiredIsConflict(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1, 2}, time.Now().UTC().Add(-time.Minute))
	svc, gateway, alerter := newWebhookFixture(t, st)
	ctx := context.Background()

	// The sweeper reclaims the numbers, then the money arrives.
	sweeper := newSweeperFixture(st)
	swept, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept.Expired)

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(paidDelivery(orderID), nil)

	result, err := svc.Reconcile(ctx, "mockpay", &provider.WebhookRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, result.Outcome)

	// The order stays expired and the numbers stay in the pool; the
	// anomaly is recorded and alerted instead of silently reassigned.
	order, err := st.OrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, order.Status)

	counts, err := st.CountNumbersByStatus(ctx, "raf-1")
	require.NoError(t, err)
	assert.Equal(t, 20, counts.Available)

	assert.Contains(t, eventTypes(st), "webhook_conflict")
	assert.NotEmpty(t, alerter.Titles())
}

func TestReconcileNotPaidRecordsFailure(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway, _ := newWebhookFixture(t, st)
	ctx := context.Background()

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(&provider.WebhookResult{
		OrderID:           orderID,
		ProviderReference: "ref-1",
		Paid:              false,
	}, nil)

	result, err := svc.Reconcile(ctx, "mockpay", &provider.WebhookRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailureRecorded, result.Outcome)

	order, err := st.OrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)

	payments := st.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentFailed, payments[0].Status)
	assert.Equal(t, "ref-1", payments[0].ProviderReference)
}

func TestReconcileUnknownOrderIgnored(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	svc, gateway, _ := newWebhookFixture(t, st)

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(paidDelivery("ghost"), nil)

	result, err := svc.Reconcile(context.Background(), "mockpay", &provider.WebhookRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Contains(t, eventTypes(st), "webhook_unknown_order")
}

func TestReconcileRejectsBadSignature(t *testing.T) {
	st := store.NewMemory()
	svc, gateway, _ := newWebhookFixture(t, st)

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(nil, status.ErrWebhookAuth)

	_, err := svc.Reconcile(context.Background(), "mockpay", &provider.WebhookRequest{})
	assert.ErrorIs(t, err, status.ErrWebhookAuth)
}

func TestReconcileUnknownProvider(t *testing.T) {
	st := store.NewMemory()
	svc, _, _ := newWebhookFixture(t, st)

	_, err := svc.Reconcile(context.Background(), "stripe", &provider.WebhookRequest{})
	assert.ErrorIs(t, err, status.ErrUnknownProvider)
}

func TestReconcileRaceOnePaidWins(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1, 2}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway, _ := newWebhookFixture(t, st)

	gateway.On("VerifyWebhook", mock.Anything, mock.Anything).Return(paidDelivery(orderID), nil)

	var wg sync.WaitGroup
	outcomes := make([]WebhookOutcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Reconcile(context.Background(), "mockpay", &provider.WebhookRequest{})
			if err == nil {
				outcomes[i] = result.Outcome
			}
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, outcome := range outcomes {
		switch outcome {
		case OutcomeConfirmed:
			confirmed++
		case OutcomeAlreadyProcessed:
		default:
			t.Fatalf("unexpected outcome %q", outcome)
		}
	}
	assert.Equal(t, 1, confirmed)

	counts, err := st.CountNumbersByStatus(context.Background(), "raf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Sold)
}
