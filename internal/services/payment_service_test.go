package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
)

type mockGateway struct {
	mock.Mock
	name string
}

func (m *mockGateway) Name() string { return m.name }

func (m *mockGateway) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChargeResult), args.Error(1)
}

func (m *mockGateway) VerifyWebhook(ctx context.Context, req *provider.WebhookRequest) (*provider.WebhookResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.WebhookResult), args.Error(1)
}

func pixChargeResult(reference string) *provider.ChargeResult {
	return &provider.ChargeResult{
		ProviderReference: reference,
		Status:            models.PaymentPending,
		PixQRCode:         "aW1hZ2U=",
		PixCopyPaste:      "00020126pix",
	}
}

func newPaymentFixture(t *testing.T, st *store.Memory) (*PaymentService, *mockGateway) {
	t.Helper()
	gateway := &mockGateway{name: "mockpay"}
	svc := NewPaymentService(st, provider.NewRegistry(gateway))
	return svc, gateway
}

func TestCreateSession(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1, 2}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway := newPaymentFixture(t, st)

	gateway.On("CreateCharge", mock.Anything, mock.MatchedBy(func(req *provider.ChargeRequest) bool {
		return req.OrderID == orderID && req.AmountCents == 1000 && req.Method == models.MethodPix
	})).Return(pixChargeResult("ref-1"), nil)

	session, err := svc.CreateSession(context.Background(), &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodPix,
	})

	require.NoError(t, err)
	assert.False(t, session.Reused)
	assert.Equal(t, "ref-1", session.Payment.ProviderReference)
	assert.Equal(t, models.PaymentPending, session.Payment.Status)
	assert.Equal(t, "00020126pix", session.Payment.PixCopyPaste)
	gateway.AssertExpectations(t)
}

func TestCreateSessionReusesActiveAttempt(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway := newPaymentFixture(t, st)

	gateway.On("CreateCharge", mock.Anything, mock.Anything).Return(pixChargeResult("ref-1"), nil).Once()

	req := &CreateSessionRequest{OrderID: orderID, BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodPix}

	first, err := svc.CreateSession(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Reused)

	second, err := svc.CreateSession(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Payment.ProviderReference, second.Payment.ProviderReference)
	gateway.AssertNumberOfCalls(t, "CreateCharge", 1)
}

func TestCreateSessionMethodSwitchSupersedes(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway := newPaymentFixture(t, st)

	gateway.On("CreateCharge", mock.Anything, mock.MatchedBy(func(req *provider.ChargeRequest) bool {
		return req.Method == models.MethodPix
	})).Return(pixChargeResult("ref-pix"), nil)
	gateway.On("CreateCharge", mock.Anything, mock.MatchedBy(func(req *provider.ChargeRequest) bool {
		return req.Method == models.MethodCard
	})).Return(&provider.ChargeResult{
		ProviderReference: "ref-card",
		Status:            models.PaymentInitiated,
		CheckoutURL:       "https://pay.example/ref-card",
	}, nil)

	_, err := svc.CreateSession(context.Background(), &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodPix,
	})
	require.NoError(t, err)

	session, err := svc.CreateSession(context.Background(), &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-card", session.Payment.ProviderReference)

	// The pix attempt is no longer active.
	active, err := st.ActivePayment(context.Background(), orderID, "mockpay", models.MethodPix)
	require.NoError(t, err)
	assert.Nil(t, active)

	var failed int
	for _, p := range st.Payments() {
		if p.Status == models.PaymentFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestCreateSessionRefusesNonPendingOrders(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	ctx := context.Background()
	svc, _ := newPaymentFixture(t, st)

	expiredID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(-time.Minute))
	_, err := svc.CreateSession(ctx, &CreateSessionRequest{
		OrderID: expiredID, BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodPix,
	})
	assert.ErrorIs(t, err, status.ErrOrderNotPending)

	paidID := insertOrderWithNumbers(t, st, "raf-1", "buyer-2", []int{2}, time.Now().UTC().Add(15*time.Minute))
	_, err = st.TransitionOrder(ctx, paidID, models.OrderPending, models.OrderPaid)
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, &CreateSessionRequest{
		OrderID: paidID, BuyerID: "buyer-2", Provider: "mockpay", Method: models.MethodPix,
	})
	assert.ErrorIs(t, err, status.ErrOrderNotPending)
}

func TestCreateSessionOwnershipAndProviderChecks(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(15*time.Minute))
	svc, _ := newPaymentFixture(t, st)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-2", Provider: "mockpay", Method: models.MethodPix,
	})
	assert.ErrorIs(t, err, status.ErrNotOrderOwner)

	_, err = svc.CreateSession(ctx, &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-1", Provider: "nope", Method: models.MethodPix,
	})
	assert.ErrorIs(t, err, status.ErrUnknownProvider)

	_, err = svc.CreateSession(ctx, &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-1", Provider: "mockpay", Method: "boleto",
	})
	assert.ErrorIs(t, err, status.ErrInvalidRequest)

	_, err = svc.CreateSession(ctx, &CreateSessionRequest{
		OrderID: "missing", BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodPix,
	})
	assert.ErrorIs(t, err, status.ErrOrderNotFound)
}

func TestCreateSessionProviderFailureLeavesNoAttempt(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1}, time.Now().UTC().Add(15*time.Minute))
	svc, gateway := newPaymentFixture(t, st)

	gateway.On("CreateCharge", mock.Anything, mock.Anything).Return(nil, status.ErrProviderUnavailable)

	_, err := svc.CreateSession(context.Background(), &CreateSessionRequest{
		OrderID: orderID, BuyerID: "buyer-1", Provider: "mockpay", Method: models.MethodPix,
	})
	assert.ErrorIs(t, err, status.ErrProviderUnavailable)
	assert.Empty(t, st.Payments())
}

func TestOrderStatusReadsExpiredPastDeadline(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{3, 4}, time.Now().UTC().Add(-time.Minute))
	svc, _ := newPaymentFixture(t, st)

	result, err := svc.OrderStatus(context.Background(), orderID, "buyer-1")
	require.NoError(t, err)
	// The sweeper hasn't run, but the buyer already sees it as expired.
	assert.Equal(t, models.OrderExpired, result.Status)
	assert.Equal(t, models.OrderPending, result.Order.Status)
	assert.ElementsMatch(t, []int{3, 4}, result.Numbers)
}

func TestActiveCheckout(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	svc, _ := newPaymentFixture(t, st)
	ctx := context.Background()

	result, err := svc.ActiveCheckout(ctx, "dream-car", "buyer-1")
	require.NoError(t, err)
	assert.Nil(t, result)

	orderID := insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1, 2}, time.Now().UTC().Add(15*time.Minute))

	result, err = svc.ActiveCheckout(ctx, "dream-car", "buyer-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, orderID, result.Order.ID)
	assert.Equal(t, models.OrderPending, result.Status)

	// Other buyers never see it.
	result, err = svc.ActiveCheckout(ctx, "dream-car", "buyer-2")
	require.NoError(t, err)
	assert.Nil(t, result)

	// A paid order is still surfaced so the buyer lands on the receipt.
	moved, err := st.TransitionOrder(ctx, orderID, models.OrderPending, models.OrderPaid)
	require.NoError(t, err)
	require.True(t, moved)

	result, err = svc.ActiveCheckout(ctx, "dream-car", "buyer-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.OrderPaid, result.Status)
}

func TestActiveCheckoutHidesExpired(t *testing.T) {
	st := store.NewMemory()
	seedRaffle(st, 20, 0)
	insertOrderWithNumbers(t, st, "raf-1", "buyer-1", []int{1, 2}, time.Now().UTC().Add(-time.Minute))
	svc, _ := newPaymentFixture(t, st)

	result, err := svc.ActiveCheckout(context.Background(), "dream-car", "buyer-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}
