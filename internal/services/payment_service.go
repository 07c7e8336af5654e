package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"

	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/monitoring"
	"raffle-system/utils"
)

// PaymentService opens and reuses provider checkout sessions for pending
// orders. Provider calls go through a per-gateway circuit breaker; local
// uniqueness of active attempts is enforced by the store.
type PaymentService struct {
	store    store.Store
	registry *provider.Registry
	breakers map[string]*utils.CircuitBreaker
}

func NewPaymentService(st store.Store, registry *provider.Registry) *PaymentService {
	breakers := make(map[string]*utils.CircuitBreaker)
	for _, name := range registry.Names() {
		breakers[name] = utils.NewCircuitBreaker(name)
	}
	return &PaymentService{store: st, registry: registry, breakers: breakers}
}

type CreateSessionRequest struct {
	OrderID  string               `json:"order_id"`
	BuyerID  string               `json:"-"`
	Provider string               `json:"provider"`
	Method   models.PaymentMethod `json:"method"`
	Customer provider.Customer    `json:"-"`
}

type Session struct {
	Payment models.Payment `json:"payment"`
	Reused  bool           `json:"reused"`
}

// CreateSession returns an open checkout for the order, reusing the
// active attempt for the same (provider, method) when one exists. A
// provider or method switch supersedes earlier active attempts.
func (s *PaymentService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	if req.OrderID == "" || !req.Method.Valid() {
		return nil, status.ErrInvalidRequest
	}
	gateway, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	order, err := s.store.OrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if req.BuyerID != "" && order.BuyerID != req.BuyerID {
		return nil, status.ErrNotOrderOwner
	}
	// An order past its deadline is already expired as far as buyers are
	// concerned, even if the sweeper hasn't reclaimed it yet.
	if order.EffectiveStatus(time.Now().UTC()) != models.OrderPending {
		return nil, status.ErrOrderNotPending
	}

	existing, err := s.store.ActivePayment(ctx, order.ID, gateway.Name(), req.Method)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		monitoring.TrackPaymentSession(gateway.Name(), "reused")
		return &Session{Payment: *existing, Reused: true}, nil
	}

	raffle, err := s.store.RaffleByID(ctx, order.RaffleID)
	if err != nil {
		return nil, err
	}

	charge := &provider.ChargeRequest{
		OrderID:          order.ID,
		RaffleID:         order.RaffleID,
		BuyerID:          order.BuyerID,
		Description:      raffle.Title,
		AmountCents:      order.AmountCents,
		Method:           req.Method,
		Customer:         req.Customer,
		ExpiresInMinutes: minutesUntil(order.ExpiresAt),
	}

	result, err := utils.Do(s.breakers[gateway.Name()], func() (*provider.ChargeResult, error) {
		return gateway.CreateCharge(ctx, charge)
	})
	if err != nil {
		monitoring.TrackPaymentSession(gateway.Name(), "provider_error")
		if errors.Is(err, utils.ErrCircuitOpen) {
			return nil, status.ErrProviderUnavailable
		}
		return nil, err
	}

	if _, err := s.store.SupersedeActivePayments(ctx, order.ID, gateway.Name(), req.Method); err != nil {
		return nil, err
	}

	payment := models.Payment{
		OrderID:           order.ID,
		Provider:          gateway.Name(),
		Method:            req.Method,
		Status:            result.Status,
		ProviderReference: result.ProviderReference,
		PixQRCode:         result.PixQRCode,
		PixCopyPaste:      result.PixCopyPaste,
		CheckoutURL:       result.CheckoutURL,
		Raw:               types.JSONRaw(result.Raw),
	}
	if result.ExpiresAt != "" {
		if parsed, err := types.ParseDateTime(result.ExpiresAt); err == nil {
			payment.ExpiresAt = parsed
		}
	}

	if err := s.store.InsertPayment(ctx, &payment); err != nil {
		if errors.Is(err, status.ErrDuplicateActivePayment) {
			// A concurrent request for the same combination won the insert
			// race; hand back its attempt instead of failing.
			winner, readErr := s.store.ActivePayment(ctx, order.ID, gateway.Name(), req.Method)
			if readErr == nil && winner != nil {
				monitoring.TrackPaymentSession(gateway.Name(), "reused")
				return &Session{Payment: *winner, Reused: true}, nil
			}
		}
		return nil, err
	}

	monitoring.TrackPaymentSession(gateway.Name(), "created")
	slog.Info("payment session created",
		"order", order.ID, "provider", gateway.Name(), "method", req.Method, "reference", payment.ProviderReference)
	return &Session{Payment: payment}, nil
}

type OrderStatusResult struct {
	Order   models.Order       `json:"order"`
	Status  models.OrderStatus `json:"status"`
	Numbers []int              `json:"numbers"`
	Payment *models.Payment    `json:"payment,omitempty"`
}

// OrderStatus reports the buyer-visible state of an order. Pending orders
// past their deadline read as expired before the sweeper runs.
func (s *PaymentService) OrderStatus(ctx context.Context, orderID, buyerID string) (*OrderStatusResult, error) {
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if buyerID != "" && order.BuyerID != buyerID {
		return nil, status.ErrNotOrderOwner
	}

	numbers, err := s.store.NumbersForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	payment, err := s.store.LatestPayment(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &OrderStatusResult{
		Order:   *order,
		Status:  order.EffectiveStatus(time.Now().UTC()),
		Numbers: numbers,
		Payment: payment,
	}, nil
}

// ActiveCheckout finds the buyer's most recent live order in a raffle
// (pending, so checkout resumes instead of reserving twice, or paid, so
// the UI can show the completed purchase). Expired orders are invisible.
func (s *PaymentService) ActiveCheckout(ctx context.Context, slug, buyerID string) (*OrderStatusResult, error) {
	raffle, err := s.store.RaffleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	order, err := s.store.LatestOrderForBuyer(ctx, raffle.ID, buyerID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.EffectiveStatus(time.Now().UTC()) == models.OrderExpired {
		return nil, nil
	}
	return s.OrderStatus(ctx, order.ID, buyerID)
}

func minutesUntil(deadline types.DateTime) int {
	if deadline.IsZero() {
		return 0
	}
	remaining := time.Until(deadline.Time())
	if remaining <= 0 {
		return 0
	}
	minutes := int(remaining / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
