package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/tools/types"

	"raffle-system/internal/realtime"
	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/monitoring"
)

type WebhookOutcome string

const (
	// OutcomeConfirmed: the order transitioned pending -> paid and its
	// numbers were finalized as sold.
	OutcomeConfirmed WebhookOutcome = "confirmed"
	// OutcomeAlreadyProcessed: duplicate delivery for a paid order; no-op.
	OutcomeAlreadyProcessed WebhookOutcome = "already_processed"
	// OutcomeConflict: payment confirmed after the reservation expired and
	// the numbers went back to the pool. Recorded and alerted for manual
	// resolution (refund), never auto-reassigned.
	OutcomeConflict WebhookOutcome = "conflict"
	// OutcomeFailureRecorded: the provider reported a non-paid state; the
	// attempt is recorded, the order stays pending.
	OutcomeFailureRecorded WebhookOutcome = "failure_recorded"
	// OutcomeIgnored: delivery verified but references no known order.
	OutcomeIgnored WebhookOutcome = "ignored"
)

// WebhookService reconciles provider deliveries with the order state
// machine. Confirmation is exactly-once: only the delivery that wins the
// guarded pending -> paid transition finalizes the sale.
type WebhookService struct {
	store    store.Store
	registry *provider.Registry
	pool     *PoolService
	notifier realtime.Notifier
	alerter  monitoring.Alerter
}

func NewWebhookService(st store.Store, registry *provider.Registry, pool *PoolService, notifier realtime.Notifier, alerter monitoring.Alerter) *WebhookService {
	return &WebhookService{
		store:    st,
		registry: registry,
		pool:     pool,
		notifier: notifier,
		alerter:  alerter,
	}
}

type ReconcileResult struct {
	Outcome WebhookOutcome `json:"outcome"`
	OrderID string         `json:"order_id,omitempty"`
}

func (s *WebhookService) Reconcile(ctx context.Context, providerName string, req *provider.WebhookRequest) (*ReconcileResult, error) {
	gateway, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	verified, err := gateway.VerifyWebhook(ctx, req)
	if err != nil {
		monitoring.TrackWebhook(providerName, "rejected")
		return nil, err
	}

	order, err := s.store.OrderByID(ctx, verified.OrderID)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			s.recordEvent(ctx, "webhook_unknown_order", "warn", &models.Order{ID: verified.OrderID}, providerName, verified)
			monitoring.TrackWebhook(providerName, string(OutcomeIgnored))
			return &ReconcileResult{Outcome: OutcomeIgnored, OrderID: verified.OrderID}, nil
		}
		return nil, err
	}

	if !verified.Paid {
		return s.recordFailure(ctx, order, providerName, verified)
	}
	if order.Status == models.OrderPaid {
		s.recordEvent(ctx, "webhook_duplicate", "info", order, providerName, verified)
		monitoring.TrackWebhook(providerName, string(OutcomeAlreadyProcessed))
		return &ReconcileResult{Outcome: OutcomeAlreadyProcessed, OrderID: order.ID}, nil
	}

	return s.confirm(ctx, order, providerName, verified)
}

func (s *WebhookService) confirm(ctx context.Context, order *models.Order, providerName string, verified *provider.WebhookResult) (*ReconcileResult, error) {
	var sold int64
	var numbers []int
	transitioned := false

	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		transitioned, err = tx.TransitionOrder(ctx, order.ID, models.OrderPending, models.OrderPaid)
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		sold, err = tx.MarkNumbersSold(ctx, order.ID, order.BuyerID)
		if err != nil {
			return err
		}
		numbers, err = tx.NumbersForOrder(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !transitioned {
		return s.resolveLostGuard(ctx, order, providerName, verified)
	}

	s.recordEvent(ctx, "order_paid", "info", order, providerName, verified)
	monitoring.TrackWebhook(providerName, string(OutcomeConfirmed))
	monitoring.NumbersSold.Add(float64(sold))
	s.pool.InvalidateStats(ctx, order.RaffleID)
	s.notifier.NotifyNumbers(order.RaffleID, realtime.EventNumbersSold, numbers)
	slog.Info("payment confirmed", "order", order.ID, "provider", providerName, "numbers", sold)

	return &ReconcileResult{Outcome: OutcomeConfirmed, OrderID: order.ID}, nil
}

// resolveLostGuard classifies a failed pending -> paid transition: either
// a concurrent delivery already confirmed, or the sweeper expired the
// order first and real money arrived for released numbers.
func (s *WebhookService) resolveLostGuard(ctx context.Context, order *models.Order, providerName string, verified *provider.WebhookResult) (*ReconcileResult, error) {
	current, err := s.store.OrderByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if current.Status == models.OrderPaid {
		s.recordEvent(ctx, "webhook_duplicate", "info", current, providerName, verified)
		monitoring.TrackWebhook(providerName, string(OutcomeAlreadyProcessed))
		return &ReconcileResult{Outcome: OutcomeAlreadyProcessed, OrderID: order.ID}, nil
	}

	s.recordEvent(ctx, "webhook_conflict", "error", current, providerName, verified)
	s.alerter.Alert(ctx, "payment received for expired reservation", map[string]any{
		"order":     order.ID,
		"raffle":    order.RaffleID,
		"provider":  providerName,
		"reference": verified.ProviderReference,
		"status":    string(current.Status),
	})
	monitoring.TrackWebhook(providerName, string(OutcomeConflict))
	slog.Error("webhook conflict: paid after release",
		"order", order.ID, "provider", providerName, "status", current.Status)

	return &ReconcileResult{Outcome: OutcomeConflict, OrderID: order.ID}, nil
}

func (s *WebhookService) recordFailure(ctx context.Context, order *models.Order, providerName string, verified *provider.WebhookResult) (*ReconcileResult, error) {
	payment := &models.Payment{
		OrderID:           order.ID,
		Provider:          providerName,
		Method:            models.MethodPix,
		Status:            models.PaymentFailed,
		ProviderReference: verified.ProviderReference,
		Raw:               types.JSONRaw(verified.Raw),
	}
	if latest, err := s.store.LatestPayment(ctx, order.ID); err == nil && latest != nil {
		payment.Method = latest.Method
	}
	if err := s.store.InsertPayment(ctx, payment); err != nil {
		slog.Error("failed attempt not recorded", "order", order.ID, "error", err)
	}

	s.recordEvent(ctx, "webhook_not_paid", "info", order, providerName, verified)
	monitoring.TrackWebhook(providerName, string(OutcomeFailureRecorded))
	return &ReconcileResult{Outcome: OutcomeFailureRecorded, OrderID: order.ID}, nil
}

func (s *WebhookService) recordEvent(ctx context.Context, eventType, level string, order *models.Order, providerName string, verified *provider.WebhookResult) {
	event := &models.PlatformEvent{
		EventType: eventType,
		Level:     level,
		OrderID:   order.ID,
		RaffleID:  order.RaffleID,
		Provider:  providerName,
		Payload:   types.JSONRaw(fmt.Appendf(nil, `{"reference":%q}`, verified.ProviderReference)),
	}
	if err := s.store.InsertPlatformEvent(ctx, event); err != nil {
		slog.Error("platform event not recorded", "type", eventType, "order", order.ID, "error", err)
	}
}
