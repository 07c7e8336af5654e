// Package stripe implements the Stripe gateway: hosted Checkout sessions
// for both PIX and card, with signed-event webhook verification.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/models"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL reroutes API calls to another server, for tests. Empty
	// means the live API.
	BaseURL string
	// SuccessURL and CancelURL are where Checkout sends the buyer back.
	SuccessURL string
	CancelURL  string
}

type Client struct {
	cfg Config
	api *client.API
}

func New(cfg Config) *Client {
	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 10 * time.Second},
		MaxNetworkRetries: stripeapi.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripeapi.String(cfg.BaseURL)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{cfg: cfg, api: api}
}

func (c *Client) Name() string { return "stripe" }

// CreateCharge opens a hosted Checkout session. Stripe fronts both
// methods with the same redirect flow, so the result always carries a
// checkout URL rather than an inline QR payload.
func (c *Client) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	var methodTypes []string
	switch req.Method {
	case models.MethodPix:
		methodTypes = []string{"pix"}
	case models.MethodCard:
		methodTypes = []string{"card"}
	default:
		return nil, status.ErrInvalidRequest
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice(methodTypes),
		ClientReferenceID:  stripeapi.String(req.OrderID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{{
			Quantity: stripeapi.Int64(1),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String("brl"),
				UnitAmount: stripeapi.Int64(req.AmountCents),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(req.Description),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("raffle_id", req.RaffleID)
	if c.cfg.SuccessURL != "" {
		params.SuccessURL = stripeapi.String(c.cfg.SuccessURL)
	}
	if c.cfg.CancelURL != "" {
		params.CancelURL = stripeapi.String(c.cfg.CancelURL)
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripeapi.String(req.Customer.Email)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < http.StatusInternalServerError {
			slog.Error("stripe rejected checkout session", "order", req.OrderID, "error", err)
			return nil, fmt.Errorf("stripe: create checkout session: %w", err)
		}
		slog.Error("stripe create checkout session failed", "order", req.OrderID, "error", err)
		return nil, status.ErrProviderUnavailable
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("stripe: encode session: %w", err)
	}

	result := &provider.ChargeResult{
		ProviderReference: session.ID,
		Status:            models.PaymentInitiated,
		CheckoutURL:       session.URL,
		Raw:               raw,
	}
	if session.ExpiresAt > 0 {
		result.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}
	return result, nil
}

var paidEvents = map[string]bool{
	"checkout.session.completed": true,
	"payment_intent.succeeded":   true,
	"charge.succeeded":           true,
}

// VerifyWebhook validates the Stripe-Signature header and pulls the order
// id out of the event's metadata or client reference.
func (c *Client) VerifyWebhook(_ context.Context, req *provider.WebhookRequest) (*provider.WebhookResult, error) {
	signature := req.Header("stripe-signature")
	if c.cfg.WebhookSecret == "" || signature == "" {
		return nil, status.ErrWebhookAuth
	}

	event, err := webhook.ConstructEventWithOptions(req.Body, signature, c.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, status.ErrWebhookAuth
	}

	orderID := orderIDFromEvent(event)
	if orderID == "" {
		return nil, status.ErrWebhookAuth
	}

	return &provider.WebhookResult{
		OrderID:           orderID,
		ProviderReference: event.ID,
		Paid:              paidEvents[string(event.Type)],
		Raw:               req.Body,
	}, nil
}

func orderIDFromEvent(event stripeapi.Event) string {
	object := event.Data.Object
	if metadata, ok := object["metadata"].(map[string]any); ok {
		if id, ok := metadata["order_id"].(string); ok && id != "" {
			return id
		}
	}
	if id, ok := object["client_reference_id"].(string); ok {
		return id
	}
	return ""
}
