// Package provider defines the payment gateway boundary. Each supported
// processor implements Gateway; the rest of the system only sees charge
// creation and webhook verification, never provider-specific wire formats.
package provider

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"raffle-system/internal/status"
	"raffle-system/models"
)

type Gateway interface {
	Name() string

	// CreateCharge opens a checkout flow for the order with the provider.
	// It performs no local writes; the caller persists the returned
	// attempt. Transient provider failures surface as
	// status.ErrProviderUnavailable.
	CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// VerifyWebhook authenticates a delivery and resolves which order it
	// concerns and whether the provider considers it paid. Verification
	// failures surface as status.ErrWebhookAuth.
	VerifyWebhook(ctx context.Context, req *WebhookRequest) (*WebhookResult, error)
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type ChargeRequest struct {
	OrderID     string
	RaffleID    string
	BuyerID     string
	Description string
	AmountCents int64
	Method      models.PaymentMethod
	Customer    Customer
	// ExpiresInMinutes bounds how long the charge stays payable; providers
	// round it to their own granularity.
	ExpiresInMinutes int
}

// Amount renders the charge value in currency units, e.g. 1050 -> 10.50.
// Providers that bill in decimal currency use this instead of cents.
func (r *ChargeRequest) Amount() decimal.Decimal {
	return decimal.NewFromInt(r.AmountCents).Div(decimal.NewFromInt(100))
}

type ChargeResult struct {
	ProviderReference string
	Status            models.PaymentStatus
	PixQRCode         string
	PixCopyPaste      string
	CheckoutURL       string
	ExpiresAt         string
	Raw               []byte
}

// WebhookRequest carries the raw delivery; gateways pick out the headers
// and query parameters their scheme needs.
type WebhookRequest struct {
	Body    []byte
	Headers map[string]string
	Query   map[string]string
}

func (r *WebhookRequest) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

type WebhookResult struct {
	OrderID           string
	ProviderReference string
	// Paid reports the provider's verdict. Deliveries for non-final states
	// (created, in_process) come through with Paid=false and are recorded
	// without touching the order.
	Paid bool
	Raw  []byte
}

// Registry resolves gateways by name, mirroring how charge and webhook
// routes address providers in their path.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, status.ErrUnknownProvider
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}
