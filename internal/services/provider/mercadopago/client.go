// Package mercadopago implements the Mercado Pago gateway on the official
// Go SDK: direct PIX charges, hosted card checkouts through checkout
// preferences, and x-signature webhook verification.
package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/models"
)

type Config struct {
	AccessToken   string
	WebhookSecret string
	// BaseURL reroutes SDK calls to another host, for tests. Empty means
	// the live API.
	BaseURL string
	// NotificationURL is where the provider posts webhook deliveries.
	NotificationURL string
	// BackURL is where hosted card checkouts send the buyer afterwards.
	BackURL string
}

type Client struct {
	cfg         Config
	payments    payment.Client
	preferences preference.Client
}

func New(cfg Config) (*Client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	if cfg.BaseURL != "" {
		target, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("mercadopago: parse base url: %w", err)
		}
		httpClient.Transport = rerouteTransport{target: target}
	}

	sdkCfg, err := config.New(cfg.AccessToken, config.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("mercadopago: init sdk config: %w", err)
	}

	return &Client{
		cfg:         cfg,
		payments:    payment.NewClient(sdkCfg),
		preferences: preference.NewClient(sdkCfg),
	}, nil
}

func (c *Client) Name() string { return "mercadopago" }

func (c *Client) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	switch req.Method {
	case models.MethodPix:
		return c.createPixCharge(ctx, req)
	case models.MethodCard:
		return c.createCardCheckout(ctx, req)
	default:
		return nil, status.ErrInvalidRequest
	}
}

func (c *Client) createPixCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	amount, _ := req.Amount().Float64()
	request := payment.Request{
		TransactionAmount: amount,
		PaymentMethodID:   "pix",
		Description:       req.Description,
		ExternalReference: req.OrderID,
		NotificationURL:   c.cfg.NotificationURL,
		Payer: &payment.PayerRequest{
			Email:     req.Customer.Email,
			FirstName: req.Customer.Name,
		},
	}

	resp, err := c.payments.Create(ctx, request)
	if err != nil {
		slog.Error("mercadopago create payment failed", "order", req.OrderID, "error", err)
		return nil, status.ErrProviderUnavailable
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: encode payment response: %w", err)
	}

	return &provider.ChargeResult{
		ProviderReference: fmt.Sprintf("%d", resp.ID),
		Status:            models.PaymentPending,
		PixQRCode:         resp.PointOfInteraction.TransactionData.QRCodeBase64,
		PixCopyPaste:      resp.PointOfInteraction.TransactionData.QRCode,
		ExpiresAt:         expirationFrom(raw),
		Raw:               raw,
	}, nil
}

// expirationFrom pulls date_of_expiration back out of the serialized
// response; the zero timestamp means the charge carries no deadline.
func expirationFrom(raw []byte) string {
	var meta struct {
		DateOfExpiration string `json:"date_of_expiration"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	ts, err := time.Parse(time.RFC3339, meta.DateOfExpiration)
	if err != nil || ts.IsZero() {
		return ""
	}
	return meta.DateOfExpiration
}

func (c *Client) createCardCheckout(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	amount, _ := req.Amount().Float64()
	request := preference.Request{
		Items: []preference.ItemRequest{{
			Title:      req.Description,
			Quantity:   1,
			UnitPrice:  amount,
			CurrencyID: "BRL",
		}},
		ExternalReference: req.OrderID,
		NotificationURL:   c.cfg.NotificationURL,
	}
	if c.cfg.BackURL != "" {
		request.BackURLs = &preference.BackURLsRequest{
			Success: c.cfg.BackURL,
			Pending: c.cfg.BackURL,
			Failure: c.cfg.BackURL,
		}
		request.AutoReturn = "approved"
	}

	resp, err := c.preferences.Create(ctx, request)
	if err != nil {
		slog.Error("mercadopago create preference failed", "order", req.OrderID, "error", err)
		return nil, status.ErrProviderUnavailable
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: encode preference response: %w", err)
	}

	return &provider.ChargeResult{
		ProviderReference: resp.ID,
		Status:            models.PaymentInitiated,
		CheckoutURL:       resp.InitPoint,
		Raw:               raw,
	}, nil
}

type webhookEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// VerifyWebhook checks the x-signature HMAC, then confirms the payment
// state against the API instead of trusting the delivery body.
func (c *Client) VerifyWebhook(ctx context.Context, req *provider.WebhookRequest) (*provider.WebhookResult, error) {
	var event webhookEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return nil, status.ErrWebhookAuth
	}

	dataID := req.Query["data.id"]
	if dataID == "" {
		dataID = event.Data.ID
	}
	if dataID == "" {
		return nil, status.ErrWebhookAuth
	}

	if err := c.verifySignature(req.Header("x-signature"), req.Header("x-request-id"), dataID); err != nil {
		return nil, err
	}

	paymentID, err := strconv.Atoi(dataID)
	if err != nil {
		return nil, status.ErrWebhookAuth
	}
	resp, err := c.payments.Get(ctx, paymentID)
	if err != nil {
		slog.Error("mercadopago payment lookup failed", "payment", dataID, "error", err)
		return nil, status.ErrProviderUnavailable
	}
	if resp.ExternalReference == "" {
		return nil, status.ErrWebhookAuth
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: encode payment lookup: %w", err)
	}

	return &provider.WebhookResult{
		OrderID:           resp.ExternalReference,
		ProviderReference: dataID,
		Paid:              resp.Status == "approved",
		Raw:               raw,
	}, nil
}

// verifySignature validates the "ts=...,v1=..." header against the signed
// manifest "id:<dataId>;request-id:<requestId>;ts:<ts>;".
func (c *Client) verifySignature(signature, requestID, dataID string) error {
	if c.cfg.WebhookSecret == "" || signature == "" {
		return status.ErrWebhookAuth
	}

	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return status.ErrWebhookAuth
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return status.ErrWebhookAuth
	}
	return nil
}

// rerouteTransport points the SDK's fixed API host at another server.
type rerouteTransport struct {
	target *url.URL
}

func (t rerouteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	clone.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}
