// Package asaas implements the Asaas gateway: PIX charges through
// /v3/payments plus a QR code lookup, card sales through payment links,
// and shared-token webhook verification.
package asaas

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/models"
)

const DefaultBaseURL = "https://api.asaas.com/v3"

type Config struct {
	APIKey       string
	WebhookToken string
	BaseURL      string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "asaas" }

type customer struct {
	ID                string `json:"id,omitempty"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	ExternalReference string `json:"externalReference"`
}

type customerList struct {
	Data []customer `json:"data"`
}

type paymentRequest struct {
	Customer          string `json:"customer"`
	BillingType       string `json:"billingType"`
	Value             string `json:"value"`
	DueDate           string `json:"dueDate"`
	Description       string `json:"description"`
	ExternalReference string `json:"externalReference"`
}

type paymentResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"externalReference"`
}

type pixQRCodeResponse struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type paymentLinkRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	BillingType       string `json:"billingType"`
	ChargeType        string `json:"chargeType"`
	Value             string `json:"value"`
	ExternalReference string `json:"externalReference"`
}

type paymentLinkResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	switch req.Method {
	case models.MethodPix:
		return c.createPixCharge(ctx, req)
	case models.MethodCard:
		return c.createPaymentLink(ctx, req)
	default:
		return nil, status.ErrInvalidRequest
	}
}

func (c *Client) createPixCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	customerID, err := c.ensureCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	payload := paymentRequest{
		Customer:          customerID,
		BillingType:       "PIX",
		Value:             req.Amount().StringFixed(2),
		DueDate:           time.Now().Format("2006-01-02"),
		Description:       req.Description,
		ExternalReference: req.OrderID,
	}
	raw, err := c.post(ctx, "/payments", payload)
	if err != nil {
		return nil, err
	}

	var payment paymentResponse
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("asaas: decode payment response: %w", err)
	}

	qrRaw, err := c.get(ctx, "/payments/"+payment.ID+"/pixQrCode")
	if err != nil {
		return nil, err
	}
	var qr pixQRCodeResponse
	if err := json.Unmarshal(qrRaw, &qr); err != nil {
		return nil, fmt.Errorf("asaas: decode pix qr response: %w", err)
	}

	return &provider.ChargeResult{
		ProviderReference: payment.ID,
		Status:            models.PaymentPending,
		PixQRCode:         qr.EncodedImage,
		PixCopyPaste:      qr.Payload,
		ExpiresAt:         qr.ExpirationDate,
		Raw:               raw,
	}, nil
}

func (c *Client) createPaymentLink(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	payload := paymentLinkRequest{
		Name:              req.Description,
		Description:       req.Description,
		BillingType:       "CREDIT_CARD",
		ChargeType:        "DETACHED",
		Value:             req.Amount().StringFixed(2),
		ExternalReference: req.OrderID,
	}
	raw, err := c.post(ctx, "/paymentLinks", payload)
	if err != nil {
		return nil, err
	}

	var link paymentLinkResponse
	if err := json.Unmarshal(raw, &link); err != nil {
		return nil, fmt.Errorf("asaas: decode payment link response: %w", err)
	}

	return &provider.ChargeResult{
		ProviderReference: link.ID,
		Status:            models.PaymentInitiated,
		CheckoutURL:       link.URL,
		Raw:               raw,
	}, nil
}

// ensureCustomer finds or creates the Asaas customer keyed by our buyer id,
// so repeated charges reuse one provider-side record.
func (c *Client) ensureCustomer(ctx context.Context, req *provider.ChargeRequest) (string, error) {
	ref := "user_" + req.BuyerID

	raw, err := c.get(ctx, "/customers?externalReference="+url.QueryEscape(ref))
	if err != nil {
		return "", err
	}
	var list customerList
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", fmt.Errorf("asaas: decode customer lookup: %w", err)
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	created, err := c.post(ctx, "/customers", customer{
		Name:              req.Customer.Name,
		Email:             req.Customer.Email,
		MobilePhone:       req.Customer.Phone,
		ExternalReference: ref,
	})
	if err != nil {
		return "", err
	}
	var cust customer
	if err := json.Unmarshal(created, &cust); err != nil {
		return "", fmt.Errorf("asaas: decode customer response: %w", err)
	}
	return cust.ID, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		ExternalReference string `json:"externalReference"`
	} `json:"payment"`
}

var paidEvents = map[string]bool{
	"PAYMENT_RECEIVED":         true,
	"PAYMENT_CONFIRMED":        true,
	"PAYMENT_RECEIVED_IN_CASH": true,
	"PAYMENT_APPROVED_BY_RISK": true,
}

// VerifyWebhook authenticates deliveries with the shared token Asaas sends
// in the asaas-access-token header.
func (c *Client) VerifyWebhook(_ context.Context, req *provider.WebhookRequest) (*provider.WebhookResult, error) {
	token := req.Header("asaas-access-token")
	if c.cfg.WebhookToken == "" || token == "" {
		return nil, status.ErrWebhookAuth
	}
	if !hmac.Equal([]byte(token), []byte(c.cfg.WebhookToken)) {
		return nil, status.ErrWebhookAuth
	}

	var event webhookEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return nil, status.ErrWebhookAuth
	}
	if event.Payment.ExternalReference == "" {
		return nil, status.ErrWebhookAuth
	}

	paid := paidEvents[event.Event] ||
		event.Payment.Status == "RECEIVED" ||
		event.Payment.Status == "CONFIRMED"

	return &provider.WebhookResult{
		OrderID:           event.Payment.ExternalReference,
		ProviderReference: event.Payment.ID,
		Paid:              paid,
		Raw:               req.Body,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("asaas: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("asaas: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("access_token", c.cfg.APIKey)

	return c.send(httpReq)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("asaas: build request: %w", err)
	}
	httpReq.Header.Set("access_token", c.cfg.APIKey)

	return c.send(httpReq)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("asaas request failed", "path", req.URL.Path, "error", err)
		return nil, status.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status.ErrProviderUnavailable
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		slog.Error("asaas server error", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, status.ErrProviderUnavailable
	}
	if resp.StatusCode >= http.StatusBadRequest {
		slog.Error("asaas rejected request", "path", req.URL.Path, "status", resp.StatusCode, "body", string(raw))
		return nil, fmt.Errorf("asaas: %s returned status %d", req.URL.Path, resp.StatusCode)
	}
	return raw, nil
}
