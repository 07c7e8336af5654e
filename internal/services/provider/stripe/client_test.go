package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/models"
)

func signEvent(secret string, body []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEventBody(t *testing.T, eventType, orderID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_1",
				"client_reference_id": orderID,
				"metadata":            map[string]any{"order_id": orderID},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.FormValue("mode"))
		assert.Equal(t, "order-1", r.FormValue("client_reference_id"))
		assert.Equal(t, "order-1", r.FormValue("metadata[order_id]"))
		assert.Equal(t, "2550", r.FormValue("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "card", r.FormValue("payment_method_types[0]"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":             "cs_test_1",
			"url":            "https://checkout.stripe.test/c/pay/cs_test_1",
			"payment_status": "unpaid",
			"expires_at":     1700086400,
		})
	}))
	defer server.Close()

	client := New(Config{SecretKey: "sk_test", BaseURL: server.URL, SuccessURL: "https://shop.example/done"})
	result, err := client.CreateCharge(context.Background(), &provider.ChargeRequest{
		OrderID:     "order-1",
		AmountCents: 2550,
		Method:      models.MethodCard,
		Customer:    provider.Customer{Email: "buyer@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.ProviderReference)
	assert.Equal(t, models.PaymentInitiated, result.Status)
	assert.Equal(t, "https://checkout.stripe.test/c/pay/cs_test_1", result.CheckoutURL)
	assert.NotEmpty(t, result.ExpiresAt)
}

func TestCreateChargePixUsesCheckout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pix", r.FormValue("payment_method_types[0]"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":  "cs_test_2",
			"url": "https://checkout.stripe.test/c/pay/cs_test_2",
		})
	}))
	defer server.Close()

	client := New(Config{SecretKey: "sk_test", BaseURL: server.URL})
	result, err := client.CreateCharge(context.Background(), &provider.ChargeRequest{
		OrderID:     "order-2",
		AmountCents: 1000,
		Method:      models.MethodPix,
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_2", result.ProviderReference)
	assert.Empty(t, result.PixQRCode)
	assert.Equal(t, "https://checkout.stripe.test/c/pay/cs_test_2", result.CheckoutURL)
}

func TestCreateChargeProviderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "api_error", "message": "backend down"},
		})
	}))
	defer server.Close()

	client := New(Config{SecretKey: "sk_test", BaseURL: server.URL})
	_, err := client.CreateCharge(context.Background(), &provider.ChargeRequest{
		OrderID:     "order-1",
		AmountCents: 1000,
		Method:      models.MethodCard,
	})

	assert.ErrorIs(t, err, status.ErrProviderUnavailable)
}

func TestVerifyWebhook(t *testing.T) {
	client := New(Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	body := checkoutEventBody(t, "checkout.session.completed", "order-9")

	result, err := client.VerifyWebhook(context.Background(), &provider.WebhookRequest{
		Body: body,
		Headers: map[string]string{
			"Stripe-Signature": signEvent("whsec_test", body, time.Now().Unix()),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "order-9", result.OrderID)
	assert.Equal(t, "evt_1", result.ProviderReference)
	assert.True(t, result.Paid)
}

func TestVerifyWebhookBadSignature(t *testing.T) {
	client := New(Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	body := checkoutEventBody(t, "checkout.session.completed", "order-9")

	_, err := client.VerifyWebhook(context.Background(), &provider.WebhookRequest{
		Body: body,
		Headers: map[string]string{
			"Stripe-Signature": signEvent("wrong-secret", body, time.Now().Unix()),
		},
	})

	assert.ErrorIs(t, err, status.ErrWebhookAuth)
}

func TestVerifyWebhookNotPaidEvent(t *testing.T) {
	client := New(Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	body := checkoutEventBody(t, "checkout.session.expired", "order-9")

	result, err := client.VerifyWebhook(context.Background(), &provider.WebhookRequest{
		Body: body,
		Headers: map[string]string{
			"Stripe-Signature": signEvent("whsec_test", body, time.Now().Unix()),
		},
	})

	require.NoError(t, err)
	assert.False(t, result.Paid)
}
