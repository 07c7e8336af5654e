package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInitiated PaymentStatus = "initiated"
	PaymentFailed    PaymentStatus = "failed"
)

// Active reports whether the attempt still represents an open checkout
// flow. At most one active attempt may exist per (order, provider, method);
// the storage layer enforces this with a partial unique index.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentInitiated
}

type PaymentMethod string

const (
	MethodPix  PaymentMethod = "pix"
	MethodCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodPix || m == MethodCard
}

// Payment is one provider-side charge attempt tied to an order. Orders may
// accumulate several attempts (retries, provider switches); only the
// order-level paid transition finalizes a sale.
type Payment struct {
	ID                string         `db:"id" json:"id"`
	OrderID           string         `db:"order_id" json:"order_id"`
	Provider          string         `db:"provider" json:"provider"`
	Method            PaymentMethod  `db:"method" json:"method"`
	Status            PaymentStatus  `db:"status" json:"status"`
	ProviderReference string         `db:"provider_reference" json:"provider_reference"`
	PixQRCode         string         `db:"pix_qr_code" json:"pix_qr_code,omitempty"`
	PixCopyPaste      string         `db:"pix_copy_paste" json:"pix_copy_paste,omitempty"`
	CheckoutURL       string         `db:"checkout_url" json:"checkout_url,omitempty"`
	Raw               types.JSONRaw  `db:"raw" json:"raw,omitempty"`
	ExpiresAt         types.DateTime `db:"expires_at" json:"expires_at,omitempty"`
	Created           types.DateTime `db:"created" json:"created"`
}

// Affiliate links a user to a referral code. Attribution is best-effort
// and never affects the reservation or payment state machine.
type Affiliate struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`
	Code   string `db:"code" json:"code"`
}

// PlatformEvent is a durable operational record (webhook conflicts,
// idempotent skips, failed confirmations) surfaced to operations.
type PlatformEvent struct {
	ID        string        `db:"id" json:"id"`
	EventType string        `db:"event_type" json:"event_type"`
	Level     string        `db:"level" json:"level"`
	RequestID string        `db:"request_id" json:"request_id,omitempty"`
	OrderID   string        `db:"order_id" json:"order_id,omitempty"`
	RaffleID  string        `db:"raffle_id" json:"raffle_id,omitempty"`
	Provider  string        `db:"provider" json:"provider,omitempty"`
	Payload   types.JSONRaw `db:"payload" json:"payload,omitempty"`
}
