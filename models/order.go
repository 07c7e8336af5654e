package models

import (
	"time"

	"github.com/pocketbase/pocketbase/tools/types"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderExpired  OrderStatus = "expired"
	OrderCanceled OrderStatus = "canceled"
)

// CanTransitionTo encodes the order lifecycle. Paid, expired and canceled
// are terminal; pending -> paid happens at most once and only through the
// webhook reconciler.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderPending {
		return false
	}
	return next == OrderPaid || next == OrderExpired || next == OrderCanceled
}

func (s OrderStatus) Terminal() bool {
	return s != OrderPending
}

// Order is one buyer's attempt to acquire a set of numbers. While pending,
// the numbers referencing it must match the amount charged exactly.
type Order struct {
	ID            string         `db:"id" json:"id"`
	RaffleID      string         `db:"raffle_id" json:"raffle_id"`
	BuyerID       string         `db:"buyer_id" json:"buyer_id"`
	Status        OrderStatus    `db:"status" json:"status"`
	AmountCents   int64          `db:"amount_cents" json:"amount_cents"`
	ExpiresAt     types.DateTime `db:"expires_at" json:"expires_at"`
	AffiliateCode string         `db:"affiliate_code" json:"affiliate_code,omitempty"`
	PaidAt        types.DateTime `db:"paid_at" json:"paid_at,omitempty"`
	Created       types.DateTime `db:"created" json:"created"`
}

// Due reports whether the reservation window elapsed without payment.
func (o *Order) Due(now time.Time) bool {
	return o.Status == OrderPending && !o.ExpiresAt.IsZero() && !o.ExpiresAt.Time().After(now)
}

// EffectiveStatus computes the status a caller should observe: a pending
// order past its deadline reads as expired even before the sweeper
// reclaims it.
func (o *Order) EffectiveStatus(now time.Time) OrderStatus {
	if o.Due(now) {
		return OrderExpired
	}
	return o.Status
}
