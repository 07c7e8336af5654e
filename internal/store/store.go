// Package store is the single transactional boundary around the shared
// raffle pool. Every writer (reservation engine, sweeper, webhook
// reconciler) mutates numbers and orders only through a Store, inside
// RunInTransaction, so conditional updates observe a consistent snapshot.
package store

import (
	"context"
	"time"

	"raffle-system/models"
)

type Store interface {
	// RunInTransaction executes fn against a transactional view of the
	// store. Either every mutation made by fn commits, or none do. For a
	// contested row, concurrent transactions are mutually exclusive:
	// exactly one observes the prior state.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	RaffleBySlug(ctx context.Context, slug string) (*models.Raffle, error)
	RaffleByID(ctx context.Context, id string) (*models.Raffle, error)

	// InsertNumbers bulk-creates the pool [0, total) for a raffle,
	// skipping numbers that already exist. Returns how many were created.
	InsertNumbers(ctx context.Context, raffleID string, total int) (int64, error)
	CountNumbersByStatus(ctx context.Context, raffleID string) (*models.PoolCounts, error)
	// NumbersPage lists (number, status) ordered by number ascending;
	// deterministic and restartable.
	NumbersPage(ctx context.Context, raffleID string, offset, limit int) ([]models.NumberTile, error)
	// RandomAvailableNumbers draws up to count distinct currently
	// available numbers, excluding the given ones.
	RandomAvailableNumbers(ctx context.Context, raffleID string, count int, excluding []int) ([]int, error)
	// ClaimNumbers transitions the given numbers available -> reserved and
	// links them to orderID. Returns how many rows actually transitioned;
	// numbers that were not available are left untouched.
	ClaimNumbers(ctx context.Context, raffleID, orderID string, numbers []int) (int64, error)
	// BuyerNumberCount counts numbers currently reserved or sold under any
	// of the buyer's orders in this raffle.
	BuyerNumberCount(ctx context.Context, raffleID, buyerID string) (int, error)
	NumbersForOrder(ctx context.Context, orderID string) ([]int, error)
	// ReleaseNumbersForOrder returns an order's reserved numbers to the
	// pool, clearing their order linkage.
	ReleaseNumbersForOrder(ctx context.Context, orderID string) (int64, error)
	// MarkNumbersSold finalizes an order's reserved numbers as sold,
	// recording the buyer as owner. The only path to sold.
	MarkNumbersSold(ctx context.Context, orderID, buyerID string) (int64, error)

	InsertOrder(ctx context.Context, order *models.Order) error
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	LatestOrderForBuyer(ctx context.Context, raffleID, buyerID string) (*models.Order, error)
	DuePendingOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	// TransitionOrder performs the guarded conditional update
	// "set status = to where id = orderID and status = from" and reports
	// whether the row transitioned. A false return means a concurrent
	// transaction won; the caller must abort without side effects.
	TransitionOrder(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error)
	SetOrderAffiliate(ctx context.Context, orderID, code string) error

	// ActivePayment returns the non-terminal attempt for the exact
	// (order, provider, method) tuple, or nil.
	ActivePayment(ctx context.Context, orderID, provider string, method models.PaymentMethod) (*models.Payment, error)
	LatestPayment(ctx context.Context, orderID string) (*models.Payment, error)
	// SupersedeActivePayments fails every active attempt on the order
	// except the given (provider, method) combination.
	SupersedeActivePayments(ctx context.Context, orderID, keepProvider string, keepMethod models.PaymentMethod) (int64, error)
	// InsertPayment persists an attempt; inserting a second active attempt
	// for the same (order, provider, method) fails with
	// status.ErrDuplicateActivePayment.
	InsertPayment(ctx context.Context, payment *models.Payment) error

	AffiliateByCode(ctx context.Context, code string) (*models.Affiliate, error)
	AffiliateByUser(ctx context.Context, userID string) (*models.Affiliate, error)
	InsertAffiliate(ctx context.Context, affiliate *models.Affiliate) error

	InsertPlatformEvent(ctx context.Context, event *models.PlatformEvent) error
}
