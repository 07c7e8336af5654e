package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"raffle-system/internal/status"
	"raffle-system/models"
)

const insertBatchSize = 500

// DB is the Store implementation backed by the PocketBase app database.
// Inside RunInTransaction all queries run on the transactional core.App,
// so SQLite's single-writer model serializes contested updates.
type DB struct {
	app core.App
}

func NewDB(app core.App) *DB {
	return &DB{app: app}
}

func (s *DB) RunInTransaction(_ context.Context, fn func(tx Store) error) error {
	err := s.app.RunInTransaction(func(txApp core.App) error {
		return fn(NewDB(txApp))
	})
	if err != nil && isBusy(err) {
		return fmt.Errorf("%w: %v", status.ErrContention, err)
	}
	return err
}

func (s *DB) RaffleBySlug(_ context.Context, slug string) (*models.Raffle, error) {
	raffle := models.Raffle{}
	err := s.app.DB().
		Select("id", "title", "slug", "status", "total_numbers", "price_cents", "max_per_user", "created", "updated").
		From("raffles").
		Where(dbx.HashExp{"slug": slug}).
		Limit(1).
		One(&raffle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrRaffleNotFound
		}
		return nil, fmt.Errorf("store.RaffleBySlug: %w", err)
	}
	return &raffle, nil
}

func (s *DB) RaffleByID(_ context.Context, id string) (*models.Raffle, error) {
	raffle := models.Raffle{}
	err := s.app.DB().
		Select("id", "title", "slug", "status", "total_numbers", "price_cents", "max_per_user", "created", "updated").
		From("raffles").
		Where(dbx.HashExp{"id": id}).
		Limit(1).
		One(&raffle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrRaffleNotFound
		}
		return nil, fmt.Errorf("store.RaffleByID: %w", err)
	}
	return &raffle, nil
}

func (s *DB) InsertNumbers(_ context.Context, raffleID string, total int) (int64, error) {
	now := types.NowDateTime().String()

	var created int64
	for start := 0; start < total; start += insertBatchSize {
		end := min(start+insertBatchSize, total)

		var sb strings.Builder
		sb.WriteString("INSERT OR IGNORE INTO raffle_numbers (id, raffle_id, number, status, order_id, buyer_id, created, updated) VALUES ")
		args := dbx.Params{"raffleId": raffleID, "now": now}
		for n := start; n < end; n++ {
			if n > start {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "({:id%d}, {:raffleId}, %d, 'available', '', '', {:now}, {:now})", n, n)
			args[fmt.Sprintf("id%d", n)] = uuid.NewString()
		}

		res, err := s.app.DB().NewQuery(sb.String()).Bind(args).Execute()
		if err != nil {
			return created, fmt.Errorf("store.InsertNumbers: %w", err)
		}
		affected, _ := res.RowsAffected()
		created += affected
	}
	return created, nil
}

func (s *DB) CountNumbersByStatus(_ context.Context, raffleID string) (*models.PoolCounts, error) {
	rows := []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}{}
	err := s.app.DB().
		Select("status", "COUNT(*) AS total").
		From("raffle_numbers").
		Where(dbx.HashExp{"raffle_id": raffleID}).
		GroupBy("status").
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store.CountNumbersByStatus: %w", err)
	}

	counts := models.PoolCounts{}
	for _, row := range rows {
		switch models.NumberStatus(row.Status) {
		case models.NumberAvailable:
			counts.Available = row.Total
		case models.NumberReserved:
			counts.Reserved = row.Total
		case models.NumberSold:
			counts.Sold = row.Total
		}
	}
	return &counts, nil
}

func (s *DB) NumbersPage(_ context.Context, raffleID string, offset, limit int) ([]models.NumberTile, error) {
	tiles := []models.NumberTile{}
	err := s.app.DB().
		Select("number", "status").
		From("raffle_numbers").
		Where(dbx.HashExp{"raffle_id": raffleID}).
		OrderBy("number ASC").
		Offset(int64(offset)).
		Limit(int64(limit)).
		All(&tiles)
	if err != nil {
		return nil, fmt.Errorf("store.NumbersPage: %w", err)
	}
	return tiles, nil
}

func (s *DB) RandomAvailableNumbers(_ context.Context, raffleID string, count int, excluding []int) ([]int, error) {
	conditions := []dbx.Expression{
		dbx.HashExp{"raffle_id": raffleID, "status": string(models.NumberAvailable)},
	}
	if len(excluding) > 0 {
		conditions = append(conditions, dbx.Not(dbx.In("number", intArgs(excluding)...)))
	}

	rows := []struct {
		Number int `db:"number"`
	}{}
	err := s.app.DB().
		Select("number").
		From("raffle_numbers").
		Where(dbx.And(conditions...)).
		OrderBy("RANDOM()").
		Limit(int64(count)).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store.RandomAvailableNumbers: %w", err)
	}

	numbers := make([]int, len(rows))
	for i, row := range rows {
		numbers[i] = row.Number
	}
	return numbers, nil
}

func (s *DB) ClaimNumbers(_ context.Context, raffleID, orderID string, numbers []int) (int64, error) {
	if len(numbers) == 0 {
		return 0, nil
	}
	res, err := s.app.DB().Update(
		"raffle_numbers",
		dbx.Params{
			"status":   string(models.NumberReserved),
			"order_id": orderID,
			"updated":  types.NowDateTime().String(),
		},
		dbx.And(
			dbx.HashExp{"raffle_id": raffleID, "status": string(models.NumberAvailable)},
			dbx.In("number", intArgs(numbers)...),
		),
	).Execute()
	if err != nil {
		return 0, fmt.Errorf("store.ClaimNumbers: %w", err)
	}
	return res.RowsAffected()
}

func (s *DB) BuyerNumberCount(_ context.Context, raffleID, buyerID string) (int, error) {
	row := struct {
		Total int `db:"total"`
	}{}
	err := s.app.DB().
		Select("COUNT(*) AS total").
		From("raffle_numbers").
		InnerJoin("orders", dbx.NewExp("orders.id = raffle_numbers.order_id")).
		Where(dbx.And(
			dbx.HashExp{"raffle_numbers.raffle_id": raffleID, "orders.buyer_id": buyerID},
			dbx.In("raffle_numbers.status", string(models.NumberReserved), string(models.NumberSold)),
		)).
		One(&row)
	if err != nil {
		return 0, fmt.Errorf("store.BuyerNumberCount: %w", err)
	}
	return row.Total, nil
}

func (s *DB) NumbersForOrder(_ context.Context, orderID string) ([]int, error) {
	rows := []struct {
		Number int `db:"number"`
	}{}
	err := s.app.DB().
		Select("number").
		From("raffle_numbers").
		Where(dbx.And(
			dbx.HashExp{"order_id": orderID},
			dbx.In("status", string(models.NumberReserved), string(models.NumberSold)),
		)).
		OrderBy("number ASC").
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store.NumbersForOrder: %w", err)
	}

	numbers := make([]int, len(rows))
	for i, row := range rows {
		numbers[i] = row.Number
	}
	return numbers, nil
}

func (s *DB) ReleaseNumbersForOrder(_ context.Context, orderID string) (int64, error) {
	res, err := s.app.DB().Update(
		"raffle_numbers",
		dbx.Params{
			"status":   string(models.NumberAvailable),
			"order_id": "",
			"buyer_id": "",
			"updated":  types.NowDateTime().String(),
		},
		dbx.HashExp{"order_id": orderID, "status": string(models.NumberReserved)},
	).Execute()
	if err != nil {
		return 0, fmt.Errorf("store.ReleaseNumbersForOrder: %w", err)
	}
	return res.RowsAffected()
}

func (s *DB) MarkNumbersSold(_ context.Context, orderID, buyerID string) (int64, error) {
	res, err := s.app.DB().Update(
		"raffle_numbers",
		dbx.Params{
			"status":   string(models.NumberSold),
			"buyer_id": buyerID,
			"updated":  types.NowDateTime().String(),
		},
		dbx.HashExp{"order_id": orderID, "status": string(models.NumberReserved)},
	).Execute()
	if err != nil {
		return 0, fmt.Errorf("store.MarkNumbersSold: %w", err)
	}
	return res.RowsAffected()
}

func (s *DB) InsertOrder(_ context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := types.NowDateTime()
	if order.Created.IsZero() {
		order.Created = now
	}
	_, err := s.app.DB().Insert("orders", dbx.Params{
		"id":             order.ID,
		"raffle_id":      order.RaffleID,
		"buyer_id":       order.BuyerID,
		"status":         string(order.Status),
		"amount_cents":   order.AmountCents,
		"expires_at":     order.ExpiresAt.String(),
		"affiliate_code": order.AffiliateCode,
		"paid_at":        order.PaidAt.String(),
		"created":        order.Created.String(),
		"updated":        now.String(),
	}).Execute()
	if err != nil {
		return fmt.Errorf("store.InsertOrder: %w", err)
	}
	return nil
}

const orderColumns = "id, raffle_id, buyer_id, status, amount_cents, expires_at, affiliate_code, paid_at, created"

func (s *DB) OrderByID(_ context.Context, id string) (*models.Order, error) {
	order := models.Order{}
	err := s.app.DB().
		NewQuery("SELECT " + orderColumns + " FROM orders WHERE id = {:id} LIMIT 1").
		Bind(dbx.Params{"id": id}).
		One(&order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrOrderNotFound
		}
		return nil, fmt.Errorf("store.OrderByID: %w", err)
	}
	return &order, nil
}

func (s *DB) LatestOrderForBuyer(_ context.Context, raffleID, buyerID string) (*models.Order, error) {
	order := models.Order{}
	err := s.app.DB().
		NewQuery("SELECT " + orderColumns + " FROM orders WHERE raffle_id = {:raffleId} AND buyer_id = {:buyerId} AND status IN ('pending', 'paid') ORDER BY created DESC LIMIT 1").
		Bind(dbx.Params{"raffleId": raffleID, "buyerId": buyerID}).
		One(&order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.LatestOrderForBuyer: %w", err)
	}
	return &order, nil
}

func (s *DB) DuePendingOrders(_ context.Context, now time.Time, limit int) ([]models.Order, error) {
	due, err := types.ParseDateTime(now)
	if err != nil {
		return nil, fmt.Errorf("store.DuePendingOrders: %w", err)
	}

	orders := []models.Order{}
	err = s.app.DB().
		NewQuery("SELECT " + orderColumns + " FROM orders WHERE status = 'pending' AND expires_at != '' AND expires_at <= {:due} ORDER BY expires_at ASC LIMIT {:limit}").
		Bind(dbx.Params{"due": due.String(), "limit": limit}).
		All(&orders)
	if err != nil {
		return nil, fmt.Errorf("store.DuePendingOrders: %w", err)
	}
	return orders, nil
}

func (s *DB) TransitionOrder(_ context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("store.TransitionOrder: invalid transition %s -> %s", from, to)
	}

	params := dbx.Params{
		"status":  string(to),
		"updated": types.NowDateTime().String(),
	}
	if to == models.OrderPaid {
		params["paid_at"] = types.NowDateTime().String()
	}

	res, err := s.app.DB().Update(
		"orders",
		params,
		dbx.HashExp{"id": orderID, "status": string(from)},
	).Execute()
	if err != nil {
		return false, fmt.Errorf("store.TransitionOrder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store.TransitionOrder: %w", err)
	}
	return affected == 1, nil
}

func (s *DB) SetOrderAffiliate(_ context.Context, orderID, code string) error {
	_, err := s.app.DB().Update(
		"orders",
		dbx.Params{"affiliate_code": code, "updated": types.NowDateTime().String()},
		dbx.HashExp{"id": orderID},
	).Execute()
	if err != nil {
		return fmt.Errorf("store.SetOrderAffiliate: %w", err)
	}
	return nil
}

const paymentColumns = "id, order_id, provider, method, status, provider_reference, pix_qr_code, pix_copy_paste, checkout_url, raw, expires_at, created"

func (s *DB) ActivePayment(_ context.Context, orderID, provider string, method models.PaymentMethod) (*models.Payment, error) {
	payment := models.Payment{}
	err := s.app.DB().
		NewQuery("SELECT " + paymentColumns + " FROM payments WHERE order_id = {:orderId} AND provider = {:provider} AND method = {:method} AND status IN ('pending', 'initiated') ORDER BY created DESC LIMIT 1").
		Bind(dbx.Params{"orderId": orderID, "provider": provider, "method": string(method)}).
		One(&payment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.ActivePayment: %w", err)
	}
	return &payment, nil
}

func (s *DB) LatestPayment(_ context.Context, orderID string) (*models.Payment, error) {
	payment := models.Payment{}
	err := s.app.DB().
		NewQuery("SELECT " + paymentColumns + " FROM payments WHERE order_id = {:orderId} ORDER BY created DESC LIMIT 1").
		Bind(dbx.Params{"orderId": orderID}).
		One(&payment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.LatestPayment: %w", err)
	}
	return &payment, nil
}

func (s *DB) SupersedeActivePayments(_ context.Context, orderID, keepProvider string, keepMethod models.PaymentMethod) (int64, error) {
	res, err := s.app.DB().
		NewQuery("UPDATE payments SET status = 'failed', updated = {:now} WHERE order_id = {:orderId} AND status IN ('pending', 'initiated') AND NOT (provider = {:provider} AND method = {:method})").
		Bind(dbx.Params{
			"now":      types.NowDateTime().String(),
			"orderId":  orderID,
			"provider": keepProvider,
			"method":   string(keepMethod),
		}).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("store.SupersedeActivePayments: %w", err)
	}
	return res.RowsAffected()
}

func (s *DB) InsertPayment(_ context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := types.NowDateTime()
	if payment.Created.IsZero() {
		payment.Created = now
	}
	_, err := s.app.DB().Insert("payments", dbx.Params{
		"id":                 payment.ID,
		"order_id":           payment.OrderID,
		"provider":           payment.Provider,
		"method":             string(payment.Method),
		"status":             string(payment.Status),
		"provider_reference": payment.ProviderReference,
		"pix_qr_code":        payment.PixQRCode,
		"pix_copy_paste":     payment.PixCopyPaste,
		"checkout_url":       payment.CheckoutURL,
		"raw":                payment.Raw.String(),
		"expires_at":         payment.ExpiresAt.String(),
		"created":            payment.Created.String(),
		"updated":            now.String(),
	}).Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return status.ErrDuplicateActivePayment
		}
		return fmt.Errorf("store.InsertPayment: %w", err)
	}
	return nil
}

func (s *DB) AffiliateByCode(_ context.Context, code string) (*models.Affiliate, error) {
	affiliate := models.Affiliate{}
	err := s.app.DB().
		Select("id", "user_id", "code").
		From("affiliates").
		Where(dbx.HashExp{"code": code}).
		Limit(1).
		One(&affiliate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.AffiliateByCode: %w", err)
	}
	return &affiliate, nil
}

func (s *DB) AffiliateByUser(_ context.Context, userID string) (*models.Affiliate, error) {
	affiliate := models.Affiliate{}
	err := s.app.DB().
		Select("id", "user_id", "code").
		From("affiliates").
		Where(dbx.HashExp{"user_id": userID}).
		Limit(1).
		One(&affiliate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.AffiliateByUser: %w", err)
	}
	return &affiliate, nil
}

func (s *DB) InsertAffiliate(_ context.Context, affiliate *models.Affiliate) error {
	if affiliate.ID == "" {
		affiliate.ID = uuid.NewString()
	}
	now := types.NowDateTime().String()
	_, err := s.app.DB().Insert("affiliates", dbx.Params{
		"id":      affiliate.ID,
		"user_id": affiliate.UserID,
		"code":    affiliate.Code,
		"created": now,
		"updated": now,
	}).Execute()
	if err != nil {
		return fmt.Errorf("store.InsertAffiliate: %w", err)
	}
	return nil
}

func (s *DB) InsertPlatformEvent(_ context.Context, event *models.PlatformEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Level == "" {
		event.Level = "info"
	}
	now := types.NowDateTime().String()
	_, err := s.app.DB().Insert("platform_events", dbx.Params{
		"id":         event.ID,
		"event_type": event.EventType,
		"level":      event.Level,
		"request_id": event.RequestID,
		"order_id":   event.OrderID,
		"raffle_id":  event.RaffleID,
		"provider":   event.Provider,
		"payload":    event.Payload.String(),
		"created":    now,
		"updated":    now,
	}).Execute()
	if err != nil {
		return fmt.Errorf("store.InsertPlatformEvent: %w", err)
	}
	return nil
}

func intArgs(numbers []int) []any {
	args := make([]any, len(numbers))
	for i, n := range numbers {
		args[i] = n
	}
	return args
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
