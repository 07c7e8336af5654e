package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/tools/types"

	"raffle-system/internal/realtime"
	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/monitoring"
)

// maxRandomRedraws bounds how many times a quantity-based reservation
// redraws after losing candidates to concurrent claims. Past the bound the
// request fails as unavailable rather than spinning against a hot pool.
const maxRandomRedraws = 3

// ReservationService turns an explicit or quantity-based request into a
// pending order holding reserved numbers, atomically.
type ReservationService struct {
	store         store.Store
	pool          *PoolService
	notifier      realtime.Notifier
	ttl           time.Duration
	maxPerRequest int
}

func NewReservationService(st store.Store, pool *PoolService, notifier realtime.Notifier, ttl time.Duration, maxPerRequest int) *ReservationService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxPerRequest <= 0 {
		maxPerRequest = 200
	}
	return &ReservationService{
		store:         st,
		pool:          pool,
		notifier:      notifier,
		ttl:           ttl,
		maxPerRequest: maxPerRequest,
	}
}

type ReserveRequest struct {
	Slug    string `json:"-"`
	BuyerID string `json:"-"`
	// Numbers picks specific slots; Quantity asks for a random draw.
	// Exactly one must be set.
	Numbers       []int  `json:"numbers"`
	Quantity      int    `json:"quantity"`
	AffiliateCode string `json:"affiliate_code"`
}

type ReserveResult struct {
	OrderID         string         `json:"orderId"`
	ReservedNumbers []int          `json:"reservedNumbers"`
	AmountCents     int64          `json:"amountCents"`
	ExpiresAt       types.DateTime `json:"expiresAt"`
}

func (s *ReservationService) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResult, error) {
	raffle, err := s.pool.ActiveRaffle(ctx, req.Slug)
	if err != nil {
		monitoring.TrackReservation("invalid_campaign")
		return nil, err
	}
	if err := s.validate(req, raffle); err != nil {
		monitoring.TrackReservation("invalid_request")
		return nil, err
	}

	count := req.Quantity
	if len(req.Numbers) > 0 {
		count = len(req.Numbers)
	}

	expiresAt, err := types.ParseDateTime(time.Now().UTC().Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("reserve: compute deadline: %w", err)
	}

	order := &models.Order{
		RaffleID:    raffle.ID,
		BuyerID:     req.BuyerID,
		Status:      models.OrderPending,
		AmountCents: int64(count) * raffle.PriceCents,
		ExpiresAt:   expiresAt,
	}

	started := time.Now()
	var allocated []int
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		if len(req.Numbers) > 0 {
			if err := s.claimExplicit(ctx, tx, raffle.ID, order.ID, req.Numbers); err != nil {
				return err
			}
		} else {
			if err := s.claimRandom(ctx, tx, raffle.ID, order.ID, req.Quantity); err != nil {
				return err
			}
		}

		// The per-buyer cap is checked after claiming, inside the same
		// transaction, so two concurrent reservations cannot both sneak
		// under it.
		if raffle.MaxPerUser > 0 {
			held, err := tx.BuyerNumberCount(ctx, raffle.ID, req.BuyerID)
			if err != nil {
				return err
			}
			if held > raffle.MaxPerUser {
				return status.ErrLimitExceeded
			}
		}

		allocated, err = tx.NumbersForOrder(ctx, order.ID)
		return err
	})
	monitoring.ReservationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		monitoring.TrackReservation(status.Reason(err))
		return nil, err
	}

	if req.AffiliateCode != "" {
		s.attachAffiliate(ctx, order.ID, req.AffiliateCode)
	}

	monitoring.TrackReservation("reserved")
	monitoring.NumbersReserved.Add(float64(len(allocated)))
	s.pool.InvalidateStats(ctx, raffle.ID)
	s.notifier.NotifyNumbers(raffle.ID, realtime.EventNumbersReserved, allocated)
	slog.Info("reservation created",
		"raffle", raffle.ID, "order", order.ID, "buyer", req.BuyerID, "numbers", len(allocated))

	return &ReserveResult{
		OrderID:         order.ID,
		ReservedNumbers: allocated,
		AmountCents:     order.AmountCents,
		ExpiresAt:       order.ExpiresAt,
	}, nil
}

func (s *ReservationService) validate(req *ReserveRequest, raffle *models.Raffle) error {
	if req.BuyerID == "" {
		return status.ErrInvalidRequest
	}
	if (len(req.Numbers) == 0) == (req.Quantity == 0) {
		return status.ErrInvalidRequest
	}
	if req.Quantity < 0 || req.Quantity > s.maxPerRequest || len(req.Numbers) > s.maxPerRequest {
		return status.ErrInvalidRequest
	}

	seen := make(map[int]bool, len(req.Numbers))
	for _, n := range req.Numbers {
		if n < 0 || n >= raffle.TotalNumbers || seen[n] {
			return status.ErrInvalidRequest
		}
		seen[n] = true
	}
	return nil
}

// claimExplicit is all-or-nothing: if any requested number was taken in
// the meantime, the whole reservation aborts.
func (s *ReservationService) claimExplicit(ctx context.Context, tx store.Store, raffleID, orderID string, numbers []int) error {
	claimed, err := tx.ClaimNumbers(ctx, raffleID, orderID, numbers)
	if err != nil {
		return err
	}
	if claimed != int64(len(numbers)) {
		return status.ErrNumbersUnavailable
	}
	return nil
}

// claimRandom draws candidates and claims them, redrawing when concurrent
// reservations steal part of a draw.
func (s *ReservationService) claimRandom(ctx context.Context, tx store.Store, raffleID, orderID string, quantity int) error {
	remaining := quantity
	var drawn []int

	for attempt := 0; attempt <= maxRandomRedraws && remaining > 0; attempt++ {
		candidates, err := tx.RandomAvailableNumbers(ctx, raffleID, remaining, drawn)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return status.ErrNumbersUnavailable
		}
		drawn = append(drawn, candidates...)

		claimed, err := tx.ClaimNumbers(ctx, raffleID, orderID, candidates)
		if err != nil {
			return err
		}
		remaining -= int(claimed)
	}

	if remaining > 0 {
		return status.ErrNumbersUnavailable
	}
	return nil
}

// attachAffiliate records attribution after commit. Best-effort: a bad or
// missing code never fails a completed reservation.
func (s *ReservationService) attachAffiliate(ctx context.Context, orderID, code string) {
	affiliate, err := s.store.AffiliateByCode(ctx, code)
	if err != nil || affiliate == nil {
		slog.Warn("unknown affiliate code ignored", "order", orderID, "code", code)
		return
	}
	if err := s.store.SetOrderAffiliate(ctx, orderID, affiliate.Code); err != nil {
		slog.Warn("affiliate attribution failed", "order", orderID, "code", code, "error", err)
	}
}
