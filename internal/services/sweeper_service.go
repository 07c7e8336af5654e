package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-system/internal/realtime"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/monitoring"
)

const sweepLockKey = "sweep:expire-reservations"

// SweeperService reclaims numbers held by pending orders whose payment
// window elapsed. Runs from cron and from an authenticated trigger route;
// both funnel into the same idempotent Sweep.
type SweeperService struct {
	store       store.Store
	pool        *PoolService
	notifier    realtime.Notifier
	redisClient *redis.Client
	batchSize   int
	lockTTL     time.Duration
}

func NewSweeperService(st store.Store, pool *PoolService, notifier realtime.Notifier, redisClient *redis.Client, batchSize int, lockTTL time.Duration) *SweeperService {
	if batchSize <= 0 {
		batchSize = 200
	}
	if lockTTL <= 0 {
		lockTTL = 50 * time.Second
	}
	return &SweeperService{
		store:       st,
		pool:        pool,
		notifier:    notifier,
		redisClient: redisClient,
		batchSize:   batchSize,
		lockTTL:     lockTTL,
	}
}

type SweepResult struct {
	Skipped  bool  `json:"skipped,omitempty"`
	Expired  int   `json:"expired"`
	Released int64 `json:"released"`
}

// Sweep expires due pending orders and returns their numbers to the pool.
// Each order is handled in its own transaction behind the guarded pending
// -> expired transition, so overlapping sweeps and concurrent payment
// confirmations cannot double-process an order.
func (s *SweeperService) Sweep(ctx context.Context) (*SweepResult, error) {
	if s.redisClient != nil {
		acquired, err := s.redisClient.SetNX(ctx, sweepLockKey, "1", s.lockTTL).Result()
		if err != nil {
			slog.Warn("sweep lock unavailable, proceeding unlocked", "error", err)
		} else if !acquired {
			monitoring.TrackSweep("skipped")
			return &SweepResult{Skipped: true}, nil
		} else {
			defer s.redisClient.Del(context.WithoutCancel(ctx), sweepLockKey)
		}
	}

	due, err := s.store.DuePendingOrders(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		monitoring.TrackSweep("error")
		return nil, err
	}

	result := &SweepResult{}
	for i := range due {
		order := due[i]
		released, err := s.expireOrder(ctx, &order)
		if err != nil {
			slog.Error("expire failed", "order", order.ID, "error", err)
			continue
		}
		if released < 0 {
			// Guard lost: a webhook confirmed payment first.
			continue
		}
		result.Expired++
		result.Released += released
	}

	if result.Expired > 0 {
		monitoring.NumbersReleased.Add(float64(result.Released))
		slog.Info("sweep completed", "expired", result.Expired, "released", result.Released)
	}
	monitoring.TrackSweep("completed")
	return result, nil
}

func (s *SweeperService) expireOrder(ctx context.Context, order *models.Order) (int64, error) {
	var released int64 = -1
	var numbers []int
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		transitioned, err := tx.TransitionOrder(ctx, order.ID, models.OrderPending, models.OrderExpired)
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		numbers, err = tx.NumbersForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		released, err = tx.ReleaseNumbersForOrder(ctx, order.ID)
		return err
	})
	if err != nil || released < 0 {
		return released, err
	}

	s.pool.InvalidateStats(ctx, order.RaffleID)
	s.notifier.NotifyNumbers(order.RaffleID, realtime.EventNumbersReleased, numbers)
	return released, nil
}
