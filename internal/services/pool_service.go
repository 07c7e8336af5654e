package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
)

const statsCacheTTL = 5 * time.Second

// PoolService owns the number pool: generation when a raffle activates,
// the paged public listing, and cached availability counts.
type PoolService struct {
	store       store.Store
	redisClient *redis.Client
	pageSize    int
	pageSizeMax int
}

func NewPoolService(st store.Store, redisClient *redis.Client, pageSize, pageSizeMax int) *PoolService {
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSizeMax <= 0 {
		pageSizeMax = 500
	}
	return &PoolService{
		store:       st,
		redisClient: redisClient,
		pageSize:    pageSize,
		pageSizeMax: pageSizeMax,
	}
}

// Generate materializes the pool [0, TotalNumbers) for a raffle. Idempotent:
// numbers that already exist are left untouched, so re-activating a raffle
// never resets sold or reserved state.
func (s *PoolService) Generate(ctx context.Context, raffle *models.Raffle) (int64, error) {
	created, err := s.store.InsertNumbers(ctx, raffle.ID, raffle.TotalNumbers)
	if err != nil {
		return 0, err
	}
	if created > 0 {
		slog.Info("generated raffle pool", "raffle", raffle.ID, "created", created, "total", raffle.TotalNumbers)
	}
	return created, nil
}

type NumbersPage struct {
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
	Total   int                 `json:"total"`
	Numbers []models.NumberTile `json:"numbers"`
	Counts  *models.PoolCounts  `json:"counts"`
}

// Page lists a deterministic, number-ordered slice of the pool.
func (s *PoolService) Page(ctx context.Context, slug string, page, perPage int) (*NumbersPage, error) {
	raffle, err := s.store.RaffleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = s.pageSize
	}
	if perPage > s.pageSizeMax {
		perPage = s.pageSizeMax
	}

	tiles, err := s.store.NumbersPage(ctx, raffle.ID, (page-1)*perPage, perPage)
	if err != nil {
		return nil, err
	}
	counts, err := s.Counts(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}

	return &NumbersPage{
		Page:    page,
		PerPage: perPage,
		Total:   raffle.TotalNumbers,
		Numbers: tiles,
		Counts:  counts,
	}, nil
}

// Counts returns availability totals, served from a short-lived redis
// cache when one is configured. The pool itself stays authoritative:
// reservations re-check availability transactionally.
func (s *PoolService) Counts(ctx context.Context, raffleID string) (*models.PoolCounts, error) {
	key := statsKey(raffleID)
	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, key).Result(); err == nil {
			var counts models.PoolCounts
			if json.Unmarshal([]byte(cached), &counts) == nil {
				return &counts, nil
			}
		}
	}

	counts, err := s.store.CountNumbersByStatus(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if encoded, err := json.Marshal(counts); err == nil {
			if err := s.redisClient.Set(ctx, key, encoded, statsCacheTTL).Err(); err != nil {
				slog.Warn("stats cache write failed", "raffle", raffleID, "error", err)
			}
		}
	}
	return counts, nil
}

// InvalidateStats drops the cached counts after a pool mutation.
func (s *PoolService) InvalidateStats(ctx context.Context, raffleID string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, statsKey(raffleID)).Err(); err != nil {
		slog.Warn("stats cache invalidation failed", "raffle", raffleID, "error", err)
	}
}

func statsKey(raffleID string) string {
	return "pool:stats:" + raffleID
}

// ActiveRaffle resolves a slug and enforces that the raffle accepts
// reservations.
func (s *PoolService) ActiveRaffle(ctx context.Context, slug string) (*models.Raffle, error) {
	raffle, err := s.store.RaffleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !raffle.IsActive() {
		return nil, status.ErrRaffleNotActive
	}
	return raffle, nil
}
