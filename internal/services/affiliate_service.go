package services

import (
	"context"
	"errors"
	"log/slog"

	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/utils"
)

// AffiliateService hands out referral codes. Enrollment is idempotent per
// user.
type AffiliateService struct {
	store store.Store
}

func NewAffiliateService(st store.Store) *AffiliateService {
	return &AffiliateService{store: st}
}

// Enroll returns the user's affiliate record, creating one with a fresh
// code on first call. The second return reports whether it was created.
func (s *AffiliateService) Enroll(ctx context.Context, userID string) (*models.Affiliate, bool, error) {
	existing, err := s.store.AffiliateByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	// 8 hex chars; collisions are caught by the unique code index and are
	// worth a retry, not a failure.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := utils.GenerateCode(4)
		if err != nil {
			return nil, false, err
		}
		affiliate := &models.Affiliate{UserID: userID, Code: code}
		if err := s.store.InsertAffiliate(ctx, affiliate); err != nil {
			slog.Warn("affiliate code collision, retrying", "user", userID, "error", err)
			continue
		}
		return affiliate, true, nil
	}

	return nil, false, errors.New("affiliate: could not allocate a unique code")
}

func (s *AffiliateService) ForUser(ctx context.Context, userID string) (*models.Affiliate, error) {
	return s.store.AffiliateByUser(ctx, userID)
}
