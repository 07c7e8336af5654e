package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
)

type AffiliateHandler struct {
	affiliates *services.AffiliateService
}

func NewAffiliateHandler(affiliates *services.AffiliateService) *AffiliateHandler {
	return &AffiliateHandler{affiliates: affiliates}
}

// Enroll gives the caller a referral code, idempotently.
func (h *AffiliateHandler) Enroll(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("authentication required", nil)
	}

	affiliate, created, err := h.affiliates.Enroll(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return e.JSON(code, affiliate)
}

// Me returns the caller's affiliate record, if enrolled.
func (h *AffiliateHandler) Me(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("authentication required", nil)
	}

	affiliate, err := h.affiliates.ForUser(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	if affiliate == nil {
		return e.JSON(http.StatusOK, map[string]any{"enrolled": false})
	}
	return e.JSON(http.StatusOK, map[string]any{"enrolled": true, "affiliate": affiliate})
}
