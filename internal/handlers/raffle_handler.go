package handlers

import (
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
)

type RaffleHandler struct {
	pool     *services.PoolService
	payments *services.PaymentService
}

func NewRaffleHandler(pool *services.PoolService, payments *services.PaymentService) *RaffleHandler {
	return &RaffleHandler{pool: pool, payments: payments}
}

// Numbers serves the paged public number grid for a raffle.
func (h *RaffleHandler) Numbers(e *core.RequestEvent) error {
	slug := e.Request.PathValue("slug")
	page := queryInt(e, "page", 1)
	perPage := queryInt(e, "per_page", 0)

	result, err := h.pool.Page(e.Request.Context(), slug, page, perPage)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, result)
}

// ActiveCheckout tells a returning buyer whether they already hold a
// pending order in this raffle, so the UI resumes checkout instead of
// reserving again.
func (h *RaffleHandler) ActiveCheckout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("authentication required", nil)
	}

	result, err := h.payments.ActiveCheckout(e.Request.Context(), e.Request.PathValue("slug"), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	if result == nil {
		return e.JSON(http.StatusOK, map[string]any{"active": false})
	}
	return e.JSON(http.StatusOK, map[string]any{"active": true, "checkout": result})
}

func queryInt(e *core.RequestEvent, name string, fallback int) int {
	raw := e.Request.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
