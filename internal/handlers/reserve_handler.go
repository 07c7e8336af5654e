package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
)

type ReserveHandler struct {
	reservations *services.ReservationService
}

func NewReserveHandler(reservations *services.ReservationService) *ReserveHandler {
	return &ReserveHandler{reservations: reservations}
}

func (h *ReserveHandler) Reserve(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("authentication required", nil)
	}

	req := services.ReserveRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid_request", err)
	}
	req.Slug = e.Request.PathValue("slug")
	req.BuyerID = e.Auth.Id

	result, err := h.reservations.Reserve(e.Request.Context(), &req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, result)
}
