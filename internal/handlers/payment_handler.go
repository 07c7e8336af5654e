package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
	"raffle-system/internal/services/provider"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateSession opens (or reuses) a provider checkout for the caller's
// pending order.
func (h *PaymentHandler) CreateSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("authentication required", nil)
	}

	req := services.CreateSessionRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid_request", err)
	}
	req.BuyerID = e.Auth.Id
	req.Customer = provider.Customer{
		Name:  e.Auth.GetString("name"),
		Email: e.Auth.Email(),
		Phone: e.Auth.GetString("phone"),
	}

	session, err := h.payments.CreateSession(e.Request.Context(), &req)
	if err != nil {
		return apiError(err)
	}

	code := http.StatusCreated
	if session.Reused {
		code = http.StatusOK
	}
	return e.JSON(code, session)
}

// OrderStatus reports the buyer-visible state of one order for checkout
// polling.
func (h *PaymentHandler) OrderStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("authentication required", nil)
	}

	result, err := h.payments.OrderStatus(e.Request.Context(), e.Request.PathValue("orderId"), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, result)
}
