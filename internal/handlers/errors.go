package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"raffle-system/internal/status"
)

// apiError maps service errors onto HTTP responses. Contention-class
// failures answer 409 with a machine-readable reason and a retry hint so
// clients can distinguish "pick other numbers" from "stop".
func apiError(err error) error {
	reason := status.Reason(err)
	switch {
	case errors.Is(err, status.ErrInvalidRequest),
		errors.Is(err, status.ErrRaffleNotActive):
		return apis.NewBadRequestError(reason, err)
	case errors.Is(err, status.ErrRaffleNotFound),
		errors.Is(err, status.ErrOrderNotFound),
		errors.Is(err, status.ErrUnknownProvider):
		return apis.NewNotFoundError(reason, err)
	case errors.Is(err, status.ErrNotOrderOwner):
		return apis.NewForbiddenError(reason, err)
	case errors.Is(err, status.ErrWebhookAuth):
		return apis.NewUnauthorizedError(reason, err)
	case errors.Is(err, status.ErrNumbersUnavailable),
		errors.Is(err, status.ErrLimitExceeded),
		errors.Is(err, status.ErrContention),
		errors.Is(err, status.ErrOrderNotPending):
		return apis.NewApiError(http.StatusConflict, reason, map[string]any{
			"reason":    reason,
			"retryable": status.Retryable(err),
		})
	case errors.Is(err, status.ErrProviderUnavailable):
		return apis.NewApiError(http.StatusBadGateway, reason, map[string]any{
			"reason":    reason,
			"retryable": true,
		})
	default:
		return apis.NewApiError(http.StatusInternalServerError, "something went wrong", nil)
	}
}
