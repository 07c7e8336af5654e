package status

import "errors"

var (
	// Validation class: rejected before any state is touched.
	ErrInvalidRequest  = errors.New("reserve: invalid request")
	ErrRaffleNotFound  = errors.New("raffle: raffle not found")
	ErrRaffleNotActive = errors.New("raffle: raffle not active")
	ErrOrderNotFound   = errors.New("order: order not found")
	ErrOrderNotPending = errors.New("order: order not pending")
	ErrNotOrderOwner   = errors.New("order: order belongs to another buyer")

	// Contention class: the atomic check failed, caller should retry.
	ErrNumbersUnavailable = errors.New("reserve: numbers unavailable")
	ErrLimitExceeded      = errors.New("reserve: per-user limit exceeded")
	ErrContention         = errors.New("store: transaction contention")

	// Authentication class.
	ErrWebhookAuth     = errors.New("webhook: signature verification failed")
	ErrUnknownProvider = errors.New("payment: unknown provider")

	// Upstream class: transient provider failure, no local state change.
	ErrProviderUnavailable = errors.New("payment: provider unavailable")

	// Storage-level conflict: a concurrent insert won the partial unique
	// index on active payment attempts; callers re-read the winner.
	ErrDuplicateActivePayment = errors.New("payment: active attempt already exists")
)

// Reason maps an error to the machine-readable reason surfaced to API
// clients so they can decide between retrying and stopping.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrRaffleNotFound), errors.Is(err, ErrRaffleNotActive):
		return "invalid_campaign"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrOrderNotPending):
		return "order_not_pending"
	case errors.Is(err, ErrNotOrderOwner):
		return "forbidden"
	case errors.Is(err, ErrNumbersUnavailable):
		return "unavailable"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrWebhookAuth):
		return "unauthorized"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "internal"
	}
}

// Retryable reports whether the client may retry the same class of request.
func Retryable(err error) bool {
	return errors.Is(err, ErrNumbersUnavailable) ||
		errors.Is(err, ErrContention) ||
		errors.Is(err, ErrProviderUnavailable)
}
