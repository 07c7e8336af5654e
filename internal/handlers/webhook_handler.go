package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
	"raffle-system/internal/services/provider"
	"raffle-system/internal/status"
	"raffle-system/utils"
)

type WebhookHandler struct {
	webhooks       *services.WebhookService
	sweeper        *services.SweeperService
	cronSecretHash string
}

func NewWebhookHandler(webhooks *services.WebhookService, sweeper *services.SweeperService, cronSecretHash string) *WebhookHandler {
	return &WebhookHandler{
		webhooks:       webhooks,
		sweeper:        sweeper,
		cronSecretHash: cronSecretHash,
	}
}

// Receive handles a provider delivery. Conflicts and duplicates still
// answer 200 so the provider stops retrying; only verification failures
// and internal errors are non-2xx.
func (h *WebhookHandler) Receive(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, 1<<20))
	if err != nil {
		return apis.NewBadRequestError("unreadable body", err)
	}

	headers := make(map[string]string, len(e.Request.Header))
	for name := range e.Request.Header {
		headers[name] = e.Request.Header.Get(name)
	}
	query := make(map[string]string)
	for name := range e.Request.URL.Query() {
		query[name] = e.Request.URL.Query().Get(name)
	}

	result, err := h.webhooks.Reconcile(e.Request.Context(), e.Request.PathValue("provider"), &provider.WebhookRequest{
		Body:    body,
		Headers: headers,
		Query:   query,
	})
	if err != nil {
		if errors.Is(err, status.ErrWebhookAuth) || errors.Is(err, status.ErrUnknownProvider) {
			return apiError(err)
		}
		// Transient failure: non-2xx makes the provider redeliver.
		return apis.NewApiError(http.StatusInternalServerError, "reconciliation failed", nil)
	}
	return e.JSON(http.StatusOK, map[string]any{"received": true, "outcome": result.Outcome})
}

// TriggerSweep runs the expiration sweep on demand, authenticated by a
// shared secret checked against its bcrypt hash.
func (h *WebhookHandler) TriggerSweep(e *core.RequestEvent) error {
	if h.cronSecretHash == "" {
		return apis.NewForbiddenError("sweep trigger disabled", nil)
	}
	if !utils.CompareHash(h.cronSecretHash, e.Request.Header.Get("x-cron-secret")) {
		return apis.NewUnauthorizedError("invalid cron secret", nil)
	}

	result, err := h.sweeper.Sweep(e.Request.Context())
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "sweep failed", nil)
	}
	return e.JSON(http.StatusOK, result)
}
