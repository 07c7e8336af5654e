// Package realtime broadcasts pool changes so number-grid UIs update
// without polling the paged listing.
package realtime

import (
	"log/slog"

	pubnub "github.com/pubnub/go"
)

const (
	EventNumbersReserved = "numbers_reserved"
	EventNumbersReleased = "numbers_released"
	EventNumbersSold     = "numbers_sold"
)

type Notifier interface {
	// NotifyNumbers publishes a pool change for a raffle. Best-effort:
	// failures are logged, never propagated, and never affect state.
	NotifyNumbers(raffleID, event string, numbers []int)
}

type PubNubNotifier struct {
	client *pubnub.PubNub
}

func NewPubNubNotifier(publishKey, subscribeKey, uuid string) *PubNubNotifier {
	cfg := pubnub.NewConfig()
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.UUID = uuid
	return &PubNubNotifier{client: pubnub.NewPubNub(cfg)}
}

func (n *PubNubNotifier) NotifyNumbers(raffleID, event string, numbers []int) {
	message := map[string]any{
		"event":   event,
		"numbers": numbers,
	}

	go func() {
		_, status, err := n.client.Publish().
			Channel("raffle-" + raffleID).
			Message(message).
			Execute()
		if err != nil || status.Error != nil {
			slog.Warn("realtime publish failed", "raffle", raffleID, "event", event, "error", err)
		}
	}()
}

// NopNotifier is used when no realtime keys are configured and in tests.
type NopNotifier struct{}

func (NopNotifier) NotifyNumbers(string, string, []int) {}
