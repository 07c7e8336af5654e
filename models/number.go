package models

type NumberStatus string

const (
	NumberAvailable NumberStatus = "available"
	NumberReserved  NumberStatus = "reserved"
	NumberSold      NumberStatus = "sold"
)

// CanTransitionTo encodes the number lifecycle: available -> reserved,
// reserved -> sold, reserved -> available (release). A number never goes
// straight from available to sold.
func (s NumberStatus) CanTransitionTo(next NumberStatus) bool {
	switch s {
	case NumberAvailable:
		return next == NumberReserved
	case NumberReserved:
		return next == NumberSold || next == NumberAvailable
	default:
		return false
	}
}

// RaffleNumber is one purchasable slot in a raffle's pool. OrderID is set
// while the number is reserved or sold; BuyerID only once sold.
type RaffleNumber struct {
	ID       string       `db:"id" json:"id"`
	RaffleID string       `db:"raffle_id" json:"raffle_id"`
	Number   int          `db:"number" json:"number"`
	Status   NumberStatus `db:"status" json:"status"`
	OrderID  string       `db:"order_id" json:"order_id,omitempty"`
	BuyerID  string       `db:"buyer_id" json:"buyer_id,omitempty"`
}

// NumberTile is the public projection used by the paged pool listing.
type NumberTile struct {
	Number int          `db:"number" json:"number"`
	Status NumberStatus `db:"status" json:"status"`
}
