package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

type RaffleStatus string

const (
	RaffleDraft  RaffleStatus = "draft"
	RaffleActive RaffleStatus = "active"
	RaffleClosed RaffleStatus = "closed"
	RaffleDrawn  RaffleStatus = "drawn"
)

// Raffle is one campaign with its own fixed number pool and unit price.
// TotalNumbers fixes the pool size at activation; numbers are never
// renumbered afterwards.
type Raffle struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Slug         string         `db:"slug" json:"slug"`
	Status       RaffleStatus   `db:"status" json:"status"`
	TotalNumbers int            `db:"total_numbers" json:"total_numbers"`
	PriceCents   int64          `db:"price_cents" json:"price_cents"`
	MaxPerUser   int            `db:"max_per_user" json:"max_per_user"`
	Created      types.DateTime `db:"created" json:"created"`
	Updated      types.DateTime `db:"updated" json:"updated"`
}

func (r *Raffle) IsActive() bool {
	return r.Status == RaffleActive
}

// PoolCounts is the per-status breakdown of a raffle's number pool.
type PoolCounts struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Sold      int `json:"sold"`
}

func (c PoolCounts) Total() int {
	return c.Available + c.Reserved + c.Sold
}
