package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/tools/types"

	"raffle-system/internal/status"
	"raffle-system/models"
)

// Memory is the embedded, single-process Store implementation. A
// transaction takes the store mutex for its whole duration and runs
// against a snapshot that is swapped in atomically on success, which gives
// the same all-or-nothing, serializable contract as the database store.
// It backs the service tests and small single-node deployments.
type Memory struct {
	mu   sync.Mutex
	data *memData

	// tx marks a transactional view; its methods run with the root mutex
	// already held.
	tx bool
}

type memData struct {
	raffles    map[string]models.Raffle
	numbers    map[string][]models.RaffleNumber // keyed by raffle id, ordered by number
	orders     map[string]models.Order
	payments   []models.Payment
	affiliates []models.Affiliate
	events     []models.PlatformEvent
	seq        int64
}

func NewMemory() *Memory {
	return &Memory{data: &memData{
		raffles: map[string]models.Raffle{},
		numbers: map[string][]models.RaffleNumber{},
		orders:  map[string]models.Order{},
	}}
}

// AddRaffle seeds a raffle and generates its pool. Test/bootstrap helper.
func (s *Memory) AddRaffle(raffle models.Raffle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.raffles[raffle.ID] = raffle
	s.generateNumbers(raffle.ID, raffle.TotalNumbers)
}

func (s *Memory) RunInTransaction(_ context.Context, fn func(tx Store) error) error {
	if s.tx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &Memory{data: snapshot, tx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

func (s *Memory) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Memory) RaffleBySlug(_ context.Context, slug string) (*models.Raffle, error) {
	defer s.lock()()
	for _, raffle := range s.data.raffles {
		if raffle.Slug == slug {
			r := raffle
			return &r, nil
		}
	}
	return nil, status.ErrRaffleNotFound
}

func (s *Memory) RaffleByID(_ context.Context, id string) (*models.Raffle, error) {
	defer s.lock()()
	raffle, ok := s.data.raffles[id]
	if !ok {
		return nil, status.ErrRaffleNotFound
	}
	r := raffle
	return &r, nil
}

func (s *Memory) InsertNumbers(_ context.Context, raffleID string, total int) (int64, error) {
	defer s.lock()()
	existing := len(s.data.numbers[raffleID])
	s.generateNumbers(raffleID, total)
	return int64(len(s.data.numbers[raffleID]) - existing), nil
}

func (s *Memory) generateNumbers(raffleID string, total int) {
	pool := s.data.numbers[raffleID]
	for n := len(pool); n < total; n++ {
		pool = append(pool, models.RaffleNumber{
			ID:       uuid.NewString(),
			RaffleID: raffleID,
			Number:   n,
			Status:   models.NumberAvailable,
		})
	}
	s.data.numbers[raffleID] = pool
}

func (s *Memory) CountNumbersByStatus(_ context.Context, raffleID string) (*models.PoolCounts, error) {
	defer s.lock()()
	counts := models.PoolCounts{}
	for _, num := range s.data.numbers[raffleID] {
		switch num.Status {
		case models.NumberAvailable:
			counts.Available++
		case models.NumberReserved:
			counts.Reserved++
		case models.NumberSold:
			counts.Sold++
		}
	}
	return &counts, nil
}

func (s *Memory) NumbersPage(_ context.Context, raffleID string, offset, limit int) ([]models.NumberTile, error) {
	defer s.lock()()
	pool := s.data.numbers[raffleID]
	if offset >= len(pool) {
		return []models.NumberTile{}, nil
	}
	end := min(offset+limit, len(pool))

	tiles := make([]models.NumberTile, 0, end-offset)
	for _, num := range pool[offset:end] {
		tiles = append(tiles, models.NumberTile{Number: num.Number, Status: num.Status})
	}
	return tiles, nil
}

func (s *Memory) RandomAvailableNumbers(_ context.Context, raffleID string, count int, excluding []int) ([]int, error) {
	defer s.lock()()
	skip := make(map[int]bool, len(excluding))
	for _, n := range excluding {
		skip[n] = true
	}

	candidates := []int{}
	for _, num := range s.data.numbers[raffleID] {
		if num.Status == models.NumberAvailable && !skip[num.Number] {
			candidates = append(candidates, num.Number)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

func (s *Memory) ClaimNumbers(_ context.Context, raffleID, orderID string, numbers []int) (int64, error) {
	defer s.lock()()
	wanted := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		wanted[n] = true
	}

	var claimed int64
	pool := s.data.numbers[raffleID]
	for i := range pool {
		if wanted[pool[i].Number] && pool[i].Status == models.NumberAvailable {
			pool[i].Status = models.NumberReserved
			pool[i].OrderID = orderID
			claimed++
		}
	}
	return claimed, nil
}

func (s *Memory) BuyerNumberCount(_ context.Context, raffleID, buyerID string) (int, error) {
	defer s.lock()()
	total := 0
	for _, num := range s.data.numbers[raffleID] {
		if num.OrderID == "" || num.Status == models.NumberAvailable {
			continue
		}
		if order, ok := s.data.orders[num.OrderID]; ok && order.BuyerID == buyerID {
			total++
		}
	}
	return total, nil
}

func (s *Memory) NumbersForOrder(_ context.Context, orderID string) ([]int, error) {
	defer s.lock()()
	numbers := []int{}
	for _, pool := range s.data.numbers {
		for _, num := range pool {
			if num.OrderID == orderID && num.Status != models.NumberAvailable {
				numbers = append(numbers, num.Number)
			}
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (s *Memory) ReleaseNumbersForOrder(_ context.Context, orderID string) (int64, error) {
	defer s.lock()()
	var released int64
	for _, pool := range s.data.numbers {
		for i := range pool {
			if pool[i].OrderID == orderID && pool[i].Status == models.NumberReserved {
				pool[i].Status = models.NumberAvailable
				pool[i].OrderID = ""
				pool[i].BuyerID = ""
				released++
			}
		}
	}
	return released, nil
}

func (s *Memory) MarkNumbersSold(_ context.Context, orderID, buyerID string) (int64, error) {
	defer s.lock()()
	var sold int64
	for _, pool := range s.data.numbers {
		for i := range pool {
			if pool[i].OrderID == orderID && pool[i].Status == models.NumberReserved {
				pool[i].Status = models.NumberSold
				pool[i].BuyerID = buyerID
				sold++
			}
		}
	}
	return sold, nil
}

func (s *Memory) InsertOrder(_ context.Context, order *models.Order) error {
	defer s.lock()()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Created.IsZero() {
		order.Created = types.NowDateTime()
	}
	s.data.seq++
	s.data.orders[order.ID] = *order
	return nil
}

func (s *Memory) OrderByID(_ context.Context, id string) (*models.Order, error) {
	defer s.lock()()
	order, ok := s.data.orders[id]
	if !ok {
		return nil, status.ErrOrderNotFound
	}
	o := order
	return &o, nil
}

func (s *Memory) LatestOrderForBuyer(_ context.Context, raffleID, buyerID string) (*models.Order, error) {
	defer s.lock()()
	var latest *models.Order
	for _, order := range s.data.orders {
		if order.RaffleID != raffleID || order.BuyerID != buyerID {
			continue
		}
		if order.Status != models.OrderPending && order.Status != models.OrderPaid {
			continue
		}
		if latest == nil || order.Created.Time().After(latest.Created.Time()) {
			o := order
			latest = &o
		}
	}
	return latest, nil
}

func (s *Memory) DuePendingOrders(_ context.Context, now time.Time, limit int) ([]models.Order, error) {
	defer s.lock()()
	due := []models.Order{}
	for _, order := range s.data.orders {
		if order.Due(now) {
			due = append(due, order)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Time().Before(due[j].ExpiresAt.Time())
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Memory) TransitionOrder(_ context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	defer s.lock()()
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("store.TransitionOrder: invalid transition %s -> %s", from, to)
	}
	order, ok := s.data.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	if to == models.OrderPaid {
		order.PaidAt = types.NowDateTime()
	}
	s.data.orders[orderID] = order
	return true, nil
}

func (s *Memory) SetOrderAffiliate(_ context.Context, orderID, code string) error {
	defer s.lock()()
	order, ok := s.data.orders[orderID]
	if !ok {
		return status.ErrOrderNotFound
	}
	order.AffiliateCode = code
	s.data.orders[orderID] = order
	return nil
}

func (s *Memory) ActivePayment(_ context.Context, orderID, provider string, method models.PaymentMethod) (*models.Payment, error) {
	defer s.lock()()
	for i := len(s.data.payments) - 1; i >= 0; i-- {
		p := s.data.payments[i]
		if p.OrderID == orderID && p.Provider == provider && p.Method == method && p.Status.Active() {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Memory) LatestPayment(_ context.Context, orderID string) (*models.Payment, error) {
	defer s.lock()()
	for i := len(s.data.payments) - 1; i >= 0; i-- {
		if s.data.payments[i].OrderID == orderID {
			p := s.data.payments[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Memory) SupersedeActivePayments(_ context.Context, orderID, keepProvider string, keepMethod models.PaymentMethod) (int64, error) {
	defer s.lock()()
	var superseded int64
	for i := range s.data.payments {
		p := &s.data.payments[i]
		if p.OrderID != orderID || !p.Status.Active() {
			continue
		}
		if p.Provider == keepProvider && p.Method == keepMethod {
			continue
		}
		p.Status = models.PaymentFailed
		superseded++
	}
	return superseded, nil
}

func (s *Memory) InsertPayment(_ context.Context, payment *models.Payment) error {
	defer s.lock()()
	if payment.Status.Active() {
		for _, p := range s.data.payments {
			if p.OrderID == payment.OrderID && p.Provider == payment.Provider && p.Method == payment.Method && p.Status.Active() {
				return status.ErrDuplicateActivePayment
			}
		}
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Created.IsZero() {
		payment.Created = types.NowDateTime()
	}
	s.data.payments = append(s.data.payments, *payment)
	return nil
}

func (s *Memory) AffiliateByCode(_ context.Context, code string) (*models.Affiliate, error) {
	defer s.lock()()
	for _, affiliate := range s.data.affiliates {
		if affiliate.Code == code {
			a := affiliate
			return &a, nil
		}
	}
	return nil, nil
}

func (s *Memory) AffiliateByUser(_ context.Context, userID string) (*models.Affiliate, error) {
	defer s.lock()()
	for _, affiliate := range s.data.affiliates {
		if affiliate.UserID == userID {
			a := affiliate
			return &a, nil
		}
	}
	return nil, nil
}

func (s *Memory) InsertAffiliate(_ context.Context, affiliate *models.Affiliate) error {
	defer s.lock()()
	for _, existing := range s.data.affiliates {
		if existing.Code == affiliate.Code || existing.UserID == affiliate.UserID {
			return fmt.Errorf("store.InsertAffiliate: duplicate code or user")
		}
	}
	if affiliate.ID == "" {
		affiliate.ID = uuid.NewString()
	}
	s.data.affiliates = append(s.data.affiliates, *affiliate)
	return nil
}

func (s *Memory) InsertPlatformEvent(_ context.Context, event *models.PlatformEvent) error {
	defer s.lock()()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Level == "" {
		event.Level = "info"
	}
	s.data.events = append(s.data.events, *event)
	return nil
}

// PlatformEvents returns a copy of the recorded operational events.
func (s *Memory) PlatformEvents() []models.PlatformEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]models.PlatformEvent, len(s.data.events))
	copy(events, s.data.events)
	return events
}

// Payments returns a copy of all recorded payment attempts.
func (s *Memory) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	payments := make([]models.Payment, len(s.data.payments))
	copy(payments, s.data.payments)
	return payments
}

func (d *memData) clone() *memData {
	next := &memData{
		raffles:    make(map[string]models.Raffle, len(d.raffles)),
		numbers:    make(map[string][]models.RaffleNumber, len(d.numbers)),
		orders:     make(map[string]models.Order, len(d.orders)),
		payments:   append([]models.Payment(nil), d.payments...),
		affiliates: append([]models.Affiliate(nil), d.affiliates...),
		events:     append([]models.PlatformEvent(nil), d.events...),
		seq:        d.seq,
	}
	for id, raffle := range d.raffles {
		next.raffles[id] = raffle
	}
	for id, pool := range d.numbers {
		next.numbers[id] = append([]models.RaffleNumber(nil), pool...)
	}
	for id, order := range d.orders {
		next.orders[id] = order
	}
	return next
}
