// Package ledger keeps a bot's security holdings and its append-only trade history.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"evotrader/internal/model"
)

var (
	ErrInvalidAmount        = errors.New("trade amount must be positive")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// Bag is the holdings map plus transaction history of one bot for one simulation.
// Holdings never go negative: a rejected sell leaves the bag untouched.
type Bag struct {
	holdings map[model.SecurityID]int64
	history  []model.Transaction
}

func New() *Bag {
	return NewSized(0)
}

// NewSized preallocates room for securityCount holdings.
func NewSized(securityCount int) *Bag {
	if securityCount < 0 {
		securityCount = 0
	}
	return &Bag{holdings: make(map[model.SecurityID]int64, securityCount)}
}

func (b *Bag) Buy(time int64, id model.SecurityID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: buy %d of security %d", ErrInvalidAmount, amount, id)
	}
	b.holdings[id] += amount
	b.history = append(b.history, model.Transaction{Time: time, SecurityID: id, Amount: amount})
	return nil
}

func (b *Bag) Sell(time int64, id model.SecurityID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: sell %d of security %d", ErrInvalidAmount, amount, id)
	}
	held := b.holdings[id]
	if amount > held {
		return fmt.Errorf("%w: security %d held=%d requested=%d", ErrInsufficientHoldings, id, held, amount)
	}
	b.holdings[id] = held - amount
	b.history = append(b.history, model.Transaction{Time: time, SecurityID: id, Amount: -amount})
	return nil
}

// Amount returns the held amount, 0 for securities never traded.
func (b *Bag) Amount(id model.SecurityID) int64 {
	return b.holdings[id]
}

// Valuate prices every non-zero holding. Securities without a price are skipped.
// Ids are visited in ascending order so the float sum is reproducible.
func (b *Bag) Valuate(prices map[model.SecurityID]float64) float64 {
	total := 0.0
	for _, id := range b.heldIDs() {
		price, ok := prices[id]
		if !ok {
			continue
		}
		total += float64(b.holdings[id]) * price
	}
	return total
}

// Holdings returns a copy of the non-zero holdings.
func (b *Bag) Holdings() map[model.SecurityID]int64 {
	out := make(map[model.SecurityID]int64, len(b.holdings))
	for id, amount := range b.holdings {
		if amount != 0 {
			out[id] = amount
		}
	}
	return out
}

func (b *Bag) History() []model.Transaction {
	return append([]model.Transaction(nil), b.history...)
}

func (b *Bag) heldIDs() []model.SecurityID {
	ids := make([]model.SecurityID, 0, len(b.holdings))
	for id, amount := range b.holdings {
		if amount != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
