// Package bot binds a policy to a cash balance and a holdings ledger and turns
// raw policy outputs into sized, affordability-checked orders.
package bot

import (
	"math"

	"github.com/shopspring/decimal"

	"evotrader/internal/brain"
	"evotrader/internal/ledger"
	"evotrader/internal/model"
)

// Decider is the part of a policy a bot needs.
type Decider interface {
	Decide(in brain.Input) brain.Decision
}

type Action int

const (
	ActionNothing Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "nothing"
	}
}

type Order struct {
	Action Action
	Amount int64
}

type Bot struct {
	policy Decider
	cash   decimal.Decimal
	bag    *ledger.Bag

	// Lookback limits how many of the most recent candles reach the policy; 0 passes the whole window.
	Lookback int
}

func New(policy Decider) *Bot {
	return &Bot{policy: policy, bag: ledger.New()}
}

// PrepareTrading resets cash and the ledger; it must be called before every simulation.
func (b *Bot) PrepareTrading(cash float64, securityCount int) {
	b.cash = decimal.NewFromFloat(cash)
	b.bag = ledger.NewSized(securityCount)
}

// CanBuy reports whether cash strictly exceeds the cost of amount units.
func (b *Bot) CanBuy(price float64, amount int64) bool {
	if amount <= 0 || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	return b.cash.GreaterThan(cost(price, amount))
}

func (b *Bot) CanSell(id model.SecurityID, amount int64) bool {
	return amount > 0 && b.bag.Amount(id) >= amount
}

// Decide asks the policy about one security and sizes the winning action.
// Buy wins unless sell or hold is strictly greater; sell wins over hold
// unless hold is strictly greater.
func (b *Bot) Decide(time int64, id model.SecurityID, price float64, window []model.Candle) Order {
	held := b.bag.Amount(id)
	cash := b.cash.InexactFloat64()
	decision := b.policy.Decide(brain.Input{
		Time:     time,
		Cash:     cash,
		Price:    price,
		Holdings: held,
		Window:   b.visible(window),
	})

	switch rank(decision) {
	case ActionBuy:
		if price <= 0 {
			return Order{Action: ActionNothing}
		}
		amount, ok := floorAmount(cash / price * decision.TradeFraction)
		if !ok || !b.CanBuy(price, amount) {
			return Order{Action: ActionNothing}
		}
		return Order{Action: ActionBuy, Amount: amount}
	case ActionSell:
		amount, ok := floorAmount(float64(held) * decision.TradeFraction)
		if !ok || !b.CanSell(id, amount) {
			return Order{Action: ActionNothing}
		}
		return Order{Action: ActionSell, Amount: amount}
	default:
		return Order{Action: ActionNothing}
	}
}

// Buy re-checks affordability, then moves cash and ledger together.
func (b *Bot) Buy(time int64, id model.SecurityID, price float64, amount int64) bool {
	if !b.CanBuy(price, amount) {
		return false
	}
	if err := b.bag.Buy(time, id, amount); err != nil {
		return false
	}
	b.cash = b.cash.Sub(cost(price, amount))
	return true
}

// Sell surfaces ledger errors without touching cash.
func (b *Bot) Sell(time int64, id model.SecurityID, price float64, amount int64) (bool, error) {
	if err := b.bag.Sell(time, id, amount); err != nil {
		return false, err
	}
	b.cash = b.cash.Add(cost(price, amount))
	return true, nil
}

func (b *Bot) Cash() float64 {
	return b.cash.InexactFloat64()
}

// Wealth is cash plus holdings valued at prices.
func (b *Bot) Wealth(prices map[model.SecurityID]float64) float64 {
	return b.cash.InexactFloat64() + b.bag.Valuate(prices)
}

func (b *Bot) Holdings() map[model.SecurityID]int64 {
	return b.bag.Holdings()
}

func (b *Bot) History() []model.Transaction {
	return b.bag.History()
}

func (b *Bot) Policy() Decider {
	return b.policy
}

func (b *Bot) visible(window []model.Candle) []model.Candle {
	if b.Lookback > 0 && len(window) > b.Lookback {
		return window[len(window)-b.Lookback:]
	}
	return window
}

func rank(d brain.Decision) Action {
	if !(d.Sell > d.Buy) && !(d.Hold > d.Buy) {
		return ActionBuy
	}
	if !(d.Hold > d.Sell) {
		return ActionSell
	}
	return ActionNothing
}

func floorAmount(size float64) (int64, bool) {
	size = math.Floor(size)
	if math.IsNaN(size) || size < 1 || size >= math.MaxInt64 {
		return 0, false
	}
	return int64(size), true
}

func cost(price float64, amount int64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(amount))
}
