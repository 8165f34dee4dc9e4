// Package exchange runs a population of bots against a normalized dataset in
// fixed simulated time steps.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"evotrader/internal/bot"
	"evotrader/internal/model"
)

// DefaultTimeStep is one day in seconds.
const DefaultTimeStep int64 = 86400

var ErrInvalidRequest = errors.New("invalid simulation request")

type StopReason string

const (
	StopAllRetired StopReason = "all_retired"
	StopEndTime    StopReason = "end_time"
	StopStagnation StopReason = "stagnation"
	StopCanceled   StopReason = "canceled"
)

type Config struct {
	TimeStep int64
	Rand     *rand.Rand
	Logger   zerolog.Logger
	// Workers > 1 fans bots out across goroutines inside a session.
	Workers int
}

type Request struct {
	Bots         []*bot.Bot
	StartingCash float64
	// MaxVisibleSecurities caps how many shuffled securities are offered per session; 0 offers all.
	MaxVisibleSecurities int
	// MaxStagnantSessions stops the run after that many consecutive sessions without a trade; 0 disables it.
	MaxStagnantSessions int
	StartTime           int64
	// EndTime of 0 runs until every security is retired.
	EndTime int64
}

type Result struct {
	Bots                 []*bot.Bot
	Wealth               []float64
	StartTime            int64
	EndTime              int64
	AllSecuritiesRetired bool
	StopReason           StopReason
	Sessions             int
	Buys                 int
	Sells                int
	Rejected             int
}

// Simulator holds only the dataset and configuration; every Simulate call
// builds its own session state.
type Simulator struct {
	dataset model.Dataset
	cfg     Config
}

func New(dataset model.Dataset, cfg Config) (*Simulator, error) {
	if cfg.Rand == nil {
		return nil, fmt.Errorf("simulator rng is required")
	}
	if cfg.TimeStep < 0 {
		return nil, fmt.Errorf("time step must be >= 0, got %d", cfg.TimeStep)
	}
	if cfg.TimeStep == 0 {
		cfg.TimeStep = DefaultTimeStep
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Simulator{dataset: dataset, cfg: cfg}, nil
}

func (s *Simulator) Dataset() model.Dataset {
	return s.dataset
}

// state is the per-call session state.
type state struct {
	now          int64
	revealed     []int
	retired      []bool
	retiredCount int
	prices       map[model.SecurityID]float64
}

// trader is the part of a bot a session drives.
type trader interface {
	CanBuy(price float64, amount int64) bool
	CanSell(id model.SecurityID, amount int64) bool
	Decide(time int64, id model.SecurityID, price float64, window []model.Candle) bot.Order
	Buy(time int64, id model.SecurityID, price float64, amount int64) bool
	Sell(time int64, id model.SecurityID, price float64, amount int64) (bool, error)
}

type tally struct {
	buys     int
	sells    int
	rejected int
}

func (s *Simulator) Simulate(ctx context.Context, req Request) (Result, error) {
	if len(req.Bots) == 0 {
		return Result{}, fmt.Errorf("%w: at least one bot is required", ErrInvalidRequest)
	}
	if req.StartingCash <= 0 || math.IsNaN(req.StartingCash) || math.IsInf(req.StartingCash, 0) {
		return Result{}, fmt.Errorf("%w: starting cash must be positive, got %f", ErrInvalidRequest, req.StartingCash)
	}
	if req.MaxVisibleSecurities < 0 || req.MaxStagnantSessions < 0 {
		return Result{}, fmt.Errorf("%w: caps must be >= 0", ErrInvalidRequest)
	}

	securities := s.dataset.Len()
	st := &state{
		now:      s.properStartTime(req.StartTime),
		revealed: make([]int, securities),
		retired:  make([]bool, securities),
		prices:   make(map[model.SecurityID]float64, securities),
	}
	for id, series := range s.dataset.Candles {
		if len(series) == 0 {
			st.retire(model.SecurityID(id))
		}
	}
	for _, b := range req.Bots {
		b.PrepareTrading(req.StartingCash, securities)
	}

	logger := s.cfg.Logger
	result := Result{Bots: req.Bots, StartTime: st.now}
	logger.Debug().Int64("start", st.now).Int64("end", req.EndTime).Int("bots", len(req.Bots)).Msg("simulation started")

	stagnant := 0
	for {
		if err := ctx.Err(); err != nil {
			result.StopReason = StopCanceled
			result.EndTime = st.now
			return result, err
		}
		if st.retiredCount == securities {
			result.StopReason = StopAllRetired
			break
		}
		if req.EndTime > 0 && st.now >= req.EndTime {
			result.StopReason = StopEndTime
			break
		}
		if req.MaxStagnantSessions > 0 && stagnant >= req.MaxStagnantSessions {
			result.StopReason = StopStagnation
			break
		}
		if !s.reveal(st) {
			st.now += s.cfg.TimeStep
			continue
		}
		s.price(st)

		t := s.session(st, req)
		result.Sessions++
		result.Buys += t.buys
		result.Sells += t.sells
		result.Rejected += t.rejected
		if t.buys+t.sells > 0 {
			stagnant = 0
		} else {
			stagnant++
		}

		s.sweep(st)
		st.now += s.cfg.TimeStep
	}

	result.EndTime = st.now
	result.AllSecuritiesRetired = st.retiredCount == securities

	snapshot := make(map[model.SecurityID]float64, len(st.prices))
	for id, price := range st.prices {
		snapshot[id] = price
	}
	result.Wealth = make([]float64, len(req.Bots))
	for i, b := range req.Bots {
		result.Wealth[i] = b.Wealth(snapshot)
	}

	logger.Info().
		Str("stop", string(result.StopReason)).
		Int("sessions", result.Sessions).
		Int("buys", result.Buys).
		Int("sells", result.Sells).
		Int64("end", result.EndTime).
		Msg("simulation finished")
	return result, nil
}

// properStartTime never starts before the earliest first candle of any series.
func (s *Simulator) properStartTime(start int64) int64 {
	earliest := int64(math.MaxInt64)
	for _, series := range s.dataset.Candles {
		if len(series) > 0 && series[0].End < earliest {
			earliest = series[0].End
		}
	}
	if earliest != math.MaxInt64 && earliest > start {
		s.cfg.Logger.Debug().Int64("requested", start).Int64("start", earliest).Msg("start time clamped to first candle")
		return earliest
	}
	return start
}

// reveal extends each live window with candles whose end has been reached and
// reports whether anything was revealed.
func (s *Simulator) reveal(st *state) bool {
	changed := false
	for i, series := range s.dataset.Candles {
		if st.retired[i] {
			continue
		}
		n := st.revealed[i]
		for n < len(series) && series[n].End <= st.now {
			n++
		}
		if n == st.revealed[i] {
			continue
		}
		st.revealed[i] = n
		changed = true
	}
	return changed
}

func (s *Simulator) price(st *state) {
	for i, n := range st.revealed {
		if st.retired[i] || n == 0 {
			continue
		}
		st.prices[model.SecurityID(i)] = s.dataset.Candles[i][n-1].Close
	}
}

// sweep runs after matching and retires live series whose last candle has
// ended by now. Their last price stays in the snapshot as liquidation price.
func (s *Simulator) sweep(st *state) {
	for i, series := range s.dataset.Candles {
		if st.retired[i] || len(series) == 0 {
			continue
		}
		if series[len(series)-1].End <= st.now {
			st.retire(model.SecurityID(i))
			s.cfg.Logger.Debug().Str("ticker", s.dataset.Ticker(model.SecurityID(i))).Int64("time", st.now).Msg("security retired")
		}
	}
}

func (s *Simulator) window(st *state, id model.SecurityID) []model.Candle {
	n := st.revealed[id]
	return s.dataset.Candles[id][:n:n]
}

// offer returns the shuffled, capped list of securities open for trading.
func (s *Simulator) offer(st *state, limit int) []model.SecurityID {
	ids := make([]model.SecurityID, 0, len(st.prices))
	for id := range st.prices {
		if !st.retired[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.cfg.Rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (s *Simulator) session(st *state, req Request) tally {
	order := s.offer(st, req.MaxVisibleSecurities)
	if len(order) == 0 {
		return tally{}
	}

	workers := s.cfg.Workers
	if workers > len(req.Bots) {
		workers = len(req.Bots)
	}
	if workers <= 1 {
		total := tally{}
		for i, b := range req.Bots {
			total.add(s.trade(st, i, b, order))
		}
		return total
	}

	jobs := make(chan int)
	results := make(chan tally, len(req.Bots))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- s.trade(st, idx, req.Bots[idx], order)
			}
		}()
	}
	for i := range req.Bots {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	total := tally{}
	for t := range results {
		total.add(t)
	}
	return total
}

// trade walks one bot through the session's security order. It only reads
// shared session state. A rejected order is counted and skipped.
func (s *Simulator) trade(st *state, botIndex int, b trader, order []model.SecurityID) tally {
	t := tally{}
	for _, id := range order {
		price := st.prices[id]
		if !b.CanBuy(price, 1) && !b.CanSell(id, 1) {
			continue
		}
		decision := b.Decide(st.now, id, price, s.window(st, id))
		switch decision.Action {
		case bot.ActionBuy:
			if !b.Buy(st.now, id, price, decision.Amount) {
				t.rejected++
				continue
			}
			t.buys++
			s.cfg.Logger.Debug().Int("bot", botIndex).Str("ticker", s.dataset.Ticker(id)).Int64("amount", decision.Amount).Float64("price", price).Msg("buy")
		case bot.ActionSell:
			ok, err := b.Sell(st.now, id, price, decision.Amount)
			if err != nil || !ok {
				t.rejected++
				s.cfg.Logger.Warn().Err(err).Int("bot", botIndex).Str("ticker", s.dataset.Ticker(id)).Int64("amount", decision.Amount).Msg("sell rejected")
				continue
			}
			t.sells++
			s.cfg.Logger.Debug().Int("bot", botIndex).Str("ticker", s.dataset.Ticker(id)).Int64("amount", decision.Amount).Float64("price", price).Msg("sell")
		}
	}
	return t
}

func (st *state) retire(id model.SecurityID) {
	if st.retired[id] {
		return
	}
	st.retired[id] = true
	st.retiredCount++
}

func (t *tally) add(other tally) {
	t.buys += other.buys
	t.sells += other.sells
	t.rejected += other.rejected
}
