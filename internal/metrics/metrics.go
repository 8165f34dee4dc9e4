// Package metrics exposes generation and simulation counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evotrader/internal/exchange"
)

const (
	OutcomeImproved = "improved"
	OutcomeFailed   = "failed"
)

// Collector groups the evotrader metrics. A nil *Collector ignores observations.
type Collector struct {
	generations    *prometheus.CounterVec
	bestEfficiency prometheus.Gauge
	mutationRate   prometheus.Gauge
	sessions       prometheus.Counter
	trades         *prometheus.CounterVec
	rejected       prometheus.Counter
	stops          *prometheus.CounterVec
}

// NewCollector registers every metric on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evotrader_generations_total",
			Help: "Completed generations by outcome.",
		}, []string{"outcome"}),
		bestEfficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evotrader_best_efficiency",
			Help: "Efficiency of the current parent policy.",
		}),
		mutationRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evotrader_mutation_rate",
			Help: "Mutation rate applied to the next generation.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evotrader_sessions_total",
			Help: "Trading sessions simulated.",
		}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evotrader_trades_total",
			Help: "Executed trades by side.",
		}, []string{"side"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evotrader_rejected_trades_total",
			Help: "Trades the ledger refused.",
		}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evotrader_simulation_stops_total",
			Help: "Simulation terminations by reason.",
		}, []string{"reason"}),
	}
	for _, m := range []prometheus.Collector{
		c.generations, c.bestEfficiency, c.mutationRate, c.sessions, c.trades, c.rejected, c.stops,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCollector panics when registration fails.
func MustNewCollector(reg prometheus.Registerer) *Collector {
	c, err := NewCollector(reg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collector) ObserveSimulation(res exchange.Result) {
	if c == nil {
		return
	}
	c.sessions.Add(float64(res.Sessions))
	c.trades.WithLabelValues("buy").Add(float64(res.Buys))
	c.trades.WithLabelValues("sell").Add(float64(res.Sells))
	c.rejected.Add(float64(res.Rejected))
	c.stops.WithLabelValues(string(res.StopReason)).Inc()
}

func (c *Collector) ObserveGeneration(improved bool, bestEfficiency, mutationRate float64) {
	if c == nil {
		return
	}
	outcome := OutcomeFailed
	if improved {
		outcome = OutcomeImproved
	}
	c.generations.WithLabelValues(outcome).Inc()
	c.bestEfficiency.Set(bestEfficiency)
	c.mutationRate.Set(mutationRate)
}

// Serve exposes gatherer on /metrics in the background.
func Serve(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
