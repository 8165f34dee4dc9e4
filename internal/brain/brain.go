// Package brain implements the evolvable trading policy: a stack of weight
// matrices evaluated recurrently over a candle window.
package brain

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"evotrader/internal/model"
	"evotrader/internal/nn"
)

const (
	// ValuableInputs counts time, cash, price, holdings and one candle.
	ValuableInputs = 4 + model.CandleWidth
	// ValuableOutputs counts buy, sell, hold and trade fraction.
	ValuableOutputs = 4
	// InitScale shrinks fresh random weights toward zero.
	InitScale = 0.1
)

var ErrConfiguration = errors.New("policy configuration error")

// Input is what a policy observes about one security for one decision.
type Input struct {
	Time     int64
	Cash     float64
	Price    float64
	Holdings int64
	Window   []model.Candle
}

type Decision struct {
	Buy           float64
	Sell          float64
	Hold          float64
	TradeFraction float64
}

// Policy is immutable once built; Mutate always returns a fresh copy.
type Policy struct {
	synapses   []*mat.Dense
	activation string
	act        nn.ActivationFunc
	stateWidth int
}

// LayerSizes builds the canonical layer shape for a given state width and hidden layers.
func LayerSizes(stateSignals int, hidden ...int) []int {
	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, ValuableInputs+stateSignals)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, ValuableOutputs+stateSignals)
	return sizes
}

// CreateRandom builds a policy with weights (u1-u2)*InitScale for the given layer sizes.
func CreateRandom(layerSizes []int, rng *rand.Rand) (*Policy, error) {
	return CreateRandomWith(layerSizes, nn.DefaultActivation, rng)
}

// CreateRandomWith is CreateRandom with a named activation.
func CreateRandomWith(layerSizes []int, activation string, rng *rand.Rand) (*Policy, error) {
	if activation == "" {
		activation = nn.DefaultActivation
	}
	if len(layerSizes) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output sizes, got %v", ErrConfiguration, layerSizes)
	}
	synapses := make([]*mat.Dense, 0, len(layerSizes)-1)
	for i := 0; i+1 < len(layerSizes); i++ {
		in, out := layerSizes[i], layerSizes[i+1]
		if in <= 0 || out <= 0 {
			return nil, fmt.Errorf("%w: layer sizes must be positive, got %v", ErrConfiguration, layerSizes)
		}
		data := make([]float64, in*out)
		for j := range data {
			data[j] = (rng.Float64() - rng.Float64()) * InitScale
		}
		synapses = append(synapses, mat.NewDense(out, in, data))
	}
	return newPolicy(synapses, activation)
}

// FromWeights rehydrates a policy, validating the input/output invariants.
func FromWeights(weights []*mat.Dense, activation string) (*Policy, error) {
	copied := make([]*mat.Dense, len(weights))
	for i, w := range weights {
		if w == nil {
			return nil, fmt.Errorf("%w: layer %d is nil", ErrConfiguration, i)
		}
		copied[i] = mat.DenseCopyOf(w)
	}
	return newPolicy(copied, activation)
}

func FromRecord(record model.PolicyRecord) (*Policy, error) {
	weights := make([]*mat.Dense, len(record.Layers))
	for i, layer := range record.Layers {
		if layer.Rows <= 0 || layer.Cols <= 0 || len(layer.Data) != layer.Rows*layer.Cols {
			return nil, fmt.Errorf("%w: layer %d shape %dx%d with %d values", ErrConfiguration, i, layer.Rows, layer.Cols, len(layer.Data))
		}
		weights[i] = mat.NewDense(layer.Rows, layer.Cols, append([]float64(nil), layer.Data...))
	}
	activation := record.Activation
	if activation == "" {
		activation = nn.DefaultActivation
	}
	return newPolicy(weights, activation)
}

func newPolicy(synapses []*mat.Dense, activation string) (*Policy, error) {
	if len(synapses) == 0 {
		return nil, fmt.Errorf("%w: no weight matrices", ErrConfiguration)
	}
	if err := nn.CheckChain(synapses); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	_, inWidth := synapses[0].Dims()
	outHeight, _ := synapses[len(synapses)-1].Dims()
	if inWidth <= ValuableInputs {
		return nil, fmt.Errorf("%w: input width %d must exceed %d valuable inputs", ErrConfiguration, inWidth, ValuableInputs)
	}
	stateWidth := inWidth - ValuableInputs
	if outHeight != ValuableOutputs+stateWidth {
		return nil, fmt.Errorf("%w: output height %d must equal %d valuable outputs + %d state signals", ErrConfiguration, outHeight, ValuableOutputs, stateWidth)
	}
	act, err := nn.GetActivation(activation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &Policy{
		synapses:   synapses,
		activation: activation,
		act:        act,
		stateWidth: stateWidth,
	}, nil
}

// Mutate replaces each weight with probability rate by a fresh value (u1-u2)*bias.
func (p *Policy) Mutate(rate, bias float64, rng *rand.Rand) *Policy {
	return p.mutateWith(rate, rng, func(_ float64) float64 {
		return (rng.Float64() - rng.Float64()) * bias
	})
}

// MutatePerturb nudges each weight with probability rate by bias*u, u in [0, 1).
func (p *Policy) MutatePerturb(rate, bias float64, rng *rand.Rand) *Policy {
	return p.mutateWith(rate, rng, func(w float64) float64 {
		return w + bias*rng.Float64()
	})
}

func (p *Policy) mutateWith(rate float64, rng *rand.Rand, next func(float64) float64) *Policy {
	synapses := make([]*mat.Dense, len(p.synapses))
	for i, layer := range p.synapses {
		rows, cols := layer.Dims()
		data := make([]float64, rows*cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				w := layer.At(r, c)
				if rng.Float64() < rate {
					w = next(w)
				}
				data[r*cols+c] = w
			}
		}
		synapses[i] = mat.NewDense(rows, cols, data)
	}
	return &Policy{
		synapses:   synapses,
		activation: p.activation,
		act:        p.act,
		stateWidth: p.stateWidth,
	}
}

// Decide evaluates the stack once per window candle, threading the state
// suffix of each output into the next step. Only the last step's valuable
// outputs are returned. An empty window is evaluated once with EmptyCandle.
func (p *Policy) Decide(in Input) Decision {
	window := in.Window
	if len(window) == 0 {
		window = []model.Candle{model.EmptyCandle}
	}

	x := make([]float64, ValuableInputs+p.stateWidth)
	x[0] = float64(in.Time)
	x[1] = in.Cash
	x[2] = in.Price
	x[3] = float64(in.Holdings)

	var out []float64
	for _, candle := range window {
		fields := candle.Fields()
		copy(x[4:ValuableInputs], fields[:])
		var err error
		out, err = nn.Forward(p.synapses, x, p.act)
		if err != nil {
			// Shapes are validated at construction.
			panic(err)
		}
		copy(x[ValuableInputs:], out[ValuableOutputs:])
	}

	return Decision{
		Buy:           out[0],
		Sell:          out[1],
		Hold:          out[2],
		TradeFraction: out[3],
	}
}

func (p *Policy) StateWidth() int {
	return p.stateWidth
}

func (p *Policy) Activation() string {
	return p.activation
}

func (p *Policy) LayerSizes() []int {
	_, in := p.synapses[0].Dims()
	sizes := []int{in}
	for _, layer := range p.synapses {
		rows, _ := layer.Dims()
		sizes = append(sizes, rows)
	}
	return sizes
}

// Weights returns deep copies of the weight matrices.
func (p *Policy) Weights() []*mat.Dense {
	out := make([]*mat.Dense, len(p.synapses))
	for i, layer := range p.synapses {
		out[i] = mat.DenseCopyOf(layer)
	}
	return out
}

func (p *Policy) Record(name string) model.PolicyRecord {
	layers := make([]model.MatrixRecord, len(p.synapses))
	for i, layer := range p.synapses {
		rows, cols := layer.Dims()
		data := make([]float64, 0, rows*cols)
		for r := 0; r < rows; r++ {
			data = append(data, layer.RawRowView(r)...)
		}
		layers[i] = model.MatrixRecord{Rows: rows, Cols: cols, Data: data}
	}
	return model.PolicyRecord{
		Name:       name,
		Activation: p.activation,
		Layers:     layers,
	}
}
