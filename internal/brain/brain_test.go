package brain

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"evotrader/internal/model"
	"evotrader/internal/nn"
)

func sampleInput() Input {
	return Input{
		Time:     1_000,
		Cash:     0.5,
		Price:    0.25,
		Holdings: 2,
		Window: []model.Candle{
			{Open: 0.1, Close: 0.2, High: 0.3, Low: 0.05, Volume: 1, Begin: 1, End: 2},
			{Open: 0.2, Close: 0.1, High: 0.25, Low: 0.1, Volume: 2, Begin: 2, End: 3},
			{Open: 0.1, Close: 0.4, High: 0.5, Low: 0.1, Volume: 3, Begin: 3, End: 4},
		},
	}
}

func TestLayerSizes(t *testing.T) {
	got := LayerSizes(30)
	if len(got) != 2 || got[0] != 41 || got[1] != 34 {
		t.Fatalf("unexpected default sizes: %v", got)
	}
	got = LayerSizes(3, 8, 6)
	want := []int{14, 8, 6, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected sizes: got=%v want=%v", got, want)
		}
	}
}

func TestCreateRandomShapesAndScale(t *testing.T) {
	policy, err := CreateRandom(LayerSizes(5, 9), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("create random: %v", err)
	}
	if policy.StateWidth() != 5 {
		t.Fatalf("unexpected state width: %d", policy.StateWidth())
	}
	sizes := policy.LayerSizes()
	if len(sizes) != 3 || sizes[0] != 16 || sizes[1] != 9 || sizes[2] != 9 {
		t.Fatalf("unexpected layer sizes: %v", sizes)
	}
	for _, layer := range policy.Weights() {
		rows, cols := layer.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if w := layer.At(r, c); math.Abs(w) > InitScale {
					t.Fatalf("weight %f outside +/-%f", w, InitScale)
				}
			}
		}
	}
}

func TestCreateRandomWithActivation(t *testing.T) {
	policy, err := CreateRandomWith(LayerSizes(2), "tanh", rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("create random: %v", err)
	}
	if policy.Activation() != "tanh" || policy.Record("p").Activation != "tanh" {
		t.Fatalf("unexpected activation: got=%s want=tanh", policy.Activation())
	}
	if _, err := CreateRandomWith(LayerSizes(2), "missing", rand.New(rand.NewSource(4))); err == nil {
		t.Fatal("expected error for unknown activation")
	}
}

func TestCreateRandomRejectsBadSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := [][]int{
		{41},
		{ValuableInputs, ValuableOutputs},
		{ValuableInputs + 2, ValuableOutputs + 3},
		{ValuableInputs + 2, 0, ValuableOutputs + 2},
	}
	for _, sizes := range cases {
		if _, err := CreateRandom(sizes, rng); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("sizes %v: expected ErrConfiguration, got %v", sizes, err)
		}
	}
}

func TestFromWeightsConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		weights []*mat.Dense
	}{
		{name: "empty", weights: nil},
		{name: "input-not-wider", weights: []*mat.Dense{mat.NewDense(ValuableOutputs, ValuableInputs, nil)}},
		{name: "state-mismatch", weights: []*mat.Dense{mat.NewDense(ValuableOutputs+1, ValuableInputs+2, nil)}},
		{name: "broken-chain", weights: []*mat.Dense{
			mat.NewDense(5, ValuableInputs+2, nil),
			mat.NewDense(ValuableOutputs+2, 6, nil),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromWeights(tc.weights, nn.DefaultActivation); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}

	valid := []*mat.Dense{mat.NewDense(ValuableOutputs+2, ValuableInputs+2, nil)}
	if _, err := FromWeights(valid, "no-such-activation"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown activation, got %v", err)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	policy, err := CreateRandom(LayerSizes(4, 6), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("create random: %v", err)
	}
	first := policy.Decide(sampleInput())
	second := policy.Decide(sampleInput())
	if first != second {
		t.Fatalf("decide not deterministic: %+v vs %+v", first, second)
	}
}

func TestDecideCarriesStateAcrossWindow(t *testing.T) {
	// One layer: outputs = act(W x). Output 0 reads the first state input,
	// state output 0 copies the candle close, so buy depends on the previous close.
	const state = 1
	w := mat.NewDense(ValuableOutputs+state, ValuableInputs+state, nil)
	w.Set(0, ValuableInputs, 1)
	w.Set(ValuableOutputs, 5, 1)
	policy, err := FromWeights([]*mat.Dense{w}, "identity")
	if err != nil {
		t.Fatalf("from weights: %v", err)
	}

	in := sampleInput()
	got := policy.Decide(in)
	if math.Abs(got.Buy-in.Window[1].Close) > 1e-12 {
		t.Fatalf("expected buy to read previous close %f, got %f", in.Window[1].Close, got.Buy)
	}

	in.Window = in.Window[:1]
	if got := policy.Decide(in); got.Buy != 0 {
		t.Fatalf("expected zero state on first step, got buy=%f", got.Buy)
	}
}

func TestDecideEmptyWindowUsesEmptyCandle(t *testing.T) {
	w := mat.NewDense(ValuableOutputs+1, ValuableInputs+1, nil)
	w.Set(3, 1, 1) // trade fraction mirrors cash
	policy, err := FromWeights([]*mat.Dense{w}, "identity")
	if err != nil {
		t.Fatalf("from weights: %v", err)
	}
	got := policy.Decide(Input{Cash: 0.75})
	if got.TradeFraction != 0.75 {
		t.Fatalf("unexpected trade fraction: %f", got.TradeFraction)
	}
}

func TestMutateDoesNotAlterOriginal(t *testing.T) {
	policy, err := CreateRandom(LayerSizes(3, 5), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("create random: %v", err)
	}
	before := policy.Decide(sampleInput())
	snapshot := policy.Record("before")

	mutated := policy.Mutate(1.0, 0.5, rand.New(rand.NewSource(4)))
	perturbed := policy.MutatePerturb(1.0, 0.5, rand.New(rand.NewSource(5)))

	after := policy.Decide(sampleInput())
	if before != after {
		t.Fatalf("original policy output changed: %+v vs %+v", before, after)
	}
	current := policy.Record("before")
	for i := range snapshot.Layers {
		for j := range snapshot.Layers[i].Data {
			if snapshot.Layers[i].Data[j] != current.Layers[i].Data[j] {
				t.Fatalf("original weight %d/%d changed", i, j)
			}
		}
	}
	if mutated.Decide(sampleInput()) == before && perturbed.Decide(sampleInput()) == before {
		t.Fatal("expected full-rate mutation to change the decision")
	}
}

func TestMutateRateBounds(t *testing.T) {
	policy, err := CreateRandom(LayerSizes(2), rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatalf("create random: %v", err)
	}
	original := policy.Record("p")

	same := policy.Mutate(0, 0.5, rand.New(rand.NewSource(1))).Record("p")
	for i := range original.Layers {
		for j, w := range original.Layers[i].Data {
			if same.Layers[i].Data[j] != w {
				t.Fatalf("rate 0 changed weight %d/%d", i, j)
			}
		}
	}

	all := policy.Mutate(1, 0.5, rand.New(rand.NewSource(1))).Record("p")
	changed := 0
	for i := range original.Layers {
		for j, w := range original.Layers[i].Data {
			if all.Layers[i].Data[j] != w {
				changed++
			}
			if math.Abs(all.Layers[i].Data[j]) > 0.5 {
				t.Fatalf("replacement %f exceeds bias", all.Layers[i].Data[j])
			}
		}
	}
	if changed == 0 {
		t.Fatal("rate 1 changed no weights")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	policy, err := CreateRandom(LayerSizes(3, 4), rand.New(rand.NewSource(21)))
	if err != nil {
		t.Fatalf("create random: %v", err)
	}
	record := policy.Record("run-0001")
	if record.Name != "run-0001" || record.Activation != nn.DefaultActivation || len(record.Layers) != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
	restored, err := FromRecord(record)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if policy.Decide(sampleInput()) != restored.Decide(sampleInput()) {
		t.Fatal("restored policy decides differently")
	}

	record.Layers[0].Data = record.Layers[0].Data[:3]
	if _, err := FromRecord(record); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for truncated layer, got %v", err)
	}
}
