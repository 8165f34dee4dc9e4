package nn

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func identity(x float64) float64 { return x }

func TestForwardMatrixStack(t *testing.T) {
	layers := []*mat.Dense{
		mat.NewDense(2, 3, []float64{
			1, 0, 2,
			0, -1, 1,
		}),
		mat.NewDense(1, 2, []float64{0.5, 2}),
	}

	out, err := Forward(layers, []float64{1, 2, 3}, identity)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	// hidden = [1+6, -2+3] = [7, 1]; out = 3.5 + 2
	if len(out) != 1 || math.Abs(out[0]-5.5) > 1e-12 {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestForwardAppliesActivationPerLayer(t *testing.T) {
	layers := []*mat.Dense{
		mat.NewDense(1, 1, []float64{2}),
		mat.NewDense(1, 1, []float64{3}),
	}
	out, err := Forward(layers, []float64{0.5}, ScaledLogistic)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want := ScaledLogistic(3 * ScaledLogistic(1))
	if math.Abs(out[0]-want) > 1e-12 {
		t.Fatalf("unexpected output: got=%v want=%v", out[0], want)
	}
}

func TestForwardRejectsWidthMismatch(t *testing.T) {
	layers := []*mat.Dense{mat.NewDense(1, 2, []float64{1, 1})}
	if _, err := Forward(layers, []float64{1, 2, 3}, identity); err == nil {
		t.Fatal("expected width mismatch error")
	}
	if _, err := Forward(nil, []float64{1}, identity); err == nil {
		t.Fatal("expected empty stack error")
	}
}

func TestForwardDoesNotMutateInput(t *testing.T) {
	layers := []*mat.Dense{mat.NewDense(2, 2, []float64{1, 2, 3, 4})}
	input := []float64{1, 1}
	if _, err := Forward(layers, input, identity); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if input[0] != 1 || input[1] != 1 {
		t.Fatalf("input mutated: %v", input)
	}
}

func TestCheckChain(t *testing.T) {
	ok := []*mat.Dense{mat.NewDense(4, 3, nil), mat.NewDense(2, 4, nil)}
	if err := CheckChain(ok); err != nil {
		t.Fatalf("unexpected chain error: %v", err)
	}
	broken := []*mat.Dense{mat.NewDense(4, 3, nil), mat.NewDense(2, 5, nil)}
	if err := CheckChain(broken); err == nil {
		t.Fatal("expected chain error")
	}
}
