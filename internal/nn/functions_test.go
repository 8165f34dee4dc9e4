package nn

import (
	"math"
	"testing"
)

func TestScaledLogistic(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{name: "zero", x: 0, want: 0},
		{name: "positive", x: 1, want: 2/(1+math.Exp(-1)) - 1},
		{name: "negative", x: -2, want: 2/(1+math.Exp(2)) - 1},
		{name: "saturated-high", x: 1e12, want: 2/(1+math.Exp(-logisticClamp)) - 1},
		{name: "saturated-low", x: -1e12, want: 2/(1+math.Exp(logisticClamp)) - 1},
		{name: "nan", x: math.NaN(), want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScaledLogistic(tc.x)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("unexpected value: got=%v want=%v", got, tc.want)
			}
			if got < -1 || got > 1 {
				t.Fatalf("value escaped [-1, 1]: %v", got)
			}
		})
	}
}

func TestScaledLogisticIsOdd(t *testing.T) {
	for _, x := range []float64{0.1, 0.5, 3, 17} {
		if d := ScaledLogistic(x) + ScaledLogistic(-x); math.Abs(d) > 1e-12 {
			t.Fatalf("expected odd symmetry at %f, got residual %v", x, d)
		}
	}
}

func TestSat(t *testing.T) {
	if got := Sat(5, 1, -1); got != 1 {
		t.Fatalf("upper clamp: got=%f", got)
	}
	if got := Sat(-5, 1, -1); got != -1 {
		t.Fatalf("lower clamp: got=%f", got)
	}
	if got := Sat(0.25, 1, -1); got != 0.25 {
		t.Fatalf("passthrough: got=%f", got)
	}
}
