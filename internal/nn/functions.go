package nn

import "math"

// logisticClamp bounds the exponent so huge raw inputs (epoch seconds, cash) saturate cleanly.
const logisticClamp = 40.0

// Logistic returns 1/(1+e^-x) in (0, 1).
func Logistic(x float64) float64 {
	x = Sat(x, logisticClamp, -logisticClamp)
	return 1.0 / (1.0 + math.Exp(-x))
}

// ScaledLogistic stretches the logistic curve to (-1, 1): 2/(1+e^-x) - 1.
func ScaledLogistic(x float64) float64 {
	return 2*Logistic(x) - 1
}

// Sat clamps value to [min, max]. NaN maps to 0.
func Sat(value, max, min float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}
