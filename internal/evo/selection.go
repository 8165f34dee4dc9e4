package evo

import "fmt"

// Winner returns the index of the first bot holding the maximal wealth.
func Winner(wealth []float64) (int, error) {
	if len(wealth) == 0 {
		return 0, fmt.Errorf("no bots to select from")
	}
	best := 0
	for i := 1; i < len(wealth); i++ {
		if wealth[i] > wealth[best] {
			best = i
		}
	}
	return best, nil
}
