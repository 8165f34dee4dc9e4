package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Forward propagates input through the matrix stack, applying act after every multiply.
// Matrix i must have as many columns as the previous layer produced.
func Forward(layers []*mat.Dense, input []float64, act ActivationFunc) ([]float64, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("empty layer stack")
	}
	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for i, layer := range layers {
		rows, cols := layer.Dims()
		if cols != x.Len() {
			return nil, fmt.Errorf("layer %d: input width mismatch got=%d want=%d", i, x.Len(), cols)
		}
		next := mat.NewVecDense(rows, nil)
		next.MulVec(layer, x)
		for j := 0; j < rows; j++ {
			next.SetVec(j, act(next.AtVec(j)))
		}
		x = next
	}
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// CheckChain verifies that consecutive layers connect: rows_i == cols_{i+1}.
func CheckChain(layers []*mat.Dense) error {
	for i := 0; i+1 < len(layers); i++ {
		rows, _ := layers[i].Dims()
		_, cols := layers[i+1].Dims()
		if rows != cols {
			return fmt.Errorf("layer %d produces %d signals but layer %d expects %d", i, rows, i+1, cols)
		}
	}
	return nil
}
