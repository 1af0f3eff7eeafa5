package model

import "fmt"

// WeightSet holds one parameter vector per class. Training mutates it in place.
type WeightSet [][]float64

func (w WeightSet) Shape() (classes, params int) {
	if len(w) == 0 {
		return 0, 0
	}
	return len(w), len(w[0])
}

func (w WeightSet) Clone() WeightSet {
	if w == nil {
		return nil
	}
	out := make(WeightSet, len(w))
	for i, row := range w {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Flatten concatenates the class vectors in C_i_w_j order.
func (w WeightSet) Flatten() []float64 {
	classes, params := w.Shape()
	out := make([]float64, 0, classes*params)
	for _, row := range w {
		out = append(out, row...)
	}
	return out
}

// Validate reports whether the set has exactly classes vectors of length params.
func (w WeightSet) Validate(classes, params int) error {
	if len(w) != classes {
		return fmt.Errorf("weight set has %d classes, want %d", len(w), classes)
	}
	for i, row := range w {
		if len(row) != params {
			return fmt.Errorf("weight vector %d has %d params, want %d", i, len(row), params)
		}
	}
	return nil
}

func (w WeightSet) Equal(other WeightSet) bool {
	if len(w) != len(other) {
		return false
	}
	for i := range w {
		if len(w[i]) != len(other[i]) {
			return false
		}
		for j := range w[i] {
			if w[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}
