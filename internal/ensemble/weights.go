package ensemble

import (
	"math"
	"math/rand"

	"qensemble/internal/model"
)

// NewWeightSet draws every parameter uniformly from [0, 2pi).
func NewWeightSet(classes, params int, rng *rand.Rand) model.WeightSet {
	weights := make(model.WeightSet, classes)
	for i := range weights {
		weights[i] = make([]float64, params)
		for j := range weights[i] {
			weights[i][j] = 2 * math.Pi * rng.Float64()
		}
	}
	return weights
}

// NewFeatures draws a feature vector uniformly from [0, pi).
func NewFeatures(n int, rng *rand.Rand) []float64 {
	features := make([]float64, n)
	for i := range features {
		features[i] = math.Pi * rng.Float64()
	}
	return features
}
