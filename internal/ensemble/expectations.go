// Package ensemble implements the one-vs-rest circuit ensemble: per-class
// expectations, arg-max classification and the competitive weight update.
package ensemble

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"qensemble/internal/circuit"
	"qensemble/internal/model"
)

var ErrClassOutOfRange = errors.New("class index out of range")

// Ensemble evaluates one oracle call per class with that class's parameters.
type Ensemble struct {
	oracle  circuit.Oracle
	cfg     circuit.Config
	classes int
}

func New(oracle circuit.Oracle, cfg circuit.Config, classes int) (*Ensemble, error) {
	if oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classes < 1 {
		return nil, fmt.Errorf("class count must be >= 1, got %d", classes)
	}
	return &Ensemble{
		oracle:  circuit.Checked(oracle, cfg),
		cfg:     cfg,
		classes: classes,
	}, nil
}

func (e *Ensemble) Classes() int {
	return e.classes
}

func (e *Ensemble) Config() circuit.Config {
	return e.cfg
}

func (e *Ensemble) Oracle() circuit.Oracle {
	return e.oracle
}

// CheckWeights reports a DimensionError when weights does not hold one vector of
// the configured parameter count per class.
func (e *Ensemble) CheckWeights(weights model.WeightSet) error {
	if len(weights) != e.classes {
		return &circuit.DimensionError{What: "weight set classes", Got: len(weights), Want: e.classes}
	}
	for i, w := range weights {
		if len(w) != e.cfg.Params {
			return &circuit.DimensionError{What: fmt.Sprintf("weights of class %d", i), Got: len(w), Want: e.cfg.Params}
		}
	}
	return nil
}

// Expectations maps each class oracle output v in [-1, 1] to (v+1)/2.
func (e *Ensemble) Expectations(features []float64, weights model.WeightSet) ([]float64, error) {
	if len(features) != e.cfg.Features {
		return nil, &circuit.DimensionError{What: "features", Got: len(features), Want: e.cfg.Features}
	}
	if err := e.CheckWeights(weights); err != nil {
		return nil, err
	}
	out := make([]float64, e.classes)
	for c := range out {
		v, err := e.oracle.Evaluate(features, weights[c])
		if err != nil {
			return nil, fmt.Errorf("class %d: %w", c, err)
		}
		out[c] = (v + 1) / 2
	}
	return out, nil
}

func (e *Ensemble) ExpectationsAll(rows [][]float64, weights model.WeightSet) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, x := range rows {
		exp, err := e.Expectations(x, weights)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = exp
	}
	return out, nil
}

func (e *Ensemble) Predict(features []float64, weights model.WeightSet) (int, error) {
	exp, err := e.Expectations(features, weights)
	if err != nil {
		return 0, err
	}
	return Classify(exp), nil
}

func (e *Ensemble) PredictAll(rows [][]float64, weights model.WeightSet) ([]int, error) {
	all, err := e.ExpectationsAll(rows, weights)
	if err != nil {
		return nil, err
	}
	return ClassifyAll(all), nil
}

// Classify returns the index of the largest expectation. Ties resolve to the
// lowest index; an empty vector yields -1.
func Classify(expectations []float64) int {
	if len(expectations) == 0 {
		return -1
	}
	return floats.MaxIdx(expectations)
}

func ClassifyAll(all [][]float64) []int {
	out := make([]int, len(all))
	for i, exp := range all {
		out[i] = Classify(exp)
	}
	return out
}
