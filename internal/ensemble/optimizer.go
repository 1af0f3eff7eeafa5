package ensemble

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"qensemble/internal/gradient"
	"qensemble/internal/model"
)

// Optimizer applies the one-vs-rest update: the target class circuit climbs its
// own gradient, then every other circuit moves against its gradient scaled by
// beta.
type Optimizer struct {
	ensemble  *Ensemble
	estimator *gradient.Estimator
	beta      BetaFunc
	betaName  string
}

// NewOptimizer builds an optimizer using the named beta function; an empty
// name selects the classic formula.
func NewOptimizer(e *Ensemble, betaName string) (*Optimizer, error) {
	if e == nil {
		return nil, errors.New("ensemble is required")
	}
	if betaName == "" {
		betaName = DefaultBeta
	}
	beta, err := GetBeta(betaName)
	if err != nil {
		return nil, err
	}
	est, err := gradient.NewEstimator(e.oracle, e.cfg)
	if err != nil {
		return nil, err
	}
	return &Optimizer{ensemble: e, estimator: est, beta: beta, betaName: betaName}, nil
}

func (o *Optimizer) Ensemble() *Ensemble {
	return o.ensemble
}

func (o *Optimizer) BetaName() string {
	return o.betaName
}

// Update mutates weights in place and returns the beta it applied. The update is
// not atomic: when an oracle call fails after the target step, the target
// vector stays updated and the caller should discard weights.
func (o *Optimizer) Update(ctx context.Context, weights model.WeightSet, features []float64, target int, learningRate float64) (float64, error) {
	e := o.ensemble
	if target < 0 || target >= e.classes {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrClassOutOfRange, target, e.classes)
	}
	if err := e.CheckWeights(weights); err != nil {
		return 0, err
	}

	grad, err := o.estimator.Gradient(ctx, features, weights[target])
	if err != nil {
		return 0, fmt.Errorf("target class %d gradient: %w", target, err)
	}
	floats.AddScaled(weights[target], learningRate, grad)

	expectations, err := e.Expectations(features, weights)
	if err != nil {
		return 0, fmt.Errorf("post-target expectations: %w", err)
	}
	beta := o.beta(expectations, target)

	for j := range weights {
		if j == target {
			continue
		}
		grad, err := o.estimator.Gradient(ctx, features, weights[j])
		if err != nil {
			return beta, fmt.Errorf("class %d gradient: %w", j, err)
		}
		floats.AddScaled(weights[j], learningRate*beta, grad)
	}
	return beta, nil
}
