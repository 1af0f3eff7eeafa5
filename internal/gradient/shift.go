// Package gradient computes gradients of circuit oracles with the
// parameter-shift rule. The rule is exact when every parameter drives one
// Pauli rotation that reaches the readout directly, as in a circuit.Chain; for
// a circuit.Network it is exact only for last-layer parameters.
package gradient

import (
	"context"
	"fmt"
	"math"
	"sync"

	"qensemble/internal/circuit"
)

// Shift is the fixed offset of the parameter-shift rule. It is part of the
// identity for Pauli rotations, not a step size.
const Shift = math.Pi / 2

type Estimator struct {
	oracle  circuit.Oracle
	cfg     circuit.Config
	workers int
}

// NewEstimator returns an estimator for oracle. Calls are validated against cfg,
// and cfg.Workers > 1 evaluates parameters on a pool of that many goroutines.
func NewEstimator(oracle circuit.Oracle, cfg circuit.Config) (*Estimator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Estimator{
		oracle:  circuit.Checked(oracle, cfg),
		cfg:     cfg,
		workers: workers,
	}, nil
}

func (e *Estimator) Workers() int {
	return e.workers
}

// ShiftTerm returns the gradient component for params[i]. params is not modified.
func (e *Estimator) ShiftTerm(features, params []float64, i int) (float64, error) {
	if i < 0 || i >= len(params) {
		return 0, fmt.Errorf("parameter index %d out of range [0,%d)", i, len(params))
	}
	shifted := append([]float64(nil), params...)

	shifted[i] += Shift
	forward, err := e.oracle.Evaluate(features, shifted)
	if err != nil {
		return 0, fmt.Errorf("forward shift of param %d: %w", i, err)
	}

	shifted[i] -= 2 * Shift
	backward, err := e.oracle.Evaluate(features, shifted)
	if err != nil {
		return 0, fmt.Errorf("backward shift of param %d: %w", i, err)
	}

	return 0.5 * (forward - backward), nil
}

// Gradient returns d oracle / d params, one component per parameter, in
// parameter order regardless of how the work was scheduled.
func (e *Estimator) Gradient(ctx context.Context, features, params []float64) ([]float64, error) {
	if err := circuit.CheckDims(e.cfg, features, params); err != nil {
		return nil, err
	}
	if e.workers <= 1 {
		return e.sequential(ctx, features, params)
	}
	return e.parallel(ctx, features, params)
}

func (e *Estimator) sequential(ctx context.Context, features, params []float64) ([]float64, error) {
	grad := make([]float64, len(params))
	for i := range params {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := e.ShiftTerm(features, params, i)
		if err != nil {
			return nil, err
		}
		grad[i] = g
	}
	return grad, nil
}

func (e *Estimator) parallel(ctx context.Context, features, params []float64) ([]float64, error) {
	type result struct {
		idx   int
		value float64
		err   error
	}

	jobs := make(chan int)
	results := make(chan result, len(params))

	workerCount := e.workers
	if workerCount > len(params) {
		workerCount = len(params)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: idx, err: err}
					continue
				}
				g, err := e.ShiftTerm(features, params, idx)
				results <- result{idx: idx, value: g, err: err}
			}
		}()
	}

	for i := range params {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	grad := make([]float64, len(params))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		grad[res.idx] = res.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return grad, nil
}
