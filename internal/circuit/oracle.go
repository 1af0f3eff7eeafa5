package circuit

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrOracleEvaluation  = errors.New("oracle evaluation failed")
)

// rangeTolerance absorbs floating point drift at the edges of [-1, 1].
const rangeTolerance = 1e-9

// Oracle evaluates a circuit for one feature vector and one parameter vector and
// returns an expectation value in [-1, 1]. Implementations must be pure.
type Oracle interface {
	Evaluate(features, params []float64) (float64, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(features, params []float64) (float64, error)

func (f Func) Evaluate(features, params []float64) (float64, error) {
	return f(features, params)
}

// Arity is implemented by oracles that know their own input sizes.
type Arity interface {
	Arity() (features, params int)
}

type DimensionError struct {
	What string
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: %s length %d, want %d", ErrDimensionMismatch, e.What, e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// EvaluationError reports a failed or out-of-range oracle call.
type EvaluationError struct {
	Value float64
	Err   error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrOracleEvaluation, e.Err)
	}
	return fmt.Sprintf("%s: value %g outside [-1, 1]", ErrOracleEvaluation, e.Value)
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrOracleEvaluation
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// CheckDims validates feature and parameter lengths against cfg.
func CheckDims(cfg Config, features, params []float64) error {
	if len(features) != cfg.Features {
		return &DimensionError{What: "features", Got: len(features), Want: cfg.Features}
	}
	if len(params) != cfg.Params {
		return &DimensionError{What: "params", Got: len(params), Want: cfg.Params}
	}
	return nil
}

type checked struct {
	inner Oracle
	cfg   Config
}

// Checked wraps oracle so every call is validated against cfg before it runs and
// its result is range checked afterwards.
func Checked(oracle Oracle, cfg Config) Oracle {
	if c, ok := oracle.(*checked); ok && c.cfg.Features == cfg.Features && c.cfg.Params == cfg.Params {
		return c
	}
	return &checked{inner: oracle, cfg: cfg}
}

func (c *checked) Evaluate(features, params []float64) (float64, error) {
	if err := CheckDims(c.cfg, features, params); err != nil {
		return 0, err
	}
	v, err := c.inner.Evaluate(features, params)
	if err != nil {
		var evalErr *EvaluationError
		if errors.As(err, &evalErr) {
			return 0, err
		}
		return 0, &EvaluationError{Err: err}
	}
	return clampExpectation(v)
}

func (c *checked) Arity() (int, int) {
	return c.cfg.Features, c.cfg.Params
}

func clampExpectation(v float64) (float64, error) {
	if math.IsNaN(v) || v < -1-rangeTolerance || v > 1+rangeTolerance {
		return 0, &EvaluationError{Value: v}
	}
	return math.Max(-1, math.Min(1, v)), nil
}
