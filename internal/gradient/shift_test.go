package gradient

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/diff/fd"

	"qensemble/internal/circuit"
)

func moonOracle(t *testing.T) (circuit.Oracle, circuit.Config) {
	t.Helper()
	cfg := circuit.Config{Name: "moon", Features: 2, Params: 5}
	chain, err := circuit.Reupload(cfg.Features, cfg.Params)
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	return chain, cfg
}

func TestGradientLengthMatchesParams(t *testing.T) {
	oracle, cfg := moonOracle(t)
	est, err := NewEstimator(oracle, cfg)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	grad, err := est.Gradient(context.Background(), []float64{0.4, 1.9}, []float64{0.1, 0.2, 0.3, 0.4, 0.5})
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}
	if len(grad) != cfg.Params {
		t.Fatalf("unexpected gradient length: got=%d want=%d", len(grad), cfg.Params)
	}
}

func TestGradientMatchesClosedForm(t *testing.T) {
	cfg := circuit.Config{Name: "single", Features: 1, Params: 1}
	chain := circuit.MustChain(1, 1, circuit.RX(circuit.F(0)), circuit.RX(circuit.P(0)))
	est, err := NewEstimator(chain, cfg)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	for _, theta := range []float64{-2, -0.3, 0, 0.8, 2.7} {
		grad, err := est.Gradient(context.Background(), []float64{0.6}, []float64{theta})
		if err != nil {
			t.Fatalf("gradient: %v", err)
		}
		want := -math.Sin(0.6 + theta)
		if math.Abs(grad[0]-want) > 1e-12 {
			t.Fatalf("unexpected gradient at theta=%f: got=%f want=%f", theta, grad[0], want)
		}
	}
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	oracle, cfg := moonOracle(t)
	est, err := NewEstimator(oracle, cfg)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	features := []float64{2.1, 0.7}
	params := []float64{0.9, 4.1, 2.2, 5.5, 0.3}

	grad, err := est.Gradient(context.Background(), features, params)
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}

	numeric := fd.Gradient(nil, func(x []float64) float64 {
		v, err := oracle.Evaluate(features, x)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return v
	}, params, &fd.Settings{Formula: fd.Central, Step: 1e-5})

	for i := range grad {
		if math.Abs(grad[i]-numeric[i]) > 1e-3 {
			t.Fatalf("param %d: parameter shift=%f finite difference=%f", i, grad[i], numeric[i])
		}
	}
}

func TestGradientOnNetworkIsExactOnlyInLastLayer(t *testing.T) {
	cfg := circuit.Config{Name: "stacked", Features: 4, Params: 11}
	first := circuit.MustChain(2, 4,
		circuit.RX(circuit.F(0)), circuit.RY(circuit.P(0)), circuit.RZ(circuit.P(1)),
		circuit.RX(circuit.F(1)), circuit.RY(circuit.P(2)), circuit.RZ(circuit.P(3)))
	last := circuit.MustChain(2, 3,
		circuit.RX(circuit.F(0)), circuit.RY(circuit.P(0)),
		circuit.RX(circuit.F(1)), circuit.RY(circuit.P(1)), circuit.RZ(circuit.P(2)))
	network, err := circuit.NewNetwork(cfg,
		circuit.Layer{circuit.StageOf("a", first), circuit.StageOf("b", first)},
		circuit.Layer{circuit.StageOf("out", last)},
	)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	est, err := NewEstimator(network, cfg)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	features := []float64{0.3, 1.2, 2.5, 0.8}
	params := []float64{0.4, 1.1, 2.9, 0.2, 1.7, 0.6, 2.2, 3.0, 0.9, 1.5, 2.4}

	grad, err := est.Gradient(context.Background(), features, params)
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}
	numeric := fd.Gradient(nil, func(x []float64) float64 {
		v, err := network.Evaluate(features, x)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return v
	}, params, &fd.Settings{Formula: fd.Central, Step: 1e-5})

	for i, g := range grad {
		if math.IsNaN(g) || math.Abs(g) > 1 {
			t.Fatalf("param %d: gradient %f outside [-1,1]", i, g)
		}
	}
	// Parameters of the last stage feed the readout directly.
	for i := 8; i < cfg.Params; i++ {
		if math.Abs(grad[i]-numeric[i]) > 1e-3 {
			t.Fatalf("last layer param %d: parameter shift=%f finite difference=%f", i, grad[i], numeric[i])
		}
	}
}

func TestGradientParallelMatchesSequential(t *testing.T) {
	oracle, cfg := moonOracle(t)
	seq, err := NewEstimator(oracle, cfg)
	if err != nil {
		t.Fatalf("new sequential estimator: %v", err)
	}
	par, err := NewEstimator(oracle, cfg.WithWorkers(3))
	if err != nil {
		t.Fatalf("new parallel estimator: %v", err)
	}
	if par.Workers() != 3 {
		t.Fatalf("unexpected worker count: %d", par.Workers())
	}

	features := []float64{1.3, 0.2}
	params := []float64{3.0, 0.5, 1.5, 2.5, 6.0}
	want, err := seq.Gradient(context.Background(), features, params)
	if err != nil {
		t.Fatalf("sequential gradient: %v", err)
	}
	got, err := par.Gradient(context.Background(), features, params)
	if err != nil {
		t.Fatalf("parallel gradient: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("param %d: parallel=%f sequential=%f", i, got[i], want[i])
		}
	}
	if params[0] != 3.0 || params[4] != 6.0 {
		t.Fatalf("params mutated: %v", params)
	}
}

func TestGradientDimensionMismatch(t *testing.T) {
	var calls atomic.Int64
	cfg := circuit.Config{Name: "c", Features: 2, Params: 5}
	oracle := circuit.Func(func(_, _ []float64) (float64, error) {
		calls.Add(1)
		return 0, nil
	})
	est, err := NewEstimator(oracle, cfg)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}

	_, err = est.Gradient(context.Background(), []float64{1, 2, 3}, make([]float64, 5))
	if !errors.Is(err, circuit.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for features, got: %v", err)
	}
	_, err = est.Gradient(context.Background(), []float64{1, 2}, make([]float64, 4))
	if !errors.Is(err, circuit.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for params, got: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("oracle called %d times before dimension check", calls.Load())
	}
}

func TestGradientPropagatesOracleFailure(t *testing.T) {
	boom := errors.New("simulator crashed")
	cfg := circuit.Config{Name: "c", Features: 1, Params: 4, Workers: 2}
	oracle := circuit.Func(func(_, params []float64) (float64, error) {
		if params[2] != 0 {
			return 0, boom
		}
		return 0.5, nil
	})
	for _, workers := range []int{0, 2} {
		est, err := NewEstimator(oracle, cfg.WithWorkers(workers))
		if err != nil {
			t.Fatalf("new estimator: %v", err)
		}
		_, err = est.Gradient(context.Background(), []float64{0}, make([]float64, 4))
		if !errors.Is(err, circuit.ErrOracleEvaluation) || !errors.Is(err, boom) {
			t.Fatalf("workers=%d: expected wrapped oracle failure, got: %v", workers, err)
		}
	}
}

func TestShiftTermIndexOutOfRange(t *testing.T) {
	oracle, cfg := moonOracle(t)
	est, err := NewEstimator(oracle, cfg)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	if _, err := est.ShiftTerm([]float64{0, 0}, make([]float64, 5), 5); err == nil {
		t.Fatal("expected index error")
	}
}
