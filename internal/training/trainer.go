// Package training drives the one-vs-rest optimizer over a dataset split.
package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"qensemble/internal/dataset"
	"qensemble/internal/ensemble"
	"qensemble/internal/metrics"
	"qensemble/internal/model"
)

type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State reports where a trainer is. Epoch and Step are zero-based and name the
// step currently running, or the last one that ran.
type State struct {
	Phase Phase
	Epoch int
	Step  int
}

type Config struct {
	Optimizer    *ensemble.Optimizer
	LearningRate float64
	Epochs       int
	// Logger receives epoch progress reports. Nil disables reporting.
	Logger *log.Logger
}

type Trainer struct {
	cfg Config

	mu    sync.Mutex
	state State
}

func New(cfg Config) (*Trainer, error) {
	if cfg.Optimizer == nil {
		return nil, errors.New("optimizer is required")
	}
	if cfg.Epochs < 0 {
		return nil, fmt.Errorf("epochs must be >= 0, got %d", cfg.Epochs)
	}
	if math.IsNaN(cfg.LearningRate) || math.IsInf(cfg.LearningRate, 0) {
		return nil, fmt.Errorf("learning rate must be finite, got %f", cfg.LearningRate)
	}
	return &Trainer{cfg: cfg}, nil
}

func (t *Trainer) Config() Config {
	return t.cfg
}

func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Trainer) setState(phase Phase, epoch, step int) {
	t.mu.Lock()
	t.state = State{Phase: phase, Epoch: epoch, Step: step}
	t.mu.Unlock()
}

func (t *Trainer) fail() {
	t.mu.Lock()
	t.state.Phase = PhaseFailed
	t.mu.Unlock()
}

// QuickTrain runs every epoch over the training rows in order, updating weights
// in place. Metrics are only computed for the progress report, so they are
// skipped without a logger or a test set.
func (t *Trainer) QuickTrain(ctx context.Context, split dataset.Split, weights model.WeightSet) (model.WeightSet, error) {
	e := t.cfg.Optimizer.Ensemble()
	if err := t.prepare(split, weights); err != nil {
		return weights, err
	}
	report := t.cfg.Logger != nil && len(split.XTest) > 0
	if report {
		baseline, err := metrics.Evaluate(e, weights, split.XTest, split.YTest)
		if err != nil {
			t.fail()
			return weights, fmt.Errorf("baseline metrics: %w", err)
		}
		t.reportBaseline(baseline)
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		start := time.Now()
		for step, x := range split.XTrain {
			if _, err := t.step(ctx, epoch, step, weights, x, split.YTrain[step]); err != nil {
				return weights, err
			}
		}
		if !report {
			continue
		}
		snapshot, err := metrics.Evaluate(e, weights, split.XTest, split.YTest)
		if err != nil {
			t.fail()
			return weights, fmt.Errorf("epoch %d metrics: %w", epoch, err)
		}
		t.report(epoch, snapshot, time.Since(start))
	}
	t.finish()
	return weights, nil
}

// Train behaves like QuickTrain and also records one row per step: the applied
// beta, the post-update expectations on the same example, test metrics and the
// flattened weights. Row 0 holds the untrained baseline. On failure the record
// is returned as far as it was filled.
func (t *Trainer) Train(ctx context.Context, split dataset.Split, weights model.WeightSet) (model.WeightSet, model.TrainingRecord, error) {
	e := t.cfg.Optimizer.Ensemble()
	if err := t.prepare(split, weights); err != nil {
		return weights, model.TrainingRecord{}, err
	}
	if err := split.RequireTest(); err != nil {
		t.fail()
		return weights, model.TrainingRecord{}, err
	}

	rec := model.NewTrainingRecord(e.Classes(), e.Config().Params, model.RecordRows(t.cfg.Epochs, len(split.XTrain)))
	last, err := metrics.Evaluate(e, weights, split.XTest, split.YTest)
	if err != nil {
		t.fail()
		return weights, rec, fmt.Errorf("baseline metrics: %w", err)
	}
	if err := rec.Append(0, nil, last.Row(), weights); err != nil {
		t.fail()
		return weights, rec, err
	}
	if t.cfg.Logger != nil {
		t.reportBaseline(last)
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		start := time.Now()
		for step, x := range split.XTrain {
			beta, err := t.step(ctx, epoch, step, weights, x, split.YTrain[step])
			if err != nil {
				return weights, rec, err
			}
			expectations, err := e.Expectations(x, weights)
			if err != nil {
				t.fail()
				return weights, rec, fmt.Errorf("epoch %d step %d expectations: %w", epoch, step, err)
			}
			last, err = metrics.Evaluate(e, weights, split.XTest, split.YTest)
			if err != nil {
				t.fail()
				return weights, rec, fmt.Errorf("epoch %d step %d metrics: %w", epoch, step, err)
			}
			if err := rec.Append(beta, expectations, last.Row(), weights); err != nil {
				t.fail()
				return weights, rec, err
			}
		}
		if t.cfg.Logger != nil {
			t.report(epoch, last, time.Since(start))
		}
	}
	t.finish()
	return weights, rec, nil
}

func (t *Trainer) prepare(split dataset.Split, weights model.WeightSet) error {
	e := t.cfg.Optimizer.Ensemble()
	t.setState(PhaseNotStarted, 0, 0)
	if err := e.CheckWeights(weights); err != nil {
		t.fail()
		return err
	}
	if err := split.Validate(e.Config().Features, e.Classes()); err != nil {
		t.fail()
		return fmt.Errorf("dataset: %w", err)
	}
	return nil
}

// step applies one update. The context is only consulted between steps.
func (t *Trainer) step(ctx context.Context, epoch, step int, weights model.WeightSet, x []float64, label int) (float64, error) {
	if err := ctx.Err(); err != nil {
		t.fail()
		return 0, fmt.Errorf("training stopped at epoch %d step %d: %w", epoch, step, err)
	}
	t.setState(PhaseRunning, epoch, step)
	beta, err := t.cfg.Optimizer.Update(ctx, weights, x, label, t.cfg.LearningRate)
	if err != nil {
		t.fail()
		return beta, fmt.Errorf("epoch %d step %d: %w", epoch, step, err)
	}
	return beta, nil
}

func (t *Trainer) finish() {
	t.mu.Lock()
	t.state.Phase = PhaseCompleted
	t.mu.Unlock()
}

func (t *Trainer) report(epoch int, snapshot model.MetricsSnapshot, elapsed time.Duration) {
	t.cfg.Logger.Printf("epoch %d/%d", epoch+1, t.cfg.Epochs)
	t.reportMetrics(snapshot)
	t.cfg.Logger.Printf("epoch time %s", elapsed.Round(time.Millisecond))
}

func (t *Trainer) reportBaseline(snapshot model.MetricsSnapshot) {
	t.cfg.Logger.Printf("baseline before training")
	t.reportMetrics(snapshot)
}

func (t *Trainer) reportMetrics(snapshot model.MetricsSnapshot) {
	l := t.cfg.Logger
	l.Printf("accuracy=%.2f%% precision=%.2f%% recall=%.2f%% f1=%.2f%%",
		100*snapshot.Accuracy, 100*snapshot.Precision, 100*snapshot.Recall, 100*snapshot.F1)
	l.Printf("confusion matrix:\n%s", metrics.FormatConfusion(snapshot.Confusion))
}
