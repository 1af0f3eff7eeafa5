package qensemble

import (
	"fmt"
	"math/rand"
	"time"

	"qensemble/internal/circuit"
	"qensemble/internal/ensemble"
	"qensemble/internal/metrics"
	"qensemble/internal/model"
	"qensemble/internal/storage"
)

// Model is one trained (or freshly initialized) ensemble: a circuit blueprint,
// a class count and the current weight set. A Model is not safe for concurrent
// Fit calls.
type Model struct {
	id        string
	blueprint string
	seed      int64
	createdAt time.Time
	ens       *ensemble.Ensemble
	weights   model.WeightSet
}

func newModel(id string, bp circuit.Blueprint, classes int, seed int64, weights model.WeightSet, createdAt time.Time) (*Model, error) {
	oracle, err := bp.Oracle()
	if err != nil {
		return nil, err
	}
	ens, err := ensemble.New(oracle, bp.Config, classes)
	if err != nil {
		return nil, err
	}
	if weights == nil {
		weights = ensemble.NewWeightSet(classes, bp.Config.Params, rand.New(rand.NewSource(seed)))
	}
	if err := ens.CheckWeights(weights); err != nil {
		return nil, err
	}
	return &Model{
		id:        id,
		blueprint: bp.Name,
		seed:      seed,
		createdAt: createdAt,
		ens:       ens,
		weights:   weights,
	}, nil
}

func (m *Model) ID() string { return m.id }
func (m *Model) Blueprint() string { return m.blueprint }
func (m *Model) Classes() int { return m.ens.Classes() }
func (m *Model) Seed() int64 { return m.seed }
func (m *Model) Config() circuit.Config { return m.ens.Config() }
func (m *Model) Weights() model.WeightSet { return m.weights.Clone() }
func (m *Model) String() string { return fmt.Sprintf("Quantum Model: %s", m.ens.Config().Name) }

// RefreshWeights draws a new weight set. A zero seed picks a time based one.
func (m *Model) RefreshWeights(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m.seed = seed
	m.weights = ensemble.NewWeightSet(m.Classes(), m.Config().Params, rand.New(rand.NewSource(seed)))
}

func (m *Model) Predict(features []float64) (int, error) {
	return m.ens.Predict(features, m.weights)
}

func (m *Model) PredictAll(rows [][]float64) ([]int, error) {
	return m.ens.PredictAll(rows, m.weights)
}

// PredictProb returns the per-class expectations in [0,1] for one row.
func (m *Model) PredictProb(features []float64) ([]float64, error) {
	return m.ens.Expectations(features, m.weights)
}

func (m *Model) PredictProbAll(rows [][]float64) ([][]float64, error) {
	return m.ens.ExpectationsAll(rows, m.weights)
}

// MetricTest scores the current weights against a labelled set.
func (m *Model) MetricTest(x [][]float64, y []int) (model.MetricsSnapshot, error) {
	return metrics.Evaluate(m.ens, m.weights, x, y)
}

func (m *Model) Snapshot() model.ModelSnapshot {
	return model.ModelSnapshot{
		VersionedRecord: storage.Versioned(),
		ID:              m.id,
		Blueprint:       m.blueprint,
		Circuit:         m.Config().Record(),
		Classes:         m.Classes(),
		Seed:            m.seed,
		Weights:         m.weights.Clone(),
		CreatedAt:       m.createdAt,
	}
}

// modelFromSnapshot rebuilds a model from the registered blueprint it was
// trained with. The stored sizes must still match the blueprint.
func modelFromSnapshot(snapshot model.ModelSnapshot) (*Model, error) {
	bp, err := circuit.GetBlueprint(snapshot.Blueprint)
	if err != nil {
		return nil, err
	}
	stored := circuit.ConfigFromRecord(snapshot.Circuit)
	if stored.Features != bp.Config.Features || stored.Params != bp.Config.Params {
		return nil, fmt.Errorf("model %s: blueprint %s now has features=%d params=%d, stored features=%d params=%d",
			snapshot.ID, bp.Name, bp.Config.Features, bp.Config.Params, stored.Features, stored.Params)
	}
	bp.Config = bp.Config.WithWorkers(stored.Workers)
	return newModel(snapshot.ID, bp, snapshot.Classes, snapshot.Seed, snapshot.Weights.Clone(), snapshot.CreatedAt)
}
