package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CircuitConfig mirrors the immutable circuit configuration a model was trained with.
type CircuitConfig struct {
	Name     string `json:"name"`
	Backend  string `json:"backend,omitempty"`
	Wires    int    `json:"wires"`
	Features int    `json:"features"`
	Params   int    `json:"params"`
	Workers  int    `json:"workers"`
}

type ModelSnapshot struct {
	VersionedRecord
	ID        string        `json:"id"`
	Blueprint string        `json:"blueprint"`
	Circuit   CircuitConfig `json:"circuit"`
	Classes   int           `json:"classes"`
	Seed      int64         `json:"seed"`
	Weights   WeightSet     `json:"weights"`
	CreatedAt time.Time     `json:"created_at"`
}

type RunMode string

const (
	RunModeQuick RunMode = "quick"
	RunModeFull  RunMode = "full"
)

type RunSummary struct {
	VersionedRecord
	RunID        string          `json:"run_id"`
	ModelID      string          `json:"model_id"`
	Blueprint    string          `json:"blueprint"`
	Mode         RunMode         `json:"mode"`
	Epochs       int             `json:"epochs"`
	LearningRate float64         `json:"learning_rate"`
	Beta         string          `json:"beta"`
	TrainSize    int             `json:"train_size"`
	TestSize     int             `json:"test_size"`
	RecordRows   int             `json:"record_rows"`
	Final        MetricsSnapshot `json:"final"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MetricsSnapshot is recomputed from scratch against a held-out set; it is never
// updated incrementally.
type MetricsSnapshot struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Confusion [][]int `json:"confusion,omitempty"`
}

// MetricsRow holds accuracy, precision, recall and F1 in record column order.
type MetricsRow [4]float64

func (m MetricsSnapshot) Row() MetricsRow {
	return MetricsRow{m.Accuracy, m.Precision, m.Recall, m.F1}
}
