package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrRecordFull = errors.New("training record is full")

// MetricNames lists the metric columns in record order.
var MetricNames = [4]string{"Accuracy", "Precision", "Recall", "F1-Score"}

const BetaColumn = "Beta Values"

// TrainingRecord is a fixed-size table with one row per training step plus a
// baseline row. The row count is decided at construction and never grows.
type TrainingRecord struct {
	Classes      int          `json:"classes"`
	Params       int          `json:"params"`
	Filled       int          `json:"filled"`
	Beta         []float64    `json:"beta"`
	Expectations [][]float64  `json:"expectations"`
	Metrics      []MetricsRow `json:"metrics"`
	Weights      [][]float64  `json:"weights"`
}

func NewTrainingRecord(classes, params, rows int) TrainingRecord {
	rec := TrainingRecord{
		Classes:      classes,
		Params:       params,
		Beta:         make([]float64, rows),
		Expectations: make([][]float64, rows),
		Metrics:      make([]MetricsRow, rows),
		Weights:      make([][]float64, rows),
	}
	for i := 0; i < rows; i++ {
		rec.Expectations[i] = make([]float64, classes)
		rec.Weights[i] = make([]float64, classes*params)
	}
	return rec
}

// RecordRows is the number of rows a full training run produces.
func RecordRows(epochs, trainSize int) int {
	return epochs*trainSize + 1
}

func (r TrainingRecord) Len() int {
	return len(r.Beta)
}

// Append writes the next row. Expectations may be nil for the baseline row.
func (r *TrainingRecord) Append(beta float64, expectations []float64, metrics MetricsRow, weights WeightSet) error {
	if r.Filled >= r.Len() {
		return fmt.Errorf("%w: %d rows", ErrRecordFull, r.Len())
	}
	if expectations != nil && len(expectations) != r.Classes {
		return fmt.Errorf("expectation row has %d values, want %d", len(expectations), r.Classes)
	}
	if err := weights.Validate(r.Classes, r.Params); err != nil {
		return err
	}

	row := r.Filled
	r.Beta[row] = beta
	if expectations == nil {
		for i := range r.Expectations[row] {
			r.Expectations[row][i] = 0
		}
	} else {
		copy(r.Expectations[row], expectations)
	}
	r.Metrics[row] = metrics
	dst := r.Weights[row][:0]
	for _, vec := range weights {
		dst = append(dst, vec...)
	}
	r.Filled++
	return nil
}

// Columns names every column of the flattened table.
func (r TrainingRecord) Columns() []string {
	cols := make([]string, 0, r.width())
	cols = append(cols, BetaColumn)
	for i := 0; i < r.Classes; i++ {
		cols = append(cols, fmt.Sprintf("C_%d_expect", i))
	}
	cols = append(cols, MetricNames[:]...)
	cols = append(cols, r.WeightColumns()...)
	return cols
}

func (r TrainingRecord) ExpectationColumns() []string {
	cols := make([]string, r.Classes)
	for i := range cols {
		cols[i] = fmt.Sprintf("C_%d_expect", i)
	}
	return cols
}

func (r TrainingRecord) WeightColumns() []string {
	cols := make([]string, 0, r.Classes*r.Params)
	for i := 0; i < r.Classes; i++ {
		for j := 0; j < r.Params; j++ {
			cols = append(cols, fmt.Sprintf("C_%d_w_%d", i, j))
		}
	}
	return cols
}

func (r TrainingRecord) width() int {
	return 1 + r.Classes + len(MetricNames) + r.Classes*r.Params
}

// Row flattens row i in Columns order.
func (r TrainingRecord) Row(i int) []float64 {
	out := make([]float64, 0, r.width())
	out = append(out, r.Beta[i])
	out = append(out, r.Expectations[i]...)
	out = append(out, r.Metrics[i][:]...)
	out = append(out, r.Weights[i]...)
	return out
}

// Dense returns the filled rows as a dense matrix.
func (r TrainingRecord) Dense() *mat.Dense {
	if r.Filled == 0 {
		return nil
	}
	data := make([]float64, 0, r.Filled*r.width())
	for i := 0; i < r.Filled; i++ {
		data = append(data, r.Row(i)...)
	}
	return mat.NewDense(r.Filled, r.width(), data)
}

func (r TrainingRecord) Clone() TrainingRecord {
	out := r
	out.Beta = append([]float64(nil), r.Beta...)
	out.Metrics = append([]MetricsRow(nil), r.Metrics...)
	out.Expectations = make([][]float64, len(r.Expectations))
	for i, row := range r.Expectations {
		out.Expectations[i] = append([]float64(nil), row...)
	}
	out.Weights = make([][]float64, len(r.Weights))
	for i, row := range r.Weights {
		out.Weights[i] = append([]float64(nil), row...)
	}
	return out
}
