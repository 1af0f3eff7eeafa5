package metrics

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"qensemble/internal/model"
)

// ColumnStats summarizes one recorded column, overall and over equal windows.
type ColumnStats struct {
	Name            string    `json:"name"`
	Mean            float64   `json:"mean"`
	Min             float64   `json:"min"`
	Max             float64   `json:"max"`
	Variance        float64   `json:"variance"`
	WindowMeans     []float64 `json:"window_means"`
	WindowVariances []float64 `json:"window_variances"`
}

type columnStatsJSON struct {
	Name            string     `json:"name"`
	Mean            *float64   `json:"mean"`
	Min             *float64   `json:"min"`
	Max             *float64   `json:"max"`
	Variance        *float64   `json:"variance"`
	WindowMeans     []*float64 `json:"window_means"`
	WindowVariances []*float64 `json:"window_variances"`
}

// MarshalJSON writes undefined statistics as null; encoding/json rejects NaN.
func (s ColumnStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnStatsJSON{
		Name:            s.Name,
		Mean:            nullable(s.Mean),
		Min:             nullable(s.Min),
		Max:             nullable(s.Max),
		Variance:        nullable(s.Variance),
		WindowMeans:     nullables(s.WindowMeans),
		WindowVariances: nullables(s.WindowVariances),
	})
}

func (s *ColumnStats) UnmarshalJSON(data []byte) error {
	var raw columnStatsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ColumnStats{
		Name:            raw.Name,
		Mean:            orNaN(raw.Mean),
		Min:             orNaN(raw.Min),
		Max:             orNaN(raw.Max),
		Variance:        orNaN(raw.Variance),
		WindowMeans:     orNaNs(raw.WindowMeans),
		WindowVariances: orNaNs(raw.WindowVariances),
	}
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullables(values []float64) []*float64 {
	if values == nil {
		return nil
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = nullable(v)
	}
	return out
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func orNaNs(values []*float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = orNaN(v)
	}
	return out
}

// Column computes statistics for values split into windows consecutive chunks
// of len(values)/windows rows each; trailing rows beyond the last full window
// are ignored by the windows. Variance is the unbiased sample variance, NaN
// for fewer than two values.
func Column(name string, values []float64, windows int) ColumnStats {
	s := ColumnStats{
		Name:     name,
		Mean:     mean(values),
		Variance: variance(values),
		Min:      math.NaN(),
		Max:      math.NaN(),
	}
	if len(values) > 0 {
		s.Min = floats.Min(values)
		s.Max = floats.Max(values)
	}
	if windows < 1 {
		return s
	}

	size := len(values) / windows
	s.WindowMeans = make([]float64, windows)
	s.WindowVariances = make([]float64, windows)
	for i := 0; i < windows; i++ {
		w := values[i*size : (i+1)*size]
		s.WindowMeans[i] = mean(w)
		s.WindowVariances[i] = variance(w)
	}
	return s
}

// RecordStats summarizes every expectation column of the filled record rows.
func RecordStats(rec model.TrainingRecord, windows int) []ColumnStats {
	names := rec.ExpectationColumns()
	out := make([]ColumnStats, len(names))
	col := make([]float64, rec.Filled)
	for c, name := range names {
		for i := 0; i < rec.Filled; i++ {
			col[i] = rec.Expectations[i][c]
		}
		out[c] = Column(name, col, windows)
	}
	return out
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

func variance(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Variance(x, nil)
}
