package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"qensemble/internal/metrics"
	"qensemble/internal/model"
)

const (
	runIndexFile     = "run_index.json"
	configFile       = "config.json"
	summaryFile      = "summary.json"
	settingsFile     = "circuit_settings.txt"
	finalWeightsFile = "final_weights.tsv"

	WeightsTable      = "weights.csv"
	MetricsTable      = "metrics.csv"
	ExpectationsTable = "expectations.csv"
	BetaTable         = "beta_values.csv"
)

// ErrArtifactsExist is returned instead of overwriting an earlier recording.
var ErrArtifactsExist = errors.New("run artifacts already exist")

type RunConfig struct {
	RunID        string              `json:"run_id"`
	ModelID      string              `json:"model_id"`
	Blueprint    string              `json:"blueprint"`
	Circuit      model.CircuitConfig `json:"circuit"`
	Classes      int                 `json:"classes"`
	Seed         int64               `json:"seed"`
	Mode         model.RunMode       `json:"mode"`
	Epochs       int                 `json:"epochs"`
	LearningRate float64             `json:"learning_rate"`
	Beta         string              `json:"beta"`
	TrainSize    int                 `json:"train_size"`
	TestSize     int                 `json:"test_size"`
	CreatedAtUTC string              `json:"created_at_utc"`
}

type RunSummary struct {
	Final       model.MetricsSnapshot `json:"final"`
	RecordRows  int                   `json:"record_rows"`
	ColumnStats []metrics.ColumnStats `json:"column_stats,omitempty"`
}

type RunArtifacts struct {
	Config       RunConfig
	Record       model.TrainingRecord
	FinalWeights model.WeightSet
	Summary      RunSummary
}

type RunIndexEntry struct {
	RunID         string  `json:"run_id"`
	ModelID       string  `json:"model_id"`
	Blueprint     string  `json:"blueprint"`
	Mode          string  `json:"mode"`
	Epochs        int     `json:"epochs"`
	Classes       int     `json:"classes"`
	Seed          int64   `json:"seed"`
	FinalAccuracy float64 `json:"final_accuracy"`
	FinalF1       float64 `json:"final_f1"`
	CreatedAtUTC  string  `json:"created_at_utc"`
}

// Table is one recorded CSV: a header and numeric rows.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// WriteRunArtifacts records a run under baseDir/<run id>. An existing run
// directory is never touched.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.Mkdir(runDir, 0o755); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrArtifactsExist, runDir)
		}
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeSettings(filepath.Join(runDir, settingsFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeFinalWeights(filepath.Join(runDir, finalWeightsFile), artifacts.FinalWeights); err != nil {
		return "", err
	}

	rec := artifacts.Record
	if rec.Filled == 0 {
		return runDir, nil
	}
	tables := []struct {
		name    string
		columns []string
		row     func(i int) []float64
	}{
		{name: WeightsTable, columns: rec.WeightColumns(), row: func(i int) []float64 { return rec.Weights[i] }},
		{name: MetricsTable, columns: model.MetricNames[:], row: func(i int) []float64 { return rec.Metrics[i][:] }},
		{name: ExpectationsTable, columns: rec.ExpectationColumns(), row: func(i int) []float64 { return rec.Expectations[i] }},
		{name: BetaTable, columns: []string{model.BetaColumn}, row: func(i int) []float64 { return []float64{rec.Beta[i]} }},
	}
	for _, table := range tables {
		if err := writeTable(filepath.Join(runDir, table.name), table.columns, rec.Filled, table.row); err != nil {
			return "", fmt.Errorf("write %s: %w", table.name, err)
		}
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a recorded run into outDir and returns the copied
// file paths. Tables absent from quick runs are skipped.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, []string, error) {
	if runID == "" {
		return "", nil, fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", nil, err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", nil, err
	}

	var copied []string
	required := []string{configFile, summaryFile, settingsFile, finalWeightsFile}
	for _, file := range required {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", nil, err
		}
		copied = append(copied, filepath.Join(dst, file))
	}
	for _, file := range []string{WeightsTable, MetricsTable, ExpectationsTable, BetaTable} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", nil, err
		}
		copied = append(copied, filepath.Join(dst, file))
	}
	return dst, copied, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

// ReadTable loads one of the recorded CSV tables of a run.
func ReadTable(baseDir, runID, name string) (Table, bool, error) {
	path := filepath.Join(baseDir, runID, name)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, false, nil
		}
		return Table{}, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return Table{}, true, nil
		}
		return Table{}, false, err
	}

	table := Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, false, err
		}
		row := make([]float64, len(record))
		for i, field := range record {
			row[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return Table{}, false, fmt.Errorf("%s row %d column %s: %w", name, len(table.Rows)+1, header[i], err)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, true, nil
}

// ReadFinalWeights parses final_weights.tsv back into one vector per class.
func ReadFinalWeights(baseDir, runID string) (model.WeightSet, bool, error) {
	path := filepath.Join(baseDir, runID, finalWeightsFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = '\t'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return model.WeightSet{}, true, nil
	}

	classes := len(records[0]) - 1
	weights := make(model.WeightSet, classes)
	for c := range weights {
		weights[c] = make([]float64, len(records))
	}
	for p, record := range records {
		if len(record) != classes+1 {
			return nil, false, fmt.Errorf("weights row %d has %d fields, want %d", p, len(record), classes+1)
		}
		for c := 0; c < classes; c++ {
			weights[c][p], err = strconv.ParseFloat(record[c+1], 64)
			if err != nil {
				return nil, false, fmt.Errorf("weights row %d class %d: %w", p, c, err)
			}
		}
	}
	return weights, true, nil
}

// writeFinalWeights dumps weights transposed: one row per parameter, a leading
// row index, then one tab separated column per class.
func writeFinalWeights(path string, weights model.WeightSet) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = '\t'
	classes, params := weights.Shape()
	for p := 0; p < params; p++ {
		record := make([]string, 0, classes+1)
		record = append(record, strconv.Itoa(p))
		for c := 0; c < classes; c++ {
			record = append(record, formatFloat(weights[c][p]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeSettings(path string, cfg RunConfig) error {
	c := cfg.Circuit
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", c.Name)
	fmt.Fprintf(&b, "Num Wires: %d || Num Workers: %d || Num Features: %d (%s) || Num Parameters: %d (%s)\n",
		c.Wires, c.Workers, c.Features, indexedNames("x", c.Features), c.Params, indexedNames("weight", c.Params))
	fmt.Fprintf(&b, "Backend: %s\n", c.Backend)
	fmt.Fprintf(&b, "Classes: %d || Beta: %s || Learning Rate: %g || Epochs: %d\n", cfg.Classes, cfg.Beta, cfg.LearningRate, cfg.Epochs)
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func indexedNames(prefix string, n int) string {
	if n == 0 {
		return ""
	}
	if n == 1 {
		return fmt.Sprintf("%s_00", prefix)
	}
	return fmt.Sprintf("%s_00..%s_%02d", prefix, prefix, n-1)
}

func writeTable(path string, columns []string, rows int, row func(i int) []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(columns); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		values := row(i)
		record := make([]string, len(values))
		for j, v := range values {
			record[j] = formatFloat(v)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
