package qensemble

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"qensemble/internal/circuit"
	"qensemble/internal/dataset"
	"qensemble/internal/model"
	"qensemble/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:     "memory",
		RecordingsDir: filepath.Join(base, "recordings"),
		ExportsDir:    filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func moonSplit(t *testing.T) Split {
	t.Helper()
	x, y := Moons(12, 0.05, 11)
	split, err := SplitData(x, y, 0.25, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	return split
}

func TestClientFitRunsAndExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	m, err := client.NewModel(ctx, ModelRequest{Blueprint: "moon", Classes: 2, Seed: 42})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	initial := m.Weights()
	split := moonSplit(t)

	summary, err := client.Fit(ctx, m, FitRequest{Split: split, Epochs: 1, LearningRate: 0.1})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if summary.Mode != model.RunModeFull || summary.ModelID != m.ID() {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if want := model.RecordRows(1, len(split.XTrain)); summary.RecordRows != want {
		t.Fatalf("unexpected record rows: got=%d want=%d", summary.RecordRows, want)
	}
	if m.Weights().Equal(initial) {
		t.Fatal("expected fit to update model weights")
	}
	if len(summary.ColumnStats) != 2 {
		t.Fatalf("expected stats for each class column, got %d", len(summary.ColumnStats))
	}
	if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, "weights.csv")); err != nil {
		t.Fatalf("expected recorded weights table: %v", err)
	}

	rec, err := client.Record(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Filled != summary.RecordRows {
		t.Fatalf("unexpected stored record rows: %d", rec.Filled)
	}
	run, err := client.Run(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Beta != "classic" || run.TrainSize != len(split.XTrain) {
		t.Fatalf("unexpected run: %+v", run)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Blueprint != "moon" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID || len(exported.Files) != 8 {
		t.Fatalf("unexpected export: %+v", exported)
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export argument error")
	}

	details, err := client.ShowRun(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("show run: %v", err)
	}
	if details.ModelID != m.ID() || details.Seed != 42 || details.RecordRows != summary.RecordRows || details.Circuit.Params != 5 {
		t.Fatalf("unexpected run details: %+v", details)
	}
	if _, err := client.ShowRun(ctx, "missing"); err == nil {
		t.Fatal("expected missing run error")
	}

	statsOut, err := client.RunStats(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("run stats: %v", err)
	}
	if len(statsOut) != 2 || statsOut[0].Name != "C_0_expect" {
		t.Fatalf("unexpected run stats: %+v", statsOut)
	}
}

func TestClientLoadModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	m, err := client.NewModel(ctx, ModelRequest{Blueprint: "moon", Classes: 2, Seed: 5, Workers: 2})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	summary, err := client.Fit(ctx, m, FitRequest{Split: moonSplit(t), Epochs: 1, Quick: true})
	if err != nil {
		t.Fatalf("quick fit: %v", err)
	}
	if summary.Mode != model.RunModeQuick || summary.RecordRows != 0 {
		t.Fatalf("unexpected quick summary: %+v", summary)
	}
	if _, err := client.Record(ctx, summary.RunID); err == nil {
		t.Fatal("expected no training record for a quick run")
	}

	loaded, err := client.LoadModel(ctx, m.ID())
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if !loaded.Weights().Equal(m.Weights()) || loaded.Config().Workers != 2 {
		t.Fatalf("unexpected loaded model: %s workers=%d", loaded, loaded.Config().Workers)
	}

	fromRun, err := client.LoadRunModel(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("load run model: %v", err)
	}
	if !fromRun.Weights().Equal(m.Weights()) || fromRun.ID() != m.ID() {
		t.Fatalf("unexpected run model: %s", fromRun)
	}

	x := moonSplit(t).XTest
	want, err := m.PredictAll(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	got, err := fromRun.PredictAll(x)
	if err != nil {
		t.Fatalf("predict from run: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got=%d want=%d", i, got[i], want[i])
		}
	}

	models, err := client.Models(ctx)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(models) != 1 || models[0].ID != m.ID() {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestFitFailureKeepsWeights(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	m, err := client.NewModel(ctx, ModelRequest{Classes: 2, Seed: 9})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	initial := m.Weights()
	split := moonSplit(t)
	split.XTest, split.YTest = nil, nil

	if _, err := client.Fit(ctx, m, FitRequest{Split: split, Epochs: 1}); !errors.Is(err, dataset.ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got: %v", err)
	}
	if !m.Weights().Equal(initial) {
		t.Fatal("expected weights unchanged after failed fit")
	}
	if _, err := client.Fit(ctx, m, FitRequest{Split: moonSplit(t), Beta: "missing"}); err == nil {
		t.Fatal("expected unknown beta error")
	}
}

type failingRunStore struct {
	storage.Store
}

func (s failingRunStore) SaveRun(context.Context, model.RunSummary) error {
	return errors.New("disk full")
}

func TestFitKeepsWeightsWhenPersistenceFails(t *testing.T) {
	ctx := context.Background()

	t.Run("recordings", func(t *testing.T) {
		client := newTestClient(t)
		blocker := filepath.Join(t.TempDir(), "recordings")
		if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
			t.Fatalf("write blocker: %v", err)
		}
		client.recordingsDir = blocker

		m, err := client.NewModel(ctx, ModelRequest{Blueprint: "moon", Classes: 2, Seed: 13})
		if err != nil {
			t.Fatalf("new model: %v", err)
		}
		initial := m.Weights()
		if _, err := client.Fit(ctx, m, FitRequest{Split: moonSplit(t), Epochs: 1, Quick: true}); err == nil {
			t.Fatal("expected artifacts error")
		}
		if !m.Weights().Equal(initial) {
			t.Fatal("expected weights unchanged after failed artifacts write")
		}
		stored, err := client.LoadModel(ctx, m.ID())
		if err != nil {
			t.Fatalf("load model: %v", err)
		}
		if !stored.Weights().Equal(initial) {
			t.Fatal("expected stored snapshot unchanged after failed fit")
		}
	})

	t.Run("store", func(t *testing.T) {
		client := newTestClient(t)
		m, err := client.NewModel(ctx, ModelRequest{Blueprint: "moon", Classes: 2, Seed: 17})
		if err != nil {
			t.Fatalf("new model: %v", err)
		}
		initial := m.Weights()
		client.store = failingRunStore{Store: client.store}

		if _, err := client.Fit(ctx, m, FitRequest{Split: moonSplit(t), Epochs: 1, Quick: true}); err == nil {
			t.Fatal("expected save run error")
		}
		if !m.Weights().Equal(initial) {
			t.Fatal("expected weights unchanged after failed run save")
		}
		stored, err := client.LoadModel(ctx, m.ID())
		if err != nil {
			t.Fatalf("load model: %v", err)
		}
		if !stored.Weights().Equal(initial) {
			t.Fatal("expected stored snapshot restored after failed run save")
		}
	})
}

func TestModelPredictionsAndRefresh(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	m, err := client.NewModel(ctx, ModelRequest{Blueprint: "iris", Seed: 1})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if m.Classes() != 3 || m.Config().Features != 4 || m.String() != "Quantum Model: iris" {
		t.Fatalf("unexpected defaults: classes=%d cfg=%+v name=%s", m.Classes(), m.Config(), m)
	}

	row := []float64{0.1, 0.2, 0.3, 0.4}
	probs, err := m.PredictProb(row)
	if err != nil {
		t.Fatalf("predict prob: %v", err)
	}
	if len(probs) != 3 {
		t.Fatalf("unexpected expectation count: %d", len(probs))
	}
	class, err := m.Predict(row)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i, p := range probs {
		if p > probs[class] {
			t.Fatalf("class %d beats predicted class %d: %v", i, class, probs)
		}
	}
	all, err := m.PredictProbAll([][]float64{row, row})
	if err != nil || len(all) != 2 {
		t.Fatalf("predict prob all: len=%d err=%v", len(all), err)
	}
	if _, err := m.Predict([]float64{1}); !errors.Is(err, circuit.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got: %v", err)
	}

	m.RefreshWeights(77)
	first := m.Weights()
	m.RefreshWeights(77)
	if !m.Weights().Equal(first) || m.Seed() != 77 {
		t.Fatal("expected seeded refresh to be deterministic")
	}
}

func TestNewModelUnknownBlueprint(t *testing.T) {
	client := newTestClient(t)
	_, err := client.NewModel(context.Background(), ModelRequest{Blueprint: "nope"})
	if !errors.Is(err, circuit.ErrBlueprintNotFound) {
		t.Fatalf("expected ErrBlueprintNotFound, got: %v", err)
	}
	if len(client.Blueprints()) < 3 {
		t.Fatal("expected built-in blueprints")
	}
}

func TestScaleAndSplit(t *testing.T) {
	x := [][]float64{{0, 10}, {5, 20}, {10, 30}, {2, 12}}
	split, err := ScaleAndSplit(x, []int{0, 1, 1, 0}, 0.25, 1)
	if err != nil {
		t.Fatalf("scale and split: %v", err)
	}
	if len(split.XTrain) != 3 || len(split.XTest) != 1 {
		t.Fatalf("unexpected split sizes: train=%d test=%d", len(split.XTrain), len(split.XTest))
	}
	if _, err := ScaleAndSplit([][]float64{{1}, {2, 3}}, []int{0, 1}, 0.5, 1); err == nil {
		t.Fatal("expected ragged rows error")
	}
}
