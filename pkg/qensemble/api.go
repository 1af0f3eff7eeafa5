// Package qensemble is the public entry point for building, training and
// persisting one-vs-rest quantum classifier ensembles.
package qensemble

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"qensemble/internal/circuit"
	"qensemble/internal/dataset"
	"qensemble/internal/ensemble"
	"qensemble/internal/metrics"
	"qensemble/internal/model"
	"qensemble/internal/stats"
	"qensemble/internal/storage"
	"qensemble/internal/training"
)

const (
	defaultRecordingsDir = "recordings"
	defaultExportsDir    = "exports"
	defaultDBPath        = "qensemble.db"

	defaultBlueprint    = "moon"
	defaultClasses      = 3
	defaultEpochs       = 10
	defaultLearningRate = 0.1
	defaultStatsWindows = 6
)

// Split is a training/test partition of labelled feature rows.
type Split = dataset.Split

type Options struct {
	StoreKind     string
	DBPath        string
	RecordingsDir string
	ExportsDir    string
	// Logger receives training progress for requests with Display set.
	Logger *log.Logger
}

type Client struct {
	store storage.Store

	recordingsDir string
	exportsDir    string
	logger        *log.Logger

	initOnce sync.Once
	initErr  error
}

type ModelRequest struct {
	Blueprint string
	Classes   int
	// Seed for weight initialization. Zero picks a time based seed.
	Seed    int64
	Workers int
}

type FitRequest struct {
	Split        Split
	Epochs       int
	LearningRate float64
	Beta         string
	// Quick skips the per-step training record.
	Quick   bool
	Display bool
}

type FitSummary struct {
	RunID        string
	ModelID      string
	Mode         model.RunMode
	ArtifactsDir string
	Final        model.MetricsSnapshot
	RecordRows   int
	ColumnStats  []metrics.ColumnStats
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID         string
	ModelID       string
	Blueprint     string
	Mode          string
	Epochs        int
	Classes       int
	FinalAccuracy float64
	FinalF1       float64
	CreatedAtUTC  string
}

// RunDetails is the recorded configuration and outcome of one run.
type RunDetails struct {
	RunID        string
	ModelID      string
	Blueprint    string
	Circuit      model.CircuitConfig
	Classes      int
	Seed         int64
	Mode         model.RunMode
	Epochs       int
	LearningRate float64
	Beta         string
	TrainSize    int
	TestSize     int
	CreatedAtUTC string
	Final        model.MetricsSnapshot
	RecordRows   int
	ColumnStats  []metrics.ColumnStats
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
	Files     []string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	recordingsDir := opts.RecordingsDir
	if recordingsDir == "" {
		recordingsDir = defaultRecordingsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		recordingsDir: recordingsDir,
		exportsDir:    exportsDir,
		logger:        opts.Logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Blueprints lists the registered circuit blueprints.
func (c *Client) Blueprints() []circuit.Blueprint {
	names := circuit.ListBlueprints()
	out := make([]circuit.Blueprint, 0, len(names))
	for _, name := range names {
		bp, err := circuit.GetBlueprint(name)
		if err != nil {
			continue
		}
		out = append(out, bp)
	}
	return out
}

// NewModel builds a model from a registered blueprint and stores its initial
// snapshot.
func (c *Client) NewModel(ctx context.Context, req ModelRequest) (*Model, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.Blueprint == "" {
		req.Blueprint = defaultBlueprint
	}
	if req.Classes <= 0 {
		req.Classes = defaultClasses
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	if req.Workers < 0 {
		return nil, errors.New("workers must be >= 0")
	}

	bp, err := circuit.GetBlueprint(req.Blueprint)
	if err != nil {
		return nil, err
	}
	if req.Workers > 0 {
		bp.Config = bp.Config.WithWorkers(req.Workers)
	}

	m, err := newModel(uuid.NewString(), bp, req.Classes, req.Seed, nil, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveModel(ctx, m.Snapshot()); err != nil {
		return nil, fmt.Errorf("save model %s: %w", m.ID(), err)
	}
	return m, nil
}

func (c *Client) SaveModel(ctx context.Context, m *Model) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.store.SaveModel(ctx, m.Snapshot())
}

func (c *Client) LoadModel(ctx context.Context, id string) (*Model, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	snapshot, ok, err := c.store.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("model not found: %s", id)
	}
	return modelFromSnapshot(snapshot)
}

func (c *Client) Models(ctx context.Context) ([]model.ModelSnapshot, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListModels(ctx)
}

// LoadRunModel rebuilds the model a recorded run finished with from its
// artifacts directory. It works without the store the run was saved in.
func (c *Client) LoadRunModel(_ context.Context, runID string) (*Model, error) {
	cfg, ok, err := stats.ReadRunConfig(c.recordingsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	weights, ok, err := stats.ReadFinalWeights(c.recordingsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run %s has no final weights", runID)
	}
	createdAt, _ := time.Parse(time.RFC3339, cfg.CreatedAtUTC)
	return modelFromSnapshot(model.ModelSnapshot{
		ID:        cfg.ModelID,
		Blueprint: cfg.Blueprint,
		Circuit:   cfg.Circuit,
		Classes:   cfg.Classes,
		Seed:      cfg.Seed,
		Weights:   weights,
		CreatedAt: createdAt,
	})
}

// Fit trains m on req.Split and, on success, replaces the model weights,
// persists the run and records its artifacts. On failure the model keeps the
// weights it had before the call, in memory and in the store.
func (c *Client) Fit(ctx context.Context, m *Model, req FitRequest) (FitSummary, error) {
	if err := c.Init(ctx); err != nil {
		return FitSummary{}, err
	}
	if m == nil {
		return FitSummary{}, errors.New("model is required")
	}
	if req.Epochs <= 0 {
		req.Epochs = defaultEpochs
	}
	if req.LearningRate == 0 {
		req.LearningRate = defaultLearningRate
	}
	if req.Beta == "" {
		req.Beta = ensemble.DefaultBeta
	}

	opt, err := ensemble.NewOptimizer(m.ens, req.Beta)
	if err != nil {
		return FitSummary{}, err
	}
	var logger *log.Logger
	if req.Display {
		logger = c.logger
	}
	trainer, err := training.New(training.Config{
		Optimizer:    opt,
		LearningRate: req.LearningRate,
		Epochs:       req.Epochs,
		Logger:       logger,
	})
	if err != nil {
		return FitSummary{}, err
	}

	mode := model.RunModeFull
	if req.Quick {
		mode = model.RunModeQuick
	}
	weights := m.weights.Clone()
	var rec model.TrainingRecord
	if req.Quick {
		weights, err = trainer.QuickTrain(ctx, req.Split, weights)
	} else {
		weights, rec, err = trainer.Train(ctx, req.Split, weights)
	}
	if err != nil {
		return FitSummary{}, fmt.Errorf("%s training: %w", mode, err)
	}

	summary := FitSummary{
		RunID:      uuid.NewString(),
		ModelID:    m.ID(),
		Mode:       mode,
		RecordRows: rec.Len(),
	}
	if len(req.Split.XTest) > 0 {
		summary.Final, err = metrics.Evaluate(m.ens, weights, req.Split.XTest, req.Split.YTest)
		if err != nil {
			return FitSummary{}, fmt.Errorf("final metrics: %w", err)
		}
	}
	if rec.Filled > 0 {
		summary.ColumnStats = metrics.RecordStats(rec, defaultStatsWindows)
	}

	createdAt := time.Now().UTC()
	run := model.RunSummary{
		VersionedRecord: storage.Versioned(),
		RunID:           summary.RunID,
		ModelID:         m.ID(),
		Blueprint:       m.Blueprint(),
		Mode:            mode,
		Epochs:          req.Epochs,
		LearningRate:    req.LearningRate,
		Beta:            opt.BetaName(),
		TrainSize:       len(req.Split.XTrain),
		TestSize:        len(req.Split.XTest),
		RecordRows:      summary.RecordRows,
		Final:           summary.Final,
		CreatedAt:       createdAt,
	}
	runDir, err := stats.WriteRunArtifacts(c.recordingsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        run.RunID,
			ModelID:      run.ModelID,
			Blueprint:    run.Blueprint,
			Circuit:      m.Config().Record(),
			Classes:      m.Classes(),
			Seed:         m.Seed(),
			Mode:         mode,
			Epochs:       run.Epochs,
			LearningRate: run.LearningRate,
			Beta:         run.Beta,
			TrainSize:    run.TrainSize,
			TestSize:     run.TestSize,
			CreatedAtUTC: createdAt.Format(time.RFC3339),
		},
		Record:       rec,
		FinalWeights: weights,
		Summary: stats.RunSummary{
			Final:       summary.Final,
			RecordRows:  summary.RecordRows,
			ColumnStats: summary.ColumnStats,
		},
	})
	if err != nil {
		return FitSummary{}, err
	}

	previous := m.Snapshot()
	trained := m.Snapshot()
	trained.Weights = weights.Clone()
	if err := c.store.SaveModel(ctx, trained); err != nil {
		return FitSummary{}, fmt.Errorf("save model %s: %w", m.ID(), err)
	}
	if err := c.saveRun(ctx, run, rec, req.Quick); err != nil {
		_ = c.store.SaveModel(ctx, previous)
		return FitSummary{}, err
	}
	if err := stats.AppendRunIndex(c.recordingsDir, stats.RunIndexEntry{
		RunID:         run.RunID,
		ModelID:       run.ModelID,
		Blueprint:     run.Blueprint,
		Mode:          string(mode),
		Epochs:        run.Epochs,
		Classes:       m.Classes(),
		Seed:          m.Seed(),
		FinalAccuracy: summary.Final.Accuracy,
		FinalF1:       summary.Final.F1,
		CreatedAtUTC:  createdAt.Format(time.RFC3339),
	}); err != nil {
		_ = c.store.SaveModel(ctx, previous)
		return FitSummary{}, err
	}

	m.weights = weights
	summary.ArtifactsDir = filepath.Clean(runDir)
	return summary, nil
}

func (c *Client) saveRun(ctx context.Context, run model.RunSummary, rec model.TrainingRecord, quick bool) error {
	if err := c.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	if quick {
		return nil
	}
	if err := c.store.SaveTrainingRecord(ctx, run.RunID, rec); err != nil {
		return fmt.Errorf("save record %s: %w", run.RunID, err)
	}
	return nil
}

func (c *Client) Run(ctx context.Context, runID string) (model.RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return model.RunSummary{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunSummary{}, err
	}
	if !ok {
		return model.RunSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

// Record returns the per-step training record of a full run.
func (c *Client) Record(ctx context.Context, runID string) (model.TrainingRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.TrainingRecord{}, err
	}
	rec, ok, err := c.store.GetTrainingRecord(ctx, runID)
	if err != nil {
		return model.TrainingRecord{}, err
	}
	if !ok {
		return model.TrainingRecord{}, fmt.Errorf("training record not found: %s", runID)
	}
	return rec, nil
}

// Runs lists recorded runs newest first from the recordings index.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.recordingsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:         e.RunID,
			ModelID:       e.ModelID,
			Blueprint:     e.Blueprint,
			Mode:          e.Mode,
			Epochs:        e.Epochs,
			Classes:       e.Classes,
			FinalAccuracy: e.FinalAccuracy,
			FinalF1:       e.FinalF1,
			CreatedAtUTC:  e.CreatedAtUTC,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.recordingsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, files, err := stats.ExportRunArtifacts(c.recordingsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir), Files: files}, nil
}

// ShowRun reads a run back from its artifacts directory.
func (c *Client) ShowRun(_ context.Context, runID string) (RunDetails, error) {
	cfg, ok, err := stats.ReadRunConfig(c.recordingsDir, runID)
	if err != nil {
		return RunDetails{}, err
	}
	if !ok {
		return RunDetails{}, fmt.Errorf("run not found: %s", runID)
	}
	summary, _, err := stats.ReadRunSummary(c.recordingsDir, runID)
	if err != nil {
		return RunDetails{}, err
	}
	return RunDetails{
		RunID:        cfg.RunID,
		ModelID:      cfg.ModelID,
		Blueprint:    cfg.Blueprint,
		Circuit:      cfg.Circuit,
		Classes:      cfg.Classes,
		Seed:         cfg.Seed,
		Mode:         cfg.Mode,
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		Beta:         cfg.Beta,
		TrainSize:    cfg.TrainSize,
		TestSize:     cfg.TestSize,
		CreatedAtUTC: cfg.CreatedAtUTC,
		Final:        summary.Final,
		RecordRows:   summary.RecordRows,
		ColumnStats:  summary.ColumnStats,
	}, nil
}

// RunStats reads the recorded column statistics of a run.
func (c *Client) RunStats(_ context.Context, runID string) ([]metrics.ColumnStats, error) {
	summary, ok, err := stats.ReadRunSummary(c.recordingsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return summary.ColumnStats, nil
}

// Moons generates the two-moons toy set with features already scaled to angles.
func Moons(n int, noise float64, seed int64) ([][]float64, []int) {
	return dataset.Moons(n, noise, seed)
}

// SplitData shuffles x and y with seed and holds out testFraction of the rows.
func SplitData(x [][]float64, y []int, testFraction float64, seed int64) (Split, error) {
	return dataset.TrainTestSplit(x, y, testFraction, seed)
}

// ScaleAndSplit scales every feature column onto [0, pi] before splitting.
func ScaleAndSplit(x [][]float64, y []int, testFraction float64, seed int64) (Split, error) {
	scaled, err := dataset.ScaleToAngles(x)
	if err != nil {
		return Split{}, err
	}
	return dataset.TrainTestSplit(scaled, y, testFraction, seed)
}
