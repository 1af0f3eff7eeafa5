package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"qensemble/internal/metrics"
	"qensemble/internal/storage"
	qapi "qensemble/pkg/qensemble"
)

const (
	recordingsDir = "recordings"
	exportsDir    = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "blueprints":
		return runBlueprints(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "predict":
		return runPredict(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runBlueprints(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("blueprints", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit blueprints as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := qapi.New(qapi.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	blueprints := client.Blueprints()
	if *jsonOut {
		type blueprintItem struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Backend     string `json:"backend"`
			Wires       int    `json:"wires"`
			Features    int    `json:"features"`
			Params      int    `json:"params"`
		}
		items := make([]blueprintItem, 0, len(blueprints))
		for _, bp := range blueprints {
			items = append(items, blueprintItem{
				Name:        bp.Name,
				Description: bp.Description,
				Backend:     bp.Config.Backend,
				Wires:       bp.Config.Wires,
				Features:    bp.Config.Features,
				Params:      bp.Config.Params,
			})
		}
		return writeJSON(items)
	}

	for _, bp := range blueprints {
		fmt.Printf("name=%s backend=%s wires=%d features=%d params=%d description=%q\n",
			bp.Name,
			bp.Config.Backend,
			bp.Config.Wires,
			bp.Config.Features,
			bp.Config.Params,
			bp.Description,
		)
	}
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path")
	blueprint := fs.String("blueprint", defaultBlueprint, "circuit blueprint name")
	classes := fs.Int("classes", 2, "class count (one circuit per class)")
	seed := fs.Int64("seed", 0, "weight initialization seed (0 uses the clock)")
	workers := fs.Int("workers", 0, "gradient worker count (0 keeps the blueprint default)")
	epochs := fs.Int("epochs", 10, "training epochs")
	learningRate := fs.Float64("lr", 0.1, "learning rate")
	beta := fs.String("beta", "classic", "beta strategy: classic|delta|theta|rho|tau")
	quick := fs.Bool("quick", false, "train without recording every step")
	samples := fs.Int("samples", 200, "moons dataset size")
	noise := fs.Float64("noise", 0.1, "moons dataset noise")
	testFraction := fs.Float64("test-fraction", 0.15, "held-out fraction of the dataset")
	dataSeed := fs.Int64("data-seed", 1, "dataset generation and split seed")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "qensemble.db", "sqlite database path")
	verbose := fs.Bool("verbose", isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()), "log epoch progress to stderr")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = trainRequest{
			Blueprint:    *blueprint,
			Classes:      *classes,
			Seed:         *seed,
			Workers:      *workers,
			Epochs:       *epochs,
			LearningRate: *learningRate,
			Beta:         *beta,
			Quick:        *quick,
			Samples:      *samples,
			Noise:        *noise,
			TestFraction: *testFraction,
			DataSeed:     *dataSeed,
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"blueprint":     *blueprint,
			"classes":       *classes,
			"seed":          *seed,
			"workers":       *workers,
			"epochs":        *epochs,
			"lr":            *learningRate,
			"beta":          *beta,
			"quick":         *quick,
			"samples":       *samples,
			"noise":         *noise,
			"test-fraction": *testFraction,
			"data-seed":     *dataSeed,
		})
	}
	if err := req.validate(); err != nil {
		return err
	}

	opts := qapi.Options{
		StoreKind:     *storeKind,
		DBPath:        *dbPath,
		RecordingsDir: recordingsDir,
		ExportsDir:    exportsDir,
	}
	if *verbose {
		opts.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	client, err := qapi.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := checkMoonsBlueprint(client, req.Blueprint); err != nil {
		return err
	}
	m, err := client.NewModel(ctx, qapi.ModelRequest{
		Blueprint: req.Blueprint,
		Classes:   req.Classes,
		Seed:      req.Seed,
		Workers:   req.Workers,
	})
	if err != nil {
		return err
	}

	x, y := qapi.Moons(req.Samples, req.Noise, req.DataSeed)
	split, err := qapi.SplitData(x, y, req.TestFraction, req.DataSeed)
	if err != nil {
		return err
	}

	summary, err := client.Fit(ctx, m, qapi.FitRequest{
		Split:        split,
		Epochs:       req.Epochs,
		LearningRate: req.LearningRate,
		Beta:         req.Beta,
		Quick:        req.Quick,
		Display:      *verbose,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		type trainOutput struct {
			RunID        string  `json:"run_id"`
			ModelID      string  `json:"model_id"`
			Mode         string  `json:"mode"`
			RecordRows   int     `json:"record_rows"`
			Accuracy     float64 `json:"accuracy"`
			Precision    float64 `json:"precision"`
			Recall       float64 `json:"recall"`
			F1           float64 `json:"f1"`
			ArtifactsDir string  `json:"artifacts_dir"`
		}
		return writeJSON(trainOutput{
			RunID:        summary.RunID,
			ModelID:      summary.ModelID,
			Mode:         string(summary.Mode),
			RecordRows:   summary.RecordRows,
			Accuracy:     summary.Final.Accuracy,
			Precision:    summary.Final.Precision,
			Recall:       summary.Final.Recall,
			F1:           summary.Final.F1,
			ArtifactsDir: summary.ArtifactsDir,
		})
	}

	fmt.Printf("run completed run_id=%s model_id=%s mode=%s train=%s test=%s recorded_steps=%s\n",
		summary.RunID,
		summary.ModelID,
		summary.Mode,
		humanize.Comma(int64(len(split.XTrain))),
		humanize.Comma(int64(len(split.XTest))),
		humanize.Comma(int64(summary.RecordRows)),
	)
	fmt.Printf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n",
		summary.Final.Accuracy,
		summary.Final.Precision,
		summary.Final.Recall,
		summary.Final.F1,
	)
	if len(summary.Final.Confusion) > 0 {
		fmt.Printf("confusion matrix:\n%s\n", metrics.FormatConfusion(summary.Final.Confusion))
	}
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := qapi.New(qapi.Options{StoreKind: "memory", RecordingsDir: recordingsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, qapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID         string  `json:"run_id"`
			ModelID       string  `json:"model_id"`
			CreatedAtUTC  string  `json:"created_at_utc"`
			Blueprint     string  `json:"blueprint"`
			Mode          string  `json:"mode"`
			Epochs        int     `json:"epochs"`
			Classes       int     `json:"classes"`
			FinalAccuracy float64 `json:"final_accuracy"`
			FinalF1       float64 `json:"final_f1"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:         item.RunID,
				ModelID:       item.ModelID,
				CreatedAtUTC:  item.CreatedAtUTC,
				Blueprint:     item.Blueprint,
				Mode:          item.Mode,
				Epochs:        item.Epochs,
				Classes:       item.Classes,
				FinalAccuracy: item.FinalAccuracy,
				FinalF1:       item.FinalF1,
			})
		}
		return writeJSON(out)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s blueprint=%s mode=%s classes=%d epochs=%d final_accuracy=%.4f final_f1=%.4f\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Blueprint,
			item.Mode,
			item.Classes,
			item.Epochs,
			item.FinalAccuracy,
			item.FinalF1,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	jsonOut := fs.Bool("json", false, "emit run details as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := qapi.New(qapi.Options{StoreKind: "memory", RecordingsDir: recordingsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	id, err := resolveRunID(ctx, client, *runID, *latest)
	if err != nil {
		return err
	}
	details, err := client.ShowRun(ctx, id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(details)
	}

	fmt.Printf("run_id=%s model_id=%s blueprint=%s mode=%s created_at=%s\n",
		details.RunID, details.ModelID, details.Blueprint, details.Mode, details.CreatedAtUTC)
	fmt.Printf("classes=%d features=%d params=%d workers=%d seed=%d\n",
		details.Classes, details.Circuit.Features, details.Circuit.Params, details.Circuit.Workers, details.Seed)
	fmt.Printf("epochs=%d lr=%g beta=%s train=%d test=%d recorded_steps=%s\n",
		details.Epochs, details.LearningRate, details.Beta, details.TrainSize, details.TestSize, humanize.Comma(int64(details.RecordRows)))
	fmt.Printf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n",
		details.Final.Accuracy, details.Final.Precision, details.Final.Recall, details.Final.F1)
	for _, col := range details.ColumnStats {
		fmt.Printf("column=%s mean=%.6f min=%.6f max=%.6f variance=%.6f\n", col.Name, col.Mean, col.Min, col.Max, col.Variance)
	}
	return nil
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id whose final weights are used")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	rawFeatures := fs.String("x", "", "comma separated feature vector")
	if err := fs.Parse(args); err != nil {
		return err
	}
	features, err := parseFloatVector(*rawFeatures)
	if err != nil {
		return fmt.Errorf("parse -x: %w", err)
	}

	client, err := qapi.New(qapi.Options{StoreKind: "memory", RecordingsDir: recordingsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	id, err := resolveRunID(ctx, client, *runID, *latest)
	if err != nil {
		return err
	}
	m, err := client.LoadRunModel(ctx, id)
	if err != nil {
		return err
	}
	expectations, err := m.PredictProb(features)
	if err != nil {
		return err
	}
	class, err := m.Predict(features)
	if err != nil {
		return err
	}

	parts := make([]string, len(expectations))
	for i, v := range expectations {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	fmt.Printf("run_id=%s class=%d expectations=%s\n", id, class, strings.Join(parts, ","))
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := qapi.New(qapi.Options{StoreKind: "memory", RecordingsDir: recordingsDir, ExportsDir: *outDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, qapi.ExportRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	var total uint64
	for _, file := range exported.Files {
		info, err := os.Stat(file)
		if err != nil {
			return err
		}
		total += uint64(info.Size())
	}
	fmt.Printf("exported run_id=%s to=%s files=%d size=%s\n",
		exported.RunID, exported.Directory, len(exported.Files), humanize.Bytes(total))
	for _, file := range exported.Files {
		fmt.Printf("  %s\n", filepath.Base(file))
	}
	return nil
}

// checkMoonsBlueprint rejects blueprints that cannot take the two moons features.
func checkMoonsBlueprint(client *qapi.Client, name string) error {
	for _, bp := range client.Blueprints() {
		if bp.Name != name {
			continue
		}
		if bp.Config.Features != 2 {
			return fmt.Errorf("train generates the two-feature moons dataset; blueprint %s expects %d features", name, bp.Config.Features)
		}
		return nil
	}
	return fmt.Errorf("unknown blueprint: %s", name)
}

func resolveRunID(ctx context.Context, client *qapi.Client, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either --run-id or --latest, not both")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("requires --run-id or --latest")
	}
	items, err := client.Runs(ctx, qapi.RunsRequest{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", errors.New("no runs recorded")
	}
	return items[0].RunID, nil
}

func parseFloatVector(raw string) ([]float64, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return nil, errors.New("vector is required")
	}
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: qensemblectl <blueprints|train|runs|show|predict|export> [flags]", msg)
}
