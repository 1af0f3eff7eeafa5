package storage

import (
	"context"

	"qensemble/internal/model"
)

// Store persists trained models, run summaries and their training records.
type Store interface {
	Init(ctx context.Context) error
	SaveModel(ctx context.Context, snapshot model.ModelSnapshot) error
	GetModel(ctx context.Context, id string) (model.ModelSnapshot, bool, error)
	ListModels(ctx context.Context) ([]model.ModelSnapshot, error)
	SaveRun(ctx context.Context, run model.RunSummary) error
	GetRun(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRuns(ctx context.Context) ([]model.RunSummary, error)
	SaveTrainingRecord(ctx context.Context, runID string, record model.TrainingRecord) error
	GetTrainingRecord(ctx context.Context, runID string) (model.TrainingRecord, bool, error)
}
