package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"qensemble/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	models      map[string]model.ModelSnapshot
	runs        map[string]model.RunSummary
	records     map[string]model.TrainingRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.models = make(map[string]model.ModelSnapshot)
	s.runs = make(map[string]model.RunSummary)
	s.records = make(map[string]model.TrainingRecord)
	return nil
}

var errNotInitialized = errors.New("store is not initialized")

func (s *MemoryStore) SaveModel(_ context.Context, snapshot model.ModelSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	snapshot.Weights = snapshot.Weights.Clone()
	s.models[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (model.ModelSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.models[id]
	if !ok {
		return model.ModelSnapshot{}, false, nil
	}
	snapshot.Weights = snapshot.Weights.Clone()
	return snapshot, true, nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]model.ModelSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ModelSnapshot, 0, len(s.models))
	for _, snapshot := range s.models {
		snapshot.Weights = snapshot.Weights.Clone()
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveTrainingRecord(_ context.Context, runID string, record model.TrainingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.records[runID] = record.Clone()
	return nil
}

func (s *MemoryStore) GetTrainingRecord(_ context.Context, runID string) (model.TrainingRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[runID]
	if !ok {
		return model.TrainingRecord{}, false, nil
	}
	return record.Clone(), true, nil
}

// sortRuns orders runs oldest first, breaking ties by id.
func sortRuns(runs []model.RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
}
