package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"qensemble/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the schema and codec versions new records are written with.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeModel(m model.ModelSnapshot) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeModel(data []byte) (model.ModelSnapshot, error) {
	var snapshot model.ModelSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.ModelSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.ModelSnapshot{}, err
	}
	if err := snapshot.Weights.Validate(snapshot.Classes, snapshot.Circuit.Params); err != nil {
		return model.ModelSnapshot{}, fmt.Errorf("model %s: %w", snapshot.ID, err)
	}
	return snapshot, nil
}

func EncodeRun(r model.RunSummary) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunSummary, error) {
	var run model.RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return run, nil
}

type storedRecord struct {
	model.VersionedRecord
	RunID  string               `json:"run_id"`
	Record model.TrainingRecord `json:"record"`
}

func EncodeTrainingRecord(runID string, rec model.TrainingRecord) ([]byte, error) {
	return json.Marshal(storedRecord{VersionedRecord: Versioned(), RunID: runID, Record: rec})
}

func DecodeTrainingRecord(data []byte) (string, model.TrainingRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", model.TrainingRecord{}, err
	}
	if err := checkVersion(stored.VersionedRecord); err != nil {
		return "", model.TrainingRecord{}, err
	}
	rec := stored.Record
	if len(rec.Expectations) != rec.Len() || len(rec.Metrics) != rec.Len() || len(rec.Weights) != rec.Len() {
		return "", model.TrainingRecord{}, fmt.Errorf("record %s: ragged columns", stored.RunID)
	}
	if rec.Filled > rec.Len() {
		return "", model.TrainingRecord{}, fmt.Errorf("record %s: filled=%d exceeds rows=%d", stored.RunID, rec.Filled, rec.Len())
	}
	return stored.RunID, rec, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
