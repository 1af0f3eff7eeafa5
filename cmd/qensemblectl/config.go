package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const defaultBlueprint = "moon"

// trainRequest is everything the train command needs, loadable from a JSON
// config and overridable by explicitly set flags.
type trainRequest struct {
	Blueprint    string
	Classes      int
	Seed         int64
	Workers      int
	Epochs       int
	LearningRate float64
	Beta         string
	Quick        bool
	Samples      int
	Noise        float64
	TestFraction float64
	DataSeed     int64
}

func defaultTrainRequest() trainRequest {
	return trainRequest{
		Blueprint:    defaultBlueprint,
		Classes:      2,
		Epochs:       10,
		LearningRate: 0.1,
		Beta:         "classic",
		Samples:      200,
		Noise:        0.1,
		TestFraction: 0.15,
		DataSeed:     1,
	}
}

func loadTrainRequestFromConfig(path string) (trainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return trainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return trainRequest{}, err
	}

	req := defaultTrainRequest()
	if v, ok := asString(raw["blueprint"]); ok {
		req.Blueprint = v
	}
	if v, ok := asInt(raw["classes"]); ok {
		req.Classes = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asInt(raw["epochs"]); ok {
		req.Epochs = v
	}
	if v, ok := asFloat64(raw["learning_rate"]); ok {
		req.LearningRate = v
	}
	if v, ok := asString(raw["beta"]); ok {
		req.Beta = v
	}
	if v, ok := asBool(raw["quick"]); ok {
		req.Quick = v
	}
	if v, ok := asString(raw["mode"]); ok {
		switch v {
		case "quick":
			req.Quick = true
		case "full":
			req.Quick = false
		default:
			return trainRequest{}, fmt.Errorf("unsupported mode: %s", v)
		}
	}
	if data, ok := raw["data"].(map[string]any); ok {
		if v, ok := asInt(data["samples"]); ok {
			req.Samples = v
		}
		if v, ok := asFloat64(data["noise"]); ok {
			req.Noise = v
		}
		if v, ok := asFloat64(data["test_fraction"]); ok {
			req.TestFraction = v
		}
		if v, ok := asInt64(data["seed"]); ok {
			req.DataSeed = v
		}
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(req *trainRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "blueprint":
			req.Blueprint = v.(string)
		case "classes":
			req.Classes = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "workers":
			req.Workers = v.(int)
		case "epochs":
			req.Epochs = v.(int)
		case "lr":
			req.LearningRate = v.(float64)
		case "beta":
			req.Beta = v.(string)
		case "quick":
			req.Quick = v.(bool)
		case "samples":
			req.Samples = v.(int)
		case "noise":
			req.Noise = v.(float64)
		case "test-fraction":
			req.TestFraction = v.(float64)
		case "data-seed":
			req.DataSeed = v.(int64)
		}
	}
}

func loadOrDefaultTrainRequest(configPath string) (trainRequest, error) {
	if configPath == "" {
		return defaultTrainRequest(), nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return trainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

func (r trainRequest) validate() error {
	switch {
	case r.Blueprint == "":
		return errors.New("blueprint is required")
	case r.Classes < 2:
		return errors.New("classes must be >= 2")
	case r.Epochs <= 0:
		return errors.New("epochs must be > 0")
	case r.Workers < 0:
		return errors.New("workers must be >= 0")
	case math.IsNaN(r.LearningRate) || math.IsInf(r.LearningRate, 0) || r.LearningRate <= 0:
		return errors.New("learning rate must be a positive number")
	case r.Samples < 2:
		return errors.New("samples must be >= 2")
	case r.Noise < 0:
		return errors.New("noise must be >= 0")
	case r.TestFraction <= 0 || r.TestFraction >= 1:
		return errors.New("test fraction must be in (0,1)")
	}
	return nil
}
