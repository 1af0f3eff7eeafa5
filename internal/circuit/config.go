package circuit

import (
	"errors"
	"fmt"

	"qensemble/internal/model"
)

// Config describes a circuit topology's sizes and how its gradient is scheduled.
// It is passed by value and never mutated after validation.
type Config struct {
	Name     string
	Backend  string
	Wires    int
	Features int
	Params   int
	Workers  int
}

func (c Config) Validate() error {
	if c.Features < 1 {
		return fmt.Errorf("circuit %q: feature count must be >= 1, got %d", c.Name, c.Features)
	}
	if c.Params < 1 {
		return fmt.Errorf("circuit %q: parameter count must be >= 1, got %d", c.Name, c.Params)
	}
	if c.Wires < 0 {
		return fmt.Errorf("circuit %q: wire count must be >= 0, got %d", c.Name, c.Wires)
	}
	if c.Workers < 0 {
		return errors.New("worker count must be >= 0")
	}
	return nil
}

// WithWorkers returns a copy of c with a different gradient pool size.
func (c Config) WithWorkers(workers int) Config {
	c.Workers = workers
	return c
}

func (c Config) Record() model.CircuitConfig {
	return model.CircuitConfig{
		Name:     c.Name,
		Backend:  c.Backend,
		Wires:    c.Wires,
		Features: c.Features,
		Params:   c.Params,
		Workers:  c.Workers,
	}
}

func ConfigFromRecord(rec model.CircuitConfig) Config {
	return Config{
		Name:     rec.Name,
		Backend:  rec.Backend,
		Wires:    rec.Wires,
		Features: rec.Features,
		Params:   rec.Params,
		Workers:  rec.Workers,
	}
}
