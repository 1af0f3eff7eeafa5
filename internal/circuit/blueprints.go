package circuit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrBlueprintExists   = errors.New("blueprint already registered")
	ErrBlueprintNotFound = errors.New("blueprint not found")
)

// Blueprint names a circuit topology and knows how to build its oracle.
type Blueprint struct {
	Name        string
	Description string
	Config      Config
	Build       func(cfg Config) (Oracle, error)
}

// Oracle builds the blueprint's oracle wrapped with dimension and range checks.
func (b Blueprint) Oracle() (Oracle, error) {
	if err := b.Config.Validate(); err != nil {
		return nil, err
	}
	o, err := b.Build(b.Config)
	if err != nil {
		return nil, fmt.Errorf("build blueprint %s: %w", b.Name, err)
	}
	return Checked(o, b.Config), nil
}

var blueprintRegistry = struct {
	mu sync.RWMutex
	m  map[string]Blueprint
}{
	m: make(map[string]Blueprint),
}

func init() {
	initializeBuiltInBlueprints()
}

func initializeBuiltInBlueprints() {
	MustRegisterBlueprint(Blueprint{
		Name:        "moon",
		Description: "two-feature re-uploading chain for the moons dataset",
		Config:      Config{Name: "moon", Backend: "bloch", Wires: 1, Features: 2, Params: 5},
		Build:       reuploadBuilder,
	})
	MustRegisterBlueprint(Blueprint{
		Name:        "iris",
		Description: "four-feature re-uploading chain for the iris dataset",
		Config:      Config{Name: "iris", Backend: "bloch", Wires: 1, Features: 4, Params: 8},
		Build:       reuploadBuilder,
	})
	MustRegisterBlueprint(Blueprint{
		Name:        "wine-network",
		Description: "three-layer network of 2/4 and 3/7 sub-circuits for the wine dataset",
		Config:      Config{Name: "wine-network", Backend: "bloch", Wires: 3, Features: 13, Params: 46},
		Build:       buildWineNetwork,
	})
}

func reuploadBuilder(cfg Config) (Oracle, error) {
	return Reupload(cfg.Features, cfg.Params)
}

func buildWineNetwork(cfg Config) (Oracle, error) {
	even, err := Reupload(2, 4)
	if err != nil {
		return nil, err
	}
	odd, err := Reupload(3, 7)
	if err != nil {
		return nil, err
	}
	e := StageOf("even", even)
	o := StageOf("odd", odd)
	return NewNetwork(cfg,
		Layer{e, e, e, e, e, o},
		Layer{e, e, e},
		Layer{o},
	)
}

func RegisterBlueprint(b Blueprint) error {
	if b.Name == "" {
		return errors.New("blueprint name is required")
	}
	if b.Build == nil {
		return errors.New("blueprint builder is required")
	}
	if err := b.Config.Validate(); err != nil {
		return err
	}

	blueprintRegistry.mu.Lock()
	defer blueprintRegistry.mu.Unlock()

	if _, exists := blueprintRegistry.m[b.Name]; exists {
		return fmt.Errorf("%w: %s", ErrBlueprintExists, b.Name)
	}
	blueprintRegistry.m[b.Name] = b
	return nil
}

func MustRegisterBlueprint(b Blueprint) {
	if err := RegisterBlueprint(b); err != nil {
		panic(err)
	}
}

func GetBlueprint(name string) (Blueprint, error) {
	blueprintRegistry.mu.RLock()
	b, ok := blueprintRegistry.m[name]
	blueprintRegistry.mu.RUnlock()
	if !ok {
		return Blueprint{}, fmt.Errorf("%w: %s", ErrBlueprintNotFound, name)
	}
	return b, nil
}

func ListBlueprints() []string {
	blueprintRegistry.mu.RLock()
	defer blueprintRegistry.mu.RUnlock()

	names := make([]string, 0, len(blueprintRegistry.m))
	for name := range blueprintRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetBlueprintRegistryForTests() {
	blueprintRegistry.mu.Lock()
	blueprintRegistry.m = make(map[string]Blueprint)
	blueprintRegistry.mu.Unlock()
	initializeBuiltInBlueprints()
}
