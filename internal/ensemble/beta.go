package ensemble

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

const DefaultBeta = "classic"

var (
	ErrBetaExists   = errors.New("beta function already registered")
	ErrBetaNotFound = errors.New("beta function not found")
)

// BetaFunc turns the post-update expectations of every class into the factor
// that scales the gradient step of the non-target classes.
type BetaFunc func(expectations []float64, target int) float64

var betaRegistry = struct {
	mu sync.RWMutex
	m  map[string]BetaFunc
}{
	m: make(map[string]BetaFunc),
}

func init() {
	initializeBuiltInBetas()
}

func initializeBuiltInBetas() {
	MustRegisterBeta(DefaultBeta, ClassicBeta)
	MustRegisterBeta("delta", func(e []float64, target int) float64 {
		return e[target] - 1
	})
	MustRegisterBeta("theta", func(e []float64, _ int) float64 {
		return floats.Sum(e)/float64(len(e)) - 1
	})
	MustRegisterBeta("rho", func(e []float64, target int) float64 {
		return e[target]/float64(len(e)) - 1
	})
	MustRegisterBeta("tau", func(e []float64, target int) float64 {
		return (floats.Sum(e)-e[target])/float64(len(e)) - 1
	})
}

// ClassicBeta is the target's share of the total expectation minus one. A zero
// total leaves the other classes untouched.
func ClassicBeta(expectations []float64, target int) float64 {
	sum := floats.Sum(expectations)
	if sum == 0 {
		return 0
	}
	return expectations[target]/sum - 1
}

func RegisterBeta(name string, fn BetaFunc) error {
	if name == "" {
		return errors.New("beta name is required")
	}
	if fn == nil {
		return errors.New("beta function is required")
	}

	betaRegistry.mu.Lock()
	defer betaRegistry.mu.Unlock()

	if _, exists := betaRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrBetaExists, name)
	}
	betaRegistry.m[name] = fn
	return nil
}

func MustRegisterBeta(name string, fn BetaFunc) {
	if err := RegisterBeta(name, fn); err != nil {
		panic(err)
	}
}

func GetBeta(name string) (BetaFunc, error) {
	betaRegistry.mu.RLock()
	fn, ok := betaRegistry.m[name]
	betaRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBetaNotFound, name)
	}
	return fn, nil
}

func ListBetas() []string {
	betaRegistry.mu.RLock()
	defer betaRegistry.mu.RUnlock()

	names := make([]string, 0, len(betaRegistry.m))
	for name := range betaRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetBetaRegistryForTests() {
	betaRegistry.mu.Lock()
	betaRegistry.m = make(map[string]BetaFunc)
	betaRegistry.mu.Unlock()
	initializeBuiltInBetas()
}
