package circuit

import (
	"errors"
	"fmt"
	"math"
)

// Stage is one sub-circuit of a Network with a static input arity.
type Stage struct {
	Name     string
	Oracle   Oracle
	Features int
	Params   int
}

// StageOf builds a Stage from an oracle that reports its own arity.
func StageOf(name string, oracle interface {
	Oracle
	Arity
}) Stage {
	f, p := oracle.Arity()
	return Stage{Name: name, Oracle: oracle, Features: f, Params: p}
}

type Layer []Stage

// Network composes sub-circuits into layers. The first layer consumes the
// feature vector left to right, every later layer consumes the outputs of the
// previous layer projected onto [0, pi], and parameters are consumed left to
// right across all stages. The single stage of the last layer yields the result.
//
// The angle projection between layers makes an earlier-layer parameter enter
// the output through a non-sinusoidal function, so the parameter-shift rule is
// only an approximation for those parameters.
type Network struct {
	cfg    Config
	layers []Layer
}

func NewNetwork(cfg Config, layers ...Layer) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, errors.New("network requires at least one layer")
	}

	inputs := cfg.Features
	params := 0
	for li, layer := range layers {
		if len(layer) == 0 {
			return nil, fmt.Errorf("layer %d is empty", li)
		}
		consumed := 0
		for si, stage := range layer {
			if stage.Oracle == nil {
				return nil, fmt.Errorf("layer %d stage %d (%s): oracle is required", li, si, stage.Name)
			}
			if stage.Features < 1 || stage.Params < 0 {
				return nil, fmt.Errorf("layer %d stage %d (%s): invalid arity features=%d params=%d", li, si, stage.Name, stage.Features, stage.Params)
			}
			if a, ok := stage.Oracle.(Arity); ok {
				f, p := a.Arity()
				if f != stage.Features || p != stage.Params {
					return nil, fmt.Errorf("layer %d stage %d (%s): declared arity (%d,%d) disagrees with oracle (%d,%d)", li, si, stage.Name, stage.Features, stage.Params, f, p)
				}
			}
			consumed += stage.Features
			params += stage.Params
		}
		if consumed != inputs {
			return nil, &DimensionError{What: fmt.Sprintf("layer %d inputs", li), Got: consumed, Want: inputs}
		}
		inputs = len(layer)
	}
	if inputs != 1 {
		return nil, fmt.Errorf("last layer must have exactly one stage, got %d", inputs)
	}
	if params != cfg.Params {
		return nil, &DimensionError{What: "network params", Got: params, Want: cfg.Params}
	}

	copied := make([]Layer, len(layers))
	for i, layer := range layers {
		copied[i] = append(Layer(nil), layer...)
	}
	return &Network{cfg: cfg, layers: copied}, nil
}

func (n *Network) Config() Config {
	return n.cfg
}

func (n *Network) Arity() (int, int) {
	return n.cfg.Features, n.cfg.Params
}

func (n *Network) Evaluate(features, params []float64) (float64, error) {
	if err := CheckDims(n.cfg, features, params); err != nil {
		return 0, err
	}

	inputs := features
	offset := 0
	var out float64
	for li, layer := range n.layers {
		outputs := make([]float64, len(layer))
		pos := 0
		for si, stage := range layer {
			v, err := stage.Oracle.Evaluate(inputs[pos:pos+stage.Features], params[offset:offset+stage.Params])
			if err != nil {
				return 0, fmt.Errorf("layer %d stage %d (%s): %w", li, si, stage.Name, err)
			}
			pos += stage.Features
			offset += stage.Params
			outputs[si] = v
		}
		out = outputs[0]
		for i := range outputs {
			outputs[i] = ProjectAngle(outputs[i])
		}
		inputs = outputs
	}
	return out, nil
}

// ProjectAngle maps an expectation in [-1, 1] to a rotation angle in [0, pi].
func ProjectAngle(v float64) float64 {
	return math.Pi * (v + 1) / 2
}
