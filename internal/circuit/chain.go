package circuit

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

type Axis byte

const (
	AxisX Axis = 'X'
	AxisY Axis = 'Y'
	AxisZ Axis = 'Z'
)

func (a Axis) vec() (r3.Vec, error) {
	switch a {
	case AxisX:
		return r3.Vec{X: 1}, nil
	case AxisY:
		return r3.Vec{Y: 1}, nil
	case AxisZ:
		return r3.Vec{Z: 1}, nil
	default:
		return r3.Vec{}, fmt.Errorf("unsupported rotation axis %q", a)
	}
}

type Source int

const (
	FromFeature Source = iota
	FromParam
)

// Angle selects the rotation angle of a gate from the feature or the parameter vector.
type Angle struct {
	Source Source
	Index  int
}

func F(i int) Angle { return Angle{Source: FromFeature, Index: i} }
func P(i int) Angle { return Angle{Source: FromParam, Index: i} }

type Gate struct {
	Axis  Axis
	Angle Angle
}

func RX(a Angle) Gate { return Gate{Axis: AxisX, Angle: a} }
func RY(a Angle) Gate { return Gate{Axis: AxisY, Angle: a} }
func RZ(a Angle) Gate { return Gate{Axis: AxisZ, Angle: a} }

// Chain is a single-qubit rotation circuit evaluated analytically on the Bloch
// sphere. The qubit starts in |0> and the readout is <Z>. Every parameter drives
// exactly one gate, so the parameter-shift rule is exact for a Chain.
type Chain struct {
	features int
	params   int
	gates    []Gate
	axes     []r3.Vec
}

func NewChain(features, params int, gates ...Gate) (*Chain, error) {
	if features < 1 || params < 0 {
		return nil, fmt.Errorf("invalid chain arity: features=%d params=%d", features, params)
	}
	used := make([]int, params)
	axes := make([]r3.Vec, len(gates))
	for i, g := range gates {
		axis, err := g.Axis.vec()
		if err != nil {
			return nil, fmt.Errorf("gate %d: %w", i, err)
		}
		axes[i] = axis
		switch g.Angle.Source {
		case FromFeature:
			if g.Angle.Index < 0 || g.Angle.Index >= features {
				return nil, fmt.Errorf("gate %d: feature index %d out of range [0,%d)", i, g.Angle.Index, features)
			}
		case FromParam:
			if g.Angle.Index < 0 || g.Angle.Index >= params {
				return nil, fmt.Errorf("gate %d: param index %d out of range [0,%d)", i, g.Angle.Index, params)
			}
			used[g.Angle.Index]++
		default:
			return nil, fmt.Errorf("gate %d: unknown angle source %d", i, g.Angle.Source)
		}
	}
	for j, n := range used {
		if n != 1 {
			return nil, fmt.Errorf("param %d drives %d gates, want exactly 1", j, n)
		}
	}
	return &Chain{
		features: features,
		params:   params,
		gates:    append([]Gate(nil), gates...),
		axes:     axes,
	}, nil
}

// MustChain is NewChain for package-level blueprint definitions.
func MustChain(features, params int, gates ...Gate) *Chain {
	c, err := NewChain(features, params, gates...)
	if err != nil {
		panic(err)
	}
	return c
}

// Reupload builds a data re-uploading chain: each parameter gate is preceded by
// an RX encoding of the next feature, cycling through the features.
func Reupload(features, params int) (*Chain, error) {
	gates := make([]Gate, 0, 2*params)
	for j := 0; j < params; j++ {
		gates = append(gates, RX(F(j%features)))
		if j%2 == 0 {
			gates = append(gates, RY(P(j)))
		} else {
			gates = append(gates, RZ(P(j)))
		}
	}
	return NewChain(features, params, gates...)
}

func (c *Chain) Arity() (int, int) {
	return c.features, c.params
}

func (c *Chain) Evaluate(features, params []float64) (float64, error) {
	if len(features) != c.features {
		return 0, &DimensionError{What: "features", Got: len(features), Want: c.features}
	}
	if len(params) != c.params {
		return 0, &DimensionError{What: "params", Got: len(params), Want: c.params}
	}
	state := r3.Vec{Z: 1}
	for i, g := range c.gates {
		var theta float64
		if g.Angle.Source == FromFeature {
			theta = features[g.Angle.Index]
		} else {
			theta = params[g.Angle.Index]
		}
		state = r3.NewRotation(theta, c.axes[i]).Rotate(state)
	}
	return state.Z, nil
}
