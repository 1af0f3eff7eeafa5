package circuit

import (
	"errors"
	"math"
	"testing"
)

func TestChainSingleAxisMatchesCosine(t *testing.T) {
	chain, err := NewChain(1, 1, RX(F(0)), RX(P(0)))
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	for _, tc := range []struct{ f, p float64 }{{0, 0}, {0.3, 1.1}, {math.Pi / 2, 0}, {2.5, -0.7}} {
		got, err := chain.Evaluate([]float64{tc.f}, []float64{tc.p})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if want := math.Cos(tc.f + tc.p); math.Abs(got-want) > 1e-12 {
			t.Fatalf("unexpected expectation for f=%f p=%f: got=%f want=%f", tc.f, tc.p, got, want)
		}
	}
}

func TestChainOrthogonalAxesMultiply(t *testing.T) {
	chain, err := NewChain(1, 1, RX(F(0)), RY(P(0)))
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	got, err := chain.Evaluate([]float64{0.4}, []float64{1.3})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if want := math.Cos(0.4) * math.Cos(1.3); math.Abs(got-want) > 1e-12 {
		t.Fatalf("unexpected expectation: got=%f want=%f", got, want)
	}
}

func TestNewChainValidation(t *testing.T) {
	tests := []struct {
		name  string
		gates []Gate
	}{
		{name: "unused-param", gates: []Gate{RX(F(0)), RY(P(0))}},
		{name: "reused-param", gates: []Gate{RX(P(0)), RY(P(0)), RZ(P(1))}},
		{name: "feature-out-of-range", gates: []Gate{RX(F(2)), RY(P(0)), RY(P(1))}},
		{name: "param-out-of-range", gates: []Gate{RY(P(0)), RY(P(1)), RY(P(2))}},
		{name: "bad-axis", gates: []Gate{{Axis: 'W', Angle: P(0)}, RY(P(1))}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewChain(2, 2, tc.gates...); err == nil {
				t.Fatal("expected chain validation error")
			}
		})
	}
}

func TestReuploadArityAndRange(t *testing.T) {
	chain, err := Reupload(2, 5)
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if f, p := chain.Arity(); f != 2 || p != 5 {
		t.Fatalf("unexpected arity: features=%d params=%d", f, p)
	}
	got, err := chain.Evaluate([]float64{0.2, 2.9}, []float64{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got < -1 || got > 1 {
		t.Fatalf("expectation out of range: %f", got)
	}
}

func TestCheckedRejectsWrongDimensions(t *testing.T) {
	cfg := Config{Name: "c", Features: 2, Params: 3}
	calls := 0
	oracle := Checked(Func(func(_, _ []float64) (float64, error) {
		calls++
		return 0, nil
	}), cfg)

	_, err := oracle.Evaluate([]float64{1, 2, 3}, []float64{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got: %v", err)
	}
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) || dimErr.What != "features" || dimErr.Got != 3 || dimErr.Want != 2 {
		t.Fatalf("unexpected dimension error: %#v", err)
	}
	if _, err := oracle.Evaluate([]float64{1, 2}, []float64{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected params ErrDimensionMismatch, got: %v", err)
	}
	if calls != 0 {
		t.Fatalf("oracle must not run on dimension mismatch, calls=%d", calls)
	}
}

func TestCheckedRangeAndFailures(t *testing.T) {
	cfg := Config{Name: "c", Features: 1, Params: 1}
	boom := errors.New("backend down")
	tests := []struct {
		name    string
		value   float64
		err     error
		want    float64
		wantErr bool
	}{
		{name: "inside", value: 0.25, want: 0.25},
		{name: "edge-drift", value: 1 + 1e-12, want: 1},
		{name: "too-large", value: 1.5, wantErr: true},
		{name: "too-small", value: -1.01, wantErr: true},
		{name: "nan", value: math.NaN(), wantErr: true},
		{name: "backend-error", err: boom, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			oracle := Checked(Func(func(_, _ []float64) (float64, error) {
				return tc.value, tc.err
			}), cfg)
			got, err := oracle.Evaluate([]float64{0}, []float64{0})
			if tc.wantErr {
				if !errors.Is(err, ErrOracleEvaluation) {
					t.Fatalf("expected ErrOracleEvaluation, got: %v", err)
				}
				if tc.err != nil && !errors.Is(err, tc.err) {
					t.Fatalf("expected wrapped backend error, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected value: got=%f want=%f", got, tc.want)
			}
		})
	}
}

func TestNetworkComposesLayers(t *testing.T) {
	a := MustChain(1, 1, RX(F(0)), RX(P(0)))
	b := MustChain(2, 1, RX(F(0)), RX(F(1)), RX(P(0)))
	cfg := Config{Name: "net", Features: 2, Params: 3}

	net, err := NewNetwork(cfg,
		Layer{StageOf("a0", a), StageOf("a1", a)},
		Layer{StageOf("b", b)},
	)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	x := []float64{0.3, 1.2}
	w := []float64{0.5, -0.4, 0.9}
	got, err := net.Evaluate(x, w)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	h0 := ProjectAngle(math.Cos(x[0] + w[0]))
	h1 := ProjectAngle(math.Cos(x[1] + w[1]))
	want := math.Cos(h0 + h1 + w[2])
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("unexpected network output: got=%f want=%f", got, want)
	}
}

func TestNewNetworkValidatesArities(t *testing.T) {
	a := MustChain(1, 1, RX(F(0)), RX(P(0)))
	b := MustChain(2, 1, RX(F(0)), RX(F(1)), RX(P(0)))
	tests := []struct {
		name   string
		cfg    Config
		layers []Layer
	}{
		{name: "no-layers", cfg: Config{Features: 2, Params: 3}},
		{name: "first-layer-feature-sum", cfg: Config{Features: 3, Params: 3}, layers: []Layer{{StageOf("a0", a), StageOf("a1", a)}, {StageOf("b", b)}}},
		{name: "param-sum", cfg: Config{Features: 2, Params: 4}, layers: []Layer{{StageOf("a0", a), StageOf("a1", a)}, {StageOf("b", b)}}},
		{name: "inner-layer-inputs", cfg: Config{Features: 2, Params: 3}, layers: []Layer{{StageOf("a0", a), StageOf("a1", a)}, {StageOf("a", a)}}},
		{name: "multiple-outputs", cfg: Config{Features: 2, Params: 2}, layers: []Layer{{StageOf("a0", a), StageOf("a1", a)}}},
		{name: "declared-arity-disagrees", cfg: Config{Features: 2, Params: 2}, layers: []Layer{{{Name: "bad", Oracle: a, Features: 2, Params: 1}}}},
		{name: "nil-oracle", cfg: Config{Features: 1, Params: 1}, layers: []Layer{{{Name: "nil", Features: 1, Params: 1}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewNetwork(tc.cfg, tc.layers...); err == nil {
				t.Fatal("expected network validation error")
			}
		})
	}
}

func TestBuiltInBlueprints(t *testing.T) {
	resetBlueprintRegistryForTests()
	t.Cleanup(resetBlueprintRegistryForTests)

	names := ListBlueprints()
	if len(names) != 3 || names[0] != "iris" || names[1] != "moon" || names[2] != "wine-network" {
		t.Fatalf("unexpected blueprints: %v", names)
	}
	for _, name := range names {
		bp, err := GetBlueprint(name)
		if err != nil {
			t.Fatalf("get blueprint %s: %v", name, err)
		}
		oracle, err := bp.Oracle()
		if err != nil {
			t.Fatalf("build blueprint %s: %v", name, err)
		}
		features := make([]float64, bp.Config.Features)
		params := make([]float64, bp.Config.Params)
		for i := range features {
			features[i] = 0.1 * float64(i+1)
		}
		for i := range params {
			params[i] = 0.05 * float64(i+1)
		}
		v, err := oracle.Evaluate(features, params)
		if err != nil {
			t.Fatalf("evaluate blueprint %s: %v", name, err)
		}
		if v < -1 || v > 1 {
			t.Fatalf("blueprint %s out of range: %f", name, v)
		}
	}
}

func TestRegisterBlueprintErrors(t *testing.T) {
	resetBlueprintRegistryForTests()
	t.Cleanup(resetBlueprintRegistryForTests)

	if err := RegisterBlueprint(Blueprint{Name: "moon", Config: Config{Features: 1, Params: 1}, Build: reuploadBuilder}); !errors.Is(err, ErrBlueprintExists) {
		t.Fatalf("expected ErrBlueprintExists, got: %v", err)
	}
	if err := RegisterBlueprint(Blueprint{Name: "nobuild", Config: Config{Features: 1, Params: 1}}); err == nil {
		t.Fatal("expected missing builder error")
	}
	if err := RegisterBlueprint(Blueprint{Name: "bad", Config: Config{Features: 0, Params: 1}, Build: reuploadBuilder}); err == nil {
		t.Fatal("expected invalid config error")
	}
	if _, err := GetBlueprint("missing"); !errors.Is(err, ErrBlueprintNotFound) {
		t.Fatalf("expected ErrBlueprintNotFound, got: %v", err)
	}
}
