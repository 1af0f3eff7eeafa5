package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var ErrEmptyDataset = errors.New("empty dataset")

// Split holds training and held-out rows. Labels are class indices.
type Split struct {
	XTrain [][]float64
	YTrain []int
	XTest  [][]float64
	YTest  []int
}

// Validate checks that rows and labels line up, every row has the given width
// and every label is a class index below classes.
func (s Split) Validate(features, classes int) error {
	if len(s.XTrain) != len(s.YTrain) {
		return fmt.Errorf("training rows=%d labels=%d", len(s.XTrain), len(s.YTrain))
	}
	if len(s.XTest) != len(s.YTest) {
		return fmt.Errorf("test rows=%d labels=%d", len(s.XTest), len(s.YTest))
	}
	if err := checkRows("train", s.XTrain, s.YTrain, features, classes); err != nil {
		return err
	}
	return checkRows("test", s.XTest, s.YTest, features, classes)
}

func checkRows(name string, x [][]float64, y []int, features, classes int) error {
	for i, row := range x {
		if len(row) != features {
			return fmt.Errorf("%s row %d has %d features, want %d", name, i, len(row), features)
		}
		if y[i] < 0 || y[i] >= classes {
			return fmt.Errorf("%s row %d label %d not in [0,%d)", name, i, y[i], classes)
		}
	}
	return nil
}

// RequireTest fails with ErrEmptyDataset when there is nothing to evaluate on.
func (s Split) RequireTest() error {
	if len(s.XTest) == 0 {
		return fmt.Errorf("%w: test set", ErrEmptyDataset)
	}
	return nil
}

// TrainTestSplit shuffles rows with seed and holds out testFraction of them.
func TrainTestSplit(x [][]float64, y []int, testFraction float64, seed int64) (Split, error) {
	if len(x) != len(y) {
		return Split{}, fmt.Errorf("rows=%d labels=%d", len(x), len(y))
	}
	if len(x) == 0 {
		return Split{}, ErrEmptyDataset
	}
	if testFraction < 0 || testFraction >= 1 {
		return Split{}, fmt.Errorf("test fraction must be in [0,1), got %f", testFraction)
	}

	order := rand.New(rand.NewSource(seed)).Perm(len(x))
	nTest := int(math.Ceil(testFraction * float64(len(x))))

	var s Split
	for i, idx := range order {
		if i < nTest {
			s.XTest = append(s.XTest, x[idx])
			s.YTest = append(s.YTest, y[idx])
			continue
		}
		s.XTrain = append(s.XTrain, x[idx])
		s.YTrain = append(s.YTrain, y[idx])
	}
	return s, nil
}

// Moons generates two interleaving half circles with gaussian noise, scaled
// onto [0, pi] per feature so they can drive rotation gates directly.
func Moons(n int, noise float64, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	outer := n / 2
	x := make([][]float64, 0, n)
	y := make([]int, 0, n)
	for i := 0; i < n; i++ {
		var px, py float64
		label := 0
		if i < outer {
			t := math.Pi * float64(i) / math.Max(1, float64(outer-1))
			px, py = math.Cos(t), math.Sin(t)
		} else {
			inner := n - outer
			t := math.Pi * float64(i-outer) / math.Max(1, float64(inner-1))
			px, py = 1-math.Cos(t), 0.5-math.Sin(t)
			label = 1
		}
		px += noise * rng.NormFloat64()
		py += noise * rng.NormFloat64()
		x = append(x, []float64{px, py})
		y = append(y, label)
	}
	return scaleColumns(x, 2), y
}

// ScaleToAngles min-max scales every column onto [0, pi]. Constant columns map
// to 0. Every row must have the width of the first.
func ScaleToAngles(x [][]float64) ([][]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return scaleColumns(x, width), nil
}

func scaleColumns(x [][]float64, width int) [][]float64 {
	lo := make([]float64, width)
	hi := make([]float64, width)
	for j := 0; j < width; j++ {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
	}
	for _, row := range x {
		for j, v := range row {
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = make([]float64, width)
		for j, v := range row {
			if span := hi[j] - lo[j]; span > 0 {
				out[i][j] = math.Pi * (v - lo[j]) / span
			}
		}
	}
	return out
}
