// Package metrics scores ensemble predictions against held-out labels.
package metrics

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"qensemble/internal/dataset"
	"qensemble/internal/ensemble"
	"qensemble/internal/model"
)

// Evaluate predicts every row of x and scores the predictions against y.
func Evaluate(e *ensemble.Ensemble, weights model.WeightSet, x [][]float64, y []int) (model.MetricsSnapshot, error) {
	if len(x) == 0 {
		return model.MetricsSnapshot{}, fmt.Errorf("%w: no rows to evaluate", dataset.ErrEmptyDataset)
	}
	pred, err := e.PredictAll(x, weights)
	if err != nil {
		return model.MetricsSnapshot{}, err
	}
	return Compute(y, pred, e.Classes())
}

// Compute returns accuracy plus support-weighted precision, recall and F1.
// Recall and F1 average over every label seen in either vector; precision
// averages only over labels that were predicted. Undefined ratios count as 0.
func Compute(yTrue, yPred []int, classes int) (model.MetricsSnapshot, error) {
	if len(yTrue) != len(yPred) {
		return model.MetricsSnapshot{}, fmt.Errorf("labels=%d predictions=%d", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return model.MetricsSnapshot{}, dataset.ErrEmptyDataset
	}

	confusion := make([][]int, classes)
	for i := range confusion {
		confusion[i] = make([]int, classes)
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= classes || p < 0 || p >= classes {
			return model.MetricsSnapshot{}, fmt.Errorf("row %d: label %d or prediction %d not in [0,%d)", i, t, p, classes)
		}
		confusion[t][p]++
	}

	n := float64(len(yTrue))
	var correct, recallSum, f1Sum, precisionSum, predictedSupport float64
	for l := 0; l < classes; l++ {
		tp := float64(confusion[l][l])
		support, predicted := 0.0, 0.0
		for k := 0; k < classes; k++ {
			support += float64(confusion[l][k])
			predicted += float64(confusion[k][l])
		}
		correct += tp

		var precision, recall float64
		if predicted > 0 {
			precision = tp / predicted
			precisionSum += support * precision
			predictedSupport += support
		}
		if support > 0 {
			recall = tp / support
		}
		recallSum += support * recall
		if precision+recall > 0 {
			f1Sum += support * 2 * precision * recall / (precision + recall)
		}
	}

	snapshot := model.MetricsSnapshot{
		Accuracy:  correct / n,
		Recall:    recallSum / n,
		F1:        f1Sum / n,
		Confusion: confusion,
	}
	if predictedSupport > 0 {
		snapshot.Precision = precisionSum / predictedSupport
	}
	return snapshot, nil
}

// FormatConfusion renders a confusion matrix with true classes as rows.
func FormatConfusion(confusion [][]int) string {
	if len(confusion) == 0 {
		return ""
	}
	r, c := len(confusion), len(confusion[0])
	m := mat.NewDense(r, c, nil)
	for i, row := range confusion {
		for j, v := range row {
			m.Set(i, j, float64(v))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%v", mat.Formatted(m, mat.Prefix(""), mat.Squeeze()))
	return b.String()
}
