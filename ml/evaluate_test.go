package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	predicted := []DelayLabel{1, 1, 0, 0, 1, 0}
	actual := []int{1, 0, 0, 1, 1, 0}

	report := Evaluate(predicted, actual)
	assert.InDelta(t, 4.0/6.0, report.Accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, report.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, report.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, report.F1, 1e-9)
	assert.Equal(t, 3, report.Support0)
	assert.Equal(t, 3, report.Support1)
}

func TestEvaluateDegenerateInputs(t *testing.T) {
	assert.Equal(t, Report{}, Evaluate(nil, nil))
	assert.Equal(t, Report{}, Evaluate([]DelayLabel{1}, []int{1, 0}))

	report := Evaluate([]DelayLabel{0, 0}, []int{0, 0})
	assert.Equal(t, 1.0, report.Accuracy)
	assert.Zero(t, report.Recall)
	assert.Zero(t, report.Precision)
}

func TestSplitDataset(t *testing.T) {
	rows := referenceRows()

	train, test := SplitDataset(rows, 0.2, 7)
	assert.Len(t, train, 800)
	assert.Len(t, test, 200)

	again, _ := SplitDataset(rows, 0.2, 7)
	assert.Equal(t, train, again)

	train, test = SplitDataset(rows, 1.5, 7)
	assert.Len(t, train, 670)
	assert.Len(t, test, 330)
}

func TestFitHeldOutScoresOnlyHeldOutRows(t *testing.T) {
	predictor := NewDelayPredictor(PredictorOptions{}, nil)
	report, eval, err := predictor.FitHeldOut(referenceRows(), 0.33, 42)
	require.NoError(t, err)

	assert.Equal(t, 670, report.Rows)
	assert.Equal(t, 330, eval.Support0+eval.Support1)

	_, test := SplitDataset(referenceRows(), 0.33, 42)
	assert.Equal(t, predictor.EvaluateRows(test), eval)
	assert.Greater(t, eval.Recall, 0.5)

	_, _, err = NewDelayPredictor(PredictorOptions{}, nil).FitHeldOut(nil, 0.33, 42)
	require.ErrorIs(t, err, ErrEmptyDataset)
}
