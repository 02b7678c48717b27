package ml

import (
	"math"
	"math/rand"
)

// Report holds positive-class classification metrics.
type Report struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support0  int     `json:"support_0"`
	Support1  int     `json:"support_1"`
}

// Evaluate scores predicted against actual labels. Mismatched or empty inputs
// give a zero Report.
func Evaluate(predicted []DelayLabel, actual []int) Report {
	var report Report
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return report
	}

	var correct, truePositive, predictedPositive int
	for i, label := range predicted {
		if int(label) == actual[i] {
			correct++
		}
		if label == Delayed {
			predictedPositive++
		}
		if actual[i] == 1 {
			report.Support1++
			if label == Delayed {
				truePositive++
			}
		} else {
			report.Support0++
		}
	}

	report.Accuracy = float64(correct) / float64(len(predicted))
	if predictedPositive > 0 {
		report.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if report.Support1 > 0 {
		report.Recall = float64(truePositive) / float64(report.Support1)
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}
	return report
}

// EvaluateRows predicts every row and scores the result against the labels
// derived from its timestamps.
func (p *DelayPredictor) EvaluateRows(rows []TrainingRow) Report {
	records := make([]FlightRecord, len(rows))
	for i, row := range rows {
		records[i] = row.FlightRecord
	}
	actual, _ := GenerateLabels(rows, p.opts.DelayThreshold)
	return Evaluate(p.Predict(records), actual)
}

// FitHeldOut fits on a seeded split of rows and scores the new model on the
// held-out part only, so the returned Report never includes training rows.
func (p *DelayPredictor) FitHeldOut(rows []TrainingRow, testRatio float64, seed int64) (FitReport, Report, error) {
	trainRows, testRows := SplitDataset(rows, testRatio, seed)
	report, err := p.Fit(trainRows)
	if err != nil {
		return FitReport{}, Report{}, err
	}
	return report, p.EvaluateRows(testRows), nil
}

// SplitDataset shuffles rows with the given seed and holds out testRatio of
// them. The same seed always yields the same split.
func SplitDataset(rows []TrainingRow, testRatio float64, seed int64) (train, test []TrainingRow) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.33
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(rows))

	split := int(math.Round(float64(len(rows)) * (1 - testRatio)))
	train = make([]TrainingRow, 0, split)
	test = make([]TrainingRow, 0, len(rows)-split)
	for i, idx := range indices {
		if i < split {
			train = append(train, rows[idx])
		} else {
			test = append(test, rows[idx])
		}
	}
	return train, test
}
