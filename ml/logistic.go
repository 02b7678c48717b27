package ml

import (
	"fmt"
	"math"
)

const (
	defaultLearningRate = 0.5
	defaultIterations   = 1000
	defaultL2           = 1e-4
)

// LogisticRegression is trained with full-batch gradient descent on the
// weighted log-loss. Training starts from zero weights, so the same data
// always yields the same model.
type LogisticRegression struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	LearningRate float64   `json:"learning_rate"`
	Iterations   int       `json:"iterations"`
	L2           float64   `json:"l2"`
}

// NewLogisticRegression fills unset or non-positive params with defaults.
func NewLogisticRegression(params ModelParams) *LogisticRegression {
	lr := &LogisticRegression{
		LearningRate: params.LearningRate,
		Iterations:   params.Iterations,
		L2:           params.L2,
	}
	if lr.LearningRate <= 0 {
		lr.LearningRate = defaultLearningRate
	}
	if lr.Iterations <= 0 {
		lr.Iterations = defaultIterations
	}
	if lr.L2 <= 0 {
		lr.L2 = defaultL2
	}
	return lr
}

func (lr *LogisticRegression) Train(features [][]float64, labels []int, weights []float64) error {
	if err := validateTrainingSet(features, labels, weights); err != nil {
		return err
	}

	width := len(features[0])
	var totalWeight float64
	for i := range labels {
		totalWeight += sampleWeight(weights, i)
	}
	if totalWeight <= 0 {
		return fmt.Errorf("total sample weight must be positive, got %f", totalWeight)
	}

	coef := make([]float64, width)
	bias := 0.0
	grad := make([]float64, width)
	for iter := 0; iter < lr.Iterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0
		for i, row := range features {
			residual := (sigmoid(dot(coef, row)+bias) - float64(labels[i])) * sampleWeight(weights, i)
			for j, x := range row {
				if x != 0 {
					grad[j] += residual * x
				}
			}
			gradBias += residual
		}
		for j := range coef {
			coef[j] -= lr.LearningRate * (grad[j]/totalWeight + lr.L2*coef[j])
		}
		bias -= lr.LearningRate * gradBias / totalWeight
	}

	lr.Weights = coef
	lr.Bias = bias
	return nil
}

// Predict returns the label and the probability of the positive class.
func (lr *LogisticRegression) Predict(features []float64) (int, float64, error) {
	if len(lr.Weights) == 0 {
		return 0, 0, ErrNotTrained
	}
	if len(features) != len(lr.Weights) {
		return 0, 0, fmt.Errorf("expected %d features, got %d", len(lr.Weights), len(features))
	}
	prob := sigmoid(dot(lr.Weights, features) + lr.Bias)
	if prob >= 0.5 {
		return 1, prob, nil
	}
	return 0, prob, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
