package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrEmptyDataset     = errors.New("dataset is empty")
	ErrNotTrained       = errors.New("model not trained")
	ErrUnsupportedModel = errors.New("unsupported model type")
)

// ModelType names a classifier implementation in configs and artifacts.
type ModelType string

const (
	LogisticRegressionModel ModelType = "logistic_regression"
	DecisionTreeModel       ModelType = "decision_tree"
)

// MLModel is a binary classifier over fixed-width feature vectors. weights
// holds one training weight per sample; nil means uniform.
type MLModel interface {
	Train(features [][]float64, labels []int, weights []float64) error
	Predict(features []float64) (int, float64, error)
}

// ModelParams tunes both classifiers; zero fields take the defaults.
type ModelParams struct {
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Iterations   int     `yaml:"iterations" json:"iterations"`
	L2           float64 `yaml:"l2" json:"l2"`
	MaxTreeDepth int     `yaml:"max_tree_depth" json:"max_tree_depth"`
	MinLeafSize  int     `yaml:"min_leaf_size" json:"min_leaf_size"`
}

func validateTrainingSet(features [][]float64, labels []int, weights []float64) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyDataset
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if weights != nil && len(weights) != len(labels) {
		return errors.New("weights and labels size mismatch")
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("feature row %d has width %d, want %d", i, len(row), width)
		}
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return nil
}

func sampleWeight(weights []float64, i int) float64 {
	if weights == nil {
		return 1
	}
	return weights[i]
}

func saveJSON(path string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func loadJSON(path string, v interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
