package ml

import "fmt"

// NewModel returns an untrained classifier of the given type.
func NewModel(modelType ModelType, params ModelParams) (MLModel, error) {
	switch modelType {
	case LogisticRegressionModel, "":
		return NewLogisticRegression(params), nil
	case DecisionTreeModel:
		return NewDecisionTree(params), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}
