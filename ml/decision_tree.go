package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	defaultMaxTreeDepth = 6
	defaultMinLeafSize  = 1
)

// DecisionTree is a binary CART classifier split on weighted gini impurity.
// Nodes are stored flat, children addressed by index.
type DecisionTree struct {
	Nodes       []TreeNode `json:"nodes"`
	MaxDepth    int        `json:"max_depth"`
	MinLeafSize int        `json:"min_leaf_size"`
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassLabel  int     `json:"class_label"`
	Probability float64 `json:"probability"`
	IsLeaf      bool    `json:"is_leaf"`
}

type weightedSample struct {
	features []float64
	label    int
	weight   float64
}

// NewDecisionTree fills unset depth and leaf size with defaults.
func NewDecisionTree(params ModelParams) *DecisionTree {
	dt := &DecisionTree{MaxDepth: params.MaxTreeDepth, MinLeafSize: params.MinLeafSize}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = defaultMaxTreeDepth
	}
	if dt.MinLeafSize <= 0 {
		dt.MinLeafSize = defaultMinLeafSize
	}
	return dt
}

func (dt *DecisionTree) Train(features [][]float64, labels []int, weights []float64) error {
	if err := validateTrainingSet(features, labels, weights); err != nil {
		return err
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = defaultMaxTreeDepth
	}
	if dt.MinLeafSize <= 0 {
		dt.MinLeafSize = defaultMinLeafSize
	}

	samples := make([]weightedSample, len(features))
	for i := range features {
		samples[i] = weightedSample{features: features[i], label: labels[i], weight: sampleWeight(weights, i)}
	}
	dt.Nodes = dt.buildNode(samples, 0)
	return nil
}

// Predict walks the tree and returns the leaf label together with the
// weighted share of positive samples in that leaf. Children always sit after
// their parent in Nodes; a tree that violates this is rejected, so the walk
// ends within len(Nodes) steps.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, 0, ErrNotTrained
	}
	idx := 0
	for steps := 0; steps < len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Probability, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, errors.New("feature index out of range")
		}
		next := node.RightChild
		if features[node.FeatureIdx] <= node.Threshold {
			next = node.LeftChild
		}
		if next <= idx || next >= len(dt.Nodes) {
			return 0, 0, fmt.Errorf("invalid tree state: node %d points to %d", idx, next)
		}
		idx = next
	}
	return 0, 0, errors.New("invalid tree state: walk did not reach a leaf")
}

func (dt *DecisionTree) buildNode(samples []weightedSample, depth int) []TreeNode {
	leaf := leafNode(samples)
	if depth >= dt.MaxDepth || isPure(samples) {
		return []TreeNode{leaf}
	}

	bestFeature, threshold, ok := findBestSplit(samples, dt.MinLeafSize)
	if !ok {
		return []TreeNode{leaf}
	}

	left, right := splitSamples(samples, bestFeature, threshold)
	leftNodes := dt.buildNode(left, depth+1)
	rightNodes := dt.buildNode(right, depth+1)

	root := TreeNode{
		FeatureIdx:  bestFeature,
		Threshold:   threshold,
		LeftChild:   1,
		RightChild:  1 + len(leftNodes),
		ClassLabel:  leaf.ClassLabel,
		Probability: leaf.Probability,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetChildren rebases child indices of a subtree placed at offset.
func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func leafNode(samples []weightedSample) TreeNode {
	var positive, total float64
	for _, s := range samples {
		total += s.weight
		if s.label == 1 {
			positive += s.weight
		}
	}
	prob := 0.0
	if total > 0 {
		prob = positive / total
	}
	label := 0
	if prob > 0.5 {
		label = 1
	}
	return TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassLabel:  label,
		Probability: prob,
		IsLeaf:      true,
	}
}

func findBestSplit(samples []weightedSample, minLeaf int) (int, float64, bool) {
	featureCount := len(samples[0].features)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for _, threshold := range candidateThresholds(samples, featureIdx) {
			left, right := splitSamples(samples, featureIdx, threshold)
			if len(left) < minLeaf || len(right) < minLeaf {
				continue
			}
			impurity := weightedGini(left, right)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// candidateThresholds returns the midpoints between consecutive distinct
// values of a feature.
func candidateThresholds(samples []weightedSample, featureIdx int) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.features[featureIdx]
	}
	sort.Float64s(values)
	thresholds := make([]float64, 0)
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1] {
			thresholds = append(thresholds, (values[i]+values[i-1])/2)
		}
	}
	return thresholds
}

func splitSamples(samples []weightedSample, featureIdx int, threshold float64) ([]weightedSample, []weightedSample) {
	left := make([]weightedSample, 0)
	right := make([]weightedSample, 0)
	for _, s := range samples {
		if s.features[featureIdx] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	return left, right
}

func weightedGini(left, right []weightedSample) float64 {
	leftWeight := totalWeight(left)
	rightWeight := totalWeight(right)
	total := leftWeight + rightWeight
	if total == 0 {
		return 0
	}
	return (leftWeight/total)*gini(left) + (rightWeight/total)*gini(right)
}

func gini(samples []weightedSample) float64 {
	total := totalWeight(samples)
	if total == 0 {
		return 0
	}
	var positive float64
	for _, s := range samples {
		if s.label == 1 {
			positive += s.weight
		}
	}
	p := positive / total
	return 1 - p*p - (1-p)*(1-p)
}

func totalWeight(samples []weightedSample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.weight
	}
	return sum
}

func isPure(samples []weightedSample) bool {
	if len(samples) == 0 {
		return true
	}
	first := samples[0].label
	for _, s := range samples[1:] {
		if s.label != first {
			return false
		}
	}
	return true
}
