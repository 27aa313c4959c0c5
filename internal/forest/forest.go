// Package forest evaluates random forest classifiers exported from their
// training environment as a JSON artifact of per-tree node arrays. Leaf class
// counts are normalized per tree and averaged across trees, so the returned
// distribution always sums to one.
package forest

import (
	"encoding/json"
	"fmt"
	"os"
)

// leaf marks a node without children in the children arrays.
const leaf = -1

type Tree struct {
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Value         [][]float64 `json:"value"`
}

type Forest struct {
	NClasses  int    `json:"n_classes"`
	NFeatures int    `json:"n_features"`
	Classes   []int  `json:"classes"`
	Trees     []Tree `json:"trees"`
}

func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forest artifact: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse forest artifact: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid forest artifact: %w", err)
	}
	return &f, nil
}

func (f *Forest) validate() error {
	if f.NClasses <= 0 {
		return fmt.Errorf("n_classes must be positive, got %d", f.NClasses)
	}
	if f.NFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", f.NFeatures)
	}
	if len(f.Classes) != f.NClasses {
		return fmt.Errorf("classes has %d entries, want %d", len(f.Classes), f.NClasses)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for ti := range f.Trees {
		if err := f.Trees[ti].validate(f.NClasses, f.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", ti, err)
		}
	}
	return nil
}

// validate checks the node arrays of one tree. Children must point strictly
// forward (the exporter writes nodes in preorder), which is also what makes
// every walk terminate.
func (t *Tree) validate(nClasses, nFeatures int) error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Threshold) != n || len(t.ChildrenLeft) != n || len(t.ChildrenRight) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays disagree on length")
	}
	for i := 0; i < n; i++ {
		if len(t.Value[i]) != nClasses {
			return fmt.Errorf("node %d: value has %d classes, want %d", i, len(t.Value[i]), nClasses)
		}
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if (left == leaf) != (right == leaf) {
			return fmt.Errorf("node %d: children must both be leaves or both be nodes, got (%d, %d)", i, left, right)
		}
		if left == leaf {
			sum := 0.0
			for _, v := range t.Value[i] {
				if v < 0 {
					return fmt.Errorf("node %d: negative class count", i)
				}
				sum += v
			}
			if sum <= 0 {
				return fmt.Errorf("node %d: leaf has no class counts", i)
			}
			continue
		}
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d: children (%d, %d) out of range", i, left, right)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, t.Feature[i])
		}
	}
	return nil
}

// PredictProba returns the class probability distribution for one feature
// vector: each tree's leaf class counts are normalized to proportions, then
// averaged over all trees.
func (f *Forest) PredictProba(features []float32) ([]float64, error) {
	if len(features) != f.NFeatures {
		return nil, fmt.Errorf("feature vector has %d values, want %d", len(features), f.NFeatures)
	}

	proba := make([]float64, f.NClasses)
	for ti := range f.Trees {
		t := &f.Trees[ti]
		node := 0
		for t.ChildrenLeft[node] != leaf {
			if float64(features[t.Feature[node]]) <= t.Threshold[node] {
				node = t.ChildrenLeft[node]
			} else {
				node = t.ChildrenRight[node]
			}
		}

		counts := t.Value[node]
		total := 0.0
		for _, c := range counts {
			total += c
		}
		for ci, c := range counts {
			proba[ci] += c / total
		}
	}

	inv := 1.0 / float64(len(f.Trees))
	for ci := range proba {
		proba[ci] *= inv
	}
	return proba, nil
}

// Predict returns the winning class label and the full distribution. Ties
// resolve to the lowest class index.
func (f *Forest) Predict(features []float32) (int, []float64, error) {
	proba, err := f.PredictProba(features)
	if err != nil {
		return 0, nil, err
	}

	best := 0
	for ci := 1; ci < len(proba); ci++ {
		if proba[ci] > proba[best] {
			best = ci
		}
	}
	return f.Classes[best], proba, nil
}
