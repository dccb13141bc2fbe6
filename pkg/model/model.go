// Package model loads serialized regression models and evaluates them on
// tabular input.
//
// A model artifact is a JSON document describing the input features and
// an estimator. Categorical features are one-hot encoded as
// `<feature>=<category>`; the estimator's weights and tree splits refer to
// these encoded names (numeric features keep their own name).
package model

import (
	"encoding/json"
	"fmt"
	"io"
)

type FeatureType string

const (
	FeatureNumeric     FeatureType = "numeric"
	FeatureCategorical FeatureType = "categorical"
)

type Feature struct {
	Name       string      `json:"name"`
	Type       FeatureType `json:"type"`
	Categories []string    `json:"categories,omitempty"`
}

type EstimatorKind string

const (
	EstimatorLinear EstimatorKind = "linear"
	EstimatorTrees  EstimatorKind = "trees"
)

type Estimator struct {
	Kind EstimatorKind `json:"kind"`

	// linear
	Intercept float64            `json:"intercept,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`

	// trees
	BaseScore    float64 `json:"baseScore,omitempty"`
	LearningRate float64 `json:"learningRate,omitempty"`
	Trees        []Tree  `json:"trees,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split when Feature is set and a leaf otherwise. Rows whose
// encoded value is less than or equal to Threshold go Left. Child indices
// must point forward in the tree's node list.
type Node struct {
	Feature   string  `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

func (n *Node) leaf() bool { return n.Feature == "" }

type Artifact struct {
	Name      string    `json:"name"`
	Target    string    `json:"target,omitempty"`
	Features  []Feature `json:"features"`
	Estimator Estimator `json:"estimator"`
}

// Model is a decoded, validated artifact. It is immutable and safe for
// concurrent use.
type Model struct {
	Artifact

	encoded []string
	index   map[string]int
	eval    func(x []float64) float64
}

var _ Predictor = (*Model)(nil)

// Decode reads and validates a model artifact.
func Decode(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decoding model: reading artifact: %w", err)
	}
	if err := ValidateArtifact(data); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding model: unmarshaling artifact: %w", err)
	}

	m, err := compile(&artifact)
	if err != nil {
		return nil, fmt.Errorf("decoding model `%s`: %w", artifact.Name, err)
	}
	return m, nil
}

func compile(artifact *Artifact) (*Model, error) {
	m := Model{Artifact: *artifact, index: map[string]int{}}
	seen := map[string]struct{}{}
	for _, f := range artifact.Features {
		if _, exists := seen[f.Name]; exists {
			return nil, fmt.Errorf("duplicate feature `%s`", f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Type {
		case FeatureNumeric:
			m.index[f.Name] = len(m.encoded)
			m.encoded = append(m.encoded, f.Name)
		case FeatureCategorical:
			if len(f.Categories) < 1 {
				return nil, fmt.Errorf(
					"categorical feature `%s` has no categories",
					f.Name,
				)
			}
			for _, c := range f.Categories {
				name := encodedName(f.Name, c)
				if _, exists := m.index[name]; exists {
					return nil, fmt.Errorf("duplicate category `%s`", name)
				}
				m.index[name] = len(m.encoded)
				m.encoded = append(m.encoded, name)
			}
		default:
			return nil, fmt.Errorf(
				"feature `%s`: unsupported type `%s`",
				f.Name,
				f.Type,
			)
		}
	}

	var err error
	switch artifact.Estimator.Kind {
	case EstimatorLinear:
		m.eval, err = m.compileLinear(&artifact.Estimator)
	case EstimatorTrees:
		m.eval, err = m.compileTrees(&artifact.Estimator)
	default:
		err = fmt.Errorf(
			"unsupported estimator kind `%s`",
			artifact.Estimator.Kind,
		)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func encodedName(feature, category string) string {
	return feature + "=" + category
}

// EncodedFeatures lists the names of the encoded input vector in order.
func (m *Model) EncodedFeatures() []string {
	out := make([]string, len(m.encoded))
	copy(out, m.encoded)
	return out
}
