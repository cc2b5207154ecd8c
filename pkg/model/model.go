// Package model holds the binary classifiers churnctl selects between and
// the metric used to rank them.
package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	KindLogistic = "logistic_regression"
	KindForest   = "random_forest"
)

// Model predicts the probability of the positive class for each row of x.
type Model[X any] interface {
	PredictProba(x X) ([]float64, error)
}

// Estimator fits a Model from rows x and binary labels y.
type Estimator[X any] interface {
	Fit(x X, y []int) (Model[X], error)
}

// Classifier is an estimator over a numeric design matrix.
type Classifier = Estimator[*mat.Dense]

// Envelope is the serialized form of a fitted classifier.
type Envelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// Marshal wraps a fitted classifier into an envelope.
func Marshal(m Model[*mat.Dense]) (*Envelope, error) {
	var kind string
	switch m.(type) {
	case *LogisticModel:
		kind = KindLogistic
	case *ForestModel:
		kind = KindForest
	default:
		return nil, fmt.Errorf("unsupported model type: %T", m)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", kind, err)
	}
	return &Envelope{Kind: kind, Params: b}, nil
}

// Unmarshal restores a fitted classifier from its envelope.
func Unmarshal(e *Envelope) (Model[*mat.Dense], error) {
	if e == nil {
		return nil, errors.New("model envelope required")
	}
	var m Model[*mat.Dense]
	switch e.Kind {
	case KindLogistic:
		m = &LogisticModel{}
	case KindForest:
		m = &ForestModel{}
	default:
		return nil, fmt.Errorf("unknown model kind: %q", e.Kind)
	}
	if err := json.Unmarshal(e.Params, m); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", e.Kind, err)
	}
	if v, ok := m.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", e.Kind, err)
		}
	}
	return m, nil
}

// checkFit validates the shape of a training set.
func checkFit(x *mat.Dense, y []int) (rows, cols int, err error) {
	if x == nil {
		return 0, 0, errors.New("training matrix required")
	}
	rows, cols = x.Dims()
	if rows != len(y) {
		return 0, 0, fmt.Errorf("training matrix has %d rows, labels %d", rows, len(y))
	}
	var pos int
	for _, v := range y {
		switch v {
		case 0:
		case 1:
			pos++
		default:
			return 0, 0, fmt.Errorf("labels must be 0 or 1, got %d", v)
		}
	}
	if pos == 0 || pos == rows {
		return 0, 0, errors.New("labels must contain both classes")
	}
	return rows, cols, nil
}
