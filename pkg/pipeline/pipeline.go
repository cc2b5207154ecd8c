// Package pipeline composes a preprocessor and a classifier into a single
// estimator over feature frames.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/model"
	"github.com/mchmarny/churnctl/pkg/preprocess"
	"gonum.org/v1/gonum/mat"
)

// FormatVersion is the version of the serialized pipeline document.
const FormatVersion = 1

var (
	_ model.Estimator[*data.Frame] = (*Estimator)(nil)
	_ model.Model[*data.Frame]     = (*Fitted)(nil)
)

// Estimator fits preprocessing and classifier as one unit.
type Estimator struct {
	name       string
	builder    *preprocess.Builder
	classifier model.Classifier
}

// New returns an unfitted pipeline named after its candidate.
func New(name string, schema data.Schema, classifier model.Classifier) *Estimator {
	return &Estimator{
		name:       name,
		builder:    preprocess.New(schema),
		classifier: classifier,
	}
}

// Fit learns the preprocessor on features, then the classifier on the
// transformed features.
func (e *Estimator) Fit(features *data.Frame, labels []int) (model.Model[*data.Frame], error) {
	if e.classifier == nil {
		return nil, errors.New("classifier required")
	}

	pre, err := e.builder.Fit(features)
	if err != nil {
		return nil, fmt.Errorf("error fitting preprocessor: %w", err)
	}

	x, err := pre.Transform(features)
	if err != nil {
		return nil, fmt.Errorf("error transforming features: %w", err)
	}

	m, err := e.classifier.Fit(x, labels)
	if err != nil {
		return nil, fmt.Errorf("error fitting %s: %w", e.name, err)
	}

	return &Fitted{Name: e.name, Preprocessor: pre, Model: m}, nil
}

// Fitted is a fitted pipeline, the unit persisted as the model artifact.
type Fitted struct {
	Name         string
	Preprocessor *preprocess.Preprocessor
	Model        model.Model[*mat.Dense]
}

// Schema returns the feature columns the pipeline was fit on.
func (p *Fitted) Schema() data.Schema {
	if p == nil || p.Preprocessor == nil {
		return nil
	}
	s := make(data.Schema, len(p.Preprocessor.Schema))
	copy(s, p.Preprocessor.Schema)
	return s
}

// PredictProba returns the churn probability of every row in features.
// An empty frame yields an empty result.
func (p *Fitted) PredictProba(features *data.Frame) ([]float64, error) {
	if p == nil || p.Preprocessor == nil || p.Model == nil {
		return nil, errors.New("pipeline not fitted")
	}
	if features == nil || features.Len() == 0 {
		return []float64{}, nil
	}
	x, err := p.Preprocessor.Transform(features)
	if err != nil {
		return nil, err
	}
	return p.Model.PredictProba(x)
}

type document struct {
	Version      int                      `json:"version"`
	Name         string                   `json:"name"`
	Preprocessor *preprocess.Preprocessor `json:"preprocessor"`
	Model        *model.Envelope          `json:"model"`
}

func (p *Fitted) MarshalJSON() ([]byte, error) {
	env, err := model.Marshal(p.Model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&document{
		Version:      FormatVersion,
		Name:         p.Name,
		Preprocessor: p.Preprocessor,
		Model:        env,
	})
}

func (p *Fitted) UnmarshalJSON(b []byte) error {
	var d document
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	if d.Version != FormatVersion {
		return fmt.Errorf("unsupported pipeline version: %d", d.Version)
	}
	if d.Preprocessor == nil || len(d.Preprocessor.Schema) == 0 {
		return errors.New("pipeline has no preprocessor")
	}
	m, err := model.Unmarshal(d.Model)
	if err != nil {
		return err
	}
	p.Name = d.Name
	p.Preprocessor = d.Preprocessor
	p.Model = m
	return nil
}
