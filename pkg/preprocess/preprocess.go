// Package preprocess turns a feature frame into a numeric design matrix:
// z-scores for numeric columns, one indicator per known value for
// categorical columns.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errNotFitted = errors.New("preprocessor not fitted")

// Builder holds the column layout of an unfitted preprocessor.
type Builder struct {
	schema data.Schema
}

// New returns a builder for the given feature schema.
func New(schema data.Schema) *Builder {
	s := make(data.Schema, len(schema))
	copy(s, schema)
	return &Builder{schema: s}
}

// Scaler standardizes one numeric column. Mean also fills missing cells.
type Scaler struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// Encoder one-hot encodes one categorical column over its fitted vocabulary.
type Encoder struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// Preprocessor is a fitted, immutable transform.
type Preprocessor struct {
	Schema   data.Schema `json:"schema"`
	Scalers  []Scaler    `json:"scalers"`
	Encoders []Encoder   `json:"encoders"`
}

// Fit learns per-column statistics from features. Columns are matched by
// name, so the frame may order them differently from the schema.
func (b *Builder) Fit(features *data.Frame) (*Preprocessor, error) {
	if features == nil || features.Len() == 0 {
		return nil, errors.New("cannot fit preprocessor on empty features")
	}
	if len(b.schema) == 0 {
		return nil, errors.New("cannot fit preprocessor without feature columns")
	}

	p := &Preprocessor{Schema: b.schema}
	for _, c := range b.schema {
		if !features.Has(c.Name) {
			return nil, fmt.Errorf("%w: column %s not found", failure.ErrSchemaMismatch, c.Name)
		}
		switch c.Kind {
		case data.Numeric:
			s, err := fitScaler(features, c.Name)
			if err != nil {
				return nil, err
			}
			p.Scalers = append(p.Scalers, s)
		default:
			e, err := fitEncoder(features, c.Name)
			if err != nil {
				return nil, err
			}
			p.Encoders = append(p.Encoders, e)
		}
	}
	return p, nil
}

func fitScaler(f *data.Frame, name string) (Scaler, error) {
	vals, missing, err := f.Floats(name)
	if err != nil {
		return Scaler{}, err
	}
	present := make([]float64, 0, len(vals))
	for i, v := range vals {
		if !missing[i] {
			present = append(present, v)
		}
	}

	s := Scaler{Column: name, Scale: 1}
	if len(present) == 0 {
		return s, nil
	}
	if len(present) == 1 {
		s.Mean = present[0]
		return s, nil
	}

	mean, std := stat.MeanStdDev(present, nil)
	n := float64(len(present))
	// population deviation
	std *= math.Sqrt((n - 1) / n)
	s.Mean = mean
	if std > 1e-12 {
		s.Scale = std
	}
	return s, nil
}

func fitEncoder(f *data.Frame, name string) (Encoder, error) {
	cells, err := f.Strings(name)
	if err != nil {
		return Encoder{}, err
	}
	vals := slices.Clone(cells)
	slices.Sort(vals)
	return Encoder{Column: name, Values: slices.Compact(vals)}, nil
}

// Width returns the number of output columns.
func (p *Preprocessor) Width() int {
	w := len(p.Scalers)
	for _, e := range p.Encoders {
		w += len(e.Values)
	}
	return w
}

// FeatureNames names the output columns: numeric columns first, then
// column=value for every categorical indicator.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.Width())
	for _, s := range p.Scalers {
		names = append(names, s.Column)
	}
	for _, e := range p.Encoders {
		for _, v := range e.Values {
			names = append(names, e.Column+"="+v)
		}
	}
	return names
}

// Vocabulary returns the values seen at fit time for a categorical column.
func (p *Preprocessor) Vocabulary(column string) ([]string, bool) {
	for _, e := range p.Encoders {
		if e.Column == column {
			return slices.Clone(e.Values), true
		}
	}
	return nil, false
}

// Transform applies the fitted statistics to features. Missing numeric cells
// take the fitted mean; categorical values unseen at fit time produce an
// all-zero block.
func (p *Preprocessor) Transform(features *data.Frame) (*mat.Dense, error) {
	if p == nil || len(p.Schema) == 0 {
		return nil, errNotFitted
	}
	if features == nil || features.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows to transform", failure.ErrScoring)
	}
	for _, c := range p.Schema {
		if !features.Has(c.Name) {
			return nil, fmt.Errorf("%w: required column %s not found", failure.ErrScoring, c.Name)
		}
	}

	rows := features.Len()
	x := mat.NewDense(rows, p.Width(), nil)

	col := 0
	for _, s := range p.Scalers {
		vals, missing, err := features.Floats(s.Column)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", failure.ErrScoring, err)
		}
		for r, v := range vals {
			if missing[r] {
				v = s.Mean
			}
			x.Set(r, col, (v-s.Mean)/s.Scale)
		}
		col++
	}

	for _, e := range p.Encoders {
		cells, err := features.Strings(e.Column)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", failure.ErrScoring, err)
		}
		for r, v := range cells {
			if i, ok := slices.BinarySearch(e.Values, v); ok {
				x.Set(r, col+i, 1)
			}
		}
		col += len(e.Values)
	}

	return x, nil
}
