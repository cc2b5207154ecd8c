package data

import (
	"fmt"

	"github.com/mchmarny/churnctl/pkg/failure"
)

// Columns names the fixed columns of the raw input and any declared
// feature kinds that override inference.
type Columns struct {
	ID          string
	Label       string
	Positive    string
	Numeric     []string
	Categorical []string
}

// Split separates the identifier and label from the predictive features.
// A label is 1 iff the raw value equals Positive exactly (case-sensitive).
func Split(f *Frame, c Columns) (features *Frame, labels []int, ids []string, err error) {
	if f == nil {
		return nil, nil, nil, fmt.Errorf("%w: no data", failure.ErrDataUnavailable)
	}
	if !f.Has(c.Label) {
		return nil, nil, nil, fmt.Errorf("%w: label column %s not found", failure.ErrSchemaMismatch, c.Label)
	}

	features, ids, err = SplitForScoring(f, c)
	if err != nil {
		return nil, nil, nil, err
	}

	raw, err := f.Strings(c.Label)
	if err != nil {
		return nil, nil, nil, err
	}
	labels = make([]int, len(raw))
	for i, v := range raw {
		if v == c.Positive {
			labels[i] = 1
		}
	}

	return features, labels, ids, nil
}

// SplitForScoring returns the features and identifiers of a frame that may
// or may not carry the label column.
func SplitForScoring(f *Frame, c Columns) (features *Frame, ids []string, err error) {
	if f == nil {
		return nil, nil, fmt.Errorf("%w: no data", failure.ErrDataUnavailable)
	}
	if !f.Has(c.ID) {
		return nil, nil, fmt.Errorf("%w: identifier column %s not found", failure.ErrSchemaMismatch, c.ID)
	}

	ids, err = f.Strings(c.ID)
	if err != nil {
		return nil, nil, err
	}

	features = f.Drop(c.ID, c.Label)
	if err := declare(features, c); err != nil {
		return nil, nil, err
	}
	return features, ids, nil
}

func declare(f *Frame, c Columns) error {
	for _, n := range c.Numeric {
		if err := f.SetKind(n, Numeric); err != nil {
			return err
		}
	}
	for _, n := range c.Categorical {
		if err := f.SetKind(n, Categorical); err != nil {
			return err
		}
	}
	return nil
}

// NumericAndCategorical returns the feature names of each kind in column order.
func (s Schema) NumericAndCategorical() (num, cat []string) {
	for _, c := range s {
		if c.Kind == Numeric {
			num = append(num, c.Name)
		} else {
			cat = append(cat, c.Name)
		}
	}
	return num, cat
}
