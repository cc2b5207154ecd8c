package score

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/pipeline"
)

// Prediction is the outcome of scoring one record.
type Prediction struct {
	Probability float64 `json:"probability" yaml:"probability"`
	Tier        Tier    `json:"tier" yaml:"tier"`
}

// Field describes one input of the single-record form.
type Field struct {
	Name    string    `json:"name" yaml:"name"`
	Kind    data.Kind `json:"kind" yaml:"kind"`
	Options []string  `json:"options,omitempty" yaml:"options,omitempty"`
	Min     *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Default string    `json:"default" yaml:"default"`
}

// Form lists the inputs of the fitted pipeline in schema order. Categorical
// fields offer the values seen in training and default to the first
// non-blank one;
// numeric fields default to the configured minimum, or the training mean
// when the column has no configured range.
func Form(p *pipeline.Fitted, ranges map[string]config.Range) []Field {
	if p == nil || p.Preprocessor == nil {
		return nil
	}

	means := make(map[string]float64, len(p.Preprocessor.Scalers))
	for _, s := range p.Preprocessor.Scalers {
		means[s.Column] = s.Mean
	}

	fields := make([]Field, 0, len(p.Preprocessor.Schema))
	for _, c := range p.Preprocessor.Schema {
		f := Field{Name: c.Name, Kind: c.Kind}
		if c.Kind == data.Categorical {
			f.Options, _ = p.Preprocessor.Vocabulary(c.Name)
			if i := slices.IndexFunc(f.Options, func(o string) bool { return o != "" }); i >= 0 {
				f.Default = f.Options[i]
			}
		} else if r, ok := ranges[c.Name]; ok {
			f.Min, f.Max = &r.Min, &r.Max
			f.Default = formatFloat(r.Min)
		} else {
			f.Default = formatFloat(means[c.Name])
		}
		fields = append(fields, f)
	}
	return fields
}

// WithDefaults returns a copy of record with every blank or absent form
// field set to its default. Values are trimmed.
func WithDefaults(fields []Field, record map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range record {
		out[k] = strings.TrimSpace(v)
	}
	for _, f := range fields {
		if out[f.Name] == "" {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Validate checks record against the form: every field present, every
// categorical value known at training time, every numeric value finite and
// within its range. A blank categorical value is accepted only when blank
// was one of the training values. Fields the pipeline does not use are
// rejected.
func Validate(fields []Field, record map[string]string) error {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true

		v, ok := record[f.Name]
		v = strings.TrimSpace(v)
		blankOK := ok && f.Kind == data.Categorical && slices.Contains(f.Options, "")
		if !ok || (v == "" && !blankOK) {
			return fmt.Errorf("%w: %s is required", failure.ErrInvalidInput, f.Name)
		}

		if f.Kind == data.Categorical {
			if !slices.Contains(f.Options, v) {
				return fmt.Errorf("%w: %s must be one of %s, got %q", failure.ErrInvalidInput, f.Name, strings.Join(f.Options, ", "), v)
			}
			continue
		}

		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("%w: %s must be a number, got %q", failure.ErrInvalidInput, f.Name, v)
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Errorf("%w: %s must be at least %s, got %s", failure.ErrInvalidInput, f.Name, formatFloat(*f.Min), v)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Errorf("%w: %s must be at most %s, got %s", failure.ErrInvalidInput, f.Name, formatFloat(*f.Max), v)
		}
	}

	for _, k := range slices.Sorted(maps.Keys(record)) {
		if !known[k] {
			return fmt.Errorf("%w: unknown field %s", failure.ErrInvalidInput, k)
		}
	}
	return nil
}

// Predict scores one record laid out by the pipeline's schema. Absent
// fields are blank: numeric ones take the training mean, categorical ones
// match no known value.
func Predict(p *pipeline.Fitted, record map[string]string, tiers config.Tiers) (*Prediction, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: pipeline required", failure.ErrScoring)
	}

	trimmed := make(map[string]string, len(record))
	for k, v := range record {
		trimmed[k] = strings.TrimSpace(v)
	}

	probs, err := p.PredictProba(data.FrameFromRecord(p.Schema(), trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrScoring, err)
	}

	return &Prediction{
		Probability: probs[0],
		Tier:        TierFor(probs[0], tiers),
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
