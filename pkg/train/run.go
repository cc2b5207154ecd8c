package train

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/data"
)

// Options configure a training run.
type Options struct {
	Columns      data.Columns
	TestFraction float64
	Seed         uint64
	Candidates   []Candidate
}

// ColumnsFrom maps the data section of the config to splitter columns.
func ColumnsFrom(d config.Data) data.Columns {
	return data.Columns{
		ID:          d.IDColumn,
		Label:       d.LabelColumn,
		Positive:    d.PositiveTag,
		Numeric:     d.Numeric,
		Categorical: d.Categorical,
	}
}

// OptionsFrom builds run options from a validated config.
func OptionsFrom(cfg *config.Config) (*Options, error) {
	candidates, err := CandidatesFrom(cfg.Candidates)
	if err != nil {
		return nil, err
	}
	return &Options{
		Columns:      ColumnsFrom(cfg.Data),
		TestFraction: cfg.Split.TestFraction,
		Seed:         cfg.Split.Seed,
		Candidates:   candidates,
	}, nil
}

// Run splits the raw frame into features and labels and selects a model.
func Run(raw *data.Frame, opts *Options) (*Result, error) {
	if opts == nil {
		return nil, fmt.Errorf("training options required")
	}

	features, labels, _, err := data.Split(raw, opts.Columns)
	if err != nil {
		return nil, err
	}

	num, cat := features.Schema().NumericAndCategorical()
	slog.Info("features typed", "rows", features.Len(), "numeric", len(num), "categorical", len(cat))
	slog.Debug("feature columns", "numeric", num, "categorical", cat)

	return Select(features, labels, opts.Candidates, opts.TestFraction, opts.Seed)
}
