// Package train selects the churn model: it fits every candidate pipeline on
// a stratified train partition and keeps the one ranking the held-out
// partition best.
package train

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/model"
	"github.com/mchmarny/churnctl/pkg/pipeline"
)

// Candidate is a named classifier specification.
type Candidate struct {
	Name       string
	Classifier model.Classifier
}

// CandidatesFrom builds classifiers from their config entries, in order.
func CandidatesFrom(specs []config.Candidate) ([]Candidate, error) {
	out := make([]Candidate, 0, len(specs))
	for _, s := range specs {
		var c model.Classifier
		switch s.Kind {
		case config.CandidateLogReg:
			c = &model.LogisticRegression{
				C:        s.C,
				MaxIter:  s.MaxIter,
				Balanced: s.BalanceClasses,
			}
		case config.CandidateForest:
			c = &model.RandomForest{
				Trees:          s.Trees,
				MaxDepth:       s.MaxDepth,
				MinSamplesLeaf: s.MinSamplesLeaf,
				Seed:           s.Seed,
				Workers:        s.Workers,
			}
		default:
			return nil, fmt.Errorf("%w: candidate %s has unknown kind %q", failure.ErrTraining, s.Name, s.Kind)
		}
		out = append(out, Candidate{Name: s.Name, Classifier: c})
	}
	return out, nil
}

// Score is the held-out metric of one candidate.
type Score struct {
	Name     string  `json:"name" yaml:"name"`
	AUC      float64 `json:"roc_auc" yaml:"rocAuc"`
	Duration string  `json:"duration" yaml:"duration"`
}

// Result is the outcome of model selection.
type Result struct {
	Pipeline     *pipeline.Fitted
	Winner       string
	AUC          float64
	Scores       []Score
	TrainRows    int
	TestRows     int
	PositiveRate float64
}

// Select fits every candidate on the train partition and returns the one
// with the strictly greatest held-out ROC AUC; on a tie the earlier
// candidate wins. Any candidate failure fails the selection.
func Select(features *data.Frame, labels []int, candidates []Candidate, fraction float64, seed uint64) (*Result, error) {
	if features == nil || features.Len() != len(labels) {
		return nil, fmt.Errorf("%w: features and labels differ in length", failure.ErrTraining)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", failure.ErrTraining)
	}

	part, err := StratifiedSplit(labels, fraction, seed)
	if err != nil {
		return nil, err
	}

	trainX, trainY := features.Rows(part.Train), pick(labels, part.Train)
	testX, testY := features.Rows(part.Test), pick(labels, part.Test)
	schema := features.Schema()

	slog.Info("split data", "train", len(part.Train), "test", len(part.Test))

	res := &Result{
		AUC:          -1,
		TrainRows:    len(part.Train),
		TestRows:     len(part.Test),
		PositiveRate: positiveRate(labels),
	}

	for _, c := range candidates {
		start := time.Now()
		slog.Info("training candidate", "name", c.Name)

		m, err := pipeline.New(c.Name, schema, c.Classifier).Fit(trainX, trainY)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %s: %w", failure.ErrTraining, c.Name, err)
		}

		probs, err := m.PredictProba(testX)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %s scoring held-out rows: %w", failure.ErrTraining, c.Name, err)
		}

		auc, err := model.ROCAUC(testY, probs)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %s: %w", failure.ErrTraining, c.Name, err)
		}

		elapsed := time.Since(start)
		slog.Info("candidate scored", "name", c.Name, "roc_auc", auc, "duration", elapsed.Round(time.Millisecond))
		res.Scores = append(res.Scores, Score{Name: c.Name, AUC: auc, Duration: elapsed.String()})

		if auc > res.AUC {
			res.AUC = auc
			res.Winner = c.Name
			res.Pipeline = m.(*pipeline.Fitted)
		}
	}

	return res, nil
}

func positiveRate(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	var pos int
	for _, l := range labels {
		pos += l
	}
	return float64(pos) / float64(len(labels))
}
