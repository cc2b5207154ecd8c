// Package score ranks customers by churn probability and scores single
// records entered by hand.
package score

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/model"
)

// DefaultLimit is the risk report length used when none is configured.
const DefaultLimit = 500

// Risk is one row of the risk report.
type Risk struct {
	CustomerID string  `csv:"customerID" json:"customerID" yaml:"customerID"`
	Score      float64 `csv:"churn_score" json:"churn_score" yaml:"churnScore"`
}

// Rank scores every record, orders them by descending probability and
// keeps the first limit. Records with equal scores keep their input order.
func Rank(p model.Model[*data.Frame], features *data.Frame, ids []string, limit int) ([]Risk, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: pipeline required", failure.ErrScoring)
	}
	if features == nil || features.Len() != len(ids) {
		return nil, fmt.Errorf("%w: features and identifiers differ in length", failure.ErrScoring)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(ids) == 0 {
		return []Risk{}, nil
	}

	probs, err := p.PredictProba(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrScoring, err)
	}

	list := make([]Risk, len(ids))
	for i, id := range ids {
		list[i] = Risk{CustomerID: id, Score: probs[i]}
	}
	slices.SortStableFunc(list, func(a, b Risk) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(list) > limit {
		list = list[:limit]
	}

	slog.Debug("customers ranked", "scored", len(ids), "kept", len(list))
	return list, nil
}

// Tier is a coarse churn risk band.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

func (t Tier) String() string {
	return string(t)
}

// TierFor bands probability p. Each bound belongs to the higher tier.
func TierFor(p float64, t config.Tiers) Tier {
	switch {
	case p >= t.High:
		return TierHigh
	case p >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}
