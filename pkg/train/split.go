package train

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/mchmarny/churnctl/pkg/failure"
)

// Partition holds row indices of the train and held-out sets, each in
// ascending row order.
type Partition struct {
	Train []int
	Test  []int
}

// StratifiedSplit assigns round(fraction * n_class) rows of each class to
// the held-out set, at least one and never all of them, choosing rows with
// a generator seeded by seed.
func StratifiedSplit(labels []int, fraction float64, seed uint64) (*Partition, error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, fmt.Errorf("test fraction must be in (0, 1): %v", fraction)
	}

	var classes [2][]int
	for i, l := range labels {
		if l != 0 && l != 1 {
			return nil, fmt.Errorf("%w: label %d at row %d is not binary", failure.ErrTraining, l, i+1)
		}
		classes[l] = append(classes[l], i)
	}
	if len(classes[0]) == 0 || len(classes[1]) == 0 {
		return nil, fmt.Errorf("%w: labels need 2 distinct classes to stratify, found 1 or fewer", failure.ErrTraining)
	}

	rng := rand.New(rand.NewPCG(seed, 0))
	p := &Partition{}
	for label, rows := range classes {
		n := len(rows)
		if n < 2 {
			return nil, fmt.Errorf("%w: class %d has %d row, need at least 2 to stratify", failure.ErrTraining, label, n)
		}
		k := int(math.Round(fraction * float64(n)))
		k = min(max(k, 1), n-1)

		shuffled := slices.Clone(rows)
		rng.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		p.Test = append(p.Test, shuffled[:k]...)
		p.Train = append(p.Train, shuffled[k:]...)
	}
	slices.Sort(p.Train)
	slices.Sort(p.Test)
	return p, nil
}

func pick[T any](vals []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}
