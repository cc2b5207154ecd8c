package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const (
	forestTreesDefault = 100
	leaf               = -1
)

// RandomForest is a bagged ensemble of CART trees grown on bootstrap
// samples with sqrt(features) candidates per split. Each tree draws from
// its own generator seeded by (Seed, tree index), so the fitted forest does
// not depend on Workers.
type RandomForest struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           uint64
	Workers        int
}

// ForestModel is a fitted random forest.
type ForestModel struct {
	Features int     `json:"features"`
	Trees    []*Tree `json:"trees"`
}

// Tree is a fitted decision tree in flat form. Node i is a leaf when
// Left[i] is -1, in which case Value[i] is its positive class fraction.
type Tree struct {
	Feature   []int     `json:"f"`
	Threshold []float64 `json:"t"`
	Left      []int     `json:"l"`
	Right     []int     `json:"r"`
	Value     []float64 `json:"v"`
}

func (f *RandomForest) Fit(x *mat.Dense, y []int) (Model[*mat.Dense], error) {
	rows, cols, err := checkFit(x, y)
	if err != nil {
		return nil, err
	}

	n := f.Trees
	if n <= 0 {
		n = forestTreesDefault
	}
	workers := max(f.Workers, 1)
	minLeaf := max(f.MinSamplesLeaf, 1)
	maxFeatures := max(int(math.Sqrt(float64(cols))), 1)

	// column-major copy so split search scans contiguous memory
	columns := make([][]float64, cols)
	for j := range cols {
		columns[j] = mat.Col(nil, j, x)
	}

	trees := make([]*Tree, n)
	var g errgroup.Group
	g.SetLimit(workers)
	for t := range n {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(f.Seed, uint64(t)))
			sample := make([]int, rows)
			for i := range sample {
				sample[i] = rng.IntN(rows)
			}
			b := &treeBuilder{
				columns:     columns,
				y:           y,
				rng:         rng,
				maxFeatures: maxFeatures,
				minLeaf:     minLeaf,
				maxDepth:    f.MaxDepth,
				tree:        &Tree{},
			}
			b.grow(sample, 0)
			trees[t] = b.tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("error fitting random forest: %w", err)
	}

	slog.Debug("random forest fitted", "trees", n, "features", cols, "workers", workers)

	return &ForestModel{Features: cols, Trees: trees}, nil
}

type treeBuilder struct {
	columns     [][]float64
	y           []int
	rng         *rand.Rand
	maxFeatures int
	minLeaf     int
	maxDepth    int
	tree        *Tree
}

func (b *treeBuilder) addNode() int {
	t := b.tree
	t.Feature = append(t.Feature, leaf)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, leaf)
	t.Right = append(t.Right, leaf)
	t.Value = append(t.Value, 0)
	return len(t.Value) - 1
}

// grow builds the subtree for sample and returns its node index.
func (b *treeBuilder) grow(sample []int, depth int) int {
	id := b.addNode()

	var pos int
	for _, i := range sample {
		pos += b.y[i]
	}
	b.tree.Value[id] = float64(pos) / float64(len(sample))

	if pos == 0 || pos == len(sample) ||
		len(sample) < 2*b.minLeaf ||
		(b.maxDepth > 0 && depth >= b.maxDepth) {
		return id
	}

	feature, threshold, ok := b.bestSplit(sample, pos)
	if !ok {
		return id
	}

	var left, right []int
	col := b.columns[feature]
	for _, i := range sample {
		if col[i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.tree.Feature[id] = feature
	b.tree.Threshold[id] = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Left[id] = l
	b.tree.Right[id] = r
	return id
}

// bestSplit searches a random subset of features for the split with the
// lowest weighted gini impurity. When none of the subset can split the
// node, the search continues through the remaining features.
func (b *treeBuilder) bestSplit(sample []int, pos int) (feature int, threshold float64, ok bool) {
	n := len(sample)
	order := b.rng.Perm(len(b.columns))
	sorted := slices.Clone(sample)
	best := math.Inf(1)

	for k, j := range order {
		if k >= b.maxFeatures && ok {
			break
		}
		col := b.columns[j]
		slices.SortStableFunc(sorted, func(p, q int) int {
			switch {
			case col[p] < col[q]:
				return -1
			case col[p] > col[q]:
				return 1
			default:
				return 0
			}
		})

		var leftPos int
		for i := 0; i < n-1; i++ {
			leftPos += b.y[sorted[i]]
			lo, hi := col[sorted[i]], col[sorted[i+1]]
			if lo == hi {
				continue
			}
			nl := i + 1
			nr := n - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			score := float64(nl)*gini(leftPos, nl) + float64(nr)*gini(pos-leftPos, nr)
			if score < best {
				best = score
				feature = j
				threshold = lo + (hi-lo)/2
				if threshold >= hi {
					// adjacent floats: the midpoint rounds up and would send
					// every row left
					threshold = lo
				}
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func gini(pos, n int) float64 {
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

func (m *ForestModel) PredictProba(x *mat.Dense) ([]float64, error) {
	if x == nil {
		return nil, errors.New("input matrix required")
	}
	if len(m.Trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	rows, cols := x.Dims()
	if cols != m.Features {
		return nil, fmt.Errorf("input has %d features, model expects %d", cols, m.Features)
	}

	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := range rows {
		mat.Row(row, i, x)
		var sum float64
		for _, t := range m.Trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(m.Trees))
	}
	return out, nil
}

func (t *Tree) predict(row []float64) float64 {
	n := 0
	for t.Left[n] != leaf {
		if row[t.Feature[n]] <= t.Threshold[n] {
			n = t.Left[n]
		} else {
			n = t.Right[n]
		}
	}
	return t.Value[n]
}

func (m *ForestModel) validate() error {
	if len(m.Trees) == 0 {
		return errors.New("no trees")
	}
	for i, t := range m.Trees {
		if t == nil {
			return fmt.Errorf("tree %d is empty", i)
		}
		n := len(t.Value)
		if n == 0 || len(t.Feature) != n || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n {
			return fmt.Errorf("tree %d has inconsistent node arrays", i)
		}
		for j := range n {
			if t.Left[j] == leaf {
				continue
			}
			if t.Left[j] <= j || t.Left[j] >= n || t.Right[j] <= j || t.Right[j] >= n ||
				t.Feature[j] < 0 || t.Feature[j] >= m.Features {
				return fmt.Errorf("tree %d node %d is malformed", i, j)
			}
		}
	}
	return nil
}
