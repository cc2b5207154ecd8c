package model

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// ROCAUC returns the area under the ROC curve of scores against binary
// labels, computed as the Mann-Whitney rank statistic. Tied scores share
// their average rank, so a tie between a positive and a negative counts
// one half.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("labels (%d) and scores (%d) differ in length", len(labels), len(scores))
	}
	if floats.HasNaN(scores) {
		return 0, errors.New("scores contain NaN")
	}

	n := len(scores)
	sorted := slices.Clone(scores)
	idx := make([]int, n)
	floats.Argsort(sorted, idx)

	var nPos, rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && sorted[j+1] == sorted[i] {
			j++
		}
		// ranks are 1-based, ties get the mean of i+1..j+1
		rank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[idx[k]] == 1 {
				nPos++
				rankSum += rank
			}
		}
		i = j + 1
	}

	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		return 0, errors.New("ROC AUC is undefined with a single class")
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}
