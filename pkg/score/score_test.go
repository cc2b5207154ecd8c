package score

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/model"
	"github.com/mchmarny/churnctl/pkg/pipeline"
	"github.com/mchmarny/churnctl/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed []float64

func (f fixed) PredictProba(*data.Frame) ([]float64, error) {
	return f, nil
}

func frame(t *testing.T, n int) *data.Frame {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("x\n")
	for i := range n {
		fmt.Fprintf(&sb, "%d\n", i+1)
	}
	f, err := data.Read(strings.NewReader(sb.String()))
	require.NoError(t, err)
	return f
}

func fitted(t *testing.T) (*pipeline.Fitted, *data.Frame, []string) {
	t.Helper()
	raw, err := data.Read(strings.NewReader(testutil.TelcoCSV(80)))
	require.NoError(t, err)
	cols := data.Columns{ID: "customerID", Label: "Churn", Positive: "Yes"}
	features, labels, ids, err := data.Split(raw, cols)
	require.NoError(t, err)

	m, err := pipeline.New("logreg", features.Schema(), &model.LogisticRegression{C: 1, MaxIter: 200, Balanced: true}).Fit(features, labels)
	require.NoError(t, err)
	return m.(*pipeline.Fitted), features, ids
}

func TestRank_Order(t *testing.T) {
	list, err := Rank(fixed{0.9, 0.8, 0.7, 0.6}, frame(t, 4), []string{"A", "B", "C", "D"}, 500)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, []Risk{
		{CustomerID: "A", Score: 0.9},
		{CustomerID: "B", Score: 0.8},
		{CustomerID: "C", Score: 0.7},
		{CustomerID: "D", Score: 0.6},
	}, list)
}

func TestRank_SortsAndKeepsTieOrder(t *testing.T) {
	list, err := Rank(fixed{0.2, 0.7, 0.2, 0.9, 0.7}, frame(t, 5), []string{"A", "B", "C", "D", "E"}, 0)
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, r := range list {
		ids[i] = r.CustomerID
	}
	assert.Equal(t, []string{"D", "B", "E", "A", "C"}, ids)
}

func TestRank_Limit(t *testing.T) {
	list, err := Rank(fixed{0.1, 0.5, 0.3}, frame(t, 3), []string{"A", "B", "C"}, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].CustomerID)
	assert.Equal(t, "C", list[1].CustomerID)
}

func TestRank_DefaultLimit(t *testing.T) {
	n := 600
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("C%04d", i)
	}
	list, err := Rank(fixed(make([]float64, n)), frame(t, n), ids, 0)
	require.NoError(t, err)
	require.Len(t, list, DefaultLimit)
	for i, r := range list {
		assert.Equal(t, ids[i], r.CustomerID)
	}

	list, err = Rank(fixed(make([]float64, 7)), frame(t, 7), ids[:7], 0)
	require.NoError(t, err)
	assert.Len(t, list, 7)
}

func TestRank_Pipeline(t *testing.T) {
	p, features, ids := fitted(t)
	list, err := Rank(p, features, ids, 500)
	require.NoError(t, err)
	assert.Len(t, list, 80)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].Score, list[i].Score)
	}
}

func TestRank_Errors(t *testing.T) {
	p, features, ids := fitted(t)

	_, err := Rank(p, features.Drop("tenure"), ids, 10)
	assert.ErrorIs(t, err, failure.ErrScoring)
	assert.Contains(t, err.Error(), "tenure")

	_, err = Rank(p, features, ids[:3], 10)
	assert.ErrorIs(t, err, failure.ErrScoring)

	_, err = Rank(nil, features, ids, 10)
	assert.ErrorIs(t, err, failure.ErrScoring)
}

func TestRank_UnseenCategory(t *testing.T) {
	p, _, _ := fitted(t)
	f, err := data.Read(strings.NewReader(testutil.TelcoHeader + "\n" +
		"Z1,Other,0,5,Three year,Satellite,70.00,350.00,No\n"))
	require.NoError(t, err)
	features, ids, err := data.SplitForScoring(f, data.Columns{ID: "customerID", Label: "Churn"})
	require.NoError(t, err)

	list, err := Rank(p, features, ids, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.GreaterOrEqual(t, list[0].Score, 0.0)
	assert.LessOrEqual(t, list[0].Score, 1.0)
}

func TestTierFor(t *testing.T) {
	tiers := config.Default().Tiers
	tests := []struct {
		p    float64
		want Tier
	}{
		{0, TierLow},
		{0.39, TierLow},
		{0.4, TierMedium},
		{0.69, TierMedium},
		{0.7, TierHigh},
		{1, TierHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.p, tiers), "p=%v", tt.p)
	}
	assert.Equal(t, "HIGH", TierHigh.String())
}
