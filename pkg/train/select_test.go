package train

import (
	"errors"
	"strings"
	"testing"

	"github.com/mchmarny/churnctl/pkg/config"
	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/mchmarny/churnctl/pkg/model"
	"github.com/mchmarny/churnctl/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type failing struct{}

func (failing) Fit(*mat.Dense, []int) (model.Model[*mat.Dense], error) {
	return nil, errors.New("diverged")
}

func telco(t *testing.T, n int) (*data.Frame, []int) {
	t.Helper()
	raw, err := data.Read(strings.NewReader(testutil.TelcoCSV(n)))
	require.NoError(t, err)
	features, labels, _, err := data.Split(raw, ColumnsFrom(config.Default().Data))
	require.NoError(t, err)
	return features, labels
}

func quick() []Candidate {
	return []Candidate{
		{Name: "logreg", Classifier: &model.LogisticRegression{C: 1, MaxIter: 200, Balanced: true}},
		{Name: "rf", Classifier: &model.RandomForest{Trees: 15, Seed: 13, MinSamplesLeaf: 1}},
	}
}

func TestSelect_PicksBest(t *testing.T) {
	features, labels := telco(t, 200)
	res, err := Select(features, labels, quick(), 0.2, 42)
	require.NoError(t, err)

	require.Len(t, res.Scores, 2)
	assert.Equal(t, "logreg", res.Scores[0].Name)
	assert.Equal(t, "rf", res.Scores[1].Name)

	best := res.Scores[0]
	if res.Scores[1].AUC > best.AUC {
		best = res.Scores[1]
	}
	assert.Equal(t, best.Name, res.Winner)
	assert.Equal(t, best.AUC, res.AUC)
	assert.GreaterOrEqual(t, res.AUC, 0.0)
	assert.LessOrEqual(t, res.AUC, 1.0)
	assert.Equal(t, 40, res.TestRows)
	assert.Equal(t, 160, res.TrainRows)
	require.NotNil(t, res.Pipeline)
	assert.Equal(t, res.Winner, res.Pipeline.Name)
}

func TestSelect_TieKeepsFirst(t *testing.T) {
	features, labels := telco(t, 60)
	lr := &model.LogisticRegression{C: 1, MaxIter: 100}
	res, err := Select(features, labels, []Candidate{
		{Name: "first", Classifier: lr},
		{Name: "second", Classifier: lr},
	}, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, res.Scores[0].AUC, res.Scores[1].AUC)
	assert.Equal(t, "first", res.Winner)
}

func TestSelect_CandidateFailure(t *testing.T) {
	features, labels := telco(t, 60)
	cands := append(quick()[:1], Candidate{Name: "broken", Classifier: failing{}})
	_, err := Select(features, labels, cands, 0.2, 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrTraining)
	assert.Contains(t, err.Error(), "broken")
}

func TestSelect_Repeatable(t *testing.T) {
	features, labels := telco(t, 120)
	a, err := Select(features, labels, quick(), 0.2, 42)
	require.NoError(t, err)
	b, err := Select(features, labels, quick(), 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, a.Winner, b.Winner)
	assert.Equal(t, a.AUC, b.AUC)

	pa, err := a.Pipeline.PredictProba(features)
	require.NoError(t, err)
	pb, err := b.Pipeline.PredictProba(features)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestSelect_TwoRowsPerClass(t *testing.T) {
	raw, err := data.Read(strings.NewReader(strings.Join([]string{
		"customerID,tenure,Contract,Churn",
		"A,1,Month-to-month,Yes",
		"B,60,Two year,No",
		"C,3,Month-to-month,Yes",
		"D,50,One year,No",
	}, "\n")))
	require.NoError(t, err)

	opts, err := OptionsFrom(config.Default())
	require.NoError(t, err)
	opts.Candidates = quick()

	res, err := Run(raw, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TestRows)
	assert.Equal(t, 2, res.TrainRows)
	assert.InDelta(t, 0.5, res.PositiveRate, 1e-9)
}

func TestSelect_Errors(t *testing.T) {
	features, labels := telco(t, 20)
	_, err := Select(features, labels[:5], quick(), 0.2, 42)
	assert.ErrorIs(t, err, failure.ErrTraining)

	_, err = Select(features, labels, nil, 0.2, 42)
	assert.ErrorIs(t, err, failure.ErrTraining)

	single := make([]int, len(labels))
	_, err = Select(features, single, quick(), 0.2, 42)
	assert.ErrorIs(t, err, failure.ErrTraining)
}

func TestCandidatesFrom(t *testing.T) {
	cands, err := CandidatesFrom(config.Default().Candidates)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.IsType(t, &model.LogisticRegression{}, cands[0].Classifier)
	assert.IsType(t, &model.RandomForest{}, cands[1].Classifier)

	_, err = CandidatesFrom([]config.Candidate{{Name: "x", Kind: "svm"}})
	assert.ErrorIs(t, err, failure.ErrTraining)
}

func TestRun_MissingLabel(t *testing.T) {
	raw, err := data.Read(strings.NewReader("customerID,tenure\nA,1\nB,2\n"))
	require.NoError(t, err)
	opts, err := OptionsFrom(config.Default())
	require.NoError(t, err)
	_, err = Run(raw, opts)
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)

	_, err = Run(raw, nil)
	assert.Error(t, err)
}
