package preprocess

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const featuresCSV = `tenure,Contract,MonthlyCharges,InternetService
1,Month-to-month,29.85,DSL
34,One year,56.95,Fiber optic
2,Month-to-month,53.85,No
45,One year,42.3,DSL
8,Two year,,Fiber optic
`

func readFrame(t *testing.T, content string) *data.Frame {
	t.Helper()
	f, err := data.Read(strings.NewReader(content))
	require.NoError(t, err)
	return f
}

func fitSample(t *testing.T) (*Preprocessor, *data.Frame) {
	t.Helper()
	f := readFrame(t, featuresCSV)
	p, err := New(f.Schema()).Fit(f)
	require.NoError(t, err)
	return p, f
}

func TestFit_Layout(t *testing.T) {
	p, _ := fitSample(t)
	assert.Equal(t, 2+3+3, p.Width())
	assert.Equal(t, []string{
		"tenure", "MonthlyCharges",
		"Contract=Month-to-month", "Contract=One year", "Contract=Two year",
		"InternetService=DSL", "InternetService=Fiber optic", "InternetService=No",
	}, p.FeatureNames())

	v, ok := p.Vocabulary("Contract")
	require.True(t, ok)
	assert.Equal(t, []string{"Month-to-month", "One year", "Two year"}, v)
	_, ok = p.Vocabulary("tenure")
	assert.False(t, ok)
}

func TestTransform_Standardizes(t *testing.T) {
	p, f := fitSample(t)
	x, err := p.Transform(f)
	require.NoError(t, err)

	rows, _ := x.Dims()
	assert.Equal(t, 5, rows)

	// tenure has no missing cells
	col := mat.Col(nil, 0, x)
	mean, std := popMeanStd(col)
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, std, 1e-9)
}

func TestTransform_ImputesMissingWithMean(t *testing.T) {
	p, f := fitSample(t)
	x, err := p.Transform(f)
	require.NoError(t, err)
	// MonthlyCharges row 5 is blank
	assert.InDelta(t, 0, x.At(4, 1), 1e-12)

	s := p.Scalers[1]
	assert.Equal(t, "MonthlyCharges", s.Column)
	assert.InDelta(t, (29.85+56.95+53.85+42.3)/4, s.Mean, 1e-9)
}

func TestTransform_OneIndicatorPerBlock(t *testing.T) {
	p, f := fitSample(t)
	x, err := p.Transform(f)
	require.NoError(t, err)

	rows, _ := x.Dims()
	for r := range rows {
		assert.Equal(t, 1.0, x.At(r, 2)+x.At(r, 3)+x.At(r, 4), "contract block row %d", r)
		assert.Equal(t, 1.0, x.At(r, 5)+x.At(r, 6)+x.At(r, 7), "internet block row %d", r)
	}
}

func TestTransform_UnseenCategoryIsAllZero(t *testing.T) {
	p, _ := fitSample(t)
	unseen := readFrame(t, "tenure,Contract,MonthlyCharges,InternetService\n3,Three year,50,Satellite\n")

	x, err := p.Transform(unseen)
	require.NoError(t, err)
	for c := 2; c < p.Width(); c++ {
		assert.Equal(t, 0.0, x.At(0, c))
	}
}

func TestTransform_ColumnOrderIndependent(t *testing.T) {
	p, f := fitSample(t)
	reordered := readFrame(t, "InternetService,MonthlyCharges,Contract,tenure,extra\nDSL,29.85,Month-to-month,1,x\n")

	a, err := p.Transform(f.Rows([]int{0}))
	require.NoError(t, err)
	b, err := p.Transform(reordered)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a, b, 1e-12))
}

func TestTransform_Errors(t *testing.T) {
	p, _ := fitSample(t)

	_, err := p.Transform(readFrame(t, "tenure,Contract\n1,Two year\n"))
	assert.ErrorIs(t, err, failure.ErrScoring)

	_, err = p.Transform(readFrame(t, "tenure,Contract,MonthlyCharges,InternetService\nlots,Two year,1,DSL\n"))
	assert.ErrorIs(t, err, failure.ErrScoring)

	_, err = p.Transform(readFrame(t, "tenure,Contract,MonthlyCharges,InternetService\n"))
	assert.ErrorIs(t, err, failure.ErrScoring)

	var unfitted *Preprocessor
	_, err = unfitted.Transform(readFrame(t, featuresCSV))
	assert.Error(t, err)
}

func TestFit_ConstantColumn(t *testing.T) {
	f := readFrame(t, "a,b\n5,x\n5,y\n5,x\n")
	p, err := New(f.Schema()).Fit(f)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Scalers[0].Scale)

	x, err := p.Transform(f)
	require.NoError(t, err)
	for r := range 3 {
		assert.False(t, math.IsNaN(x.At(r, 0)))
		assert.Equal(t, 0.0, x.At(r, 0))
	}
}

func TestFit_Errors(t *testing.T) {
	f := readFrame(t, featuresCSV)

	_, err := New(f.Schema()).Fit(readFrame(t, "tenure\n1\n"))
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)

	_, err = New(nil).Fit(f)
	assert.Error(t, err)

	_, err = New(f.Schema()).Fit(nil)
	assert.Error(t, err)
}

func TestPreprocessor_JSONRoundTripTransformsIdentically(t *testing.T) {
	p, f := fitSample(t)
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var restored Preprocessor
	require.NoError(t, json.Unmarshal(b, &restored))

	a, err := p.Transform(f)
	require.NoError(t, err)
	c, err := restored.Transform(f)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, c))
}

func popMeanStd(x []float64) (float64, float64) {
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(x)))
}
