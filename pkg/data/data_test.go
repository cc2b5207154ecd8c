package data

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/churnctl/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `customerID,gender,SeniorCitizen,tenure,Contract,MonthlyCharges,TotalCharges,Churn
A-1,Female,0,1,Month-to-month,29.85,29.85,No
A-2,Male,0,34,One year,56.95,1889.5,No
A-3,Male,1,2,Month-to-month,53.85,108.15,Yes
A-4,Female,0,0,Two year,70.7, ,Yes
`

var testColumns = Columns{ID: "customerID", Label: "Churn", Positive: "Yes"}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func loadSample(t *testing.T) *Frame {
	t.Helper()
	f, err := Load(context.Background(), writeCSV(t, sampleCSV))
	require.NoError(t, err)
	return f
}

func TestLoad(t *testing.T) {
	f := loadSample(t)
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, []string{"customerID", "gender", "SeniorCitizen", "tenure", "Contract", "MonthlyCharges", "TotalCharges", "Churn"}, f.Names())
	assert.Equal(t, "", f.Value(3, "TotalCharges"))
	assert.Equal(t, "One year", f.Value(1, "Contract"))
}

func TestLoad_KindInference(t *testing.T) {
	f := loadSample(t)
	kinds := map[string]Kind{
		"customerID":     Categorical,
		"gender":         Categorical,
		"SeniorCitizen":  Numeric,
		"tenure":         Numeric,
		"Contract":       Categorical,
		"MonthlyCharges": Numeric,
		"TotalCharges":   Numeric,
		"Churn":          Categorical,
	}
	for name, want := range kinds {
		c, ok := f.Column(name)
		require.True(t, ok, name)
		assert.Equal(t, want, c.Kind, name)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"ragged", "a,b\n1,2\n3\n"},
		{"duplicate header", "a,a\n1,2\n"},
		{"blank header", "a,,c\n1,2,3\n"},
		{"bad quoting", "a,b\n\"1,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeCSV(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, failure.ErrDataUnavailable)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, failure.ErrDataUnavailable)

	_, err = Load(context.Background(), "")
	assert.ErrorIs(t, err, failure.ErrDataUnavailable)
}

func TestRead_ByteOrderMark(t *testing.T) {
	f, err := Read(strings.NewReader("\ufeffcustomerID,Churn\nA,Yes\n"))
	require.NoError(t, err)
	assert.True(t, f.Has("customerID"))
}

func TestRead_HeaderOnly(t *testing.T) {
	f, err := Read(strings.NewReader("customerID,Churn\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestSplit(t *testing.T) {
	f := loadSample(t)
	features, labels, ids, err := Split(f, testColumns)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 1, 1}, labels)
	assert.Equal(t, []string{"A-1", "A-2", "A-3", "A-4"}, ids)
	assert.False(t, features.Has("Churn"))
	assert.False(t, features.Has("customerID"))
	assert.Equal(t, 4, features.Len())
	for _, l := range labels {
		assert.Contains(t, []int{0, 1}, l)
	}

	num, cat := features.Schema().NumericAndCategorical()
	assert.Equal(t, []string{"SeniorCitizen", "tenure", "MonthlyCharges", "TotalCharges"}, num)
	assert.Equal(t, []string{"gender", "Contract"}, cat)
}

func TestSplit_LabelIsCaseSensitive(t *testing.T) {
	f, err := Read(strings.NewReader("customerID,x,Churn\nA,1,Yes\nB,2,yes\nC,3,YES\nD,4,No\n"))
	require.NoError(t, err)
	_, labels, _, err := Split(f, testColumns)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 0, 0}, labels)
}

func TestSplit_MissingColumns(t *testing.T) {
	f, err := Read(strings.NewReader("id,x,Churn\nA,1,Yes\n"))
	require.NoError(t, err)
	_, _, _, err = Split(f, testColumns)
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)

	f, err = Read(strings.NewReader("customerID,x\nA,1\n"))
	require.NoError(t, err)
	_, _, _, err = Split(f, testColumns)
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)

	_, _, _, err = Split(nil, testColumns)
	assert.ErrorIs(t, err, failure.ErrDataUnavailable)
}

func TestSplitForScoring_LabelOptional(t *testing.T) {
	f, err := Read(strings.NewReader("customerID,tenure\nA,1\nB,2\n"))
	require.NoError(t, err)
	features, ids, err := SplitForScoring(f, testColumns)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)
	assert.Equal(t, []string{"tenure"}, features.Names())
}

func TestSplit_DeclaredKinds(t *testing.T) {
	f := loadSample(t)
	cols := testColumns
	cols.Categorical = []string{"SeniorCitizen"}
	features, _, _, err := Split(f, cols)
	require.NoError(t, err)
	c, _ := features.Column("SeniorCitizen")
	assert.Equal(t, Categorical, c.Kind)

	// the source frame is untouched
	c, _ = f.Column("SeniorCitizen")
	assert.Equal(t, Numeric, c.Kind)

	cols = testColumns
	cols.Numeric = []string{"Contract"}
	_, _, _, err = Split(f, cols)
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)

	cols = testColumns
	cols.Numeric = []string{"nope"}
	_, _, _, err = Split(f, cols)
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)
}

func TestFrame_Rows(t *testing.T) {
	f := loadSample(t)
	sub := f.Rows([]int{2, 0})
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, "A-3", sub.Value(0, "customerID"))
	assert.Equal(t, "A-1", sub.Value(1, "customerID"))
}

func TestFrame_Floats(t *testing.T) {
	f := loadSample(t)
	vals, missing, err := f.Floats("TotalCharges")
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true}, missing)
	assert.InDelta(t, 1889.5, vals[1], 1e-9)

	_, _, err = f.Floats("gender")
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)

	_, _, err = f.Floats("nope")
	assert.ErrorIs(t, err, failure.ErrSchemaMismatch)
}

func TestFrameFromRecord(t *testing.T) {
	schema := Schema{{Name: "tenure", Kind: Numeric}, {Name: "Contract", Kind: Categorical}}
	f := FrameFromRecord(schema, map[string]string{"Contract": "Two year", "extra": "x"})
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, schema, f.Schema())
	assert.Equal(t, "", f.Value(0, "tenure"))
	assert.Equal(t, "Two year", f.Value(0, "Contract"))
	assert.False(t, f.Has("extra"))
}

func TestKind_JSON(t *testing.T) {
	b, err := Numeric.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"numeric"`, string(b))

	var k Kind
	require.NoError(t, k.UnmarshalJSON([]byte(`"categorical"`)))
	assert.Equal(t, Categorical, k)
	assert.Error(t, k.UnmarshalJSON([]byte(`"text"`)))
}

func TestLoad_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/telco.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, sampleCSV)
	}))
	defer srv.Close()

	f, err := Load(context.Background(), srv.URL+"/telco.csv")
	require.NoError(t, err)
	assert.Equal(t, 4, f.Len())

	_, err = Load(context.Background(), srv.URL+"/missing.csv")
	assert.ErrorIs(t, err, failure.ErrDataUnavailable)
}
