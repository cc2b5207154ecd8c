package data

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mchmarny/churnctl/pkg/failure"
)

// Kind is the feature type of a column.
type Kind int

const (
	Categorical Kind = iota
	Numeric
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "numeric":
		*k = Numeric
	case "categorical":
		*k = Categorical
	default:
		return fmt.Errorf("unknown column kind: %q", s)
	}
	return nil
}

// Column is a named, typed column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
}

// Schema is the ordered list of feature columns a pipeline was fit on.
type Schema []Column

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Frame is an in-memory table of string cells with typed columns.
// Blank cells are missing values.
type Frame struct {
	columns []Column
	index   map[string]int
	rows    [][]string
}

// NewFrame builds a frame from a header and row-major cells, inferring each
// column's kind: numeric iff at least one cell is non-blank and every
// non-blank cell parses as a float.
func NewFrame(names []string, rows [][]string) (*Frame, error) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: blank column name at position %d", failure.ErrDataUnavailable, i+1)
		}
		if _, ok := index[n]; ok {
			return nil, fmt.Errorf("%w: duplicate column name %q", failure.ErrDataUnavailable, n)
		}
		index[n] = i
	}
	for i, r := range rows {
		if len(r) != len(names) {
			return nil, fmt.Errorf("%w: row %d has %d cells, expected %d", failure.ErrDataUnavailable, i+1, len(r), len(names))
		}
	}

	f := &Frame{
		columns: make([]Column, len(names)),
		index:   index,
		rows:    rows,
	}
	for i, n := range names {
		f.columns[i] = Column{Name: n, Kind: inferKind(rows, i)}
	}
	return f, nil
}

// FrameFromRecord builds a one-row frame laid out by schema. Fields missing
// from record become blank cells.
func FrameFromRecord(schema Schema, record map[string]string) *Frame {
	cols := make([]Column, len(schema))
	copy(cols, schema)
	index := make(map[string]int, len(schema))
	row := make([]string, len(schema))
	for i, c := range schema {
		index[c.Name] = i
		row[i] = record[c.Name]
	}
	return &Frame{columns: cols, index: index, rows: [][]string{row}}
}

func inferKind(rows [][]string, col int) Kind {
	seen := false
	for _, r := range rows {
		v := r[col]
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return Categorical
		}
		seen = true
	}
	if !seen {
		return Categorical
	}
	return Numeric
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Schema returns a copy of the frame's columns.
func (f *Frame) Schema() Schema {
	s := make(Schema, len(f.columns))
	copy(s, f.columns)
	return s
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	return f.Schema().Names()
}

// Has reports whether the frame has a column with the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the column with the given name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.columns[i], true
}

// Value returns the cell at row for the named column.
func (f *Frame) Value(row int, name string) string {
	return f.rows[row][f.index[name]]
}

// Strings returns a copy of the named column's cells.
func (f *Frame) Strings(name string) ([]string, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: column %s not found", failure.ErrSchemaMismatch, name)
	}
	out := make([]string, len(f.rows))
	for r, row := range f.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Floats parses the named column. Missing cells are reported in the mask.
func (f *Frame) Floats(name string) (vals []float64, missing []bool, err error) {
	cells, err := f.Strings(name)
	if err != nil {
		return nil, nil, err
	}
	vals = make([]float64, len(cells))
	missing = make([]bool, len(cells))
	for r, c := range cells {
		if c == "" {
			missing[r] = true
			continue
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: column %s row %d: %q is not numeric", failure.ErrSchemaMismatch, name, r+1, c)
		}
		vals[r] = v
	}
	return vals, missing, nil
}

// SetKind overrides the kind of the named column. Declaring a column numeric
// fails when any non-blank cell does not parse.
func (f *Frame) SetKind(name string, k Kind) error {
	i, ok := f.index[name]
	if !ok {
		return fmt.Errorf("%w: declared column %s not found", failure.ErrSchemaMismatch, name)
	}
	if k == Numeric {
		if _, _, err := f.Floats(name); err != nil {
			return err
		}
	}
	f.columns[i].Kind = k
	return nil
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]int, 0, len(f.columns))
	for i, c := range f.columns {
		if !drop[c.Name] {
			keep = append(keep, i)
		}
	}
	return f.project(keep)
}

// Rows returns a frame holding the given rows in the given order.
func (f *Frame) Rows(idx []int) *Frame {
	rows := make([][]string, len(idx))
	for i, r := range idx {
		rows[i] = f.rows[r]
	}
	cols := make([]Column, len(f.columns))
	copy(cols, f.columns)
	return &Frame{columns: cols, index: f.index, rows: rows}
}

func (f *Frame) project(keep []int) *Frame {
	cols := make([]Column, len(keep))
	index := make(map[string]int, len(keep))
	for j, i := range keep {
		cols[j] = f.columns[i]
		index[cols[j].Name] = j
	}
	rows := make([][]string, len(f.rows))
	for r, row := range f.rows {
		out := make([]string, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		rows[r] = out
	}
	return &Frame{columns: cols, index: index, rows: rows}
}
