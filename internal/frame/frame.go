// Package frame provides the column-oriented batch table that flows through
// feature engineering, preprocessing and scoring. Float columns use NaN for
// missing values, string columns use the empty string.
package frame

import (
	"fmt"
	"math"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	// Float is a numeric column backed by []float64. Missing = NaN.
	Float Kind = iota
	// String is a text column backed by []string. Missing = "".
	String
)

// Column holds one named column of a Frame.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.Kind == Float {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// IsMissing reports whether row i holds a missing value.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Float {
		return math.IsNaN(c.Floats[i])
	}
	return c.Strings[i] == ""
}

// Frame is an ordered collection of equal-length columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates an empty frame with a fixed row count.
func New(rows int) *Frame {
	return &Frame{
		index: make(map[string]int),
		rows:  rows,
	}
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return f.rows }

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Col returns the named column, or nil if absent.
func (f *Frame) Col(name string) *Column {
	i, ok := f.index[name]
	if !ok {
		return nil
	}
	return f.cols[i]
}

// Floats returns the values of a float column, or nil if the column is
// absent or not float-kind.
func (f *Frame) Floats(name string) []float64 {
	c := f.Col(name)
	if c == nil || c.Kind != Float {
		return nil
	}
	return c.Floats
}

// Strings returns the values of a string column, or nil if the column is
// absent or not string-kind.
func (f *Frame) Strings(name string) []string {
	c := f.Col(name)
	if c == nil || c.Kind != String {
		return nil
	}
	return c.Strings
}

// AddFloat adds or replaces a float column. A replaced column keeps its
// position in the column order.
func (f *Frame) AddFloat(name string, vals []float64) error {
	if len(vals) != f.rows {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(vals), f.rows)
	}
	col := &Column{Name: name, Kind: Float, Floats: vals}
	if i, ok := f.index[name]; ok {
		f.cols[i] = col
		return nil
	}
	f.index[name] = len(f.cols)
	f.cols = append(f.cols, col)
	return nil
}

// AddString adds or replaces a string column. A replaced column keeps its
// position in the column order.
func (f *Frame) AddString(name string, vals []string) error {
	if len(vals) != f.rows {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(vals), f.rows)
	}
	col := &Column{Name: name, Kind: String, Strings: vals}
	if i, ok := f.index[name]; ok {
		f.cols[i] = col
		return nil
	}
	f.index[name] = len(f.cols)
	f.cols = append(f.cols, col)
	return nil
}

// Drop removes a column if present.
func (f *Frame) Drop(name string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	f.cols = append(f.cols[:i], f.cols[i+1:]...)
	delete(f.index, name)
	for j := i; j < len(f.cols); j++ {
		f.index[f.cols[j].Name] = j
	}
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := New(f.rows)
	for _, c := range f.cols {
		if c.Kind == Float {
			vals := make([]float64, len(c.Floats))
			copy(vals, c.Floats)
			out.AddFloat(c.Name, vals)
		} else {
			vals := make([]string, len(c.Strings))
			copy(vals, c.Strings)
			out.AddString(c.Name, vals)
		}
	}
	return out
}

// SelectRows returns a new frame holding the given rows, in the given order.
func (f *Frame) SelectRows(idx []int) *Frame {
	out := New(len(idx))
	for _, c := range f.cols {
		if c.Kind == Float {
			vals := make([]float64, len(idx))
			for j, i := range idx {
				vals[j] = c.Floats[i]
			}
			out.AddFloat(c.Name, vals)
		} else {
			vals := make([]string, len(idx))
			for j, i := range idx {
				vals[j] = c.Strings[i]
			}
			out.AddString(c.Name, vals)
		}
	}
	return out
}

// Dtype returns the column's dtype string: "object" for string columns,
// "int64" for float columns holding only whole numbers with no missing
// values, otherwise "float64". Returns "" for an absent column.
func (f *Frame) Dtype(name string) string {
	c := f.Col(name)
	if c == nil {
		return ""
	}
	if c.Kind == String {
		return "object"
	}
	for _, v := range c.Floats {
		if math.IsNaN(v) || v != math.Trunc(v) {
			return "float64"
		}
	}
	return "int64"
}

// Dtypes returns dtype strings for all columns.
func (f *Frame) Dtypes() map[string]string {
	out := make(map[string]string, len(f.cols))
	for _, c := range f.cols {
		out[c.Name] = f.Dtype(c.Name)
	}
	return out
}
