// Package preprocess implements the fitted preprocessor: a column-routed
// transform (sentinel imputation, ordinal encoding, PCA on the V block)
// fit exactly once on training data and applied unchanged at inference.
package preprocess

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"fraudlens/internal/config"
	"fraudlens/internal/frame"
)

// ErrNotFitted is returned when Transform runs before a Fit.
var ErrNotFitted = errors.New("preprocessor is not fitted")

// Reserved ordinal codes, distinct from all real category ids.
const (
	unknownCategoryCode = -1
	missingCategoryCode = -999
)

var vColumnPattern = regexp.MustCompile(`^V[0-9]+$`)

// colEncoder holds one categorical column's fitted category list; the
// ordinal code of a value is its index. Slices rather than maps keep gob
// encoding deterministic so artifact checksums are stable.
type colEncoder struct {
	Col    string
	Values []string
}

// Preprocessor routes columns by role and applies the frozen transforms.
// All exported fields are fitted state persisted with the artifact.
type Preprocessor struct {
	Fitted bool

	FillValue      float64
	VarianceTarget float64

	TargetColumn string
	IDColumn     string

	NumericCols     []string
	CategoricalCols []string
	VCols           []string

	Encoders []colEncoder

	// V-block pipeline: mean imputation, standardization, PCA projection.
	VMeans            []float64
	VStds             []float64
	Components        [][]float64 // p×k, column j is principal axis j
	NumComponents     int
	ExplainedVariance []float64

	lookups map[string]map[string]int
}

// New creates an unfitted preprocessor.
func New(cfg config.PreprocessConfig, targetColumn, idColumn string) *Preprocessor {
	return &Preprocessor{
		FillValue:      cfg.FillValue,
		VarianceTarget: cfg.PCAVariance,
		TargetColumn:   targetColumn,
		IDColumn:       idColumn,
	}
}

// Fit captures column routing from the training frame and fits the
// imputer, ordinal encoders and V-block projection. Fails when the target
// column is absent.
func (p *Preprocessor) Fit(f *frame.Frame) error {
	if !f.Has(p.TargetColumn) {
		return fmt.Errorf("fit requires target column %q", p.TargetColumn)
	}
	if f.NumRows() < 2 {
		return fmt.Errorf("fit requires at least 2 rows, got %d", f.NumRows())
	}

	p.NumericCols = nil
	p.CategoricalCols = nil
	p.VCols = nil
	for _, name := range f.Columns() {
		if name == p.TargetColumn || name == p.IDColumn {
			continue
		}
		c := f.Col(name)
		switch {
		case c.Kind == frame.String:
			p.CategoricalCols = append(p.CategoricalCols, name)
		case vColumnPattern.MatchString(name):
			p.VCols = append(p.VCols, name)
		default:
			p.NumericCols = append(p.NumericCols, name)
		}
	}

	p.Encoders = make([]colEncoder, 0, len(p.CategoricalCols))
	for _, col := range p.CategoricalCols {
		seen := make(map[string]bool)
		var values []string
		for _, v := range f.Strings(col) {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			values = append(values, v)
		}
		sort.Strings(values)
		p.Encoders = append(p.Encoders, colEncoder{Col: col, Values: values})
	}
	p.buildLookups()

	if err := p.fitVBlock(f); err != nil {
		return fmt.Errorf("fit v-block: %w", err)
	}

	p.Fitted = true
	return nil
}

// Transform converts a feature-engineered frame into the numeric matrix the
// classifier consumes, using only fitted state. Input columns are coerced
// best-effort to the routing's expected types; fitted state is never
// mutated.
func (p *Preprocessor) Transform(f *frame.Frame) (*mat.Dense, error) {
	if !p.Fitted {
		return nil, ErrNotFitted
	}

	n := f.NumRows()
	width := len(p.NumericCols) + len(p.CategoricalCols) + p.NumComponents
	out := mat.NewDense(n, width, nil)

	for j, col := range p.NumericCols {
		vals := coerceNumeric(f.Col(col), n)
		for i := 0; i < n; i++ {
			v := vals[i]
			if math.IsNaN(v) {
				v = p.FillValue
			}
			out.Set(i, j, v)
		}
	}

	base := len(p.NumericCols)
	for j, col := range p.CategoricalCols {
		vals := coerceText(f.Col(col), n)
		codes := p.lookups[col]
		for i := 0; i < n; i++ {
			var code float64
			switch {
			case vals[i] == "":
				code = missingCategoryCode
			default:
				if c, ok := codes[vals[i]]; ok {
					code = float64(c)
				} else {
					code = unknownCategoryCode
				}
			}
			out.Set(i, base+j, code)
		}
	}

	if p.NumComponents > 0 {
		projected := p.transformVBlock(f, n)
		base = len(p.NumericCols) + len(p.CategoricalCols)
		for i := 0; i < n; i++ {
			for j := 0; j < p.NumComponents; j++ {
				out.Set(i, base+j, projected.At(i, j))
			}
		}
	}

	return out, nil
}

// OutputColumns returns the fixed output column order: numeric columns,
// categorical codes, then principal components.
func (p *Preprocessor) OutputColumns() []string {
	cols := make([]string, 0, len(p.NumericCols)+len(p.CategoricalCols)+p.NumComponents)
	cols = append(cols, p.NumericCols...)
	cols = append(cols, p.CategoricalCols...)
	for j := 0; j < p.NumComponents; j++ {
		cols = append(cols, fmt.Sprintf("pc%d", j+1))
	}
	return cols
}

// OutputDtypes reports the output schema snapshot; everything is float64.
func (p *Preprocessor) OutputDtypes() map[string]string {
	cols := p.OutputColumns()
	out := make(map[string]string, len(cols))
	for _, c := range cols {
		out[c] = "float64"
	}
	return out
}

// Checksum returns a hex digest of the fitted state. Transform must never
// change it.
func (p *Preprocessor) Checksum() (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return "", fmt.Errorf("encode preprocessor: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Save persists the fitted state to a gob file.
func (p *Preprocessor) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(p); err != nil {
		return fmt.Errorf("encode preprocessor: %w", err)
	}
	return nil
}

// Load reads a fitted preprocessor from a gob file.
func Load(path string) (*Preprocessor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	var p Preprocessor
	if err := gob.NewDecoder(file).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode preprocessor: %w", err)
	}
	p.buildLookups()
	return &p, nil
}

// buildLookups rebuilds the unexported encoder lookup maps from the
// persisted Encoders slices. Fit and Load call it so Transform only ever
// reads fitted state; concurrent Transforms share one preprocessor.
func (p *Preprocessor) buildLookups() {
	p.lookups = make(map[string]map[string]int, len(p.Encoders))
	for _, enc := range p.Encoders {
		codes := make(map[string]int, len(enc.Values))
		for i, v := range enc.Values {
			codes[v] = i
		}
		p.lookups[enc.Col] = codes
	}
}

// coerceNumeric forces a column to floats; unparseable text and absent
// columns yield NaN.
func coerceNumeric(c *frame.Column, n int) []float64 {
	vals := make([]float64, n)
	if c == nil {
		for i := range vals {
			vals[i] = math.NaN()
		}
		return vals
	}
	if c.Kind == frame.Float {
		copy(vals, c.Floats)
		return vals
	}
	for i, s := range c.Strings {
		if s == "" {
			vals[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = v
	}
	return vals
}

// coerceText forces a column to strings; absent columns are all-missing.
func coerceText(c *frame.Column, n int) []string {
	vals := make([]string, n)
	if c == nil {
		return vals
	}
	if c.Kind == frame.String {
		copy(vals, c.Strings)
		return vals
	}
	for i, v := range c.Floats {
		vals[i] = frame.FormatValue(v)
	}
	return vals
}
