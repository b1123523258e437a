// Package features implements the fixed, ordered feature engineering
// pipeline that derives model inputs from raw transaction+identity batches.
// The same engine runs at training time (target available) and at inference
// time (target absent); the output column set and order are identical in
// both cases.
package features

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"fraudlens/internal/config"
	"fraudlens/internal/frame"
)

// ErrStageFailed is returned when a stage fails unexpectedly. The whole run
// aborts; downstream stages assume upstream columns exist.
var ErrStageFailed = errors.New("feature engineering stage failed")

// Engine runs the ordered transform stages over a batch.
type Engine struct {
	cfg    config.TransformConfig
	logger *log.Logger
}

// NewEngine creates an engine from a transform config.
func NewEngine(cfg config.TransformConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stdout, "[features] ", log.LstdFlags)
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Options control one Apply call.
type Options struct {
	// DomainRateFallback is the neutral value used for the email-domain
	// fraud-rate feature when no target column is present. It must be the
	// persisted training-time global mean so train and serve feature
	// distributions stay consistent.
	DomainRateFallback float64
}

type stage struct {
	name string
	fn   func(f *frame.Frame, opts Options) error
}

func (e *Engine) stages() []stage {
	return []stage{
		{"amount", e.amountStage},
		{"time", e.timeStage},
		{"card", e.cardStage},
		{"email", e.emailStage},
		{"device", e.deviceStage},
		{"address", e.addressStage},
		{"vblock", e.vBlockStage},
		{"aggregation", e.aggregationStage},
		{"identity", e.identityStage},
		{"uid", e.uidStage},
		{"uidagg", e.uidAggStage},
		{"enhancedfreq", e.enhancedFreqStage},
	}
}

// Apply runs all stages in order against the batch and returns the
// feature-engineered frame. The input frame is not mutated. A stage error
// aborts the whole run wrapped in ErrStageFailed.
func (e *Engine) Apply(ctx context.Context, f *frame.Frame, opts Options) (*frame.Frame, error) {
	out := e.normalize(f)
	for _, st := range e.stages() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := st.fn(out, opts); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStageFailed, st.name, err)
		}
	}
	e.logger.Printf("Applied %d stages: %d rows, %d columns", len(e.stages()), out.NumRows(), out.NumCols())
	return out, nil
}

// normalize rebuilds the batch into the canonical raw layout: every expected
// raw column present (created as all-missing when absent) with the expected
// kind, in a fixed order, followed by the target when present and any extra
// input columns. This is what makes the output column order identical across
// differently-shaped input batches.
func (e *Engine) normalize(f *frame.Frame) *frame.Frame {
	n := f.NumRows()
	out := frame.New(n)

	layout := e.cfg.RawLayout()
	known := make(map[string]bool, len(layout)+1)

	for _, rc := range layout {
		known[rc.Name] = true
		col := f.Col(rc.Name)
		if rc.Text {
			out.AddString(rc.Name, textValuesOf(col, n))
		} else {
			out.AddFloat(rc.Name, numericValuesOf(col, n))
		}
	}

	// The target stays numeric when supplied; it is never created.
	if col := f.Col(e.cfg.TargetColumn); col != nil {
		known[e.cfg.TargetColumn] = true
		out.AddFloat(e.cfg.TargetColumn, numericValuesOf(col, n))
	}

	// Extra columns carry through untouched.
	for _, name := range f.Columns() {
		if known[name] {
			continue
		}
		c := f.Col(name)
		if c.Kind == frame.Float {
			vals := make([]float64, n)
			copy(vals, c.Floats)
			out.AddFloat(name, vals)
		} else {
			vals := make([]string, n)
			copy(vals, c.Strings)
			out.AddString(name, vals)
		}
	}

	return out
}

// numericValuesOf coerces any column to floats. Absent column or
// unparseable text becomes NaN.
func numericValuesOf(c *frame.Column, n int) []float64 {
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

// textValuesOf coerces any column to strings. Absent column becomes all
// missing; floats render without trailing decimals.
func textValuesOf(c *frame.Column, n int) []string {
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

// tokens renders a column as strings with the given token for missing
// values. Absent column renders as all-token.
func (e *Engine) tokens(f *frame.Frame, name, token string) []string {
	n := f.NumRows()
	vals := make([]string, n)
	c := f.Col(name)
	if c == nil {
		for i := range vals {
			vals[i] = token
		}
		return vals
	}
	if c.Kind == frame.String {
		for i, s := range c.Strings {
			if s == "" {
				vals[i] = token
			} else {
				vals[i] = s
			}
		}
		return vals
	}
	for i, v := range c.Floats {
		if math.IsNaN(v) {
			vals[i] = token
		} else {
			vals[i] = frame.FormatValue(v)
		}
	}
	return vals
}

// amounts returns the amount column, or zeros when it is absent.
func (e *Engine) amounts(f *frame.Frame) []float64 {
	if v := f.Floats(e.cfg.AmountColumn); v != nil {
		return v
	}
	return make([]float64, f.NumRows())
}

// times returns the time-offset column, or zeros when it is absent.
func (e *Engine) times(f *frame.Frame) []float64 {
	if v := f.Floats(e.cfg.TimeColumn); v != nil {
		return v
	}
	return make([]float64, f.NumRows())
}

// groupOrder returns per-group row indices sorted ascending by the time
// offset, with the original row order as tie-breaker.
func groupOrder(keys []string, times []float64) map[string][]int {
	groups := make(map[string][]int)
	for i, k := range keys {
		groups[k] = append(groups[k], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return times[idx[a]] < times[idx[b]]
		})
	}
	return groups
}

// freqCounts returns value counts over the given keys. Missing-token rows
// are counted like any other value; callers that want NaN for missing rows
// handle that themselves.
func freqCounts(keys []string) map[string]float64 {
	counts := make(map[string]float64)
	for _, k := range keys {
		counts[k]++
	}
	return counts
}

// digitize returns the bucket index for v given monotonically increasing
// left edges; values at or beyond the last edge land in the final open
// bucket. NaN stays NaN.
func digitize(v float64, edges []float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	for i := 1; i < len(edges); i++ {
		if v < edges[i] {
			return float64(i - 1)
		}
	}
	return float64(len(edges) - 1)
}

// meanStd returns the mean and sample standard deviation of the valid
// (non-NaN) values. Fewer than one valid value yields NaN mean; fewer than
// two yields NaN std.
func meanStd(vals []float64) (mean, std float64) {
	var sum float64
	var n int
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}

// firstToken splits on the first occurrence of any separator and returns
// the leading token.
func firstToken(s string, seps ...string) string {
	for _, sep := range seps {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

func boolFlag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
