package features

import (
	"math"
	"strconv"
	"strings"

	"fraudlens/internal/frame"
)

// identityStage coerces the numeric identity fields, adds per-row stats
// across them, and derives the categorical identity flags.
func (e *Engine) identityStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	series := make([][]float64, len(e.cfg.NumericIdentityColumns))
	for j, col := range e.cfg.NumericIdentityColumns {
		vals := numericValuesOf(f.Col(col), n)
		f.AddFloat(col, vals)
		series[j] = vals
	}

	nanCount := make([]float64, n)
	rowMean := make([]float64, n)
	rowStd := make([]float64, n)
	row := make([]float64, 0, len(series))
	for i := 0; i < n; i++ {
		row = row[:0]
		var nan float64
		for _, vals := range series {
			if math.IsNaN(vals[i]) {
				nan++
				continue
			}
			row = append(row, vals[i])
		}
		nanCount[i] = nan
		rowMean[i], rowStd[i] = meanStd(row)
	}
	f.AddFloat("id_num_nan_count", nanCount)
	f.AddFloat("id_num_mean", rowMean)
	f.AddFloat("id_num_std", rowStd)

	flag := func(col, value, suffix string) {
		vals := e.tokens(f, col, "")
		out := make([]float64, n)
		for i, v := range vals {
			out[i] = boolFlag(v == value)
		}
		f.AddFloat(col+suffix, out)
	}

	flag("id_12", "Found", "_isFound")
	flag("id_15", "New", "_isNew")
	flag("id_15", "Found", "_isFound")
	flag("id_16", "Found", "_isFound")
	flag("id_28", "New", "_isNew")
	flag("id_28", "Found", "_isFound")
	flag("id_29", "Found", "_isFound")

	// id_34 looks like "match_status:2"; keep the numeric suffix.
	id34 := e.tokens(f, "id_34", "")
	matchStatus := make([]float64, n)
	for i, v := range id34 {
		matchStatus[i] = -1
		if idx := strings.Index(v, ":"); idx >= 0 {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v[idx+1:])); err == nil {
				matchStatus[i] = float64(parsed)
			}
		}
	}
	f.AddFloat("id_34_match", matchStatus)

	flag("id_36", "T", "_isT")
	flag("id_37", "T", "_isT")
	flag("id_38", "T", "_isT")

	return nil
}
