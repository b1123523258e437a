package features

import (
	"math"

	"fraudlens/internal/frame"
)

// vBlockStage aggregates the high-cardinality V columns per correlated
// block and across the whole block. Arithmetic skips NaNs; the NaN counts
// report them.
func (e *Engine) vBlockStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	for _, group := range e.cfg.VGroups {
		sum, mean, std, nanCount := rowStats(f, group.Columns, n)
		f.AddFloat(group.Name+"_sum", sum)
		f.AddFloat(group.Name+"_mean", mean)
		f.AddFloat(group.Name+"_std", std)
		f.AddFloat(group.Name+"_nan_count", nanCount)
	}

	sum, mean, std, nanCount := rowStats(f, e.cfg.AllVColumns, n)
	nanRatio := make([]float64, n)
	total := float64(len(e.cfg.AllVColumns))
	for i := 0; i < n; i++ {
		nanRatio[i] = nanCount[i] / total
	}
	f.AddFloat("V_sum_all", sum)
	f.AddFloat("V_mean_all", mean)
	f.AddFloat("V_std_all", std)
	f.AddFloat("V_nan_count_all", nanCount)
	f.AddFloat("V_nan_ratio", nanRatio)

	return nil
}

// rowStats computes per-row sum/mean/std/nan-count across the named
// columns. Absent columns count as missing in every row.
func rowStats(f *frame.Frame, cols []string, n int) (sum, mean, std, nanCount []float64) {
	sum = make([]float64, n)
	mean = make([]float64, n)
	std = make([]float64, n)
	nanCount = make([]float64, n)

	series := make([][]float64, 0, len(cols))
	absent := 0
	for _, col := range cols {
		if vals := f.Floats(col); vals != nil {
			series = append(series, vals)
		} else {
			absent++
		}
	}

	row := make([]float64, 0, len(series))
	for i := 0; i < n; i++ {
		row = row[:0]
		nan := float64(absent)
		for _, vals := range series {
			if math.IsNaN(vals[i]) {
				nan++
				continue
			}
			row = append(row, vals[i])
		}
		nanCount[i] = nan
		if len(row) == 0 {
			sum[i], mean[i], std[i] = 0, math.NaN(), math.NaN()
			continue
		}
		m, s := meanStd(row)
		var total float64
		for _, v := range row {
			total += v
		}
		sum[i] = total
		mean[i] = m
		std[i] = s
	}
	return sum, mean, std, nanCount
}
