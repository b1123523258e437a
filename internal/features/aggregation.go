package features

import (
	"math"

	"fraudlens/internal/frame"
)

// aggregationStage derives global frequency encodings and per-group amount
// statistics. Rows with a missing group key keep NaN rather than joining a
// synthetic group.
func (e *Engine) aggregationStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	for _, col := range e.cfg.FreqColumns {
		keys, present := keysWithMissing(f.Col(col), n)
		counts := freqCounts(keys)
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			if !present[i] {
				out[i] = math.NaN()
				continue
			}
			out[i] = counts[keys[i]]
		}
		f.AddFloat(col+"_count", out)
	}

	amt := e.amounts(f)
	for _, group := range e.cfg.AmountAggGroups {
		keys, present := keysWithMissing(f.Col(group), n)

		sums := make(map[string]float64)
		counts := make(map[string]float64)
		for i := 0; i < n; i++ {
			if !present[i] || math.IsNaN(amt[i]) {
				continue
			}
			sums[keys[i]] += amt[i]
			counts[keys[i]]++
		}
		means := make(map[string]float64, len(sums))
		for k, s := range sums {
			means[k] = s / counts[k]
		}
		ss := make(map[string]float64)
		for i := 0; i < n; i++ {
			if !present[i] || math.IsNaN(amt[i]) {
				continue
			}
			d := amt[i] - means[keys[i]]
			ss[keys[i]] += d * d
		}

		meanOut := make([]float64, n)
		stdOut := make([]float64, n)
		devOut := make([]float64, n)
		for i := 0; i < n; i++ {
			if !present[i] {
				meanOut[i], stdOut[i], devOut[i] = math.NaN(), math.NaN(), math.NaN()
				continue
			}
			m, ok := means[keys[i]]
			if !ok {
				meanOut[i], stdOut[i], devOut[i] = math.NaN(), math.NaN(), math.NaN()
				continue
			}
			meanOut[i] = m
			if counts[keys[i]] > 1 {
				stdOut[i] = math.Sqrt(ss[keys[i]] / (counts[keys[i]] - 1))
			} else {
				stdOut[i] = math.NaN()
			}
			devOut[i] = amt[i] - m
		}
		f.AddFloat("TransactionAmt_mean_"+group, meanOut)
		f.AddFloat("TransactionAmt_std_"+group, stdOut)
		f.AddFloat("TransactionAmt_dev_"+group, devOut)
	}

	return nil
}

// keysWithMissing renders a column's values as string keys along with a
// per-row presence flag. An absent column is missing everywhere.
func keysWithMissing(c *frame.Column, n int) (keys []string, present []bool) {
	keys = make([]string, n)
	present = make([]bool, n)
	if c == nil {
		return keys, present
	}
	for i := 0; i < n; i++ {
		if c.IsMissing(i) {
			continue
		}
		present[i] = true
		if c.Kind == frame.Float {
			keys[i] = frame.FormatValue(c.Floats[i])
		} else {
			keys[i] = c.Strings[i]
		}
	}
	return keys, present
}
