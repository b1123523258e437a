package features

import (
	"math"

	"fraudlens/internal/frame"
)

// addressStage derives address concatenations, missingness flags and
// numeric-safe distance transforms.
func (e *Engine) addressStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	addr1Raw := f.Col("addr1")
	addr2Raw := f.Col("addr2")
	addr1 := e.tokens(f, "addr1", "0")
	addr2 := e.tokens(f, "addr2", "0")

	pair := make([]string, n)
	for i := 0; i < n; i++ {
		pair[i] = addr1[i] + "_" + addr2[i]
	}
	f.AddString("addr1_addr2", pair)

	pcd := e.tokens(f, "ProductCD", e.cfg.MissingToken)
	addrProduct := make([]string, n)
	for i := 0; i < n; i++ {
		addrProduct[i] = addr1[i] + "_" + pcd[i]
	}
	f.AddString("addr1_ProductCD", addrProduct)

	addr1Missing := missingFlags(addr1Raw, n)
	addr2Missing := missingFlags(addr2Raw, n)
	bothMissing := make([]float64, n)
	for i := 0; i < n; i++ {
		bothMissing[i] = boolFlag(addr1Missing[i] == 1 && addr2Missing[i] == 1)
	}
	f.AddFloat("addr1_missing", addr1Missing)
	f.AddFloat("addr2_missing", addr2Missing)
	f.AddFloat("both_addr_missing", bothMissing)

	for _, col := range []string{"dist1", "dist2"} {
		vals := numericValuesOf(f.Col(col), n)
		missing := make([]float64, n)
		logVals := make([]float64, n)
		for i, v := range vals {
			if math.IsNaN(v) {
				missing[i] = 1
				logVals[i] = 0
				continue
			}
			logVals[i] = math.Log1p(v)
		}
		f.AddFloat(col+"_missing", missing)
		f.AddFloat(col+"_log", logVals)
	}

	return nil
}

// missingFlags returns 1 where the column is missing. An absent column is
// missing everywhere.
func missingFlags(c *frame.Column, n int) []float64 {
	flags := make([]float64, n)
	if c == nil {
		for i := range flags {
			flags[i] = 1
		}
		return flags
	}
	for i := 0; i < n; i++ {
		flags[i] = boolFlag(c.IsMissing(i))
	}
	return flags
}
