package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"fraudlens/internal/frame"
)

// fitVBlock fits mean imputation, standardization and the PCA projection
// on the V columns. The component count is the smallest k whose cumulative
// explained-variance ratio reaches VarianceTarget.
func (p *Preprocessor) fitVBlock(f *frame.Frame) error {
	if len(p.VCols) == 0 {
		p.VMeans = nil
		p.VStds = nil
		p.Components = nil
		p.NumComponents = 0
		p.ExplainedVariance = nil
		return nil
	}

	n := f.NumRows()
	cols := len(p.VCols)

	p.VMeans = make([]float64, cols)
	p.VStds = make([]float64, cols)
	raw := make([][]float64, cols)
	for j, col := range p.VCols {
		vals := coerceNumeric(f.Col(col), n)
		raw[j] = vals
		var sum float64
		var cnt int
		for _, v := range vals {
			if !math.IsNaN(v) {
				sum += v
				cnt++
			}
		}
		if cnt > 0 {
			p.VMeans[j] = sum / float64(cnt)
		}
	}

	// Impute, then standardize with population std; constant columns keep
	// std 1 so they divide out to zero.
	data := mat.NewDense(n, cols, nil)
	for j := range p.VCols {
		mean := p.VMeans[j]
		var ss float64
		for i := 0; i < n; i++ {
			v := raw[j][i]
			if math.IsNaN(v) {
				v = mean
			}
			d := v - mean
			ss += d * d
			data.Set(i, j, d)
		}
		std := math.Sqrt(ss / float64(n))
		if std == 0 {
			std = 1
		}
		p.VStds[j] = std
		for i := 0; i < n; i++ {
			data.Set(i, j, data.At(i, j)/std)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(data, mat.SVDThin); !ok {
		return fmt.Errorf("svd did not converge on %dx%d v-block", n, cols)
	}
	singular := svd.Values(nil)
	var right mat.Dense
	svd.VTo(&right)

	var total float64
	for _, s := range singular {
		total += s * s
	}
	if total == 0 {
		total = 1
	}

	k := len(singular)
	var cum float64
	for i, s := range singular {
		cum += s * s / total
		if cum >= p.VarianceTarget {
			k = i + 1
			break
		}
	}
	if k < 1 {
		k = 1
	}

	p.NumComponents = k
	p.ExplainedVariance = make([]float64, k)
	denom := float64(n - 1)
	for i := 0; i < k; i++ {
		p.ExplainedVariance[i] = singular[i] * singular[i] / denom
	}
	p.Components = make([][]float64, cols)
	for j := 0; j < cols; j++ {
		row := make([]float64, k)
		for i := 0; i < k; i++ {
			row[i] = right.At(j, i)
		}
		p.Components[j] = row
	}
	return nil
}

// transformVBlock applies the fitted imputation, scaling and projection.
// Absent V columns impute to the training mean, which scales to zero.
func (p *Preprocessor) transformVBlock(f *frame.Frame, n int) *mat.Dense {
	cols := len(p.VCols)
	scaled := mat.NewDense(n, cols, nil)
	for j, col := range p.VCols {
		vals := coerceNumeric(f.Col(col), n)
		mean := p.VMeans[j]
		std := p.VStds[j]
		for i := 0; i < n; i++ {
			v := vals[i]
			if math.IsNaN(v) {
				v = mean
			}
			scaled.Set(i, j, (v-mean)/std)
		}
	}

	proj := mat.NewDense(cols, p.NumComponents, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < p.NumComponents; i++ {
			proj.Set(j, i, p.Components[j][i])
		}
	}

	out := mat.NewDense(n, p.NumComponents, nil)
	out.Mul(scaled, proj)
	return out
}
