package features

import (
	"math"
	"math/rand"
	"strings"

	"fraudlens/internal/frame"
)

// emailStage normalizes email domains, parses vendor/suffix structure,
// derives presence and match flags, and computes the out-of-fold
// target-mean encoding of the sender domain when the label is available.
func (e *Engine) emailStage(f *frame.Frame, opts Options) error {
	n := f.NumRows()

	filled := make(map[string][]string, 2)
	for _, col := range []string{"P_emaildomain", "R_emaildomain"} {
		vals := e.tokens(f, col, e.cfg.MissingToken)
		for i, v := range vals {
			vals[i] = strings.ToLower(v)
		}
		f.AddString(col, vals)
		filled[col] = vals

		domains := make([]string, n)
		suffixes := make([]string, n)
		vendors := make([]string, n)
		for i, v := range vals {
			d, s := e.parseDomain(v)
			domains[i] = d
			suffixes[i] = s
			if vendor, ok := e.cfg.VendorMap[d]; ok {
				vendors[i] = vendor
			} else {
				vendors[i] = "other"
			}
		}
		f.AddString(col+"_domain", domains)
		f.AddString(col+"_suffix", suffixes)
		f.AddString(col+"_vendor", vendors)
	}

	p, r := filled["P_emaildomain"], filled["R_emaildomain"]

	match := make([]float64, n)
	presence := make([]string, n)
	for i := 0; i < n; i++ {
		match[i] = boolFlag(p[i] == r[i])
		pHas := p[i] != e.cfg.MissingToken
		rHas := r[i] != e.cfg.MissingToken
		switch {
		case pHas && rHas:
			presence[i] = "both"
		case pHas:
			presence[i] = "only_P"
		case rHas:
			presence[i] = "only_R"
		default:
			presence[i] = "both_missing"
		}
	}
	f.AddFloat("email_domain_match", match)
	f.AddString("email_presence", presence)

	pCounts := freqCounts(p)
	rCounts := freqCounts(r)
	pCount := make([]float64, n)
	rCount := make([]float64, n)
	for i := 0; i < n; i++ {
		pCount[i] = pCounts[p[i]]
		rCount[i] = rCounts[r[i]]
	}
	f.AddFloat("P_domain_count", pCount)
	f.AddFloat("R_domain_count", rCount)

	// Sender-domain fraud rate. With a target: K-fold out-of-fold means so
	// no row's value is computed from its own fold. Without a target: a
	// fixed neutral value carried in from the trained artifact.
	rate := make([]float64, n)
	target := f.Floats(e.cfg.TargetColumn)
	if target == nil {
		for i := range rate {
			rate[i] = opts.DomainRateFallback
		}
	} else {
		e.outOfFoldMeans(p, target, rate)
	}
	f.AddFloat("P_domain_fraud_rate", rate)

	return nil
}

// parseDomain splits a domain into (registrable name, suffix) with a
// fallback for common multi-part suffixes. The missing token maps to
// itself for both parts.
func (e *Engine) parseDomain(domain string) (name, suffix string) {
	if domain == e.cfg.MissingToken || domain == "" {
		return e.cfg.MissingToken, e.cfg.MissingToken
	}
	parts := strings.Split(domain, ".")
	if len(parts) == 1 {
		return parts[0], e.cfg.MissingToken
	}
	if len(parts) >= 3 {
		tail := parts[len(parts)-2] + "." + parts[len(parts)-1]
		if e.cfg.DoubleSuffixes[tail] {
			return parts[len(parts)-3], tail
		}
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// outOfFoldMeans fills rates with the per-key target mean computed from the
// K-1 folds that exclude each row. Keys unseen outside a row's fold, and
// rows with a missing label, fall back to the global mean.
func (e *Engine) outOfFoldMeans(keys []string, target []float64, rates []float64) {
	n := len(keys)

	var globalSum float64
	var globalN int
	for _, t := range target {
		if math.IsNaN(t) {
			continue
		}
		globalSum += t
		globalN++
	}
	globalMean := 0.0
	if globalN > 0 {
		globalMean = globalSum / float64(globalN)
	}

	k := e.cfg.KFolds
	if k < 2 || n < k {
		for i := range rates {
			rates[i] = globalMean
		}
		return
	}

	// Shuffled contiguous folds: the first n%k folds carry one extra row.
	perm := rand.New(rand.NewSource(e.cfg.KFoldSeed)).Perm(n)
	foldOf := make([]int, n)
	pos := 0
	for fold := 0; fold < k; fold++ {
		size := n / k
		if fold < n%k {
			size++
		}
		for j := 0; j < size; j++ {
			foldOf[perm[pos]] = fold
			pos++
		}
	}

	sums := make([]map[string]float64, k)
	counts := make([]map[string]float64, k)
	for fold := 0; fold < k; fold++ {
		sums[fold] = make(map[string]float64)
		counts[fold] = make(map[string]float64)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(target[i]) {
			continue
		}
		sums[foldOf[i]][keys[i]] += target[i]
		counts[foldOf[i]][keys[i]]++
	}

	for i := 0; i < n; i++ {
		var sum, cnt float64
		for fold := 0; fold < k; fold++ {
			if fold == foldOf[i] {
				continue
			}
			sum += sums[fold][keys[i]]
			cnt += counts[fold][keys[i]]
		}
		if cnt == 0 {
			rates[i] = globalMean
			continue
		}
		rates[i] = sum / cnt
	}
}
