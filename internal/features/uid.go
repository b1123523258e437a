package features

import (
	"math"

	"fraudlens/internal/frame"
)

// uidStage builds the four synthetic cardholder fingerprints. These are
// deterministic string concatenations with a stable missing token, never
// positional NaN formatting.
func (e *Engine) uidStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()
	tok := e.cfg.MissingToken

	card1 := e.tokens(f, "card1", tok)
	addr1 := e.tokens(f, "addr1", tok)
	d1 := e.tokens(f, "D1", tok)
	pEmail := e.tokens(f, "P_emaildomain", tok)

	cardParts := make([][]string, len(e.cfg.CardColumns))
	for j, col := range e.cfg.CardColumns {
		cardParts[j] = e.tokens(f, col, tok)
	}

	uid1 := make([]string, n)
	uid2 := make([]string, n)
	uid3 := make([]string, n)
	uid4 := make([]string, n)
	for i := 0; i < n; i++ {
		uid1[i] = card1[i] + "_" + addr1[i]
		uid2[i] = uid1[i] + "_" + d1[i]
		s := cardParts[0][i]
		for j := 1; j < len(cardParts); j++ {
			s += "_" + cardParts[j][i]
		}
		uid3[i] = s
		uid4[i] = card1[i] + "_" + pEmail[i]
	}
	f.AddString("uid1", uid1)
	f.AddString("uid2", uid2)
	f.AddString("uid3", uid3)
	f.AddString("uid4", uid4)

	return nil
}

// uidAggStage derives per-fingerprint transaction statistics: counts,
// amount mean/std, epsilon-guarded ratios of each row's amount to its
// fingerprint's statistics, and the fingerprint's mean of the D1 delta.
func (e *Engine) uidAggStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()
	amt := e.amounts(f)
	times := e.times(f)
	d1 := numericValuesOf(f.Col("D1"), n)

	for _, uidCol := range []string{"uid1", "uid2", "uid3", "uid4"} {
		uids := e.tokens(f, uidCol, e.cfg.MissingToken)

		count := make([]float64, n)
		amtMean := make([]float64, n)
		amtStd := make([]float64, n)
		toMean := make([]float64, n)
		toStd := make([]float64, n)
		d1Mean := make([]float64, n)

		for _, idx := range groupOrder(uids, times) {
			groupAmt := make([]float64, len(idx))
			groupD1 := make([]float64, len(idx))
			for pos, i := range idx {
				groupAmt[pos] = amt[i]
				groupD1[pos] = d1[i]
			}
			m, s := meanStd(groupAmt)
			dm, _ := meanStd(groupD1)

			for _, i := range idx {
				count[i] = float64(len(idx))
				amtMean[i] = m
				amtStd[i] = s
				toMean[i] = amt[i] / (m + 0.001)
				if math.IsNaN(s) {
					toStd[i] = math.NaN()
				} else {
					toStd[i] = (amt[i] - m) / (s + 0.001)
				}
				d1Mean[i] = dm
			}
		}

		f.AddFloat(uidCol+"_count", count)
		f.AddFloat(uidCol+"_amt_mean", amtMean)
		f.AddFloat(uidCol+"_amt_std", amtStd)
		f.AddFloat(uidCol+"_amt_to_mean", toMean)
		f.AddFloat(uidCol+"_amt_to_std", toStd)
		f.AddFloat(uidCol+"_D1_mean", d1Mean)
	}

	return nil
}

// enhancedFreqStage derives value-count frequency and batch-normalized
// frequency for the extended column list including the UID fingerprints.
func (e *Engine) enhancedFreqStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	for _, col := range e.cfg.EnhancedFreqColumns {
		keys, present := keysWithMissing(f.Col(col), n)
		counts := freqCounts(keys)
		freq := make([]float64, n)
		norm := make([]float64, n)
		for i := 0; i < n; i++ {
			if !present[i] {
				freq[i] = math.NaN()
				norm[i] = math.NaN()
				continue
			}
			freq[i] = counts[keys[i]]
			norm[i] = counts[keys[i]] / float64(n)
		}
		f.AddFloat(col+"_freq", freq)
		f.AddFloat(col+"_freq_norm", norm)
	}

	return nil
}
