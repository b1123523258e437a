package features

import (
	"math"
	"sort"

	"fraudlens/internal/frame"
)

// rollingMedianWindow is how many prior same-card transactions feed the
// trailing rolling median.
const rollingMedianWindow = 5

// amountStage derives amount transforms plus per-card lookback features.
// It also builds the card_id fingerprint reused by later stages.
func (e *Engine) amountStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()
	amt := e.amounts(f)
	times := e.times(f)

	logAmt := make([]float64, n)
	cents := make([]float64, n)
	isRound := make([]float64, n)
	decimal := make([]float64, n)
	bin := make([]float64, n)
	for i, v := range amt {
		if math.IsNaN(v) {
			logAmt[i], cents[i], isRound[i], decimal[i], bin[i] =
				math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
			continue
		}
		logAmt[i] = math.Log1p(v)
		frac := v - math.Trunc(v)
		cents[i] = math.Round(frac*100) / 100
		isRound[i] = boolFlag(cents[i] == 0)
		decimal[i] = math.Trunc(frac * 1000)
		bin[i] = digitize(v, e.cfg.AmountBins)
	}
	f.AddFloat("TransactionAmt_log", logAmt)
	f.AddFloat("TransactionAmt_cents", cents)
	f.AddFloat("is_round_amount", isRound)
	f.AddFloat("TransactionAmt_decimal", decimal)
	f.AddFloat("amt_bin", bin)

	// card_id fingerprint: deterministic concatenation of all card fields
	// with a stable token for missing. Reused by the time and card stages.
	cardID := make([]string, n)
	parts := make([][]string, len(e.cfg.CardColumns))
	for j, col := range e.cfg.CardColumns {
		parts[j] = e.tokens(f, col, "nan")
	}
	for i := 0; i < n; i++ {
		s := parts[0][i]
		for j := 1; j < len(parts); j++ {
			s += "_" + parts[j][i]
		}
		cardID[i] = s
	}
	f.AddString("card_id", cardID)

	// Per-card lookbacks over time-sorted rows. The rolling median is
	// shifted by one step so row i only sees strictly earlier rows.
	prevAmt := make([]float64, n)
	jumpRatio := make([]float64, n)
	isSpike := make([]float64, n)
	rollingMed := make([]float64, n)
	vsRolling := make([]float64, n)

	for _, idx := range groupOrder(cardID, times) {
		for pos, i := range idx {
			if pos == 0 {
				prevAmt[i] = amt[i]
				rollingMed[i] = amt[i]
			} else {
				prevAmt[i] = amt[idx[pos-1]]
				lo := pos - rollingMedianWindow
				if lo < 0 {
					lo = 0
				}
				window := make([]float64, 0, rollingMedianWindow)
				for _, j := range idx[lo:pos] {
					if !math.IsNaN(amt[j]) {
						window = append(window, amt[j])
					}
				}
				rollingMed[i] = median(window)
				if math.IsNaN(rollingMed[i]) {
					rollingMed[i] = amt[i]
				}
			}
			jumpRatio[i] = amt[i] / (prevAmt[i] + 1)
			isSpike[i] = boolFlag(jumpRatio[i] > 5)
			vsRolling[i] = amt[i] / (rollingMed[i] + 1)
		}
	}
	f.AddFloat("prev_amount", prevAmt)
	f.AddFloat("amount_jump_ratio", jumpRatio)
	f.AddFloat("is_amount_spike", isSpike)
	f.AddFloat("rolling_median_amt", rollingMed)
	f.AddFloat("amt_vs_rolling", vsRolling)

	// Repeat count of the exact amount per card.
	pairKeys := make([]string, n)
	for i := 0; i < n; i++ {
		pairKeys[i] = cardID[i] + "|" + frame.FormatValue(amt[i])
	}
	counts := freqCounts(pairKeys)
	repeat := make([]float64, n)
	for i, k := range pairKeys {
		repeat[i] = counts[k]
	}
	f.AddFloat("amt_repeat_count", repeat)

	return nil
}

// median returns the median of vals, NaN when empty.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
