package features

import (
	"math"

	"fraudlens/internal/frame"
)

// noHistoryGap is the sentinel time gap for a card's first transaction.
const noHistoryGap = 999999

// timeStage derives time-of-day and per-card velocity features from the
// relative time offset. Depends on card_id from the amount stage.
func (e *Engine) timeStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()
	times := e.times(f)

	hour := make([]float64, n)
	secInDay := make([]float64, n)
	timeOfDay := make([]float64, n)
	isNight := make([]float64, n)
	isBusiness := make([]float64, n)
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)

	for i, dt := range times {
		if math.IsNaN(dt) {
			hour[i], secInDay[i], timeOfDay[i] = math.NaN(), math.NaN(), math.NaN()
			isNight[i], isBusiness[i] = math.NaN(), math.NaN()
			hourSin[i], hourCos[i] = math.NaN(), math.NaN()
			continue
		}
		h := math.Mod(math.Floor(dt/3600), 24)
		hour[i] = h
		secInDay[i] = math.Mod(dt, 86400)
		timeOfDay[i] = bucketRightClosed(h, e.cfg.TimeOfDayBins)
		isNight[i] = boolFlag(h >= 0 && h < 6)
		isBusiness[i] = boolFlag(h >= 9 && h <= 17)
		hourSin[i] = math.Sin(2 * math.Pi * h / 24)
		hourCos[i] = math.Cos(2 * math.Pi * h / 24)
	}

	f.AddFloat("hour", hour)
	f.AddFloat("sec_in_day", secInDay)
	f.AddFloat("time_of_day", timeOfDay)
	f.AddFloat("is_night", isNight)
	f.AddFloat("is_business_hours", isBusiness)

	// Per-card gap from the previous transaction and trailing 1-hour count.
	cardID := e.tokens(f, "card_id", "nan")
	timeGap := make([]float64, n)
	cnt1hr := make([]float64, n)

	for _, idx := range groupOrder(cardID, times) {
		lo := 0
		for pos, i := range idx {
			if pos == 0 {
				timeGap[i] = noHistoryGap
			} else {
				timeGap[i] = times[i] - times[idx[pos-1]]
			}
			for times[i]-times[idx[lo]] > 3600 {
				lo++
			}
			cnt1hr[i] = float64(pos - lo + 1)
		}
	}
	f.AddFloat("time_gap", timeGap)
	f.AddFloat("cnt_1hr", cnt1hr)

	f.AddFloat("hour_sin", hourSin)
	f.AddFloat("hour_cos", hourCos)

	return nil
}

// bucketRightClosed buckets v into (edges[i], edges[i+1]] intervals,
// matching right-inclusive cut semantics. Out-of-range values get NaN.
func bucketRightClosed(v float64, edges []float64) float64 {
	for i := 0; i < len(edges)-1; i++ {
		if v > edges[i] && v <= edges[i+1] {
			return float64(i)
		}
	}
	return math.NaN()
}
