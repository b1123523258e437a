// Package drift watches the serving score stream for distribution shift
// against the training-time reference and for fraud-rate deviation from
// the training baseline.
package drift

import (
	"io"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"fraudlens/internal/config"
)

// Report is one drift check over the current window.
type Report struct {
	SampleCount int       `json:"sample_count"`
	CheckedAt   time.Time `json:"checked_at"`

	KSStatistic     float64 `json:"ks_statistic"`
	PredictionDrift bool    `json:"prediction_drift"`

	ObservedFraudRate float64 `json:"observed_fraud_rate"`
	BaselineFraudRate float64 `json:"baseline_fraud_rate"`
	RateDelta         float64 `json:"rate_delta"`
	LabelDrift        bool    `json:"label_drift"`
}

// Monitor keeps a bounded sliding window of recent scores. Observe and
// Check are safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	cfg       config.DriftConfig
	logger    *log.Logger
	reference []float64 // sorted
	baseline  float64

	window []float64
	next   int
	filled bool
}

// NewMonitor creates a monitor with an empty window. Reference scores are
// sorted once; oversized references are downsampled evenly.
func NewMonitor(cfg config.DriftConfig, reference []float64, baseline float64, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ref := make([]float64, len(reference))
	copy(ref, reference)
	sort.Float64s(ref)
	if cfg.MaxReferenceScores > 0 && len(ref) > cfg.MaxReferenceScores {
		sampled := make([]float64, cfg.MaxReferenceScores)
		step := float64(len(ref)) / float64(cfg.MaxReferenceScores)
		for i := range sampled {
			sampled[i] = ref[int(float64(i)*step)]
		}
		ref = sampled
	}
	if baseline == 0 {
		baseline = cfg.BaselineRate
	}
	return &Monitor{
		cfg:       cfg,
		logger:    logger,
		reference: ref,
		baseline:  baseline,
		window:    make([]float64, cfg.WindowSize),
	}
}

// Observe appends one score; the oldest score falls out once the window
// is full.
func (m *Monitor) Observe(score float64) {
	m.mu.Lock()
	m.window[m.next] = score
	m.next++
	if m.next == len(m.window) {
		m.next = 0
		m.filled = true
	}
	m.mu.Unlock()
}

// ObserveBatch records a batch of scores.
func (m *Monitor) ObserveBatch(scores []float64) {
	for _, s := range scores {
		m.Observe(s)
	}
}

// Check evaluates drift over the current window. Below MinSamples the
// report carries zero statistics and no drift flags.
func (m *Monitor) Check() Report {
	m.mu.Lock()
	scores := m.snapshot()
	m.mu.Unlock()

	report := Report{
		SampleCount:       len(scores),
		CheckedAt:         time.Now().UTC(),
		BaselineFraudRate: m.baseline,
	}
	if len(scores) < m.cfg.MinSamples {
		return report
	}

	sort.Float64s(scores)
	report.KSStatistic = ksStatistic(m.reference, scores)
	report.PredictionDrift = report.KSStatistic > m.cfg.KSThreshold

	var flagged int
	for _, s := range scores {
		if s >= 0.5 {
			flagged++
		}
	}
	report.ObservedFraudRate = float64(flagged) / float64(len(scores))
	report.RateDelta = math.Abs(report.ObservedFraudRate - m.baseline)
	report.LabelDrift = report.RateDelta > m.cfg.RateThreshold

	if report.PredictionDrift || report.LabelDrift {
		m.logger.Printf("drift detected: ks=%.4f rate=%.4f baseline=%.4f samples=%d",
			report.KSStatistic, report.ObservedFraudRate, m.baseline, report.SampleCount)
	}
	return report
}

// snapshot copies the window contents in arrival order. Caller holds mu.
func (m *Monitor) snapshot() []float64 {
	if m.filled {
		out := make([]float64, len(m.window))
		copy(out, m.window[m.next:])
		copy(out[len(m.window)-m.next:], m.window[:m.next])
		return out
	}
	out := make([]float64, m.next)
	copy(out, m.window[:m.next])
	return out
}

// ksStatistic is the two-sample Kolmogorov-Smirnov statistic: the maximum
// gap between the two empirical CDFs. Both inputs must be sorted.
func ksStatistic(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var i, j int
	var max float64
	for i < len(a) && j < len(b) {
		// Step both CDFs past every sample equal to the current minimum
		// before measuring, so tied values never produce a phantom gap.
		v := math.Min(a[i], b[j])
		for i < len(a) && a[i] == v {
			i++
		}
		for j < len(b) && b[j] == v {
			j++
		}
		d := math.Abs(float64(i)/float64(len(a)) - float64(j)/float64(len(b)))
		if d > max {
			max = d
		}
	}
	return max
}
