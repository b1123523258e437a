// Package config holds the pipeline's fixed configuration: feature
// engineering column groups and constants, preprocessing parameters,
// training defaults, and drift thresholds.
package config

import "fmt"

// TransformConfig drives the feature engineering engine.
type TransformConfig struct {
	TargetColumn string
	IDColumn     string
	TimeColumn   string
	AmountColumn string

	// AmountBins are the fixed bin edges for the amount bucket feature.
	// The final bucket is open-ended.
	AmountBins []float64

	// TimeOfDayBins are hour edges for the 4-bucket time-of-day feature.
	TimeOfDayBins []float64

	CardColumns []string

	// VendorMap classifies registrable email domains into vendors.
	// Unmapped domains fall through to "other".
	VendorMap map[string]string

	// DoubleSuffixes are multi-part public suffixes handled by the
	// fallback domain parser.
	DoubleSuffixes map[string]bool

	// VGroups are the correlated V-column blocks aggregated per group.
	VGroups []VGroup

	// AllVColumns is the full high-cardinality numeric block.
	AllVColumns []string

	// FreqColumns get global value-count frequency encoding.
	FreqColumns []string

	// AmountAggGroups get per-group amount mean/std/deviation features.
	AmountAggGroups []string

	// NumericIdentityColumns are coerced numeric with per-row stats.
	NumericIdentityColumns []string

	// EnhancedFreqColumns get frequency and batch-normalized frequency
	// encoding, including the UID fingerprints.
	EnhancedFreqColumns []string

	// KFolds and KFoldSeed drive the out-of-fold email-domain target
	// encoding at training time.
	KFolds    int
	KFoldSeed int64

	// MissingToken is the stable token used when building string
	// fingerprints from missing values.
	MissingToken string
}

// VGroup is one named block of correlated V columns.
type VGroup struct {
	Name    string
	Columns []string
}

// PreprocessConfig drives the fitted preprocessor.
type PreprocessConfig struct {
	// FillValue is the sentinel for missing numeric values, chosen
	// distinct from any real value.
	FillValue float64

	// PCAVariance is the fraction of variance the V-block projection
	// must retain.
	PCAVariance float64
}

// TrainingConfig drives the offline training run.
type TrainingConfig struct {
	ModelName string
	TestSize  float64
	Seed      int64

	LearningRate float64
	Epochs       int
	L2           float64
}

// DriftConfig drives the drift monitor.
type DriftConfig struct {
	WindowSize    int
	MinSamples    int
	KSThreshold   float64
	RateThreshold float64

	// BaselineRate is overridden by the trained artifact's fraud rate
	// when one is loaded.
	BaselineRate float64

	// MaxReferenceScores caps how many training-time probabilities are
	// persisted as the reference distribution.
	MaxReferenceScores int
}

// DefaultTransformConfig returns the canonical feature engineering config.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{
		TargetColumn:  "isFraud",
		IDColumn:      "TransactionID",
		TimeColumn:    "TransactionDT",
		AmountColumn:  "TransactionAmt",
		AmountBins:    []float64{0, 50, 100, 200, 500, 1000, 5000, 10000},
		TimeOfDayBins: []float64{-1, 6, 12, 18, 24},
		CardColumns:   []string{"card1", "card2", "card3", "card4", "card5", "card6"},
		VendorMap: map[string]string{
			"gmail":   "google",
			"yahoo":   "yahoo",
			"hotmail": "microsoft",
			"outlook": "microsoft",
			"live":    "microsoft",
			"msn":     "microsoft",
			"icloud":  "apple",
			"aol":     "aol",
		},
		DoubleSuffixes: map[string]bool{
			"co.uk":  true,
			"gov.uk": true,
			"ac.uk":  true,
			"co.jp":  true,
			"com.au": true,
			"net.au": true,
		},
		VGroups: []VGroup{
			{Name: "v1", Columns: seq("V", 1, 11)},
			{Name: "v2", Columns: seq("V", 12, 26)},
			{Name: "v3", Columns: seq("V", 27, 34)},
			{Name: "v4", Columns: seq("V", 35, 52)},
			{Name: "v5", Columns: seq("V", 53, 74)},
			{Name: "v6", Columns: seq("V", 75, 94)},
			{Name: "v7", Columns: seq("V", 95, 137)},
		},
		AllVColumns: seq("V", 1, 339),
		FreqColumns: []string{
			"card1", "card2", "card3", "card4", "card5", "card6",
			"addr1", "addr2", "P_emaildomain", "R_emaildomain",
			"ProductCD", "DeviceType", "DeviceInfo",
		},
		AmountAggGroups: []string{"card1", "card2", "addr1"},
		NumericIdentityColumns: seqPadded("id_", 1, 11),
		EnhancedFreqColumns: []string{
			"uid1", "uid2", "uid3", "uid4",
			"card1", "card2", "addr1", "P_emaildomain",
			"DeviceType", "DeviceInfo",
		},
		KFolds:       5,
		KFoldSeed:    42,
		MissingToken: "missing",
	}
}

// DefaultPreprocessConfig returns the canonical preprocessing config.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		FillValue:   -999,
		PCAVariance: 0.96,
	}
}

// DefaultTrainingConfig returns the canonical training config.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		ModelName:    "fraud_model",
		TestSize:     0.2,
		Seed:         6,
		LearningRate: 0.1,
		Epochs:       200,
		L2:           0.001,
	}
}

// DefaultDriftConfig returns the canonical drift thresholds.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		WindowSize:         1000,
		MinSamples:         100,
		KSThreshold:        0.3,
		RateThreshold:      0.05,
		BaselineRate:       0.035,
		MaxReferenceScores: 10000,
	}
}

// seq generates prefixN names for N in [from, to].
func seq(prefix string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

// seqPadded generates prefixNN names with zero-padded two-digit suffixes.
func seqPadded(prefix string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%02d", prefix, i))
	}
	return out
}
