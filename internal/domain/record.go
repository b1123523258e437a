// Package domain holds the core data types shared across the pipeline.
package domain

import "time"

// RawTransaction is one merged transaction+identity row as ingested, before
// feature engineering. Column values beyond the typed key fields live in
// Payload so the full raw width survives storage round-trips.
type RawTransaction struct {
	TransactionID  int64
	TransactionDT  int64
	TransactionAmt float64

	// IsFraud is nil for unlabeled rows.
	IsFraud *int16

	// Payload holds every raw column by name. Numeric values are float64,
	// text values are string. Missing columns are simply absent.
	Payload map[string]any
}

// PredictionRecord is one scored transaction written to the prediction log.
type PredictionRecord struct {
	TransactionID int64
	Probability   float64
	Label         uint8
	ModelVersion  int
	RequestID     string
	ScoredAt      time.Time
}
