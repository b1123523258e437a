// Package inference serves predictions from a loaded artifact bundle:
// schema validation, feature engineering with frozen fallbacks, the
// fitted preprocessor and the classifier, in that order.
package inference

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"fraudlens/internal/artifacts"
	"fraudlens/internal/config"
	"fraudlens/internal/features"
	"fraudlens/internal/frame"
	"fraudlens/internal/schema"
)

// Prediction is one scored transaction.
type Prediction struct {
	TransactionID int64   `json:"TransactionID"`
	Probability   float64 `json:"isFraud"`
	Label         uint8   `json:"-"`
}

// Pipeline scores raw transaction batches with one immutable bundle.
// The bundle is read-only after construction, so concurrent Predict
// calls need no locking.
type Pipeline struct {
	bundle   *artifacts.Bundle
	engine   *features.Engine
	registry *schema.Registry
	cfg      config.TransformConfig
	logger   *log.Logger
}

// NewPipeline wraps a loaded bundle.
func NewPipeline(bundle *artifacts.Bundle, cfg config.TransformConfig, registry *schema.Registry, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Pipeline{
		bundle:   bundle,
		engine:   features.NewEngine(cfg, logger),
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// LoadLatest resolves the highest published version, downloading it into
// cacheDir when no local copy exists yet.
func LoadLatest(ctx context.Context, store artifacts.ObjectStore, cacheDir, name string, cfg config.TransformConfig, registry *schema.Registry, logger *log.Logger) (*Pipeline, error) {
	version, err := artifacts.LatestVersion(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return LoadVersion(ctx, store, cacheDir, name, version, cfg, registry, logger)
}

// LoadVersion loads one specific published version.
func LoadVersion(ctx context.Context, store artifacts.ObjectStore, cacheDir, name string, version int, cfg config.TransformConfig, registry *schema.Registry, logger *log.Logger) (*Pipeline, error) {
	key := artifacts.VersionKey(name, version)
	dir := filepath.Join(cacheDir, key)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := store.Download(ctx, key, dir); err != nil {
			return nil, err
		}
	}
	bundle, err := artifacts.LoadBundle(dir)
	if err != nil {
		return nil, err
	}
	p := NewPipeline(bundle, cfg, registry, logger)
	p.logger.Printf("loaded %s (%d features)", key, bundle.Model.NumFeatures())
	return p, nil
}

// Predict validates the batch against the stored raw schema, engineers
// features and scores every row. Validation failures abort the whole
// batch before any transform runs.
func (p *Pipeline) Predict(ctx context.Context, raw *frame.Frame) ([]Prediction, error) {
	if raw.NumRows() == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if p.registry != nil {
		if _, err := p.registry.CompareForInference(raw, "raw", p.cfg.TargetColumn, true); err != nil {
			return nil, err
		}
	}

	engineered, err := p.engine.Apply(ctx, raw, features.Options{
		DomainRateFallback: p.bundle.Metadata.DomainRateFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("feature engineering: %w", err)
	}

	x, err := p.bundle.Preprocessor.Transform(engineered)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	probs, err := p.bundle.Model.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	ids := raw.Floats(p.cfg.IDColumn)
	if len(ids) != len(probs) {
		return nil, fmt.Errorf("batch has no usable %s column", p.cfg.IDColumn)
	}
	out := make([]Prediction, len(probs))
	for i, prob := range probs {
		out[i] = Prediction{
			TransactionID: int64(ids[i]),
			Probability:   prob,
		}
		if prob >= 0.5 {
			out[i].Label = 1
		}
	}
	return out, nil
}

// Version reports the loaded bundle's version.
func (p *Pipeline) Version() int { return p.bundle.Metadata.Version }

// ModelName reports the loaded bundle's model name.
func (p *Pipeline) ModelName() string { return p.bundle.Metadata.ModelName }

// BaselineFraudRate is the training-set fraud rate for drift checks.
func (p *Pipeline) BaselineFraudRate() float64 { return p.bundle.Metadata.BaselineFraudRate }

// ReferenceScores is the training score distribution for drift checks.
func (p *Pipeline) ReferenceScores() []float64 { return p.bundle.ReferenceScores }
