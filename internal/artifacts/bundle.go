package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"fraudlens/internal/model"
	"fraudlens/internal/preprocess"
)

// Bundle file names inside a version directory.
const (
	modelFile        = "model.gob"
	preprocessorFile = "preprocessor.gob"
	metadataFile     = "metadata.yaml"
	metricsFile      = "metrics.json"
	referenceFile    = "reference.json"
)

// Metadata describes a trained bundle. DomainRateFallback and
// BaselineFraudRate are training-set statistics the serving path needs:
// the first substitutes for out-of-fold rate encodings at inference, the
// second anchors drift detection.
type Metadata struct {
	ModelName string    `yaml:"model_name"`
	Version   int       `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`

	TrainRows int `yaml:"train_rows"`
	TestRows  int `yaml:"test_rows"`

	FeatureCount         int    `yaml:"feature_count"`
	PreprocessorChecksum string `yaml:"preprocessor_checksum"`

	DomainRateFallback float64 `yaml:"domain_rate_fallback"`
	BaselineFraudRate  float64 `yaml:"baseline_fraud_rate"`
}

// Key returns the bundle's "{name}_v{N}" key.
func (m Metadata) Key() string { return VersionKey(m.ModelName, m.Version) }

// Bundle is a complete loadable artifact: classifier, fitted
// preprocessor, metadata, held-out metrics and the reference score
// distribution used by drift detection.
type Bundle struct {
	Model           *model.Classifier
	Preprocessor    *preprocess.Preprocessor
	Metadata        Metadata
	Metrics         model.Metrics
	ReferenceScores []float64
}

// Save writes all bundle files into dir, creating it if needed.
func (b *Bundle) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir %s: %w", dir, err)
	}
	if err := b.Model.Save(filepath.Join(dir, modelFile)); err != nil {
		return err
	}
	if err := b.Preprocessor.Save(filepath.Join(dir, preprocessorFile)); err != nil {
		return err
	}

	meta, err := yaml.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), meta, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	metrics, err := json.MarshalIndent(b.Metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metricsFile), metrics, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	ref, err := json.Marshal(b.ReferenceScores)
	if err != nil {
		return fmt.Errorf("marshal reference scores: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, referenceFile), ref, 0o644); err != nil {
		return fmt.Errorf("write reference scores: %w", err)
	}
	return nil
}

// LoadBundle reads a complete bundle from dir. A missing reference file
// is tolerated for older bundles; everything else is required.
func LoadBundle(dir string) (*Bundle, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}

	clf, err := model.Load(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, err
	}
	pre, err := preprocess.Load(filepath.Join(dir, preprocessorFile))
	if err != nil {
		return nil, err
	}

	var meta Metadata
	raw, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}

	var metrics model.Metrics
	raw, err = os.ReadFile(filepath.Join(dir, metricsFile))
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	var ref []float64
	raw, err = os.ReadFile(filepath.Join(dir, referenceFile))
	if err == nil {
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, fmt.Errorf("parse reference scores: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read reference scores: %w", err)
	}

	return &Bundle{
		Model:           clf,
		Preprocessor:    pre,
		Metadata:        meta,
		Metrics:         metrics,
		ReferenceScores: ref,
	}, nil
}
