// Package training runs the end-to-end training pipeline: schema
// validation, feature engineering, preprocessing, model fitting,
// evaluation and versioned artifact publication.
package training

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fraudlens/internal/artifacts"
	"fraudlens/internal/config"
	"fraudlens/internal/features"
	"fraudlens/internal/frame"
	"fraudlens/internal/model"
	"fraudlens/internal/preprocess"
	"fraudlens/internal/schema"
	"fraudlens/internal/tracking"
)

// Options configures a Trainer. Registry and Store are required; Tracker
// and Logger default to no-ops.
type Options struct {
	Transform  config.TransformConfig
	Preprocess config.PreprocessConfig
	Training   config.TrainingConfig

	Registry *schema.Registry
	Store    artifacts.ObjectStore
	Tracker  tracking.Tracker
	Logger   *log.Logger

	// WorkDir stages bundle files before upload. Defaults to a temp dir.
	WorkDir string
}

// Trainer owns one training pipeline.
type Trainer struct {
	opts   Options
	logger *log.Logger
}

// NewTrainer validates options and builds a trainer.
func NewTrainer(opts Options) (*Trainer, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("training: registry is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("training: artifact store is required")
	}
	if opts.Tracker == nil {
		opts.Tracker = tracking.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Trainer{opts: opts, logger: opts.Logger}, nil
}

// RunResult summarizes a completed training run.
type RunResult struct {
	RunID   string
	Key     string
	Version int

	Metrics   model.Metrics
	TrainRows int
	TestRows  int

	BaselineFraudRate float64
}

// Run executes the full pipeline on a labeled raw frame and publishes a
// new artifact version. The raw schema is validated strictly against the
// stored snapshot; the first run bootstraps it instead.
func (t *Trainer) Run(ctx context.Context, raw *frame.Frame) (*RunResult, error) {
	started := time.Now().UTC()
	cfg := t.opts.Training
	target := t.opts.Transform.TargetColumn

	if !raw.Has(target) {
		return nil, fmt.Errorf("training data has no %q column", target)
	}
	if _, err := t.opts.Registry.Compare(raw, "raw", true); err != nil {
		return nil, err
	}
	if err := t.opts.Registry.SaveFrame("raw", raw); err != nil {
		return nil, err
	}

	labels := raw.Floats(target)
	baseline, err := fraudRate(labels)
	if err != nil {
		return nil, err
	}
	t.logger.Printf("training on %d rows, fraud rate %.4f", raw.NumRows(), baseline)

	engine := features.NewEngine(t.opts.Transform, t.logger)
	engineered, err := engine.Apply(ctx, raw, features.Options{DomainRateFallback: baseline})
	if err != nil {
		return nil, fmt.Errorf("feature engineering: %w", err)
	}
	if err := t.opts.Registry.SaveFrame("features", engineered); err != nil {
		return nil, err
	}

	trainIdx, testIdx := stratifiedSplit(engineered.Floats(target), cfg.TestSize, cfg.Seed)
	trainFrame := engineered.SelectRows(trainIdx)
	testFrame := engineered.SelectRows(testIdx)
	t.logger.Printf("split: %d train / %d test", len(trainIdx), len(testIdx))

	pre := preprocess.New(t.opts.Preprocess, target, t.opts.Transform.IDColumn)
	if err := pre.Fit(trainFrame); err != nil {
		return nil, fmt.Errorf("fit preprocessor: %w", err)
	}
	xTrain, err := pre.Transform(trainFrame)
	if err != nil {
		return nil, fmt.Errorf("transform train set: %w", err)
	}
	xTest, err := pre.Transform(testFrame)
	if err != nil {
		return nil, fmt.Errorf("transform test set: %w", err)
	}
	// Train and test matrices share one dtype map by construction, but
	// both splits get their own named snapshot.
	for _, name := range []string{"preprocessed_train", "preprocessed_test"} {
		if err := t.opts.Registry.Save(name, pre.OutputDtypes()); err != nil {
			return nil, err
		}
	}

	clf := model.NewClassifier(cfg)
	if err := clf.Fit(xTrain, trainFrame.Floats(target)); err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}

	testProbs, err := clf.PredictProba(xTest)
	if err != nil {
		return nil, fmt.Errorf("score test set: %w", err)
	}
	metrics := model.Evaluate(testProbs, testFrame.Floats(target))
	t.logger.Printf("held-out metrics: auc=%.4f f1=%.4f precision=%.4f recall=%.4f",
		metrics.ROCAUC, metrics.F1, metrics.Precision, metrics.Recall)

	// Training-set scores become the drift reference distribution.
	refScores, err := clf.PredictProba(xTrain)
	if err != nil {
		return nil, fmt.Errorf("score train set: %w", err)
	}

	version, err := artifacts.NextVersion(ctx, t.opts.Store, cfg.ModelName)
	if err != nil {
		return nil, err
	}
	key := artifacts.VersionKey(cfg.ModelName, version)

	checksum, err := pre.Checksum()
	if err != nil {
		return nil, err
	}
	bundle := &artifacts.Bundle{
		Model:        clf,
		Preprocessor: pre,
		Metadata: artifacts.Metadata{
			ModelName:            cfg.ModelName,
			Version:              version,
			CreatedAt:            started,
			TrainRows:            len(trainIdx),
			TestRows:             len(testIdx),
			FeatureCount:         clf.NumFeatures(),
			PreprocessorChecksum: checksum,
			DomainRateFallback:   baseline,
			BaselineFraudRate:    baseline,
		},
		Metrics:         metrics,
		ReferenceScores: refScores,
	}

	workDir := t.opts.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "fraudlens-train-*")
		if err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
		defer os.RemoveAll(workDir)
	}
	staging := filepath.Join(workDir, key)
	if err := bundle.Save(staging); err != nil {
		return nil, err
	}
	if err := t.opts.Store.Upload(ctx, staging, key); err != nil {
		return nil, err
	}
	t.logger.Printf("published %s", key)

	result := &RunResult{
		RunID:             uuid.NewString(),
		Key:               key,
		Version:           version,
		Metrics:           metrics,
		TrainRows:         len(trainIdx),
		TestRows:          len(testIdx),
		BaselineFraudRate: baseline,
	}

	if err := t.opts.Tracker.LogRun(tracking.Run{
		RunID:      result.RunID,
		ModelName:  cfg.ModelName,
		Version:    version,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Params: map[string]float64{
			"learning_rate": cfg.LearningRate,
			"epochs":        float64(cfg.Epochs),
			"l2":            cfg.L2,
			"test_size":     cfg.TestSize,
			"seed":          float64(cfg.Seed),
			"pca_variance":  t.opts.Preprocess.PCAVariance,
		},
		Metrics:   metrics,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
	}); err != nil {
		// Tracking failures never fail the run.
		t.logger.Printf("tracking failed for run %s: %v", result.RunID, err)
	}

	return result, nil
}

// fraudRate is the mean label; any missing label fails the run.
func fraudRate(labels []float64) (float64, error) {
	if len(labels) == 0 {
		return 0, fmt.Errorf("no labels")
	}
	var sum float64
	for i, l := range labels {
		if math.IsNaN(l) {
			return 0, fmt.Errorf("missing label at row %d", i)
		}
		sum += l
	}
	return sum / float64(len(labels)), nil
}

// stratifiedSplit shuffles each class independently and carves off the
// test fraction from both, preserving class balance.
func stratifiedSplit(labels []float64, testSize float64, seed int64) (train, test []int) {
	var pos, neg []int
	for i, l := range labels {
		if l >= 0.5 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, class := range [][]int{neg, pos} {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		cut := int(math.Round(float64(len(class)) * testSize))
		test = append(test, class[:cut]...)
		train = append(train, class[cut:]...)
	}
	return train, test
}
