package inference

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fraudlens/internal/artifacts"
	"fraudlens/internal/config"
	"fraudlens/internal/frame"
	"fraudlens/internal/schema"
	"fraudlens/internal/training"
)

// publishModel trains one version into a fresh store and returns the
// store plus the registry holding the raw schema snapshot.
func publishModel(t *testing.T) (*artifacts.LocalStore, *schema.Registry) {
	t.Helper()
	dir := t.TempDir()
	store, err := artifacts.NewLocalStore(filepath.Join(dir, "artifacts"), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	registry := schema.NewRegistry(filepath.Join(dir, "schemas.yaml"), nil)

	trainer, err := training.NewTrainer(training.Options{
		Transform:  config.DefaultTransformConfig(),
		Preprocess: config.DefaultPreprocessConfig(),
		Training:   config.DefaultTrainingConfig(),
		Registry:   registry,
		Store:      store,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	if _, err := trainer.Run(context.Background(), trainingBatch(60)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return store, registry
}

func trainingBatch(n int) *frame.Frame {
	ids := make([]float64, n)
	dts := make([]float64, n)
	amts := make([]float64, n)
	cards := make([]float64, n)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = float64(3000000 + i)
		dts[i] = float64(86400 + i*600)
		cards[i] = float64(1000 + i%7)
		if i%4 == 0 {
			amts[i] = 900 + float64(i)
			labels[i] = 1
		} else {
			amts[i] = 20 + float64(i%10)
		}
	}
	f := frame.New(n)
	f.AddFloat("TransactionID", ids)
	f.AddFloat("TransactionDT", dts)
	f.AddFloat("TransactionAmt", amts)
	f.AddFloat("card1", cards)
	f.AddFloat("isFraud", labels)
	return f
}

// inferenceBatch mirrors the training layout without the label column.
func inferenceBatch(n int) *frame.Frame {
	f := trainingBatch(n)
	f.Drop("isFraud")
	return f
}

func TestLoadLatestAndPredict(t *testing.T) {
	store, registry := publishModel(t)
	ctx := context.Background()

	p, err := LoadLatest(ctx, store, t.TempDir(), "fraud_model", config.DefaultTransformConfig(), registry, nil)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if p.Version() != 1 || p.ModelName() != "fraud_model" {
		t.Fatalf("loaded %s v%d", p.ModelName(), p.Version())
	}

	preds, err := p.Predict(ctx, inferenceBatch(5))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) != 5 {
		t.Fatalf("predictions = %d, want 5", len(preds))
	}
	for i, pred := range preds {
		if pred.TransactionID != int64(3000000+i) {
			t.Errorf("prediction %d id = %d", i, pred.TransactionID)
		}
		if pred.Probability < 0 || pred.Probability > 1 {
			t.Errorf("prediction %d prob = %v", i, pred.Probability)
		}
		if (pred.Probability >= 0.5) != (pred.Label == 1) {
			t.Errorf("prediction %d label %d inconsistent with prob %v", i, pred.Label, pred.Probability)
		}
	}
}

func TestPredictRejectsMissingColumn(t *testing.T) {
	store, registry := publishModel(t)
	ctx := context.Background()

	p, err := LoadLatest(ctx, store, t.TempDir(), "fraud_model", config.DefaultTransformConfig(), registry, nil)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}

	bad := inferenceBatch(3)
	bad.Drop("TransactionAmt")
	if _, err := p.Predict(ctx, bad); !errors.Is(err, schema.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPredictRejectsEmptyBatch(t *testing.T) {
	store, registry := publishModel(t)
	ctx := context.Background()

	p, err := LoadLatest(ctx, store, t.TempDir(), "fraud_model", config.DefaultTransformConfig(), registry, nil)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if _, err := p.Predict(ctx, frame.New(0)); err == nil {
		t.Fatal("empty batch accepted")
	}
}

func TestLoadLatestNoPublishedModel(t *testing.T) {
	store, err := artifacts.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	_, err = LoadLatest(context.Background(), store, t.TempDir(), "fraud_model", config.DefaultTransformConfig(), nil, nil)
	if !errors.Is(err, artifacts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadVersionUsesLocalCache(t *testing.T) {
	store, registry := publishModel(t)
	ctx := context.Background()
	cache := t.TempDir()

	if _, err := LoadVersion(ctx, store, cache, "fraud_model", 1, config.DefaultTransformConfig(), registry, nil); err != nil {
		t.Fatalf("first LoadVersion: %v", err)
	}
	// Second load must come from cache even if the store is gone.
	broken, err := artifacts.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadVersion(ctx, broken, cache, "fraud_model", 1, config.DefaultTransformConfig(), registry, nil); err != nil {
		t.Fatalf("cached LoadVersion: %v", err)
	}
}

func TestReferenceScoresExposed(t *testing.T) {
	store, registry := publishModel(t)
	p, err := LoadLatest(context.Background(), store, t.TempDir(), "fraud_model", config.DefaultTransformConfig(), registry, nil)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(p.ReferenceScores()) == 0 {
		t.Error("no reference scores in loaded bundle")
	}
	if p.BaselineFraudRate() <= 0 {
		t.Errorf("baseline = %v", p.BaselineFraudRate())
	}
}
