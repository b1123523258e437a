package artifacts

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fraudlens/internal/config"
	"fraudlens/internal/frame"
	"fraudlens/internal/model"
	"fraudlens/internal/preprocess"
)

func TestVersionKeyRoundtrip(t *testing.T) {
	key := VersionKey("fraud_model", 7)
	if key != "fraud_model_v7" {
		t.Fatalf("key = %q", key)
	}
	name, v, err := ParseVersionKey(key)
	if err != nil {
		t.Fatalf("ParseVersionKey: %v", err)
	}
	if name != "fraud_model" || v != 7 {
		t.Errorf("parsed %q %d", name, v)
	}
}

func TestParseVersionKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"fraud_model", "fraud_model_vx", "_v3", "fraud_model_v0"} {
		if _, _, err := ParseVersionKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ParseVersionKey(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestNextVersionSkipsGaps(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	for _, v := range []int{1, 2, 4} {
		if err := os.MkdirAll(store.Path(VersionKey("fraud_model", v)), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	next, err := NextVersion(context.Background(), store, "fraud_model")
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if next != 5 {
		t.Errorf("next = %d, want 5 (gaps never reused)", next)
	}
}

func TestNextVersionFirstRun(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	next, err := NextVersion(context.Background(), store, "fraud_model")
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if next != 1 {
		t.Errorf("next = %d, want 1", next)
	}
}

func TestListVersionsIgnoresOtherModels(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	for _, key := range []string{"fraud_model_v1", "other_model_v9", "notes"} {
		if err := os.MkdirAll(store.Path(key), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	versions, err := store.ListVersions(context.Background(), "fraud_model")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 || versions[0] != 1 {
		t.Errorf("versions = %v, want [1]", versions)
	}
}

func TestLatestVersionMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := LatestVersion(context.Background(), store, "fraud_model"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func trainedBundle(t *testing.T) *Bundle {
	t.Helper()

	f := frame.New(4)
	f.AddFloat("TransactionID", []float64{1, 2, 3, 4})
	f.AddFloat("isFraud", []float64{0, 1, 0, 1})
	f.AddFloat("TransactionAmt", []float64{10, 200, 15, 300})
	f.AddString("card4", []string{"visa", "visa", "mastercard", "visa"})
	f.AddFloat("V1", []float64{1, 2, 3, 4})
	f.AddFloat("V2", []float64{0, 1, 0, 1})

	pre := preprocess.New(config.DefaultPreprocessConfig(), "isFraud", "TransactionID")
	if err := pre.Fit(f); err != nil {
		t.Fatalf("fit preprocessor: %v", err)
	}
	x, err := pre.Transform(f)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	clf := model.NewClassifier(config.DefaultTrainingConfig())
	if err := clf.Fit(x, []float64{0, 1, 0, 1}); err != nil {
		t.Fatalf("fit model: %v", err)
	}
	probs, err := clf.PredictProba(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	checksum, err := pre.Checksum()
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	return &Bundle{
		Model:        clf,
		Preprocessor: pre,
		Metadata: Metadata{
			ModelName:            "fraud_model",
			Version:              1,
			CreatedAt:            time.Now().UTC(),
			TrainRows:            4,
			FeatureCount:         clf.NumFeatures(),
			PreprocessorChecksum: checksum,
			DomainRateFallback:   0.5,
			BaselineFraudRate:    0.5,
		},
		Metrics:         model.Evaluate(probs, []float64{0, 1, 0, 1}),
		ReferenceScores: probs,
	}
}

func TestBundleSaveLoadRoundtrip(t *testing.T) {
	b := trainedBundle(t)
	dir := filepath.Join(t.TempDir(), "fraud_model_v1")
	if err := b.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if loaded.Metadata.Key() != "fraud_model_v1" {
		t.Errorf("key = %q", loaded.Metadata.Key())
	}
	if loaded.Metadata.PreprocessorChecksum != b.Metadata.PreprocessorChecksum {
		t.Error("preprocessor checksum changed on roundtrip")
	}
	if len(loaded.ReferenceScores) != len(b.ReferenceScores) {
		t.Fatalf("reference scores = %d, want %d", len(loaded.ReferenceScores), len(b.ReferenceScores))
	}

	// The loaded bundle must score identically.
	f := frame.New(1)
	f.AddFloat("TransactionID", []float64{9})
	f.AddFloat("isFraud", []float64{math.NaN()})
	f.AddFloat("TransactionAmt", []float64{250})
	f.AddString("card4", []string{"visa"})
	f.AddFloat("V1", []float64{2})
	f.AddFloat("V2", []float64{1})

	wantX, _ := b.Preprocessor.Transform(f)
	gotX, err := loaded.Preprocessor.Transform(f)
	if err != nil {
		t.Fatalf("transform after load: %v", err)
	}
	want, _ := b.Model.PredictProba(wantX)
	got, err := loaded.Model.PredictProba(gotX)
	if err != nil {
		t.Fatalf("predict after load: %v", err)
	}
	if math.Abs(want[0]-got[0]) > 1e-12 {
		t.Errorf("score = %v, want %v", got[0], want[0])
	}
}

func TestLoadBundleMissingDir(t *testing.T) {
	if _, err := LoadBundle(filepath.Join(t.TempDir(), "absent")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUploadDownload(t *testing.T) {
	b := trainedBundle(t)
	src := filepath.Join(t.TempDir(), "staging")
	if err := b.Save(src); err != nil {
		t.Fatalf("Save: %v", err)
	}

	store, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Upload(ctx, src, "fraud_model_v1"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored")
	if err := store.Download(ctx, "fraud_model_v1", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if _, err := LoadBundle(dst); err != nil {
		t.Fatalf("LoadBundle after download: %v", err)
	}

	if err := store.Download(ctx, "fraud_model_v2", dst); !errors.Is(err, ErrNotFound) {
		t.Fatalf("download missing version err = %v, want ErrNotFound", err)
	}
}
