package model

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"fraudlens/internal/config"
)

// separableData builds two gaussian clusters that a linear model splits.
func separableData(n int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			x.Set(i, 0, rng.NormFloat64()+3)
			x.Set(i, 1, rng.NormFloat64()+3)
			y[i] = 1
		} else {
			x.Set(i, 0, rng.NormFloat64()-3)
			x.Set(i, 1, rng.NormFloat64()-3)
		}
	}
	return x, y
}

func TestFitSeparatesClusters(t *testing.T) {
	x, y := separableData(200, 1)
	c := NewClassifier(config.DefaultTrainingConfig())
	if err := c.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	preds, err := c.Predict(x)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	correct := 0
	for i, p := range preds {
		if float64(p) == y[i] {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(y)); acc < 0.95 {
		t.Errorf("training accuracy = %.3f, want >= 0.95", acc)
	}
}

func TestPredictProbaBounds(t *testing.T) {
	x, y := separableData(100, 2)
	c := NewClassifier(config.DefaultTrainingConfig())
	if err := c.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	probs, err := c.PredictProba(x)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	for i, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("prob[%d] = %v out of range", i, p)
		}
	}
}

func TestPredictBeforeFit(t *testing.T) {
	c := NewClassifier(config.DefaultTrainingConfig())
	if _, err := c.PredictProba(mat.NewDense(1, 2, []float64{0, 0})); err != ErrNotTrained {
		t.Fatalf("err = %v, want ErrNotTrained", err)
	}
}

func TestPredictWidthMismatch(t *testing.T) {
	x, y := separableData(50, 3)
	c := NewClassifier(config.DefaultTrainingConfig())
	if err := c.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := c.PredictProba(mat.NewDense(1, 5, nil)); err == nil {
		t.Fatal("mismatched width accepted")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	x, y := separableData(100, 4)
	c := NewClassifier(config.DefaultTrainingConfig())
	if err := c.Fit(x, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a, _ := c.PredictProba(x)
	b, err := loaded.PredictProba(x)
	if err != nil {
		t.Fatalf("PredictProba after load: %v", err)
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			t.Fatalf("prob[%d] differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEvaluateConfusionCounts(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.2, 0.6, 0.1, 0.4}
	labels := []float64{1, 1, 0, 0, 1, 0}
	m := Evaluate(probs, labels)

	if m.TruePositives != 2 || m.FalsePositives != 1 || m.FalseNegatives != 1 || m.TrueNegatives != 2 {
		t.Fatalf("confusion = TP %d FP %d FN %d TN %d", m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives)
	}
	if math.Abs(m.Accuracy-4.0/6.0) > 1e-12 {
		t.Errorf("accuracy = %v", m.Accuracy)
	}
	if math.Abs(m.Precision-2.0/3.0) > 1e-12 {
		t.Errorf("precision = %v", m.Precision)
	}
	if math.Abs(m.Recall-2.0/3.0) > 1e-12 {
		t.Errorf("recall = %v", m.Recall)
	}
}

func TestROCAUCPerfectRanking(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1}
	labels := []float64{1, 1, 1, 0, 0, 0}
	if auc := rocAUC(probs, labels); math.Abs(auc-1) > 1e-12 {
		t.Errorf("auc = %v, want 1", auc)
	}
	// Inverted ranking scores 0.
	labels = []float64{0, 0, 0, 1, 1, 1}
	if auc := rocAUC(probs, labels); math.Abs(auc) > 1e-12 {
		t.Errorf("auc = %v, want 0", auc)
	}
}

func TestROCAUCDegenerateLabels(t *testing.T) {
	probs := []float64{0.2, 0.4, 0.6}
	if auc := rocAUC(probs, []float64{1, 1, 1}); auc != 0.5 {
		t.Errorf("single-class auc = %v, want 0.5", auc)
	}
}
