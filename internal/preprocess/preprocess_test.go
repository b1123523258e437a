package preprocess

import (
	"math"
	"path/filepath"
	"sync"
	"testing"

	"fraudlens/internal/config"
	"fraudlens/internal/frame"
)

func fittedFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(6)
	f.AddFloat("TransactionID", []float64{1, 2, 3, 4, 5, 6})
	f.AddFloat("isFraud", []float64{0, 1, 0, 0, 1, 0})
	f.AddFloat("TransactionAmt", []float64{10, 20, math.NaN(), 40, 50, 60})
	f.AddString("card4", []string{"visa", "mastercard", "visa", "", "discover", "visa"})
	f.AddFloat("V1", []float64{1, 2, 3, 4, 5, 6})
	f.AddFloat("V2", []float64{2, 4, 6, 8, 10, 12})
	f.AddFloat("V3", []float64{1, math.NaN(), 1, 2, 1, 2})
	return f
}

func newFitted(t *testing.T) *Preprocessor {
	t.Helper()
	p := New(config.DefaultPreprocessConfig(), "isFraud", "TransactionID")
	if err := p.Fit(fittedFrame(t)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return p
}

func TestColumnRouting(t *testing.T) {
	p := newFitted(t)

	if got, want := len(p.NumericCols), 1; got != want {
		t.Fatalf("numeric cols = %v, want 1 column", p.NumericCols)
	}
	if p.NumericCols[0] != "TransactionAmt" {
		t.Errorf("numeric col = %q, want TransactionAmt", p.NumericCols[0])
	}
	if len(p.CategoricalCols) != 1 || p.CategoricalCols[0] != "card4" {
		t.Errorf("categorical cols = %v, want [card4]", p.CategoricalCols)
	}
	if len(p.VCols) != 3 {
		t.Errorf("v cols = %v, want V1 V2 V3", p.VCols)
	}
}

func TestDerivedVAggregatesStayNumeric(t *testing.T) {
	f := fittedFrame(t)
	f.AddFloat("V_sum_all", []float64{4, 6, 10, 14, 16, 20})
	f.AddFloat("v1_mean", []float64{1, 2, 3, 4, 5, 6})

	p := New(config.DefaultPreprocessConfig(), "isFraud", "TransactionID")
	if err := p.Fit(f); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for _, col := range p.VCols {
		if col == "V_sum_all" || col == "v1_mean" {
			t.Errorf("derived column %q routed to v-block", col)
		}
	}
	found := false
	for _, col := range p.NumericCols {
		if col == "V_sum_all" {
			found = true
		}
	}
	if !found {
		t.Error("V_sum_all missing from numeric columns")
	}
}

func TestTransformBeforeFit(t *testing.T) {
	p := New(config.DefaultPreprocessConfig(), "isFraud", "TransactionID")
	if _, err := p.Transform(fittedFrame(t)); err != ErrNotFitted {
		t.Fatalf("Transform err = %v, want ErrNotFitted", err)
	}
}

func TestNumericImputation(t *testing.T) {
	p := newFitted(t)
	out, err := p.Transform(fittedFrame(t))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	// Row 2 has a missing TransactionAmt.
	if got := out.At(2, 0); got != -999 {
		t.Errorf("imputed amount = %v, want -999", got)
	}
	if got := out.At(0, 0); got != 10 {
		t.Errorf("amount = %v, want 10", got)
	}
}

func TestOrdinalEncoding(t *testing.T) {
	p := newFitted(t)

	f := frame.New(4)
	f.AddFloat("TransactionID", []float64{7, 8, 9, 10})
	f.AddFloat("TransactionAmt", []float64{1, 1, 1, 1})
	f.AddString("card4", []string{"visa", "amex", "", "discover"})
	f.AddFloat("V1", []float64{1, 1, 1, 1})
	f.AddFloat("V2", []float64{1, 1, 1, 1})
	f.AddFloat("V3", []float64{1, 1, 1, 1})

	out, err := p.Transform(f)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	col := len(p.NumericCols) // first categorical output
	// Fitted categories sorted: discover=0, mastercard=1, visa=2.
	if got := out.At(0, col); got != 2 {
		t.Errorf("visa code = %v, want 2", got)
	}
	if got := out.At(1, col); got != -1 {
		t.Errorf("unknown category code = %v, want -1", got)
	}
	if got := out.At(2, col); got != -999 {
		t.Errorf("missing category code = %v, want -999", got)
	}
	if got := out.At(3, col); got != 0 {
		t.Errorf("discover code = %v, want 0", got)
	}
}

func TestPCAVarianceRetention(t *testing.T) {
	p := newFitted(t)
	if p.NumComponents < 1 || p.NumComponents > 3 {
		t.Fatalf("components = %d, want between 1 and 3", p.NumComponents)
	}
	// V2 is perfectly correlated with V1, so two components suffice for
	// well over 96% of variance.
	if p.NumComponents > 2 {
		t.Errorf("components = %d, want <= 2 for a rank-deficient block", p.NumComponents)
	}
	var cum float64
	var total float64
	for _, ev := range p.ExplainedVariance {
		cum += ev
	}
	total = cum // retained components only; ratio check uses fitted target
	if total <= 0 {
		t.Error("explained variance not recorded")
	}
}

func TestOutputWidthMatchesColumns(t *testing.T) {
	p := newFitted(t)
	out, err := p.Transform(fittedFrame(t))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	_, cols := out.Dims()
	if want := len(p.OutputColumns()); cols != want {
		t.Errorf("output width = %d, want %d", cols, want)
	}
	names := p.OutputColumns()
	if names[len(names)-1] != "pc"+itoa(p.NumComponents) {
		t.Errorf("last output column = %q", names[len(names)-1])
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestTransformIsIdempotent(t *testing.T) {
	p := newFitted(t)
	before, err := p.Checksum()
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}

	f := fittedFrame(t)
	a, err := p.Transform(f)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	b, err := p.Transform(f)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	ra, ca := a.Dims()
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			x, y := a.At(i, j), b.At(i, j)
			if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
				t.Fatalf("output differs at (%d,%d): %v vs %v", i, j, x, y)
			}
		}
	}

	after, err := p.Checksum()
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if before != after {
		t.Errorf("checksum changed after Transform: %s -> %s", before, after)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	p := newFitted(t)
	path := filepath.Join(t.TempDir(), "preprocessor.gob")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Fitted {
		t.Fatal("loaded preprocessor not fitted")
	}
	if loaded.NumComponents != p.NumComponents {
		t.Errorf("components = %d, want %d", loaded.NumComponents, p.NumComponents)
	}

	f := fittedFrame(t)
	a, err := p.Transform(f)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	b, err := loaded.Transform(f)
	if err != nil {
		t.Fatalf("Transform after load: %v", err)
	}
	ra, ca := a.Dims()
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			if diff := math.Abs(a.At(i, j) - b.At(i, j)); diff > 1e-12 {
				t.Fatalf("loaded transform differs at (%d,%d) by %v", i, j, diff)
			}
		}
	}
}

func TestConcurrentTransformAfterLoad(t *testing.T) {
	p := newFitted(t)
	path := filepath.Join(t.TempDir(), "preprocessor.gob")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Eight goroutines share the freshly loaded preprocessor; each must see
	// the full encoder state, never a fallback to the unknown code.
	f := fittedFrame(t)
	col := len(loaded.NumericCols)
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := loaded.Transform(f)
			if err != nil {
				errs <- err.Error()
				return
			}
			if got := out.At(0, col); got != 2 {
				errs <- "visa code = " + frame.FormatValue(got) + ", want 2"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}

func TestFitRequiresTarget(t *testing.T) {
	f := frame.New(3)
	f.AddFloat("TransactionID", []float64{1, 2, 3})
	f.AddFloat("TransactionAmt", []float64{1, 2, 3})

	p := New(config.DefaultPreprocessConfig(), "isFraud", "TransactionID")
	if err := p.Fit(f); err == nil {
		t.Fatal("Fit without target succeeded")
	}
}
