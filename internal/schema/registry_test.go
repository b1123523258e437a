package schema

import (
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"

	"fraudlens/internal/frame"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	return NewRegistry(path, log.New(os.Stdout, "[schema-test] ", 0))
}

func TestFirstRunBootstraps(t *testing.T) {
	r := testRegistry(t)

	f := frame.New(1)
	f.AddFloat("TransactionAmt", []float64{10})

	res, err := r.Compare(f, "raw", true)
	if err != nil {
		t.Fatalf("first-run compare should not fail: %v", err)
	}
	if !res.Match {
		t.Error("first-run compare should report a match")
	}
}

func TestSaveMergesWithoutDeleting(t *testing.T) {
	r := testRegistry(t)

	if err := r.Save("raw", map[string]string{"a": "int64"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Save("preprocessed_train", map[string]string{"b": "float64"}); err != nil {
		t.Fatal(err)
	}

	raw, ok, err := r.Load("raw")
	if err != nil || !ok {
		t.Fatalf("raw entry should survive a second save: ok=%v err=%v", ok, err)
	}
	if raw["a"] != "int64" {
		t.Errorf("raw entry corrupted: %v", raw)
	}
}

func TestDtypeFamilyComparison(t *testing.T) {
	r := testRegistry(t)
	if err := r.Save("raw", map[string]string{
		"amount": "float32",
		"count":  "int32",
		"label":  "object",
	}); err != nil {
		t.Fatal(err)
	}

	// int64 vs int32 and float64 vs float32 are family-compatible; an
	// integral float column reporting int64 against float32 also is.
	f := frame.New(2)
	f.AddFloat("amount", []float64{1.5, 2.5})
	f.AddFloat("count", []float64{1, 2})
	f.AddString("label", []string{"x", "y"})

	res, err := r.Compare(f, "raw", true)
	if err != nil {
		t.Fatalf("family-compatible schema should validate: %v", err)
	}
	if !res.Match {
		t.Errorf("expected match, got mismatches %v", res.DtypeMismatches)
	}
}

func TestNumericVsTextMismatch(t *testing.T) {
	r := testRegistry(t)
	if err := r.Save("raw", map[string]string{"amount": "float64"}); err != nil {
		t.Fatal(err)
	}

	f := frame.New(1)
	f.AddString("amount", []string{"not_a_number"})

	res, err := r.Compare(f, "raw", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Match {
		t.Error("numeric-vs-text should mismatch")
	}
	if _, ok := res.DtypeMismatches["amount"]; !ok {
		t.Errorf("amount should be in mismatches: %v", res.DtypeMismatches)
	}
}

func TestStrictMissingColumnFails(t *testing.T) {
	r := testRegistry(t)
	if err := r.Save("raw", map[string]string{
		"TransactionAmt": "float64",
		"TransactionDT":  "int64",
	}); err != nil {
		t.Fatal(err)
	}

	f := frame.New(1)
	f.AddFloat("TransactionDT", []float64{3600})

	res, err := r.Compare(f, "raw", true)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(res.MissingColumns) != 1 || res.MissingColumns[0] != "TransactionAmt" {
		t.Errorf("missing columns = %v, want [TransactionAmt]", res.MissingColumns)
	}
}

func TestExtraColumnsTolerated(t *testing.T) {
	r := testRegistry(t)
	if err := r.Save("raw", map[string]string{"TransactionAmt": "float64"}); err != nil {
		t.Fatal(err)
	}

	f := frame.New(1)
	f.AddFloat("TransactionAmt", []float64{math.Pi})
	f.AddString("surprise", []string{"extra"})

	res, err := r.Compare(f, "raw", true)
	if err != nil {
		t.Fatalf("extra columns must not fail validation: %v", err)
	}
	if !res.Match || len(res.ExtraColumns) != 1 {
		t.Errorf("expected match with one extra column, got %+v", res)
	}
}

func TestCompareForInferenceDropsTarget(t *testing.T) {
	r := testRegistry(t)
	if err := r.Save("raw", map[string]string{
		"TransactionAmt": "float64",
		"isFraud":        "int64",
	}); err != nil {
		t.Fatal(err)
	}

	f := frame.New(1)
	f.AddFloat("TransactionAmt", []float64{42})

	res, err := r.CompareForInference(f, "raw", "isFraud", true)
	if err != nil {
		t.Fatalf("target column must not be required at inference: %v", err)
	}
	if !res.Match {
		t.Errorf("expected match, got %+v", res)
	}
}
