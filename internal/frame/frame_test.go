package frame

import (
	"math"
	"strings"
	"testing"
)

func TestReadCSVInfersKinds(t *testing.T) {
	csvData := "TransactionID,TransactionAmt,ProductCD\n1,100.5,W\n2,,C\n3,30,\n"

	f, err := ReadCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if f.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", f.NumRows())
	}

	amt := f.Col("TransactionAmt")
	if amt == nil || amt.Kind != Float {
		t.Fatal("TransactionAmt should be a float column")
	}
	if !math.IsNaN(amt.Floats[1]) {
		t.Errorf("empty cell should parse as NaN, got %v", amt.Floats[1])
	}

	pcd := f.Col("ProductCD")
	if pcd == nil || pcd.Kind != String {
		t.Fatal("ProductCD should be a string column")
	}
	if !pcd.IsMissing(2) {
		t.Error("empty string cell should be missing")
	}
}

func TestDtypeFamilies(t *testing.T) {
	f := New(3)
	f.AddFloat("ints", []float64{1, 2, 3})
	f.AddFloat("floats", []float64{1.5, 2, 3})
	f.AddFloat("with_nan", []float64{1, math.NaN(), 3})
	f.AddString("text", []string{"a", "b", "c"})

	cases := map[string]string{
		"ints":     "int64",
		"floats":   "float64",
		"with_nan": "float64",
		"text":     "object",
	}
	for col, want := range cases {
		if got := f.Dtype(col); got != want {
			t.Errorf("Dtype(%s) = %s, want %s", col, got, want)
		}
	}
}

func TestColumnOrderStableOnReplace(t *testing.T) {
	f := New(2)
	f.AddFloat("a", []float64{1, 2})
	f.AddFloat("b", []float64{3, 4})
	f.AddFloat("c", []float64{5, 6})

	// Replacing must not move the column.
	f.AddFloat("b", []float64{7, 8})

	cols := f.Columns()
	want := []string{"a", "b", "c"}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("column order %v, want %v", cols, want)
		}
	}
	if f.Floats("b")[0] != 7 {
		t.Error("replaced column should hold new values")
	}
}

func TestSelectRows(t *testing.T) {
	f := New(4)
	f.AddFloat("x", []float64{10, 20, 30, 40})
	f.AddString("s", []string{"a", "b", "c", "d"})

	sub := f.SelectRows([]int{3, 1})
	if sub.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", sub.NumRows())
	}
	if sub.Floats("x")[0] != 40 || sub.Floats("x")[1] != 20 {
		t.Errorf("unexpected values: %v", sub.Floats("x"))
	}
	if sub.Strings("s")[0] != "d" {
		t.Errorf("unexpected string: %v", sub.Strings("s"))
	}
}

func TestCloneIsDeep(t *testing.T) {
	f := New(2)
	f.AddFloat("x", []float64{1, 2})

	clone := f.Clone()
	clone.Floats("x")[0] = 99

	if f.Floats("x")[0] != 1 {
		t.Error("mutating a clone must not touch the original")
	}
}

func TestDrop(t *testing.T) {
	f := New(1)
	f.AddFloat("a", []float64{1})
	f.AddFloat("b", []float64{2})
	f.AddFloat("c", []float64{3})

	f.Drop("b")

	if f.Has("b") {
		t.Error("b should be gone")
	}
	if f.Floats("c")[0] != 3 {
		t.Error("c should survive drop of b with its values intact")
	}
}
