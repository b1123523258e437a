// Package ingest merges the transaction and identity source files into
// the single raw table the rest of the pipeline consumes, and converts
// between frames and stored transaction records.
package ingest

import (
	"fmt"
	"math"
	"sort"

	"fraudlens/internal/config"
	"fraudlens/internal/domain"
	"fraudlens/internal/frame"
)

// Merge left-joins the identity frame onto the transaction frame by the
// ID column. Transactions without identity rows keep all identity
// columns missing; identity rows without a transaction are dropped.
func Merge(transactions, identity *frame.Frame, idCol string) (*frame.Frame, error) {
	if !transactions.Has(idCol) {
		return nil, fmt.Errorf("transactions missing %q column", idCol)
	}
	out := transactions.Clone()
	if identity == nil || identity.NumRows() == 0 {
		return out, nil
	}
	if !identity.Has(idCol) {
		return nil, fmt.Errorf("identity missing %q column", idCol)
	}

	leftIDs := transactions.Floats(idCol)
	rightIDs := identity.Floats(idCol)
	if leftIDs == nil || rightIDs == nil {
		return nil, fmt.Errorf("%q column must be numeric on both sides", idCol)
	}

	// Last occurrence wins on duplicate identity IDs.
	lookup := make(map[int64]int, len(rightIDs))
	for i, id := range rightIDs {
		if !math.IsNaN(id) {
			lookup[int64(id)] = i
		}
	}

	// match[i] holds the identity row index for transaction row i, -1 when
	// no identity row exists.
	n := transactions.NumRows()
	match := make([]int, n)
	for i, id := range leftIDs {
		match[i] = -1
		if math.IsNaN(id) {
			continue
		}
		if j, ok := lookup[int64(id)]; ok {
			match[i] = j
		}
	}

	for _, name := range identity.Columns() {
		if name == idCol {
			continue
		}
		c := identity.Col(name)
		if c.Kind == frame.Float {
			vals := make([]float64, n)
			for i, j := range match {
				if j >= 0 {
					vals[i] = c.Floats[j]
				} else {
					vals[i] = math.NaN()
				}
			}
			out.AddFloat(name, vals)
			continue
		}
		vals := make([]string, n)
		for i, j := range match {
			if j >= 0 {
				vals[i] = c.Strings[j]
			}
		}
		out.AddString(name, vals)
	}
	return out, nil
}

// ToTransactions converts a raw frame into storable transaction records.
// Typed key fields are lifted out; everything else goes into the payload.
func ToTransactions(f *frame.Frame, cfg config.TransformConfig) ([]*domain.RawTransaction, error) {
	ids := f.Floats(cfg.IDColumn)
	if ids == nil {
		return nil, fmt.Errorf("frame missing numeric %q column", cfg.IDColumn)
	}
	times := f.Floats(cfg.TimeColumn)
	amounts := f.Floats(cfg.AmountColumn)
	labels := f.Floats(cfg.TargetColumn)

	keyCols := map[string]bool{
		cfg.IDColumn:     true,
		cfg.TimeColumn:   true,
		cfg.AmountColumn: true,
		cfg.TargetColumn: true,
	}

	n := f.NumRows()
	out := make([]*domain.RawTransaction, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(ids[i]) {
			return nil, fmt.Errorf("row %d has no transaction id", i)
		}
		tx := &domain.RawTransaction{
			TransactionID: int64(ids[i]),
			Payload:       make(map[string]any),
		}
		if times != nil && !math.IsNaN(times[i]) {
			tx.TransactionDT = int64(times[i])
		}
		if amounts != nil && !math.IsNaN(amounts[i]) {
			tx.TransactionAmt = amounts[i]
		}
		if labels != nil && !math.IsNaN(labels[i]) {
			label := int16(labels[i])
			tx.IsFraud = &label
		}

		for _, name := range f.Columns() {
			if keyCols[name] {
				continue
			}
			c := f.Col(name)
			if c.Kind == frame.Float {
				if !math.IsNaN(c.Floats[i]) {
					tx.Payload[name] = c.Floats[i]
				}
			} else if c.Strings[i] != "" {
				tx.Payload[name] = c.Strings[i]
			}
		}
		out[i] = tx
	}
	return out, nil
}

// FromTransactions rebuilds a raw frame from stored records, the inverse
// of ToTransactions. Column kinds follow the payload values; a column
// mixing numbers and text becomes textual.
func FromTransactions(txs []*domain.RawTransaction, cfg config.TransformConfig) *frame.Frame {
	n := len(txs)
	f := frame.New(n)

	ids := make([]float64, n)
	times := make([]float64, n)
	amounts := make([]float64, n)
	labels := make([]float64, n)
	labeled := false
	for i, tx := range txs {
		ids[i] = float64(tx.TransactionID)
		times[i] = float64(tx.TransactionDT)
		amounts[i] = tx.TransactionAmt
		if tx.IsFraud != nil {
			labels[i] = float64(*tx.IsFraud)
			labeled = true
		} else {
			labels[i] = math.NaN()
		}
	}
	f.AddFloat(cfg.IDColumn, ids)
	f.AddFloat(cfg.TimeColumn, times)
	f.AddFloat(cfg.AmountColumn, amounts)

	// Payload column inventory. Sorted for a stable column order.
	var order []string
	kinds := make(map[string]frame.Kind)
	for _, tx := range txs {
		for name, v := range tx.Payload {
			k, seen := kinds[name]
			switch v.(type) {
			case float64, int, int64:
				if !seen {
					kinds[name] = frame.Float
					order = append(order, name)
				}
			default:
				if !seen {
					kinds[name] = frame.String
					order = append(order, name)
				} else if k == frame.Float {
					kinds[name] = frame.String
				}
			}
		}
	}
	sort.Strings(order)

	for _, name := range order {
		if kinds[name] == frame.Float {
			vals := make([]float64, n)
			for i, tx := range txs {
				vals[i] = payloadNumber(tx.Payload[name])
			}
			f.AddFloat(name, vals)
			continue
		}
		vals := make([]string, n)
		for i, tx := range txs {
			vals[i] = payloadText(tx.Payload[name])
		}
		f.AddString(name, vals)
	}

	if labeled {
		f.AddFloat(cfg.TargetColumn, labels)
	}
	return f
}

func payloadNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return math.NaN()
	}
}

func payloadText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return frame.FormatValue(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
