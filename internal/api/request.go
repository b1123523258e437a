package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"fraudlens/internal/config"
	"fraudlens/internal/frame"
)

// PredictRequest is the request body for POST /predict.
type PredictRequest struct {
	Transactions []map[string]any `json:"transactions"`
}

// RowError pinpoints one unusable value in a batch.
type RowError struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Error string `json:"error"`
}

// buildFrame converts request rows into a frame laid out per the raw
// schema. Keys match case-insensitively; numeric columns accept JSON
// numbers and numeric strings; null or absent values become missing.
// Any unusable value fails the whole batch.
func buildFrame(rows []map[string]any, cfg config.TransformConfig) (*frame.Frame, []RowError) {
	layout := cfg.RawLayout()
	canonical := make(map[string]string, len(layout))
	for _, col := range layout {
		canonical[strings.ToLower(col.Name)] = col.Name
	}

	// Re-key every row to canonical column names; unknown keys keep their
	// own casing and ride along as extra columns.
	var rowErrs []RowError
	rekeyed := make([]map[string]any, len(rows))
	extraOrder := []string{}
	extraSeen := map[string]bool{}
	target := strings.ToLower(cfg.TargetColumn)
	for i, row := range rows {
		out := make(map[string]any, len(row))
		for k, v := range row {
			// Clients never supply the label; a stray one is dropped so
			// scoring can never slip into training semantics.
			if strings.ToLower(k) == target {
				continue
			}
			name, known := canonical[strings.ToLower(k)]
			if !known {
				name = k
				if !extraSeen[name] {
					extraSeen[name] = true
					extraOrder = append(extraOrder, name)
				}
			}
			if _, dup := out[name]; dup {
				rowErrs = append(rowErrs, RowError{Row: i, Field: name, Error: "duplicate key after case folding"})
				continue
			}
			out[name] = v
		}
		rekeyed[i] = out
	}

	f := frame.New(len(rows))
	for _, col := range layout {
		if col.Text {
			vals := make([]string, len(rows))
			for i, row := range rekeyed {
				v, ok := row[col.Name]
				if !ok || v == nil {
					continue
				}
				vals[i] = textValue(v)
			}
			f.AddString(col.Name, vals)
			continue
		}

		vals := make([]float64, len(rows))
		for i, row := range rekeyed {
			v, ok := row[col.Name]
			if !ok || v == nil {
				vals[i] = math.NaN()
				continue
			}
			num, err := numericValue(v)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Row: i, Field: col.Name, Error: err.Error()})
				continue
			}
			vals[i] = num
		}
		f.AddFloat(col.Name, vals)
	}

	// Required per row: the transaction ID.
	ids := f.Floats(cfg.IDColumn)
	for i := range rows {
		if _, ok := rekeyed[i][cfg.IDColumn]; !ok {
			rowErrs = append(rowErrs, RowError{Row: i, Field: cfg.IDColumn, Error: "required"})
		} else if len(ids) == len(rows) && math.IsNaN(ids[i]) {
			rowErrs = append(rowErrs, RowError{Row: i, Field: cfg.IDColumn, Error: "required"})
		}
	}

	// Extra columns: numeric when every present value is numeric, text
	// otherwise.
	for _, name := range extraOrder {
		numeric := true
		for _, row := range rekeyed {
			v, ok := row[name]
			if !ok || v == nil {
				continue
			}
			if _, err := numericValue(v); err != nil {
				numeric = false
				break
			}
		}
		if numeric {
			vals := make([]float64, len(rows))
			for i, row := range rekeyed {
				v, ok := row[name]
				if !ok || v == nil {
					vals[i] = math.NaN()
					continue
				}
				vals[i], _ = numericValue(v)
			}
			f.AddFloat(name, vals)
		} else {
			vals := make([]string, len(rows))
			for i, row := range rekeyed {
				if v, ok := row[name]; ok && v != nil {
					vals[i] = textValue(v)
				}
			}
			f.AddString(name, vals)
		}
	}

	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	return f, nil
}

// numericValue coerces a JSON value to float64. Strings must parse fully.
func numericValue(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return math.NaN(), nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("expected numeric value, got %q", x)
		}
		return num, nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", v)
	}
}

// textValue renders a JSON value as a string column cell.
func textValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return frame.FormatValue(x)
	case bool:
		if x {
			return "T"
		}
		return "F"
	default:
		return fmt.Sprintf("%v", x)
	}
}
