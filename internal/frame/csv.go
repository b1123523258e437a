package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// ReadCSV parses CSV data into a frame. Column kinds are inferred: a column
// whose non-empty cells all parse as numbers becomes a float column,
// anything else becomes a string column. Empty cells are missing values.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cells := make([][]string, len(header))
	rows := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rows+1, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("csv row %d: %d cells for %d columns", rows+1, len(rec), len(header))
		}
		for i, v := range rec {
			cells[i] = append(cells[i], v)
		}
		rows++
	}

	f := New(rows)
	for i, name := range header {
		numeric := true
		for _, v := range cells[i] {
			if v == "" {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
				break
			}
		}
		if numeric {
			vals := make([]float64, rows)
			for j, v := range cells[i] {
				if v == "" {
					vals[j] = math.NaN()
					continue
				}
				vals[j], _ = strconv.ParseFloat(v, 64)
			}
			f.AddFloat(name, vals)
		} else {
			f.AddString(name, cells[i])
		}
	}
	return f, nil
}

// ReadCSVFile reads a frame from a CSV file.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// WriteCSV writes the frame as CSV. Missing values are written as empty
// cells. Integral floats are written without a decimal part.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(f.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rec := make([]string, len(f.cols))
	for i := 0; i < f.rows; i++ {
		for j, c := range f.cols {
			if c.Kind == String {
				rec[j] = c.Strings[i]
				continue
			}
			v := c.Floats[i]
			if math.IsNaN(v) {
				rec[j] = ""
				continue
			}
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the frame to a CSV file.
func (f *Frame) WriteCSVFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	return f.WriteCSV(file)
}

// FormatValue renders a float the way derived string features expect:
// integral values without a trailing decimal part. NaN renders as "".
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
