// Package schema persists and validates named column→dtype snapshots.
package schema

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fraudlens/internal/frame"
)

// ErrValidation is returned when a strict comparison does not match.
var ErrValidation = errors.New("schema validation failed")

// Registry binds schema snapshots to one YAML document on disk.
type Registry struct {
	path   string
	logger *log.Logger
}

// NewRegistry creates a registry over the given YAML path.
func NewRegistry(path string, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stdout, "[schema] ", log.LstdFlags)
	}
	return &Registry{path: path, logger: logger}
}

// Result describes a schema comparison.
type Result struct {
	Match           bool
	MissingColumns  []string
	ExtraColumns    []string
	DtypeMismatches map[string]string
}

// Save merges the named snapshot into the document, never touching other
// entries. The file is created on first use.
func (r *Registry) Save(name string, cols map[string]string) error {
	doc, err := r.load()
	if err != nil {
		return err
	}

	doc[name] = cols

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal schema document: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create schema dir: %w", err)
		}
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("write schema document: %w", err)
	}

	r.logger.Printf("Saved schema %q (%d columns)", name, len(cols))
	return nil
}

// SaveFrame snapshots a frame's columns under the given name.
func (r *Registry) SaveFrame(name string, f *frame.Frame) error {
	return r.Save(name, f.Dtypes())
}

// Load returns the named snapshot. The second return is false when the file
// or the entry does not exist (first run).
func (r *Registry) Load(name string) (map[string]string, bool, error) {
	doc, err := r.load()
	if err != nil {
		return nil, false, err
	}
	cols, ok := doc[name]
	return cols, ok, nil
}

// Compare checks a frame against the named snapshot. A missing file or
// entry is treated as a first run and reports a match so the pipeline can
// bootstrap. With strict=true a mismatch returns ErrValidation.
func (r *Registry) Compare(f *frame.Frame, name string, strict bool) (*Result, error) {
	expected, ok, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger.Printf("No stored schema %q, treating as first run", name)
		return &Result{Match: true}, nil
	}
	return r.compare(f, name, expected, strict)
}

// CompareForInference checks a frame against the named snapshot with the
// target column removed from the expected set, since clients never supply
// the label.
func (r *Registry) CompareForInference(f *frame.Frame, name, target string, strict bool) (*Result, error) {
	expected, ok, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger.Printf("No stored schema %q, treating as first run", name)
		return &Result{Match: true}, nil
	}

	trimmed := make(map[string]string, len(expected))
	for col, dtype := range expected {
		if col == target {
			continue
		}
		trimmed[col] = dtype
	}
	return r.compare(f, name, trimmed, strict)
}

func (r *Registry) compare(f *frame.Frame, name string, expected map[string]string, strict bool) (*Result, error) {
	actual := f.Dtypes()

	res := &Result{Match: true, DtypeMismatches: make(map[string]string)}

	for col, want := range expected {
		got, ok := actual[col]
		if !ok {
			res.MissingColumns = append(res.MissingColumns, col)
			continue
		}
		if family(want) != family(got) {
			res.DtypeMismatches[col] = fmt.Sprintf("expected %s, got %s", want, got)
		}
	}
	for col := range actual {
		if _, ok := expected[col]; !ok {
			res.ExtraColumns = append(res.ExtraColumns, col)
		}
	}

	if len(res.MissingColumns) > 0 || len(res.DtypeMismatches) > 0 {
		res.Match = false
	}

	if !res.Match {
		if strict {
			return res, fmt.Errorf("%w: schema %q missing=%v mismatches=%v",
				ErrValidation, name, res.MissingColumns, res.DtypeMismatches)
		}
		r.logger.Printf("Schema %q mismatch (non-strict): missing=%v extra=%d mismatches=%v",
			name, res.MissingColumns, len(res.ExtraColumns), res.DtypeMismatches)
	}

	return res, nil
}

// load reads the whole document, returning an empty map when the file does
// not exist yet.
func (r *Registry) load() (map[string]map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]map[string]string), nil
		}
		return nil, fmt.Errorf("read schema document: %w", err)
	}

	doc := make(map[string]map[string]string)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}
	if doc == nil {
		doc = make(map[string]map[string]string)
	}
	return doc, nil
}

// family reduces a dtype string to its comparison family. Any integer width
// matches any other integer width, floats match floats, and all textual
// dtypes match each other; only numeric-vs-text is a real mismatch.
func family(dtype string) string {
	d := strings.ToLower(dtype)
	switch {
	case strings.HasPrefix(d, "int"), strings.HasPrefix(d, "uint"),
		strings.HasPrefix(d, "float"):
		return "numeric"
	default:
		return "text"
	}
}
