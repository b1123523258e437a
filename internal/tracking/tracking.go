// Package tracking records training runs as append-only experiment logs.
package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"fraudlens/internal/model"
)

// Run is one training run's record.
type Run struct {
	RunID      string             `json:"run_id"`
	ModelName  string             `json:"model_name"`
	Version    int                `json:"version"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Params     map[string]float64 `json:"params"`
	Metrics    model.Metrics      `json:"metrics"`
	TrainRows  int                `json:"train_rows"`
	TestRows   int                `json:"test_rows"`
}

// Tracker receives completed runs. Implementations must be safe for
// concurrent use.
type Tracker interface {
	LogRun(run Run) error
}

// FileTracker appends runs as JSON lines to a single file.
type FileTracker struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewFileTracker creates the tracker; the file is created on first log.
func NewFileTracker(path string, logger *log.Logger) *FileTracker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &FileTracker{path: path, logger: logger}
}

func (t *FileTracker) LogRun(run Run) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log %s: %w", t.path, err)
	}
	defer file.Close()

	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.RunID, err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append run %s: %w", run.RunID, err)
	}
	t.logger.Printf("logged run %s (%s_v%d)", run.RunID, run.ModelName, run.Version)
	return nil
}

// Runs reads back every recorded run, oldest first.
func (t *FileTracker) Runs() ([]Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run log %s: %w", t.path, err)
	}

	var runs []Run
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var r Run
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode run log %s: %w", t.path, err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// Noop discards every run. Used when experiment tracking is disabled.
type Noop struct{}

func (Noop) LogRun(Run) error { return nil }

var (
	_ Tracker = (*FileTracker)(nil)
	_ Tracker = Noop{}
)
