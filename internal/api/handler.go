package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"fraudlens/internal/config"
	"fraudlens/internal/domain"
	"fraudlens/internal/drift"
	"fraudlens/internal/inference"
	"fraudlens/internal/observability"
	"fraudlens/internal/schema"
	"fraudlens/internal/storage"
)

// Handler holds dependencies for API handlers. The pipeline may be nil
// until a model is published; requests then get 503.
type Handler struct {
	mu       sync.RWMutex
	pipeline *inference.Pipeline

	monitor *drift.Monitor
	predLog storage.PredictionLogStore
	cfg     config.TransformConfig
	logger  *log.Logger

	// sem bounds concurrent scoring; log writes stay async.
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewHandler creates a new API handler. maxConcurrent bounds in-flight
// scoring requests; zero means a sensible default.
func NewHandler(pipeline *inference.Pipeline, monitor *drift.Monitor, predLog storage.PredictionLogStore, cfg config.TransformConfig, maxConcurrent int, logger *log.Logger) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{
		pipeline: pipeline,
		monitor:  monitor,
		predLog:  predLog,
		cfg:      cfg,
		logger:   logger,
		sem:      make(chan struct{}, maxConcurrent),
	}
	if pipeline != nil {
		observability.RecordModelLoaded(pipeline.Version())
	}
	return h
}

// SetPipeline swaps in a newly loaded model bundle.
func (h *Handler) SetPipeline(p *inference.Pipeline) {
	h.mu.Lock()
	h.pipeline = p
	h.mu.Unlock()
	if p != nil {
		observability.RecordModelLoaded(p.Version())
	}
}

// Wait blocks until async log writes finish. Used by shutdown and tests.
func (h *Handler) Wait() { h.wg.Wait() }

func (h *Handler) currentPipeline() *inference.Pipeline {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pipeline
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	Predictions  []inference.Prediction `json:"predictions"`
	Total        int                    `json:"total"`
	FraudCount   int                    `json:"fraud_count"`
	FraudRate    float64                `json:"fraud_rate"`
	ModelVersion int                    `json:"model_version"`
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	pipeline := h.currentPipeline()
	if pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no model loaded",
		})
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions is required and must not be empty",
		})
		return
	}

	batch, rowErrs := buildFrame(req.Transactions, h.cfg)
	if len(rowErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "batch validation failed",
			"row_errors": rowErrs,
		})
		return
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-r.Context().Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "request cancelled while waiting for capacity",
		})
		return
	}

	preds, err := pipeline.Predict(r.Context(), batch)
	if err != nil {
		status := http.StatusInternalServerError
		if isValidationError(err) {
			status = http.StatusUnprocessableEntity
		}
		h.logger.Printf("predict failed request_id=%s: %v", GetRequestID(r.Context()), err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	scores := make([]float64, len(preds))
	fraud := 0
	for i, p := range preds {
		scores[i] = p.Probability
		if p.Label == 1 {
			fraud++
		}
	}
	observability.RecordBatch(scores)
	if h.monitor != nil {
		h.monitor.ObserveBatch(scores)
	}
	h.logPredictions(preds, pipeline.Version(), GetRequestID(r.Context()))

	writeJSON(w, http.StatusOK, PredictResponse{
		Predictions:  preds,
		Total:        len(preds),
		FraudCount:   fraud,
		FraudRate:    float64(fraud) / float64(len(preds)),
		ModelVersion: pipeline.Version(),
	})
}

// logPredictions writes the audit log asynchronously; a slow log store
// never delays the response.
func (h *Handler) logPredictions(preds []inference.Prediction, version int, requestID string) {
	if h.predLog == nil {
		return
	}
	records := make([]*domain.PredictionRecord, len(preds))
	now := time.Now().UTC()
	for i, p := range preds {
		records[i] = &domain.PredictionRecord{
			TransactionID: p.TransactionID,
			Probability:   p.Probability,
			Label:         p.Label,
			ModelVersion:  version,
			RequestID:     requestID,
			ScoredAt:      now,
		}
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.predLog.InsertBulk(ctx, records); err != nil {
			h.logger.Printf("prediction log write failed request_id=%s: %v", requestID, err)
		}
	}()
}

// Health handles GET /health requests.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	pipeline := h.currentPipeline()
	resp := map[string]any{
		"status":       "ok",
		"model_loaded": pipeline != nil,
	}
	if pipeline != nil {
		resp["model_version"] = pipeline.Version()
		resp["model_name"] = pipeline.ModelName()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Drift handles GET /drift requests.
func (h *Handler) Drift(w http.ResponseWriter, _ *http.Request) {
	if h.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "drift monitoring disabled",
		})
		return
	}
	report := h.monitor.Check()
	observability.RecordDrift(report.KSStatistic, report.RateDelta, report.PredictionDrift, report.LabelDrift)
	writeJSON(w, http.StatusOK, report)
}

// isValidationError reports whether a predict failure is the client's
// fault rather than the server's.
func isValidationError(err error) bool {
	return errors.Is(err, schema.ErrValidation)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
