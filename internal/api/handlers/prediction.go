package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/api/middleware"
	"github.com/newvantageco/riskstrat/internal/domain/risk"
	"github.com/newvantageco/riskstrat/internal/engine"
	"github.com/newvantageco/riskstrat/internal/observability/metrics"
)

// PredictionHandler handles predictive model and analysis endpoints
type PredictionHandler struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPredictionHandler creates a new handler. Metrics may be nil.
func NewPredictionHandler(eng *engine.Engine, m *metrics.Metrics, logger *zap.Logger) *PredictionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionHandler{engine: eng, metrics: m, logger: logger}
}

// ModelRoutes returns the model catalog routes
func (h *PredictionHandler) ModelRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateModel)
	r.Get("/{id}", h.GetModel)
	r.Post("/{id}/deactivate", h.DeactivateModel)
	return r
}

// AnalysisRoutes returns the analysis routes
func (h *PredictionHandler) AnalysisRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RunAnalysis)
	r.Get("/{id}", h.GetAnalysis)
	r.Get("/patients/{patientID}", h.AnalysesByPatient)
	return r
}

// CreateModelRequest is the request body for registering a model
type CreateModelRequest struct {
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	ModelType     string     `json:"model_type"`
	Description   string     `json:"description"`
	InputFeatures []string   `json:"input_features"`
	OutputMetric  string     `json:"output_metric"`
	Accuracy      float64    `json:"accuracy"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	CreatedBy     string     `json:"created_by"`
}

// CreateModel handles POST /models
func (h *PredictionHandler) CreateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("prediction-handler")
	ctx, span := tracer.Start(ctx, "create_model")
	defer span.End()

	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	if len(req.InputFeatures) == 0 {
		jsonError(w, "input_features is required", http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.String("model_name", req.Name))

	m, err := h.engine.CreateModel(ctx, middleware.GetTenantID(ctx),
		req.Name, req.Version, req.ModelType, req.Description,
		req.InputFeatures, req.OutputMetric, req.Accuracy,
		req.ValidFrom, req.ValidUntil, req.CreatedBy)
	if err != nil {
		h.logger.Error("create model failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// GetModel handles GET /models/{id}
func (h *PredictionHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	m, err := h.engine.Model(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// DeactivateModel handles POST /models/{id}/deactivate
func (h *PredictionHandler) DeactivateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	m, err := h.engine.DeactivateModel(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// RunAnalysisRequest is the request body for running a predictive analysis
type RunAnalysisRequest struct {
	PatientID string                `json:"patient_id"`
	ModelID   string                `json:"model_id"`
	InputData map[string]risk.Value `json:"input_data"`
}

// RunAnalysis handles POST /analyses
func (h *PredictionHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("prediction-handler")
	ctx, span := tracer.Start(ctx, "run_analysis")
	defer span.End()

	var req RunAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" || req.ModelID == "" {
		jsonError(w, "patient_id and model_id are required", http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("patient_id", req.PatientID),
		attribute.String("model_id", req.ModelID),
	)

	a, err := h.engine.RunAnalysis(ctx, middleware.GetTenantID(ctx), req.PatientID, req.ModelID, req.InputData)
	if err != nil {
		h.logger.Error("analysis failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.String("model_id", req.ModelID),
			zap.Error(err))
		domainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AnalysesRun.Inc()
	}

	writeJSON(w, http.StatusCreated, a)
}

// GetAnalysis handles GET /analyses/{id}
func (h *PredictionHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	a, err := h.engine.AnalysisByID(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// AnalysesByPatient handles GET /analyses/patients/{patientID}
func (h *PredictionHandler) AnalysesByPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	list, err := h.engine.PatientAnalyses(ctx, middleware.GetTenantID(ctx), patientID)
	if err != nil {
		domainError(w, err)
		return
	}
	if list == nil {
		list = []*risk.Analysis{}
	}

	writeJSON(w, http.StatusOK, list)
}
