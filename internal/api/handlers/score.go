package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/api/middleware"
	"github.com/newvantageco/riskstrat/internal/domain/risk"
	"github.com/newvantageco/riskstrat/internal/engine"
	"github.com/newvantageco/riskstrat/internal/observability/metrics"
)

// ScoreHandler handles risk score endpoints
type ScoreHandler struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewScoreHandler creates a new handler. Metrics may be nil.
func NewScoreHandler(eng *engine.Engine, m *metrics.Metrics, logger *zap.Logger) *ScoreHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreHandler{engine: eng, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *ScoreHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Calculate)
	r.Get("/{id}", h.Get)
	r.Get("/patients/{patientID}/latest", h.Latest)
	r.Get("/levels/{level}/patients", h.PatientsByLevel)
	return r
}

// CalculateScoreRequest is the request body for calculating a risk score
type CalculateScoreRequest struct {
	PatientID    string        `json:"patient_id"`
	ScoreType    string        `json:"score_type"`
	Category     risk.Category `json:"category"`
	Factors      []risk.Factor `json:"factors"`
	CalculatedBy string        `json:"calculated_by"`
}

// Calculate handles POST /scores
func (h *ScoreHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("score-handler")
	ctx, span := tracer.Start(ctx, "calculate_score")
	defer span.End()

	var req CalculateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.PatientID == "" {
		jsonError(w, "patient_id is required", http.StatusBadRequest)
		return
	}
	if !req.Category.IsValid() {
		jsonError(w, "invalid category", http.StatusBadRequest)
		return
	}

	tenantID := middleware.GetTenantID(ctx)
	span.SetAttributes(
		attribute.String("patient_id", req.PatientID),
		attribute.String("score_type", req.ScoreType),
	)

	score, err := h.engine.CalculateRiskScore(ctx, tenantID, req.PatientID, req.ScoreType, req.Category, req.Factors, req.CalculatedBy)
	if err != nil {
		h.logger.Error("score calculation failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		domainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ScoresCalculated.WithLabelValues(string(score.RiskLevel)).Inc()
	}

	writeJSON(w, http.StatusCreated, score)
}

// Get handles GET /scores/{id}
func (h *ScoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	score, err := h.engine.RiskScore(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// Latest handles GET /scores/patients/{patientID}/latest.
// An optional score_type query parameter narrows the search.
func (h *ScoreHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")
	scoreType := r.URL.Query().Get("score_type")

	score, err := h.engine.LatestRiskScore(ctx, middleware.GetTenantID(ctx), patientID, scoreType)
	if err != nil {
		domainError(w, err)
		return
	}
	if score == nil {
		jsonError(w, "no valid score", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// PatientsByLevel handles GET /scores/levels/{level}/patients.
// An optional category query parameter narrows to one score category.
func (h *ScoreHandler) PatientsByLevel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	level := risk.Level(chi.URLParam(r, "level"))
	if !level.IsValid() {
		jsonError(w, "invalid risk level", http.StatusBadRequest)
		return
	}

	category := risk.Category(r.URL.Query().Get("category"))
	if category != "" && !category.IsValid() {
		jsonError(w, "invalid category", http.StatusBadRequest)
		return
	}

	patients, err := h.engine.PatientsByRiskLevel(ctx, middleware.GetTenantID(ctx), level, category)
	if err != nil {
		domainError(w, err)
		return
	}
	if patients == nil {
		patients = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"risk_level": level,
		"patients":   patients,
		"count":      len(patients),
	})
}
