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

// AssessmentHandler handles health risk assessment endpoints
type AssessmentHandler struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAssessmentHandler creates a new handler. Metrics may be nil.
func NewAssessmentHandler(eng *engine.Engine, m *metrics.Metrics, logger *zap.Logger) *AssessmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentHandler{engine: eng, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *AssessmentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/responses", h.RecordResponse)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/expire", h.Expire)
	r.Get("/patients/{patientID}", h.ByPatient)
	return r
}

// CreateAssessmentRequest is the request body for starting an assessment
type CreateAssessmentRequest struct {
	PatientID      string    `json:"patient_id"`
	AssessmentType string    `json:"assessment_type"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// Create handles POST /assessments
func (h *AssessmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("assessment-handler")
	ctx, span := tracer.Start(ctx, "create_assessment")
	defer span.End()

	var req CreateAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" {
		jsonError(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.String("patient_id", req.PatientID))

	a, err := h.engine.CreateAssessment(ctx, middleware.GetTenantID(ctx), req.PatientID, req.AssessmentType, req.ExpirationDate)
	if err != nil {
		h.logger.Error("create assessment failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// Get handles GET /assessments/{id}
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	a, err := h.engine.Assessment(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// RecordResponse handles POST /assessments/{id}/responses
func (h *AssessmentHandler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var resp risk.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if resp.QuestionID == "" {
		jsonError(w, "question_id is required", http.StatusBadRequest)
		return
	}

	a, err := h.engine.RecordResponse(ctx, middleware.GetTenantID(ctx), id, resp)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// CompleteRequest is the request body for completing an assessment
type CompleteRequest struct {
	AdministeredBy string `json:"administered_by"`
}

// Complete handles POST /assessments/{id}/complete
func (h *AssessmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.engine.CompleteAssessment(ctx, middleware.GetTenantID(ctx), id, req.AdministeredBy)
	if err != nil {
		domainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AssessmentsCompleted.Inc()
	}

	writeJSON(w, http.StatusOK, a)
}

// Expire handles POST /assessments/{id}/expire
func (h *AssessmentHandler) Expire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	a, err := h.engine.MarkExpired(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AssessmentsExpired.Inc()
	}

	writeJSON(w, http.StatusOK, a)
}

// ByPatient handles GET /assessments/patients/{patientID}
func (h *AssessmentHandler) ByPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	list, err := h.engine.PatientAssessments(ctx, middleware.GetTenantID(ctx), patientID)
	if err != nil {
		domainError(w, err)
		return
	}
	if list == nil {
		list = []*risk.Assessment{}
	}

	writeJSON(w, http.StatusOK, list)
}
