package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/api/middleware"
	"github.com/newvantageco/riskstrat/internal/domain/risk"
	"github.com/newvantageco/riskstrat/internal/engine"
)

// PopulationHandler handles social determinant, cohort, and statistics
// endpoints.
type PopulationHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewPopulationHandler creates a new handler
func NewPopulationHandler(eng *engine.Engine, logger *zap.Logger) *PopulationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PopulationHandler{engine: eng, logger: logger}
}

// DeterminantRoutes returns the social determinant routes
func (h *PopulationHandler) DeterminantRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RecordDeterminant)
	r.Get("/{id}", h.GetDeterminant)
	r.Patch("/{id}", h.UpdateDeterminant)
	r.Get("/patients/{patientID}", h.DeterminantsByPatient)
	r.Get("/categories/{category}", h.DeterminantsByCategory)
	return r
}

// CohortRoutes returns the cohort routes
func (h *PopulationHandler) CohortRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateCohort)
	r.Get("/{id}", h.GetCohort)
	r.Post("/{id}/recount", h.RecountCohort)
	r.Get("/patients/{patientID}", h.CohortsByPatient)
	return r
}

// StatisticsRoutes returns the statistics routes
func (h *PopulationHandler) StatisticsRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Statistics)
	return r
}

// RecordDeterminantRequest is the request body for recording a determinant
type RecordDeterminantRequest struct {
	PatientID    string                   `json:"patient_id"`
	Category     risk.DeterminantCategory `json:"category"`
	Factor       string                   `json:"factor"`
	Severity     risk.Severity            `json:"severity"`
	Description  string                   `json:"description"`
	Impact       string                   `json:"impact"`
	IdentifiedBy string                   `json:"identified_by"`
}

// RecordDeterminant handles POST /determinants
func (h *PopulationHandler) RecordDeterminant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RecordDeterminantRequest
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
	if !req.Severity.IsValid() {
		jsonError(w, "invalid severity", http.StatusBadRequest)
		return
	}

	d, err := h.engine.RecordDeterminant(ctx, middleware.GetTenantID(ctx),
		req.PatientID, req.Category, req.Factor, req.Severity,
		req.Description, req.Impact, req.IdentifiedBy)
	if err != nil {
		h.logger.Error("record determinant failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// GetDeterminant handles GET /determinants/{id}
func (h *PopulationHandler) GetDeterminant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	d, err := h.engine.Determinant(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// UpdateDeterminantRequest is the request body for a partial determinant
// update. Omitted fields are left unchanged.
type UpdateDeterminantRequest struct {
	Status        *risk.DeterminantStatus `json:"status,omitempty"`
	Interventions *[]string               `json:"interventions,omitempty"`
	ResolvedDate  *time.Time              `json:"resolved_date,omitempty"`
}

// UpdateDeterminant handles PATCH /determinants/{id}
func (h *PopulationHandler) UpdateDeterminant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req UpdateDeterminantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status != nil && !req.Status.IsValid() {
		jsonError(w, "invalid status", http.StatusBadRequest)
		return
	}

	d, err := h.engine.UpdateDeterminant(ctx, middleware.GetTenantID(ctx), id, engine.DeterminantUpdate{
		Status:        req.Status,
		Interventions: req.Interventions,
		ResolvedDate:  req.ResolvedDate,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// DeterminantsByPatient handles GET /determinants/patients/{patientID}
func (h *PopulationHandler) DeterminantsByPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	list, err := h.engine.PatientDeterminants(ctx, middleware.GetTenantID(ctx), patientID)
	if err != nil {
		domainError(w, err)
		return
	}
	if list == nil {
		list = []*risk.Determinant{}
	}

	writeJSON(w, http.StatusOK, list)
}

// DeterminantsByCategory handles GET /determinants/categories/{category}
func (h *PopulationHandler) DeterminantsByCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := risk.DeterminantCategory(chi.URLParam(r, "category"))
	if !category.IsValid() {
		jsonError(w, "invalid category", http.StatusBadRequest)
		return
	}

	list, err := h.engine.DeterminantsByCategory(ctx, middleware.GetTenantID(ctx), category)
	if err != nil {
		domainError(w, err)
		return
	}
	if list == nil {
		list = []*risk.Determinant{}
	}

	writeJSON(w, http.StatusOK, list)
}

// CreateCohortRequest is the request body for creating a cohort
type CreateCohortRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Criteria    []risk.Criterion `json:"criteria"`
	RiskLevels  []risk.Level     `json:"risk_levels"`
	CreatedBy   string           `json:"created_by"`
}

// CreateCohort handles POST /cohorts
func (h *PopulationHandler) CreateCohort(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	for _, l := range req.RiskLevels {
		if !l.IsValid() {
			jsonError(w, "invalid risk level", http.StatusBadRequest)
			return
		}
	}
	for _, c := range req.Criteria {
		if !c.Operator.IsValid() {
			jsonError(w, "invalid criterion operator", http.StatusBadRequest)
			return
		}
	}

	c, err := h.engine.CreateCohort(ctx, middleware.GetTenantID(ctx),
		req.Name, req.Description, req.Criteria, req.RiskLevels, req.CreatedBy)
	if err != nil {
		h.logger.Error("create cohort failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// GetCohort handles GET /cohorts/{id}
func (h *PopulationHandler) GetCohort(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	c, err := h.engine.CohortByID(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// RecountCohort handles POST /cohorts/{id}/recount
func (h *PopulationHandler) RecountCohort(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	c, err := h.engine.RecountCohort(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// CohortsByPatient handles GET /cohorts/patients/{patientID}
func (h *PopulationHandler) CohortsByPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "patientID")

	list, err := h.engine.PatientCohorts(ctx, middleware.GetTenantID(ctx), patientID)
	if err != nil {
		domainError(w, err)
		return
	}
	if list == nil {
		list = []*risk.Cohort{}
	}

	writeJSON(w, http.StatusOK, list)
}

// Statistics handles GET /statistics. Optional start and end query
// parameters (RFC 3339) bound the aggregation window.
func (h *PopulationHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var start, end *time.Time
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, "invalid start time", http.StatusBadRequest)
			return
		}
		start = &t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, "invalid end time", http.StatusBadRequest)
			return
		}
		end = &t
	}

	stats, err := h.engine.Statistics(ctx, middleware.GetTenantID(ctx), start, end)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
