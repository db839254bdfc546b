package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// CreateAssessment initializes a pending health risk assessment with no
// responses.
func (e *Engine) CreateAssessment(ctx context.Context, tenantID, patientID, assessmentType string, expirationDate time.Time) (*risk.Assessment, error) {
	a := &risk.Assessment{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		PatientID:       patientID,
		AssessmentType:  assessmentType,
		Status:          risk.AssessmentPending,
		Responses:       []risk.Response{},
		TotalScore:      0,
		RiskLevel:       risk.LevelLow,
		Recommendations: []string{},
		CreatedDate:     e.now(),
		ExpirationDate:  expirationDate,
	}

	if err := e.store.CreateAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("persist assessment: %w", err)
	}

	e.logger.Info("assessment created",
		zap.String("tenant_id", tenantID),
		zap.String("patient_id", patientID),
		zap.String("assessment_type", assessmentType))

	return a, nil
}

// Assessment retrieves an assessment by ID.
func (e *Engine) Assessment(ctx context.Context, tenantID, id string) (*risk.Assessment, error) {
	return e.store.Assessment(ctx, tenantID, id)
}

// RecordResponse upserts a scored response by question ID and moves the
// assessment into in_progress. Terminal assessments reject new responses.
func (e *Engine) RecordResponse(ctx context.Context, tenantID, id string, resp risk.Response) (*risk.Assessment, error) {
	a, err := e.store.Assessment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if a.Status.Terminal() {
		return nil, fmt.Errorf("record response on %s assessment: %w", a.Status, risk.ErrInvalidState)
	}
	if !a.Status.CanTransition(risk.AssessmentInProgress) {
		return nil, fmt.Errorf("transition %s -> %s: %w", a.Status, risk.AssessmentInProgress, risk.ErrInvalidState)
	}

	replaced := false
	for i, existing := range a.Responses {
		if existing.QuestionID == resp.QuestionID {
			a.Responses[i] = resp
			replaced = true
			break
		}
	}
	if !replaced {
		a.Responses = append(a.Responses, resp)
	}
	a.Status = risk.AssessmentInProgress

	if err := e.store.UpdateAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("persist response: %w", err)
	}

	return a, nil
}

// CompleteAssessment sums response scores, derives the risk level, generates
// recommendations, and moves the assessment to completed. Completing a
// terminal assessment fails.
func (e *Engine) CompleteAssessment(ctx context.Context, tenantID, id, administeredBy string) (*risk.Assessment, error) {
	ctx, span := e.tracer.Start(ctx, "complete_assessment",
		trace.WithAttributes(attribute.String("assessment_id", id)))
	defer span.End()

	a, err := e.store.Assessment(ctx, tenantID, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !a.Status.CanTransition(risk.AssessmentCompleted) {
		return nil, fmt.Errorf("complete %s assessment: %w", a.Status, risk.ErrInvalidState)
	}

	var total float64
	byCategory := make(map[string]float64)
	for _, r := range a.Responses {
		total += r.Score
		byCategory[r.Category] += r.Score
	}

	now := e.now()
	a.TotalScore = total
	a.RiskLevel = e.config.Thresholds.LevelFor(total)
	a.Recommendations = e.assessmentRecommendations(total, byCategory)
	a.Status = risk.AssessmentCompleted
	a.CompletedDate = &now
	a.AdministeredBy = administeredBy

	if err := e.store.UpdateAssessment(ctx, a); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist completion: %w", err)
	}

	e.logger.Info("assessment completed",
		zap.String("tenant_id", tenantID),
		zap.String("assessment_id", id),
		zap.Float64("total_score", total),
		zap.String("risk_level", string(a.RiskLevel)))

	e.emitSignal(ctx, &Signal{
		TenantID:        tenantID,
		PatientID:       a.PatientID,
		Source:          SignalSourceAssessment,
		SourceID:        a.ID,
		RiskLevel:       a.RiskLevel,
		Score:           total,
		Recommendations: a.Recommendations,
		OccurredAt:      now,
	})

	span.SetAttributes(
		attribute.Float64("total_score", total),
		attribute.String("risk_level", string(a.RiskLevel)),
	)

	return a, nil
}

// MarkExpired moves a non-terminal assessment to expired. Expiry is driven
// by the caller once the expiration date passes; the engine does not run
// timers of its own.
func (e *Engine) MarkExpired(ctx context.Context, tenantID, id string) (*risk.Assessment, error) {
	a, err := e.store.Assessment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(risk.AssessmentExpired) {
		return nil, fmt.Errorf("expire %s assessment: %w", a.Status, risk.ErrInvalidState)
	}
	a.Status = risk.AssessmentExpired
	if err := e.store.UpdateAssessment(ctx, a); err != nil {
		return nil, fmt.Errorf("persist expiry: %w", err)
	}
	return a, nil
}

// PatientAssessments lists a patient's assessments.
func (e *Engine) PatientAssessments(ctx context.Context, tenantID, patientID string) ([]*risk.Assessment, error) {
	return e.store.AssessmentsByPatient(ctx, tenantID, patientID)
}

// assessmentRecommendations flags each response category whose summed score
// reaches the category threshold, then appends an overall recommendation for
// high and very high total scores.
func (e *Engine) assessmentRecommendations(total float64, byCategory map[string]float64) []string {
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	recs := []string{}
	for _, c := range categories {
		if byCategory[c] >= e.config.CategoryFlagScore {
			recs = append(recs, fmt.Sprintf("Targeted intervention recommended for %s risk factors", c))
		}
	}

	switch {
	case total >= e.config.Thresholds.VeryHigh:
		recs = append(recs, "Very high risk - immediate care-management enrollment")
	case total >= e.config.Thresholds.High:
		recs = append(recs, "High risk - care coordination and monitoring")
	}

	return recs
}
