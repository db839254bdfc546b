package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// CreateModel registers a predictive model in the catalog. Models are
// append-only: deactivation flips IsActive, nothing is deleted.
func (e *Engine) CreateModel(ctx context.Context, tenantID, name, version, modelType, description string, inputFeatures []string, outputMetric string, accuracy float64, validFrom time.Time, validUntil *time.Time, createdBy string) (*risk.Model, error) {
	m := &risk.Model{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          name,
		Version:       version,
		ModelType:     modelType,
		Description:   description,
		InputFeatures: inputFeatures,
		OutputMetric:  outputMetric,
		Accuracy:      accuracy,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		IsActive:      true,
		CreatedBy:     createdBy,
	}

	if err := e.store.CreateModel(ctx, m); err != nil {
		return nil, fmt.Errorf("persist model: %w", err)
	}

	e.logger.Info("predictive model registered",
		zap.String("tenant_id", tenantID),
		zap.String("model", name),
		zap.String("version", version),
		zap.Float64("accuracy", accuracy))

	return m, nil
}

// Model retrieves a model by ID.
func (e *Engine) Model(ctx context.Context, tenantID, id string) (*risk.Model, error) {
	return e.store.Model(ctx, tenantID, id)
}

// DeactivateModel retires a model from serving analyses.
func (e *Engine) DeactivateModel(ctx context.Context, tenantID, id string) (*risk.Model, error) {
	m, err := e.store.Model(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	m.IsActive = false
	if err := e.store.UpdateModel(ctx, m); err != nil {
		return nil, fmt.Errorf("persist deactivation: %w", err)
	}
	return m, nil
}

// RunAnalysis executes the deterministic prediction simulation for a patient
// against a registered model. Every declared input feature must be present
// in inputData; extra keys are ignored. The result is persisted and never
// mutated afterward.
func (e *Engine) RunAnalysis(ctx context.Context, tenantID, patientID, modelID string, inputData map[string]risk.Value) (*risk.Analysis, error) {
	ctx, span := e.tracer.Start(ctx, "run_predictive_analysis",
		trace.WithAttributes(
			attribute.String("patient_id", patientID),
			attribute.String("model_id", modelID),
		))
	defer span.End()

	m, err := e.store.Model(ctx, tenantID, modelID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := e.now()
	if !m.Usable(now) {
		return nil, fmt.Errorf("model %s v%s: %w", m.Name, m.Version, risk.ErrInactiveModel)
	}

	for _, feature := range m.InputFeatures {
		if _, ok := inputData[feature]; !ok {
			return nil, &risk.MissingFeatureError{Feature: feature}
		}
	}

	// Contributions are accumulated in declaration order; the sum is
	// order-independent, the factor list is not sorted by magnitude.
	var sum float64
	factors := make([]risk.ContributingFactor, 0, len(m.InputFeatures))
	for _, feature := range m.InputFeatures {
		c := inputData[feature].Contribution()
		sum += c
		factors = append(factors, risk.ContributingFactor{
			Factor:       feature,
			Contribution: math.Round(c * 100),
		})
	}

	probability := 0.0
	if len(m.InputFeatures) > 0 {
		probability = math.Min(sum/float64(len(m.InputFeatures)), 1)
	}

	a := &risk.Analysis{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		PatientID:           patientID,
		ModelID:             m.ID,
		ModelName:           m.Name,
		PredictedOutcome:    m.OutputMetric,
		Probability:         probability,
		Confidence:          m.Accuracy,
		RiskLevel:           e.config.Thresholds.LevelFor(probability * 100),
		ContributingFactors: factors,
		Recommendations:     e.analysisRecommendations(probability, m.OutputMetric),
		AnalyzedDate:        now,
	}

	if err := e.store.CreateAnalysis(ctx, a); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	e.logger.Info("predictive analysis completed",
		zap.String("tenant_id", tenantID),
		zap.String("patient_id", patientID),
		zap.String("model", m.Name),
		zap.Float64("probability", probability),
		zap.String("risk_level", string(a.RiskLevel)))

	e.emitSignal(ctx, &Signal{
		TenantID:        tenantID,
		PatientID:       patientID,
		Source:          SignalSourceAnalysis,
		SourceID:        a.ID,
		RiskLevel:       a.RiskLevel,
		Score:           round2(probability * 100),
		Recommendations: a.Recommendations,
		OccurredAt:      now,
	})

	span.SetAttributes(
		attribute.Float64("probability", probability),
		attribute.String("risk_level", string(a.RiskLevel)),
	)

	return a, nil
}

// AnalysisByID retrieves an analysis by ID.
func (e *Engine) AnalysisByID(ctx context.Context, tenantID, id string) (*risk.Analysis, error) {
	return e.store.Analysis(ctx, tenantID, id)
}

// PatientAnalyses lists a patient's analyses.
func (e *Engine) PatientAnalyses(ctx context.Context, tenantID, patientID string) ([]*risk.Analysis, error) {
	return e.store.AnalysesByPatient(ctx, tenantID, patientID)
}

// analysisRecommendations maps a predicted probability into care
// recommendations using the configured probability bands.
func (e *Engine) analysisRecommendations(probability float64, outcome string) []string {
	switch {
	case probability > e.config.HighProbability:
		return []string{
			fmt.Sprintf("High probability of %s - proactive intervention recommended", outcome),
			"Consider enrollment in disease management program",
		}
	case probability > e.config.ModerateProbability:
		return []string{fmt.Sprintf("Moderate probability of %s - increased monitoring recommended", outcome)}
	default:
		return []string{}
	}
}
