package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// CalculateRiskScore computes a normalized 0-100 score from weighted factors
// and persists it as a new immutable record. An earlier score of the same
// type is superseded, never mutated.
func (e *Engine) CalculateRiskScore(ctx context.Context, tenantID, patientID, scoreType string, category risk.Category, factors []risk.Factor, calculatedBy string) (*risk.Score, error) {
	ctx, span := e.tracer.Start(ctx, "calculate_risk_score",
		trace.WithAttributes(
			attribute.String("patient_id", patientID),
			attribute.String("score_type", scoreType),
		))
	defer span.End()

	var totalWeight, weightedScore float64
	for _, f := range factors {
		totalWeight += f.Weight
		weightedScore += f.Impact * f.Weight
	}

	normalized := 0.0
	if totalWeight > 0 {
		normalized = round2(weightedScore / totalWeight * 100)
	}

	now := e.now()
	score := &risk.Score{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		PatientID:      patientID,
		ScoreType:      scoreType,
		Score:          normalized,
		RiskLevel:      e.config.Thresholds.LevelFor(normalized),
		Category:       category,
		Factors:        factors,
		CalculatedDate: now,
		ValidUntil:     now.Add(e.config.ScoreValidity),
		CalculatedBy:   calculatedBy,
	}

	if err := e.store.CreateScore(ctx, score); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist score: %w", err)
	}

	e.logger.Info("risk score calculated",
		zap.String("tenant_id", tenantID),
		zap.String("patient_id", patientID),
		zap.String("score_type", scoreType),
		zap.Float64("score", normalized),
		zap.String("risk_level", string(score.RiskLevel)))

	span.SetAttributes(
		attribute.Float64("score", normalized),
		attribute.String("risk_level", string(score.RiskLevel)),
	)

	return score, nil
}

// RiskScore retrieves a score by ID.
func (e *Engine) RiskScore(ctx context.Context, tenantID, id string) (*risk.Score, error) {
	return e.store.Score(ctx, tenantID, id)
}

// LatestRiskScore returns the patient's most recent still-valid score,
// optionally restricted to a score type. Returns nil with no error when the
// patient has no valid score. Ties on calculated date break arbitrarily.
func (e *Engine) LatestRiskScore(ctx context.Context, tenantID, patientID, scoreType string) (*risk.Score, error) {
	scores, err := e.store.ScoresByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	now := e.now()
	var latest *risk.Score
	for _, s := range scores {
		if scoreType != "" && s.ScoreType != scoreType {
			continue
		}
		if !s.Valid(now) {
			continue
		}
		if latest == nil || s.CalculatedDate.After(latest.CalculatedDate) {
			latest = s
		}
	}
	return latest, nil
}

// PatientsByRiskLevel returns the IDs of patients whose most recent valid
// score, optionally restricted to a category, carries the given risk level.
// Patients with no valid score are excluded.
func (e *Engine) PatientsByRiskLevel(ctx context.Context, tenantID string, level risk.Level, category risk.Category) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "patients_by_risk_level",
		trace.WithAttributes(attribute.String("risk_level", string(level))))
	defer span.End()

	scores, err := e.store.Scores(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list scores: %w", err)
	}

	now := e.now()
	latest := make(map[string]*risk.Score)
	for _, s := range scores {
		if category != "" && s.Category != category {
			continue
		}
		if !s.Valid(now) {
			continue
		}
		if cur, ok := latest[s.PatientID]; !ok || s.CalculatedDate.After(cur.CalculatedDate) {
			latest[s.PatientID] = s
		}
	}

	var patients []string
	for patientID, s := range latest {
		if s.RiskLevel == level {
			patients = append(patients, patientID)
		}
	}

	span.SetAttributes(attribute.Int("patient_count", len(patients)))
	return patients, nil
}

// round2 rounds to two decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
