package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// LevelCount is one slice of the risk level distribution.
type LevelCount struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Statistics is the aggregate report over a time window.
type Statistics struct {
	RiskLevelDistribution map[risk.Level]LevelCount `json:"risk_level_distribution"`
	TotalPatients         int                       `json:"total_patients"`
	AverageRiskScore      float64                   `json:"average_risk_score"`
	HighRiskPatients      int                       `json:"high_risk_patients"`
	CompletedAssessments  int                       `json:"completed_assessments"`
	TotalAnalyses         int                       `json:"total_analyses"`
	DeterminantsIdentified int                      `json:"determinants_identified"`
	ActiveCohorts         int                       `json:"active_cohorts"`
	WindowStart           *time.Time                `json:"window_start,omitempty"`
	WindowEnd             *time.Time                `json:"window_end,omitempty"`
}

// Statistics aggregates risk activity for a tenant over an optional
// inclusive date window. The distribution counts one score per patient: the
// most recent score calculated inside the window, regardless of validity.
// The window applies uniformly to every collection, including assessment
// and analysis counts.
func (e *Engine) Statistics(ctx context.Context, tenantID string, start, end *time.Time) (*Statistics, error) {
	ctx, span := e.tracer.Start(ctx, "statistics",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	inWindow := func(t time.Time) bool {
		if start != nil && t.Before(*start) {
			return false
		}
		if end != nil && t.After(*end) {
			return false
		}
		return true
	}

	scores, err := e.store.Scores(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list scores: %w", err)
	}

	latest := make(map[string]*risk.Score)
	for _, s := range scores {
		if !inWindow(s.CalculatedDate) {
			continue
		}
		if cur, ok := latest[s.PatientID]; !ok || s.CalculatedDate.After(cur.CalculatedDate) {
			latest[s.PatientID] = s
		}
	}

	stats := &Statistics{
		RiskLevelDistribution: map[risk.Level]LevelCount{
			risk.LevelLow:      {},
			risk.LevelModerate: {},
			risk.LevelHigh:     {},
			risk.LevelVeryHigh: {},
		},
		TotalPatients: len(latest),
		WindowStart:   start,
		WindowEnd:     end,
	}

	var scoreSum float64
	counts := make(map[risk.Level]int)
	for _, s := range latest {
		counts[s.RiskLevel]++
		scoreSum += s.Score
	}

	for level, count := range counts {
		pct := 0.0
		if stats.TotalPatients > 0 {
			pct = round2(float64(count) / float64(stats.TotalPatients) * 100)
		}
		stats.RiskLevelDistribution[level] = LevelCount{Count: count, Percentage: pct}
	}

	if stats.TotalPatients > 0 {
		stats.AverageRiskScore = round2(scoreSum / float64(stats.TotalPatients))
	}
	stats.HighRiskPatients = counts[risk.LevelHigh] + counts[risk.LevelVeryHigh]

	assessments, err := e.store.Assessments(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	for _, a := range assessments {
		if a.Status == risk.AssessmentCompleted && a.CompletedDate != nil && inWindow(*a.CompletedDate) {
			stats.CompletedAssessments++
		}
	}

	analyses, err := e.store.Analyses(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	for _, a := range analyses {
		if inWindow(a.AnalyzedDate) {
			stats.TotalAnalyses++
		}
	}

	determinants, err := e.store.Determinants(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list determinants: %w", err)
	}
	for _, d := range determinants {
		if inWindow(d.IdentifiedDate) {
			stats.DeterminantsIdentified++
		}
	}

	cohorts, err := e.store.Cohorts(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	for _, c := range cohorts {
		if c.Active {
			stats.ActiveCohorts++
		}
	}

	span.SetAttributes(
		attribute.Int("total_patients", stats.TotalPatients),
		attribute.Int("high_risk_patients", stats.HighRiskPatients),
	)

	return stats, nil
}
