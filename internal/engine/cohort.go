package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// CreateCohort registers a risk stratification cohort with an empty
// denormalized patient count.
func (e *Engine) CreateCohort(ctx context.Context, tenantID, name, description string, criteria []risk.Criterion, riskLevels []risk.Level, createdBy string) (*risk.Cohort, error) {
	c := &risk.Cohort{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Name:         name,
		Description:  description,
		Criteria:     criteria,
		RiskLevels:   riskLevels,
		PatientCount: 0,
		Active:       true,
		CreatedDate:  e.now(),
		CreatedBy:    createdBy,
	}

	if err := e.store.CreateCohort(ctx, c); err != nil {
		return nil, fmt.Errorf("persist cohort: %w", err)
	}

	e.logger.Info("cohort created",
		zap.String("tenant_id", tenantID),
		zap.String("cohort", name),
		zap.Int("criteria", len(criteria)))

	return c, nil
}

// Cohort retrieves a cohort by ID.
func (e *Engine) CohortByID(ctx context.Context, tenantID, id string) (*risk.Cohort, error) {
	return e.store.Cohort(ctx, tenantID, id)
}

// PatientCohorts returns the active cohorts the patient belongs to: those
// whose risk levels include the patient's latest valid score level and whose
// criteria all pass. A patient with no valid score belongs to no cohort.
func (e *Engine) PatientCohorts(ctx context.Context, tenantID, patientID string) ([]*risk.Cohort, error) {
	ctx, span := e.tracer.Start(ctx, "patient_cohorts",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	latest, err := e.LatestRiskScore(ctx, tenantID, patientID, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	cohorts, err := e.store.Cohorts(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list cohorts: %w", err)
	}

	var matched []*risk.Cohort
	for _, c := range cohorts {
		if !c.Active || !c.MatchesLevel(latest.RiskLevel) {
			continue
		}
		if e.criteriaMatch(ctx, tenantID, patientID, c.Criteria) {
			matched = append(matched, c)
		}
	}

	span.SetAttributes(attribute.Int("cohort_count", len(matched)))
	return matched, nil
}

// RecountCohort recomputes a cohort's denormalized patient count from
// membership evaluation over every patient with a valid score.
func (e *Engine) RecountCohort(ctx context.Context, tenantID, cohortID string) (*risk.Cohort, error) {
	c, err := e.store.Cohort(ctx, tenantID, cohortID)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, level := range c.RiskLevels {
		patients, err := e.PatientsByRiskLevel(ctx, tenantID, level, "")
		if err != nil {
			return nil, err
		}
		for _, patientID := range patients {
			if e.criteriaMatch(ctx, tenantID, patientID, c.Criteria) {
				count++
			}
		}
	}

	c.PatientCount = count
	if err := e.store.UpdateCohort(ctx, c); err != nil {
		return nil, fmt.Errorf("persist recount: %w", err)
	}
	return c, nil
}

// criteriaMatch evaluates every criterion against patient attributes. With
// no attribute source wired, or for fields the source does not know, a
// criterion passes; membership then degrades to risk-level matching alone.
func (e *Engine) criteriaMatch(ctx context.Context, tenantID, patientID string, criteria []risk.Criterion) bool {
	for _, crit := range criteria {
		if !e.evaluateCriterion(ctx, tenantID, patientID, crit) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluateCriterion(ctx context.Context, tenantID, patientID string, crit risk.Criterion) bool {
	if e.attrs == nil {
		return true
	}
	attr, known := e.attrs.PatientAttribute(ctx, tenantID, patientID, crit.Field)
	if !known {
		return true
	}

	switch crit.Operator {
	case risk.OpEquals:
		return attr.Equal(crit.Value)
	case risk.OpNotEquals:
		return !attr.Equal(crit.Value)
	case risk.OpGreaterThan:
		a, aok := attr.Float()
		b, bok := crit.Value.Float()
		return aok && bok && a > b
	case risk.OpLessThan:
		a, aok := attr.Float()
		b, bok := crit.Value.Float()
		return aok && bok && a < b
	case risk.OpContains:
		a, aok := attr.Str()
		b, bok := crit.Value.Str()
		return aok && bok && strings.Contains(a, b)
	case risk.OpInRange:
		a, aok := attr.Float()
		lo, look := crit.Value.Float()
		if crit.Upper == nil {
			return false
		}
		hi, hiok := crit.Upper.Float()
		return aok && look && hiok && a >= lo && a <= hi
	default:
		return false
	}
}
