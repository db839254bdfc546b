package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// RecordDeterminant creates a social determinant in the identified state
// with no interventions.
func (e *Engine) RecordDeterminant(ctx context.Context, tenantID, patientID string, category risk.DeterminantCategory, factor string, severity risk.Severity, description, impact, identifiedBy string) (*risk.Determinant, error) {
	d := &risk.Determinant{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		PatientID:      patientID,
		Category:       category,
		Factor:         factor,
		Status:         risk.DeterminantIdentified,
		Severity:       severity,
		Description:    description,
		Impact:         impact,
		Interventions:  []string{},
		IdentifiedDate: e.now(),
		IdentifiedBy:   identifiedBy,
	}

	if err := e.store.CreateDeterminant(ctx, d); err != nil {
		return nil, fmt.Errorf("persist determinant: %w", err)
	}

	e.logger.Info("social determinant recorded",
		zap.String("tenant_id", tenantID),
		zap.String("patient_id", patientID),
		zap.String("category", string(category)),
		zap.String("severity", string(severity)))

	return d, nil
}

// DeterminantUpdate carries the optional fields of a determinant update.
// Nil fields are left untouched. Status transitions are not guarded; the
// caller is responsible for setting ResolvedDate consistently with a
// resolved status.
type DeterminantUpdate struct {
	Status        *risk.DeterminantStatus
	Interventions *[]string
	ResolvedDate  *time.Time
}

// UpdateDeterminant applies a partial update to a determinant.
func (e *Engine) UpdateDeterminant(ctx context.Context, tenantID, id string, upd DeterminantUpdate) (*risk.Determinant, error) {
	d, err := e.store.Determinant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		d.Status = *upd.Status
	}
	if upd.Interventions != nil {
		d.Interventions = *upd.Interventions
	}
	if upd.ResolvedDate != nil {
		d.ResolvedDate = upd.ResolvedDate
	}

	if err := e.store.UpdateDeterminant(ctx, d); err != nil {
		return nil, fmt.Errorf("persist determinant update: %w", err)
	}

	return d, nil
}

// Determinant retrieves a determinant by ID.
func (e *Engine) Determinant(ctx context.Context, tenantID, id string) (*risk.Determinant, error) {
	return e.store.Determinant(ctx, tenantID, id)
}

// PatientDeterminants lists a patient's social determinants.
func (e *Engine) PatientDeterminants(ctx context.Context, tenantID, patientID string) ([]*risk.Determinant, error) {
	return e.store.DeterminantsByPatient(ctx, tenantID, patientID)
}

// DeterminantsByCategory filters the tenant's determinants by category.
func (e *Engine) DeterminantsByCategory(ctx context.Context, tenantID string, category risk.DeterminantCategory) ([]*risk.Determinant, error) {
	all, err := e.store.Determinants(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list determinants: %w", err)
	}
	var out []*risk.Determinant
	for _, d := range all {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out, nil
}
