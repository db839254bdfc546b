// Package postgres provides PostgreSQL persistence for the risk engine.
// Entity payloads (factors, responses, criteria) are stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// Store implements the engine store contract on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a new store.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return risk.ErrNotFound
	}
	return err
}

// CreateScore persists an immutable risk score.
func (s *Store) CreateScore(ctx context.Context, sc *risk.Score) error {
	factors, err := json.Marshal(sc.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}

	query := `
		INSERT INTO risk_scores
		(id, tenant_id, patient_id, score_type, score, risk_level, category, factors, calculated_date, valid_until, calculated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.pool.Exec(ctx, query,
		sc.ID, sc.TenantID, sc.PatientID, sc.ScoreType, sc.Score,
		sc.RiskLevel, sc.Category, factors, sc.CalculatedDate, sc.ValidUntil, sc.CalculatedBy,
	)
	return err
}

func scanScore(row pgx.Row) (*risk.Score, error) {
	sc := &risk.Score{}
	var factors []byte
	err := row.Scan(
		&sc.ID, &sc.TenantID, &sc.PatientID, &sc.ScoreType, &sc.Score,
		&sc.RiskLevel, &sc.Category, &factors, &sc.CalculatedDate, &sc.ValidUntil, &sc.CalculatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(factors, &sc.Factors); err != nil {
		return nil, fmt.Errorf("unmarshal factors: %w", err)
	}
	return sc, nil
}

const scoreColumns = `id, tenant_id, patient_id, score_type, score, risk_level, category, factors, calculated_date, valid_until, calculated_by`

// Score retrieves a score by ID.
func (s *Store) Score(ctx context.Context, tenantID, id string) (*risk.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM risk_scores WHERE tenant_id = $1 AND id = $2`
	sc, err := scanScore(s.pool.QueryRow(ctx, query, tenantID, id))
	return sc, notFound(err)
}

func (s *Store) queryScores(ctx context.Context, query string, args ...any) ([]*risk.Score, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*risk.Score
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ScoresByPatient lists a patient's scores.
func (s *Store) ScoresByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM risk_scores WHERE tenant_id = $1 AND patient_id = $2`
	return s.queryScores(ctx, query, tenantID, patientID)
}

// Scores lists all scores for a tenant.
func (s *Store) Scores(ctx context.Context, tenantID string) ([]*risk.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM risk_scores WHERE tenant_id = $1`
	return s.queryScores(ctx, query, tenantID)
}

const assessmentColumns = `id, tenant_id, patient_id, assessment_type, status, responses, total_score, risk_level, recommendations, created_date, completed_date, expiration_date, administered_by`

// CreateAssessment persists a new assessment.
func (s *Store) CreateAssessment(ctx context.Context, a *risk.Assessment) error {
	responses, err := json.Marshal(a.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	recommendations, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `
		INSERT INTO risk_assessments
		(` + assessmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		a.ID, a.TenantID, a.PatientID, a.AssessmentType, a.Status, responses,
		a.TotalScore, a.RiskLevel, recommendations, a.CreatedDate,
		a.CompletedDate, a.ExpirationDate, nullable(a.AdministeredBy),
	)
	return err
}

// UpdateAssessment replaces a stored assessment. Concurrent updates are
// last-write-wins on the full responses array, matching the record-store
// contract.
func (s *Store) UpdateAssessment(ctx context.Context, a *risk.Assessment) error {
	responses, err := json.Marshal(a.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	recommendations, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `
		UPDATE risk_assessments
		SET status = $3, responses = $4, total_score = $5, risk_level = $6,
		    recommendations = $7, completed_date = $8, administered_by = $9
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := s.pool.Exec(ctx, query,
		a.TenantID, a.ID, a.Status, responses, a.TotalScore, a.RiskLevel,
		recommendations, a.CompletedDate, nullable(a.AdministeredBy),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return risk.ErrNotFound
	}
	return nil
}

func scanAssessment(row pgx.Row) (*risk.Assessment, error) {
	a := &risk.Assessment{}
	var responses, recommendations []byte
	var administeredBy *string
	err := row.Scan(
		&a.ID, &a.TenantID, &a.PatientID, &a.AssessmentType, &a.Status, &responses,
		&a.TotalScore, &a.RiskLevel, &recommendations, &a.CreatedDate,
		&a.CompletedDate, &a.ExpirationDate, &administeredBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(responses, &a.Responses); err != nil {
		return nil, fmt.Errorf("unmarshal responses: %w", err)
	}
	if err := json.Unmarshal(recommendations, &a.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	if administeredBy != nil {
		a.AdministeredBy = *administeredBy
	}
	return a, nil
}

// Assessment retrieves an assessment by ID.
func (s *Store) Assessment(ctx context.Context, tenantID, id string) (*risk.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments WHERE tenant_id = $1 AND id = $2`
	a, err := scanAssessment(s.pool.QueryRow(ctx, query, tenantID, id))
	return a, notFound(err)
}

func (s *Store) queryAssessments(ctx context.Context, query string, args ...any) ([]*risk.Assessment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*risk.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Assessments lists all assessments for a tenant.
func (s *Store) Assessments(ctx context.Context, tenantID string) ([]*risk.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments WHERE tenant_id = $1`
	return s.queryAssessments(ctx, query, tenantID)
}

// AssessmentsByPatient lists a patient's assessments.
func (s *Store) AssessmentsByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments WHERE tenant_id = $1 AND patient_id = $2`
	return s.queryAssessments(ctx, query, tenantID, patientID)
}

const modelColumns = `id, tenant_id, name, version, model_type, description, input_features, output_metric, accuracy, valid_from, valid_until, is_active, created_by`

// CreateModel persists a model catalog entry.
func (s *Store) CreateModel(ctx context.Context, m *risk.Model) error {
	features, err := json.Marshal(m.InputFeatures)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	query := `
		INSERT INTO predictive_models
		(` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		m.ID, m.TenantID, m.Name, m.Version, m.ModelType, m.Description,
		features, m.OutputMetric, m.Accuracy, m.ValidFrom, m.ValidUntil, m.IsActive, m.CreatedBy,
	)
	return err
}

// UpdateModel replaces a stored model.
func (s *Store) UpdateModel(ctx context.Context, m *risk.Model) error {
	query := `
		UPDATE predictive_models
		SET is_active = $3, valid_until = $4
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := s.pool.Exec(ctx, query, m.TenantID, m.ID, m.IsActive, m.ValidUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return risk.ErrNotFound
	}
	return nil
}

func scanModel(row pgx.Row) (*risk.Model, error) {
	m := &risk.Model{}
	var features []byte
	err := row.Scan(
		&m.ID, &m.TenantID, &m.Name, &m.Version, &m.ModelType, &m.Description,
		&features, &m.OutputMetric, &m.Accuracy, &m.ValidFrom, &m.ValidUntil, &m.IsActive, &m.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(features, &m.InputFeatures); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}
	return m, nil
}

// Model retrieves a model by ID.
func (s *Store) Model(ctx context.Context, tenantID, id string) (*risk.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM predictive_models WHERE tenant_id = $1 AND id = $2`
	m, err := scanModel(s.pool.QueryRow(ctx, query, tenantID, id))
	return m, notFound(err)
}

// Models lists all models for a tenant.
func (s *Store) Models(ctx context.Context, tenantID string) ([]*risk.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM predictive_models WHERE tenant_id = $1`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*risk.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const analysisColumns = `id, tenant_id, patient_id, model_id, model_name, predicted_outcome, probability, confidence, risk_level, contributing_factors, recommendations, analyzed_date`

// CreateAnalysis persists an immutable analysis result.
func (s *Store) CreateAnalysis(ctx context.Context, a *risk.Analysis) error {
	factors, err := json.Marshal(a.ContributingFactors)
	if err != nil {
		return fmt.Errorf("marshal contributing factors: %w", err)
	}
	recommendations, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `
		INSERT INTO predictive_analyses
		(` + analysisColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.pool.Exec(ctx, query,
		a.ID, a.TenantID, a.PatientID, a.ModelID, a.ModelName, a.PredictedOutcome,
		a.Probability, a.Confidence, a.RiskLevel, factors, recommendations, a.AnalyzedDate,
	)
	return err
}

func scanAnalysis(row pgx.Row) (*risk.Analysis, error) {
	a := &risk.Analysis{}
	var factors, recommendations []byte
	err := row.Scan(
		&a.ID, &a.TenantID, &a.PatientID, &a.ModelID, &a.ModelName, &a.PredictedOutcome,
		&a.Probability, &a.Confidence, &a.RiskLevel, &factors, &recommendations, &a.AnalyzedDate,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(factors, &a.ContributingFactors); err != nil {
		return nil, fmt.Errorf("unmarshal contributing factors: %w", err)
	}
	if err := json.Unmarshal(recommendations, &a.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	return a, nil
}

// Analysis retrieves an analysis by ID.
func (s *Store) Analysis(ctx context.Context, tenantID, id string) (*risk.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM predictive_analyses WHERE tenant_id = $1 AND id = $2`
	a, err := scanAnalysis(s.pool.QueryRow(ctx, query, tenantID, id))
	return a, notFound(err)
}

func (s *Store) queryAnalyses(ctx context.Context, query string, args ...any) ([]*risk.Analysis, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*risk.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Analyses lists all analyses for a tenant.
func (s *Store) Analyses(ctx context.Context, tenantID string) ([]*risk.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM predictive_analyses WHERE tenant_id = $1`
	return s.queryAnalyses(ctx, query, tenantID)
}

// AnalysesByPatient lists a patient's analyses.
func (s *Store) AnalysesByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM predictive_analyses WHERE tenant_id = $1 AND patient_id = $2`
	return s.queryAnalyses(ctx, query, tenantID, patientID)
}

const determinantColumns = `id, tenant_id, patient_id, category, factor, status, severity, description, impact, interventions, identified_date, resolved_date, identified_by`

// CreateDeterminant persists a new social determinant.
func (s *Store) CreateDeterminant(ctx context.Context, d *risk.Determinant) error {
	interventions, err := json.Marshal(d.Interventions)
	if err != nil {
		return fmt.Errorf("marshal interventions: %w", err)
	}

	query := `
		INSERT INTO social_determinants
		(` + determinantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		d.ID, d.TenantID, d.PatientID, d.Category, d.Factor, d.Status, d.Severity,
		d.Description, d.Impact, interventions, d.IdentifiedDate, d.ResolvedDate, d.IdentifiedBy,
	)
	return err
}

// UpdateDeterminant replaces a stored determinant.
func (s *Store) UpdateDeterminant(ctx context.Context, d *risk.Determinant) error {
	interventions, err := json.Marshal(d.Interventions)
	if err != nil {
		return fmt.Errorf("marshal interventions: %w", err)
	}

	query := `
		UPDATE social_determinants
		SET status = $3, interventions = $4, resolved_date = $5
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := s.pool.Exec(ctx, query, d.TenantID, d.ID, d.Status, interventions, d.ResolvedDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return risk.ErrNotFound
	}
	return nil
}

func scanDeterminant(row pgx.Row) (*risk.Determinant, error) {
	d := &risk.Determinant{}
	var interventions []byte
	err := row.Scan(
		&d.ID, &d.TenantID, &d.PatientID, &d.Category, &d.Factor, &d.Status, &d.Severity,
		&d.Description, &d.Impact, &interventions, &d.IdentifiedDate, &d.ResolvedDate, &d.IdentifiedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(interventions, &d.Interventions); err != nil {
		return nil, fmt.Errorf("unmarshal interventions: %w", err)
	}
	return d, nil
}

// Determinant retrieves a determinant by ID.
func (s *Store) Determinant(ctx context.Context, tenantID, id string) (*risk.Determinant, error) {
	query := `SELECT ` + determinantColumns + ` FROM social_determinants WHERE tenant_id = $1 AND id = $2`
	d, err := scanDeterminant(s.pool.QueryRow(ctx, query, tenantID, id))
	return d, notFound(err)
}

func (s *Store) queryDeterminants(ctx context.Context, query string, args ...any) ([]*risk.Determinant, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*risk.Determinant
	for rows.Next() {
		d, err := scanDeterminant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Determinants lists all determinants for a tenant.
func (s *Store) Determinants(ctx context.Context, tenantID string) ([]*risk.Determinant, error) {
	query := `SELECT ` + determinantColumns + ` FROM social_determinants WHERE tenant_id = $1`
	return s.queryDeterminants(ctx, query, tenantID)
}

// DeterminantsByPatient lists a patient's determinants.
func (s *Store) DeterminantsByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Determinant, error) {
	query := `SELECT ` + determinantColumns + ` FROM social_determinants WHERE tenant_id = $1 AND patient_id = $2`
	return s.queryDeterminants(ctx, query, tenantID, patientID)
}

const cohortColumns = `id, tenant_id, name, description, criteria, risk_levels, patient_count, active, created_date, created_by`

// CreateCohort persists a cohort definition.
func (s *Store) CreateCohort(ctx context.Context, c *risk.Cohort) error {
	criteria, err := json.Marshal(c.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	levels, err := json.Marshal(c.RiskLevels)
	if err != nil {
		return fmt.Errorf("marshal risk levels: %w", err)
	}

	query := `
		INSERT INTO risk_cohorts
		(` + cohortColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		c.ID, c.TenantID, c.Name, c.Description, criteria, levels,
		c.PatientCount, c.Active, c.CreatedDate, c.CreatedBy,
	)
	return err
}

// UpdateCohort replaces a stored cohort.
func (s *Store) UpdateCohort(ctx context.Context, c *risk.Cohort) error {
	query := `
		UPDATE risk_cohorts
		SET patient_count = $3, active = $4
		WHERE tenant_id = $1 AND id = $2
	`
	tag, err := s.pool.Exec(ctx, query, c.TenantID, c.ID, c.PatientCount, c.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return risk.ErrNotFound
	}
	return nil
}

func scanCohort(row pgx.Row) (*risk.Cohort, error) {
	c := &risk.Cohort{}
	var criteria, levels []byte
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Description, &criteria, &levels,
		&c.PatientCount, &c.Active, &c.CreatedDate, &c.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &c.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	if err := json.Unmarshal(levels, &c.RiskLevels); err != nil {
		return nil, fmt.Errorf("unmarshal risk levels: %w", err)
	}
	return c, nil
}

// Cohort retrieves a cohort by ID.
func (s *Store) Cohort(ctx context.Context, tenantID, id string) (*risk.Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM risk_cohorts WHERE tenant_id = $1 AND id = $2`
	c, err := scanCohort(s.pool.QueryRow(ctx, query, tenantID, id))
	return c, notFound(err)
}

// Cohorts lists all cohorts for a tenant.
func (s *Store) Cohorts(ctx context.Context, tenantID string) ([]*risk.Cohort, error) {
	query := `SELECT ` + cohortColumns + ` FROM risk_cohorts WHERE tenant_id = $1`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*risk.Cohort
	for rows.Next() {
		c, err := scanCohort(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ping verifies database connectivity, used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
