// Package memstore provides an in-memory implementation of the engine store
// contract, used by tests and by risk-api's sandbox mode.
package memstore

import (
	"context"
	"sync"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// Store keeps every entity collection in tenant-scoped maps guarded by a
// single mutex. Reads return copies of slices but share entity pointers;
// callers must treat returned entities as read-mostly, matching the
// last-write-wins semantics of the record-store contract.
type Store struct {
	mu           sync.RWMutex
	scores       map[string]map[string]*risk.Score
	assessments  map[string]map[string]*risk.Assessment
	models       map[string]map[string]*risk.Model
	analyses     map[string]map[string]*risk.Analysis
	determinants map[string]map[string]*risk.Determinant
	cohorts      map[string]map[string]*risk.Cohort
}

// New creates an empty store.
func New() *Store {
	return &Store{
		scores:       make(map[string]map[string]*risk.Score),
		assessments:  make(map[string]map[string]*risk.Assessment),
		models:       make(map[string]map[string]*risk.Model),
		analyses:     make(map[string]map[string]*risk.Analysis),
		determinants: make(map[string]map[string]*risk.Determinant),
		cohorts:      make(map[string]map[string]*risk.Cohort),
	}
}

func put[T any](m map[string]map[string]*T, tenantID, id string, v *T) {
	byID, ok := m[tenantID]
	if !ok {
		byID = make(map[string]*T)
		m[tenantID] = byID
	}
	byID[id] = v
}

func get[T any](m map[string]map[string]*T, tenantID, id string) (*T, error) {
	v, ok := m[tenantID][id]
	if !ok {
		return nil, risk.ErrNotFound
	}
	return v, nil
}

func list[T any](m map[string]map[string]*T, tenantID string) []*T {
	byID := m[tenantID]
	out := make([]*T, 0, len(byID))
	for _, v := range byID {
		out = append(out, v)
	}
	return out
}

// CreateScore stores a risk score.
func (s *Store) CreateScore(_ context.Context, sc *risk.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.scores, sc.TenantID, sc.ID, sc)
	return nil
}

// Score retrieves a risk score by ID.
func (s *Store) Score(_ context.Context, tenantID, id string) (*risk.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.scores, tenantID, id)
}

// ScoresByPatient lists a patient's scores.
func (s *Store) ScoresByPatient(_ context.Context, tenantID, patientID string) ([]*risk.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*risk.Score
	for _, sc := range s.scores[tenantID] {
		if sc.PatientID == patientID {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Scores lists all scores for a tenant.
func (s *Store) Scores(_ context.Context, tenantID string) ([]*risk.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.scores, tenantID), nil
}

// CreateAssessment stores an assessment.
func (s *Store) CreateAssessment(_ context.Context, a *risk.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.assessments, a.TenantID, a.ID, a)
	return nil
}

// Assessment retrieves an assessment by ID.
func (s *Store) Assessment(_ context.Context, tenantID, id string) (*risk.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.assessments, tenantID, id)
}

// UpdateAssessment replaces a stored assessment.
func (s *Store) UpdateAssessment(_ context.Context, a *risk.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessments[a.TenantID][a.ID]; !ok {
		return risk.ErrNotFound
	}
	s.assessments[a.TenantID][a.ID] = a
	return nil
}

// Assessments lists all assessments for a tenant.
func (s *Store) Assessments(_ context.Context, tenantID string) ([]*risk.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.assessments, tenantID), nil
}

// AssessmentsByPatient lists a patient's assessments.
func (s *Store) AssessmentsByPatient(_ context.Context, tenantID, patientID string) ([]*risk.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*risk.Assessment
	for _, a := range s.assessments[tenantID] {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateModel stores a model.
func (s *Store) CreateModel(_ context.Context, m *risk.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.models, m.TenantID, m.ID, m)
	return nil
}

// Model retrieves a model by ID.
func (s *Store) Model(_ context.Context, tenantID, id string) (*risk.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.models, tenantID, id)
}

// UpdateModel replaces a stored model.
func (s *Store) UpdateModel(_ context.Context, m *risk.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[m.TenantID][m.ID]; !ok {
		return risk.ErrNotFound
	}
	s.models[m.TenantID][m.ID] = m
	return nil
}

// Models lists all models for a tenant.
func (s *Store) Models(_ context.Context, tenantID string) ([]*risk.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.models, tenantID), nil
}

// CreateAnalysis stores an analysis.
func (s *Store) CreateAnalysis(_ context.Context, a *risk.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.analyses, a.TenantID, a.ID, a)
	return nil
}

// Analysis retrieves an analysis by ID.
func (s *Store) Analysis(_ context.Context, tenantID, id string) (*risk.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.analyses, tenantID, id)
}

// Analyses lists all analyses for a tenant.
func (s *Store) Analyses(_ context.Context, tenantID string) ([]*risk.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.analyses, tenantID), nil
}

// AnalysesByPatient lists a patient's analyses.
func (s *Store) AnalysesByPatient(_ context.Context, tenantID, patientID string) ([]*risk.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*risk.Analysis
	for _, a := range s.analyses[tenantID] {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateDeterminant stores a determinant.
func (s *Store) CreateDeterminant(_ context.Context, d *risk.Determinant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.determinants, d.TenantID, d.ID, d)
	return nil
}

// Determinant retrieves a determinant by ID.
func (s *Store) Determinant(_ context.Context, tenantID, id string) (*risk.Determinant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.determinants, tenantID, id)
}

// UpdateDeterminant replaces a stored determinant.
func (s *Store) UpdateDeterminant(_ context.Context, d *risk.Determinant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.determinants[d.TenantID][d.ID]; !ok {
		return risk.ErrNotFound
	}
	s.determinants[d.TenantID][d.ID] = d
	return nil
}

// Determinants lists all determinants for a tenant.
func (s *Store) Determinants(_ context.Context, tenantID string) ([]*risk.Determinant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.determinants, tenantID), nil
}

// DeterminantsByPatient lists a patient's determinants.
func (s *Store) DeterminantsByPatient(_ context.Context, tenantID, patientID string) ([]*risk.Determinant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*risk.Determinant
	for _, d := range s.determinants[tenantID] {
		if d.PatientID == patientID {
			out = append(out, d)
		}
	}
	return out, nil
}

// CreateCohort stores a cohort.
func (s *Store) CreateCohort(_ context.Context, c *risk.Cohort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.cohorts, c.TenantID, c.ID, c)
	return nil
}

// Cohort retrieves a cohort by ID.
func (s *Store) Cohort(_ context.Context, tenantID, id string) (*risk.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.cohorts, tenantID, id)
}

// UpdateCohort replaces a stored cohort.
func (s *Store) UpdateCohort(_ context.Context, c *risk.Cohort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cohorts[c.TenantID][c.ID]; !ok {
		return risk.ErrNotFound
	}
	s.cohorts[c.TenantID][c.ID] = c
	return nil
}

// Cohorts lists all cohorts for a tenant.
func (s *Store) Cohorts(_ context.Context, tenantID string) ([]*risk.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.cohorts, tenantID), nil
}
