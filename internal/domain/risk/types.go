// Package risk defines the entities of the risk stratification engine.
package risk

import (
	"time"
)

// Level represents a discrete risk level derived from a 0-100 score.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// IsValid returns true if the level is a known value.
func (l Level) IsValid() bool {
	switch l {
	case LevelLow, LevelModerate, LevelHigh, LevelVeryHigh:
		return true
	default:
		return false
	}
}

// Category classifies what a risk score measures.
type Category string

const (
	CategoryClinical    Category = "clinical"
	CategoryFinancial   Category = "financial"
	CategoryUtilization Category = "utilization"
	CategorySocial      Category = "social"
	CategoryBehavioral  Category = "behavioral"
	CategoryFunctional  Category = "functional"
)

// IsValid returns true if the category is a known value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryClinical, CategoryFinancial, CategoryUtilization,
		CategorySocial, CategoryBehavioral, CategoryFunctional:
		return true
	default:
		return false
	}
}

// Factor is a weighted signal contributing to a composite risk score.
// Factors are inputs to scoring only and are never stored standalone.
type Factor struct {
	Factor      string  `json:"factor"`
	Category    string  `json:"category"`
	Weight      float64 `json:"weight"`
	Value       Value   `json:"value"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description,omitempty"`
}

// Score is an immutable risk score record. A score is never mutated;
// it is superseded by a newer score of the same type for the patient.
type Score struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	PatientID      string    `json:"patient_id"`
	ScoreType      string    `json:"score_type"`
	Score          float64   `json:"score"`
	RiskLevel      Level     `json:"risk_level"`
	Category       Category  `json:"category"`
	Factors        []Factor  `json:"factors"`
	CalculatedDate time.Time `json:"calculated_date"`
	ValidUntil     time.Time `json:"valid_until"`
	CalculatedBy   string    `json:"calculated_by"`
}

// Valid reports whether the score is still within its validity window.
func (s *Score) Valid(now time.Time) bool {
	return s.ValidUntil.After(now)
}

// AssessmentStatus is the lifecycle state of a health risk assessment.
type AssessmentStatus string

const (
	AssessmentPending    AssessmentStatus = "pending"
	AssessmentInProgress AssessmentStatus = "in_progress"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentExpired    AssessmentStatus = "expired"
)

// IsValid returns true if the status is a known value.
func (s AssessmentStatus) IsValid() bool {
	switch s {
	case AssessmentPending, AssessmentInProgress, AssessmentCompleted, AssessmentExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further responses or completion are allowed.
func (s AssessmentStatus) Terminal() bool {
	return s == AssessmentCompleted || s == AssessmentExpired
}

// assessmentTransitions is the allowed forward transition table.
var assessmentTransitions = map[AssessmentStatus][]AssessmentStatus{
	AssessmentPending:    {AssessmentInProgress, AssessmentExpired},
	AssessmentInProgress: {AssessmentCompleted, AssessmentExpired},
}

// CanTransition reports whether the lifecycle allows moving to the target state.
// Idempotent "transitions" to the current state are allowed for non-terminal states.
func (s AssessmentStatus) CanTransition(to AssessmentStatus) bool {
	if s == to {
		return !s.Terminal()
	}
	for _, next := range assessmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Response is a single scored answer within an assessment.
type Response struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Response   Value  `json:"response"`
	Score      float64 `json:"score"`
	Category   string `json:"category"`
}

// Assessment is a multi-question health risk assessment (HRA).
// Responses are keyed by question ID; recording a response for an existing
// question replaces the previous entry.
type Assessment struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenant_id"`
	PatientID      string           `json:"patient_id"`
	AssessmentType string           `json:"assessment_type"`
	Status         AssessmentStatus `json:"status"`
	Responses      []Response       `json:"responses"`
	TotalScore     float64          `json:"total_score"`
	RiskLevel      Level            `json:"risk_level"`
	Recommendations []string        `json:"recommendations"`
	CreatedDate    time.Time        `json:"created_date"`
	CompletedDate  *time.Time       `json:"completed_date,omitempty"`
	ExpirationDate time.Time        `json:"expiration_date"`
	AdministeredBy string           `json:"administered_by,omitempty"`
}

// Model is an append-only predictive model catalog entry.
// Deactivation is via IsActive=false, never deletion.
type Model struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	ModelType     string     `json:"model_type"`
	Description   string     `json:"description,omitempty"`
	InputFeatures []string   `json:"input_features"`
	OutputMetric  string     `json:"output_metric"`
	Accuracy      float64    `json:"accuracy"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedBy     string     `json:"created_by"`
}

// Usable reports whether the model may serve analyses at the given time.
func (m *Model) Usable(now time.Time) bool {
	if !m.IsActive {
		return false
	}
	if now.Before(m.ValidFrom) {
		return false
	}
	if m.ValidUntil != nil && !now.Before(*m.ValidUntil) {
		return false
	}
	return true
}

// ContributingFactor is a single feature's share of a predicted outcome,
// expressed as an integer percentage.
type ContributingFactor struct {
	Factor       string  `json:"factor"`
	Contribution float64 `json:"contribution"`
}

// Analysis is the immutable result of one predictive simulation run.
type Analysis struct {
	ID                  string               `json:"id"`
	TenantID            string               `json:"tenant_id"`
	PatientID           string               `json:"patient_id"`
	ModelID             string               `json:"model_id"`
	ModelName           string               `json:"model_name"`
	PredictedOutcome    string               `json:"predicted_outcome"`
	Probability         float64              `json:"probability"`
	Confidence          float64              `json:"confidence"`
	RiskLevel           Level                `json:"risk_level"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
	Recommendations     []string             `json:"recommendations"`
	AnalyzedDate        time.Time            `json:"analyzed_date"`
}

// DeterminantCategory classifies a social determinant of health.
type DeterminantCategory string

const (
	DeterminantEconomicStability       DeterminantCategory = "economic_stability"
	DeterminantEducation               DeterminantCategory = "education"
	DeterminantSocialCommunity         DeterminantCategory = "social_community"
	DeterminantHealthcareAccess        DeterminantCategory = "healthcare_access"
	DeterminantNeighborhoodEnvironment DeterminantCategory = "neighborhood_environment"
)

// IsValid returns true if the category is a known value.
func (c DeterminantCategory) IsValid() bool {
	switch c {
	case DeterminantEconomicStability, DeterminantEducation, DeterminantSocialCommunity,
		DeterminantHealthcareAccess, DeterminantNeighborhoodEnvironment:
		return true
	default:
		return false
	}
}

// DeterminantStatus is the remediation state of a social determinant.
// Transitions are forward-moving by convention but not guarded; callers may
// request any status.
type DeterminantStatus string

const (
	DeterminantIdentified         DeterminantStatus = "identified"
	DeterminantInterventionPlanned DeterminantStatus = "intervention_planned"
	DeterminantInterventionActive DeterminantStatus = "intervention_active"
	DeterminantResolved           DeterminantStatus = "resolved"
)

// IsValid returns true if the status is a known value.
func (s DeterminantStatus) IsValid() bool {
	switch s {
	case DeterminantIdentified, DeterminantInterventionPlanned,
		DeterminantInterventionActive, DeterminantResolved:
		return true
	default:
		return false
	}
}

// Severity grades a social determinant's impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// IsValid returns true if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityHigh:
		return true
	default:
		return false
	}
}

// Determinant is a tracked non-clinical risk factor with its own
// remediation lifecycle, independent of scoring.
type Determinant struct {
	ID             string              `json:"id"`
	TenantID       string              `json:"tenant_id"`
	PatientID      string              `json:"patient_id"`
	Category       DeterminantCategory `json:"category"`
	Factor         string              `json:"factor"`
	Status         DeterminantStatus   `json:"status"`
	Severity       Severity            `json:"severity"`
	Description    string              `json:"description,omitempty"`
	Impact         string              `json:"impact,omitempty"`
	Interventions  []string            `json:"interventions"`
	IdentifiedDate time.Time           `json:"identified_date"`
	ResolvedDate   *time.Time          `json:"resolved_date,omitempty"`
	IdentifiedBy   string              `json:"identified_by"`
}

// Operator compares a patient attribute against a criterion value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpInRange     Operator = "in_range"
)

// IsValid returns true if the operator is a known value.
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpInRange:
		return true
	default:
		return false
	}
}

// Criterion is a single cohort membership predicate. Upper is only
// consulted by the in_range operator and holds the inclusive upper bound.
type Criterion struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
	Upper    *Value   `json:"upper,omitempty"`
}

// Cohort is a named patient set defined by risk level plus criteria.
// PatientCount is a denormalized counter, refreshed by RecountCohort;
// membership evaluation is authoritative.
type Cohort struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Criteria     []Criterion `json:"criteria"`
	RiskLevels   []Level     `json:"risk_levels"`
	PatientCount int         `json:"patient_count"`
	Active       bool        `json:"active"`
	CreatedDate  time.Time   `json:"created_date"`
	CreatedBy    string      `json:"created_by"`
}

// MatchesLevel reports whether the cohort targets the given risk level.
func (c *Cohort) MatchesLevel(level Level) bool {
	for _, l := range c.RiskLevels {
		if l == level {
			return true
		}
	}
	return false
}
