// Package engine implements the risk stratification and predictive
// analytics engine: weighted risk scoring, the HRA lifecycle, predictive
// model simulation, social determinant tracking, cohort evaluation, and
// statistics aggregation. The engine is a pure function of its injected
// Store; it holds no mutable state of its own beyond configuration.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// ScoreStore persists immutable risk scores.
type ScoreStore interface {
	CreateScore(ctx context.Context, s *risk.Score) error
	Score(ctx context.Context, tenantID, id string) (*risk.Score, error)
	ScoresByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Score, error)
	Scores(ctx context.Context, tenantID string) ([]*risk.Score, error)
}

// AssessmentStore persists health risk assessments.
type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a *risk.Assessment) error
	Assessment(ctx context.Context, tenantID, id string) (*risk.Assessment, error)
	UpdateAssessment(ctx context.Context, a *risk.Assessment) error
	Assessments(ctx context.Context, tenantID string) ([]*risk.Assessment, error)
	AssessmentsByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Assessment, error)
}

// ModelStore persists the predictive model catalog.
type ModelStore interface {
	CreateModel(ctx context.Context, m *risk.Model) error
	Model(ctx context.Context, tenantID, id string) (*risk.Model, error)
	UpdateModel(ctx context.Context, m *risk.Model) error
	Models(ctx context.Context, tenantID string) ([]*risk.Model, error)
}

// AnalysisStore persists predictive analysis results.
type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, a *risk.Analysis) error
	Analysis(ctx context.Context, tenantID, id string) (*risk.Analysis, error)
	Analyses(ctx context.Context, tenantID string) ([]*risk.Analysis, error)
	AnalysesByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Analysis, error)
}

// DeterminantStore persists social determinants.
type DeterminantStore interface {
	CreateDeterminant(ctx context.Context, d *risk.Determinant) error
	Determinant(ctx context.Context, tenantID, id string) (*risk.Determinant, error)
	UpdateDeterminant(ctx context.Context, d *risk.Determinant) error
	Determinants(ctx context.Context, tenantID string) ([]*risk.Determinant, error)
	DeterminantsByPatient(ctx context.Context, tenantID, patientID string) ([]*risk.Determinant, error)
}

// CohortStore persists cohort definitions.
type CohortStore interface {
	CreateCohort(ctx context.Context, c *risk.Cohort) error
	Cohort(ctx context.Context, tenantID, id string) (*risk.Cohort, error)
	UpdateCohort(ctx context.Context, c *risk.Cohort) error
	Cohorts(ctx context.Context, tenantID string) ([]*risk.Cohort, error)
}

// Store is the full persistence contract the engine depends on. Collections
// come back unordered; the engine sorts and filters in memory.
type Store interface {
	ScoreStore
	AssessmentStore
	ModelStore
	AnalysisStore
	DeterminantStore
	CohortStore
}

// Signal is a high-risk outcome surfaced to downstream collaborators
// (task creation, notifications). The engine only produces the signal.
type Signal struct {
	TenantID        string     `json:"tenant_id"`
	PatientID       string     `json:"patient_id"`
	Source          string     `json:"source"`
	SourceID        string     `json:"source_id"`
	RiskLevel       risk.Level `json:"risk_level"`
	Score           float64    `json:"score"`
	Recommendations []string   `json:"recommendations"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// Signal sources.
const (
	SignalSourceAssessment = "assessment"
	SignalSourceAnalysis   = "analysis"
)

// SignalSink receives high-risk signals. Delivery failures are logged, not
// surfaced: signal emission never fails the producing operation.
type SignalSink interface {
	EmitSignal(ctx context.Context, sig *Signal) error
}

// AttributeSource looks up a patient attribute for cohort criteria
// evaluation. The second return is false when the attribute is unknown.
type AttributeSource interface {
	PatientAttribute(ctx context.Context, tenantID, patientID, field string) (risk.Value, bool)
}

// Config holds the engine tunables.
type Config struct {
	// Thresholds are the risk level cut points.
	Thresholds risk.Thresholds
	// ScoreValidity is how long a calculated score stays valid.
	ScoreValidity time.Duration
	// CategoryFlagScore is the per-category response score sum that triggers
	// a targeted-intervention recommendation on assessment completion.
	CategoryFlagScore float64
	// HighProbability is the analysis probability above which intervention
	// recommendations are produced.
	HighProbability float64
	// ModerateProbability is the analysis probability above which a
	// monitoring recommendation is produced.
	ModerateProbability float64
}

// DefaultConfig returns the standard stratification configuration:
// 25/50/75 thresholds and a 90-day score validity window.
func DefaultConfig() Config {
	return Config{
		Thresholds:          risk.DefaultThresholds(),
		ScoreValidity:       90 * 24 * time.Hour,
		CategoryFlagScore:   20,
		HighProbability:     0.7,
		ModerateProbability: 0.4,
	}
}

// Engine evaluates risk over an injected store. Safe for concurrent use
// across patients; per-patient read-your-writes consistency is the store's
// responsibility.
type Engine struct {
	store   Store
	signals SignalSink
	attrs   AttributeSource
	config  Config
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithSignalSink wires a sink for high-risk signals.
func WithSignalSink(sink SignalSink) Option {
	return func(e *Engine) { e.signals = sink }
}

// WithAttributeSource wires a patient-attribute lookup for cohort criteria.
func WithAttributeSource(src AttributeSource) Option {
	return func(e *Engine) { e.attrs = src }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given store.
func New(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("risk-engine"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// emitSignal hands a high-risk outcome to the sink, if one is wired.
func (e *Engine) emitSignal(ctx context.Context, sig *Signal) {
	if e.signals == nil {
		return
	}
	if sig.RiskLevel != risk.LevelHigh && sig.RiskLevel != risk.LevelVeryHigh {
		return
	}
	if err := e.signals.EmitSignal(ctx, sig); err != nil {
		e.logger.Error("signal emission failed",
			zap.String("tenant_id", sig.TenantID),
			zap.String("patient_id", sig.PatientID),
			zap.String("source", sig.Source),
			zap.Error(err))
	}
}
