package engine

import (
	"context"
	"testing"
	"time"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
	"github.com/newvantageco/riskstrat/internal/infrastructure/memstore"
)

const testTenant = "tenant-a"

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memstore.Store, *fakeClock) {
	t.Helper()
	store := memstore.New()
	clock := &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	opts = append(opts, WithClock(clock.Now))
	return New(store, DefaultConfig(), nil, opts...), store, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCalculateRiskScore(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	factors := []risk.Factor{
		{Factor: "hba1c", Category: "clinical", Weight: 3, Value: risk.Number(9.1), Impact: 0.9},
		{Factor: "missed_appointments", Category: "behavioral", Weight: 1, Value: risk.Number(4), Impact: 0.5},
	}

	score, err := e.CalculateRiskScore(ctx, testTenant, "patient-1", "readmission", risk.CategoryClinical, factors, "dr-jones")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	// (0.9*3 + 0.5*1) / 4 * 100 = 80
	if score.Score != 80 {
		t.Errorf("score = %v, want 80", score.Score)
	}
	if score.RiskLevel != risk.LevelVeryHigh {
		t.Errorf("risk level = %s, want very_high", score.RiskLevel)
	}
	if got := score.ValidUntil.Sub(score.CalculatedDate); got != 90*24*time.Hour {
		t.Errorf("validity window = %v, want 90 days", got)
	}
	if !score.CalculatedDate.Equal(clock.Now()) {
		t.Errorf("calculated date = %v, want %v", score.CalculatedDate, clock.Now())
	}

	// Round-trip by ID.
	fetched, err := e.RiskScore(ctx, testTenant, score.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if fetched.Score != score.Score || fetched.RiskLevel != score.RiskLevel {
		t.Error("fetched score differs from created score")
	}
}

func TestCalculateRiskScoreZeroWeight(t *testing.T) {
	e, _, _ := newTestEngine(t)

	factors := []risk.Factor{
		{Factor: "a", Weight: 0, Impact: 0.9},
		{Factor: "b", Weight: 0, Impact: 1},
	}

	score, err := e.CalculateRiskScore(context.Background(), testTenant, "patient-1", "generic", risk.CategoryClinical, factors, "system")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if score.Score != 0 {
		t.Errorf("score = %v, want 0", score.Score)
	}
	if score.RiskLevel != risk.LevelLow {
		t.Errorf("risk level = %s, want low", score.RiskLevel)
	}
}

func TestCalculateRiskScoreRounding(t *testing.T) {
	e, _, _ := newTestEngine(t)

	factors := []risk.Factor{
		{Factor: "a", Weight: 3, Impact: 1.0 / 3.0},
	}

	score, err := e.CalculateRiskScore(context.Background(), testTenant, "patient-1", "generic", risk.CategoryClinical, factors, "system")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if score.Score != 33.33 {
		t.Errorf("score = %v, want 33.33", score.Score)
	}
}

func TestLatestRiskScoreExcludesExpired(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	factors := []risk.Factor{{Factor: "a", Weight: 1, Impact: 0.3}}
	first, err := e.CalculateRiskScore(ctx, testTenant, "patient-1", "readmission", risk.CategoryClinical, factors, "system")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	clock.Advance(24 * time.Hour)
	second, err := e.CalculateRiskScore(ctx, testTenant, "patient-1", "readmission", risk.CategoryClinical, factors, "system")
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	latest, err := e.LatestRiskScore(ctx, testTenant, "patient-1", "readmission")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("latest = %v, want the newer score", latest)
	}

	// Move past the second score's expiry: even though it is the most
	// recent by calculated date, it must be excluded.
	clock.Advance(91 * 24 * time.Hour)
	latest, err = e.LatestRiskScore(ctx, testTenant, "patient-1", "readmission")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("expected no valid score, got %s", latest.ID)
	}
	_ = first
}

func TestLatestRiskScoreTypeFilter(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	factors := []risk.Factor{{Factor: "a", Weight: 1, Impact: 0.3}}
	if _, err := e.CalculateRiskScore(ctx, testTenant, "patient-1", "readmission", risk.CategoryClinical, factors, "system"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	falls, err := e.CalculateRiskScore(ctx, testTenant, "patient-1", "falls", risk.CategoryFunctional, factors, "system")
	if err != nil {
		t.Fatal(err)
	}

	latest, err := e.LatestRiskScore(ctx, testTenant, "patient-1", "falls")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != falls.ID {
		t.Error("type filter did not select the falls score")
	}

	// No filter returns the newest across all types.
	latest, err = e.LatestRiskScore(ctx, testTenant, "patient-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != falls.ID {
		t.Error("unfiltered latest should be the newest score")
	}
}

func TestPatientsByRiskLevel(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	high := []risk.Factor{{Factor: "a", Weight: 1, Impact: 0.6}}
	low := []risk.Factor{{Factor: "a", Weight: 1, Impact: 0.1}}

	if _, err := e.CalculateRiskScore(ctx, testTenant, "p-high", "generic", risk.CategoryClinical, high, "system"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CalculateRiskScore(ctx, testTenant, "p-low", "generic", risk.CategoryClinical, low, "system"); err != nil {
		t.Fatal(err)
	}

	// p-reformed was high, but their most recent score is low: only the
	// latest valid score counts.
	if _, err := e.CalculateRiskScore(ctx, testTenant, "p-reformed", "generic", risk.CategoryClinical, high, "system"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if _, err := e.CalculateRiskScore(ctx, testTenant, "p-reformed", "generic", risk.CategoryClinical, low, "system"); err != nil {
		t.Fatal(err)
	}

	patients, err := e.PatientsByRiskLevel(ctx, testTenant, risk.LevelHigh, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(patients) != 1 || patients[0] != "p-high" {
		t.Errorf("high risk patients = %v, want [p-high]", patients)
	}

	patients, err = e.PatientsByRiskLevel(ctx, testTenant, risk.LevelLow, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(patients) != 2 {
		t.Errorf("low risk patients = %v, want two", patients)
	}
}

func TestPatientsByRiskLevelCategoryFilter(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	high := []risk.Factor{{Factor: "a", Weight: 1, Impact: 0.6}}
	if _, err := e.CalculateRiskScore(ctx, testTenant, "p1", "generic", risk.CategorySocial, high, "system"); err != nil {
		t.Fatal(err)
	}

	patients, err := e.PatientsByRiskLevel(ctx, testTenant, risk.LevelHigh, risk.CategoryClinical)
	if err != nil {
		t.Fatal(err)
	}
	if len(patients) != 0 {
		t.Errorf("expected no clinical-category matches, got %v", patients)
	}
}

func TestTenantIsolation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	factors := []risk.Factor{{Factor: "a", Weight: 1, Impact: 0.6}}
	score, err := e.CalculateRiskScore(ctx, testTenant, "p1", "generic", risk.CategoryClinical, factors, "system")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.RiskScore(ctx, "tenant-b", score.ID); err != risk.ErrNotFound {
		t.Errorf("cross-tenant read: err = %v, want ErrNotFound", err)
	}
}
