package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

func registerTestModel(t *testing.T, e *Engine, features []string, accuracy float64) *risk.Model {
	t.Helper()
	m, err := e.CreateModel(context.Background(), testTenant,
		"readmission-30d", "2.1", "simulation", "30-day readmission risk",
		features, "hospital_readmission", accuracy,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil, "data-team")
	if err != nil {
		t.Fatalf("create model failed: %v", err)
	}
	return m
}

func TestRunAnalysis(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	m := registerTestModel(t, e, []string{"age", "smoker"}, 0.87)

	a, err := e.RunAnalysis(ctx, testTenant, "patient-1", m.ID, map[string]risk.Value{
		"age":    risk.Number(50),
		"smoker": risk.Bool(true),
	})
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	// (50/100 + 0.2) / 2 = 0.35
	if a.Probability != 0.35 {
		t.Errorf("probability = %v, want 0.35", a.Probability)
	}
	if a.Confidence != 0.87 {
		t.Errorf("confidence = %v, want the model accuracy 0.87", a.Confidence)
	}
	if a.RiskLevel != risk.LevelModerate {
		t.Errorf("risk level = %s, want moderate (35)", a.RiskLevel)
	}
	if len(a.ContributingFactors) != 2 {
		t.Fatalf("contributing factors = %d, want 2", len(a.ContributingFactors))
	}
	// Declaration order, integer percentages.
	if a.ContributingFactors[0].Factor != "age" || a.ContributingFactors[0].Contribution != 50 {
		t.Errorf("factor[0] = %+v, want age/50", a.ContributingFactors[0])
	}
	if a.ContributingFactors[1].Factor != "smoker" || a.ContributingFactors[1].Contribution != 20 {
		t.Errorf("factor[1] = %+v, want smoker/20", a.ContributingFactors[1])
	}
	if len(a.Recommendations) != 0 {
		t.Errorf("probability 0.35 should produce no recommendations, got %v", a.Recommendations)
	}

	fetched, err := e.AnalysisByID(ctx, testTenant, a.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if fetched.Probability != a.Probability {
		t.Error("fetched analysis differs from created analysis")
	}
}

func TestRunAnalysisProbabilityCap(t *testing.T) {
	e, _, _ := newTestEngine(t)

	m := registerTestModel(t, e, []string{"f1"}, 0.9)
	a, err := e.RunAnalysis(context.Background(), testTenant, "patient-1", m.ID, map[string]risk.Value{
		"f1": risk.Number(400),
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Probability != 1 {
		t.Errorf("probability = %v, want capped at 1", a.Probability)
	}
	if a.RiskLevel != risk.LevelVeryHigh {
		t.Errorf("risk level = %s, want very_high", a.RiskLevel)
	}
	if len(a.Recommendations) != 2 {
		t.Errorf("probability 1 should produce intervention and enrollment recommendations, got %v", a.Recommendations)
	}
}

func TestRunAnalysisMonitoringBand(t *testing.T) {
	e, _, _ := newTestEngine(t)

	m := registerTestModel(t, e, []string{"f1"}, 0.9)
	a, err := e.RunAnalysis(context.Background(), testTenant, "patient-1", m.ID, map[string]risk.Value{
		"f1": risk.Number(55),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Recommendations) != 1 {
		t.Errorf("probability 0.55 should produce one monitoring recommendation, got %v", a.Recommendations)
	}
}

func TestRunAnalysisMissingFeature(t *testing.T) {
	e, _, _ := newTestEngine(t)

	m := registerTestModel(t, e, []string{"age", "smoker"}, 0.9)

	// Extra unused keys do not compensate for a missing declared feature.
	_, err := e.RunAnalysis(context.Background(), testTenant, "patient-1", m.ID, map[string]risk.Value{
		"age":    risk.Number(50),
		"extra":  risk.String("ignored"),
		"extra2": risk.Number(1),
	})
	if !risk.IsMissingFeature(err) {
		t.Fatalf("err = %v, want MissingFeatureError", err)
	}
	var mfe *risk.MissingFeatureError
	if errors.As(err, &mfe) && mfe.Feature != "smoker" {
		t.Errorf("missing feature = %s, want smoker", mfe.Feature)
	}
}

func TestRunAnalysisModelErrors(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.RunAnalysis(ctx, testTenant, "patient-1", "missing", nil); !errors.Is(err, risk.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	m := registerTestModel(t, e, []string{"f1"}, 0.9)
	if _, err := e.DeactivateModel(ctx, testTenant, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RunAnalysis(ctx, testTenant, "patient-1", m.ID, map[string]risk.Value{"f1": risk.Number(1)}); !errors.Is(err, risk.ErrInactiveModel) {
		t.Errorf("err = %v, want ErrInactiveModel", err)
	}

	// A model past its validity window is inactive even with IsActive=true.
	until := clock.Now().Add(time.Hour)
	expiring, err := e.CreateModel(ctx, testTenant, "m2", "1.0", "simulation", "",
		[]string{"f1"}, "outcome", 0.8, clock.Now().Add(-time.Hour), &until, "data-team")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := e.RunAnalysis(ctx, testTenant, "patient-1", expiring.ID, map[string]risk.Value{"f1": risk.Number(1)}); !errors.Is(err, risk.ErrInactiveModel) {
		t.Errorf("err = %v, want ErrInactiveModel past validUntil", err)
	}
}

func TestRunAnalysisSignals(t *testing.T) {
	sink := &captureSink{}
	e, _, _ := newTestEngine(t, WithSignalSink(sink))

	m := registerTestModel(t, e, []string{"f1"}, 0.9)
	if _, err := e.RunAnalysis(context.Background(), testTenant, "patient-1", m.ID, map[string]risk.Value{
		"f1": risk.Number(90),
	}); err != nil {
		t.Fatal(err)
	}

	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	if sink.signals[0].Source != SignalSourceAnalysis {
		t.Errorf("source = %s, want analysis", sink.signals[0].Source)
	}
	if sink.signals[0].Score != 90 {
		t.Errorf("signal score = %v, want 90", sink.signals[0].Score)
	}
}
