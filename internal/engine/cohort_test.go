package engine

import (
	"context"
	"testing"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

// mapAttributes is a test AttributeSource backed by per-patient maps.
type mapAttributes struct {
	attrs map[string]map[string]risk.Value
}

func (m *mapAttributes) PatientAttribute(_ context.Context, _, patientID, field string) (risk.Value, bool) {
	v, ok := m.attrs[patientID][field]
	return v, ok
}

func scorePatient(t *testing.T, e *Engine, patientID string, impact float64) {
	t.Helper()
	factors := []risk.Factor{{Factor: "composite", Weight: 1, Impact: impact}}
	if _, err := e.CalculateRiskScore(context.Background(), testTenant, patientID, "generic", risk.CategoryClinical, factors, "system"); err != nil {
		t.Fatal(err)
	}
}

func TestPatientCohortsByRiskLevel(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	cohort, err := e.CreateCohort(ctx, testTenant, "high-risk-outreach", "care management outreach",
		nil, []risk.Level{risk.LevelHigh, risk.LevelVeryHigh}, "admin")
	if err != nil {
		t.Fatalf("create cohort failed: %v", err)
	}
	if cohort.PatientCount != 0 || !cohort.Active {
		t.Error("new cohort not initialized")
	}

	scorePatient(t, e, "patient-high", 0.6)
	scorePatient(t, e, "patient-low", 0.1)

	got, err := e.PatientCohorts(ctx, testTenant, "patient-high")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != cohort.ID {
		t.Errorf("cohorts = %v, want the outreach cohort", got)
	}

	got, err = e.PatientCohorts(ctx, testTenant, "patient-low")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("low-risk patient matched cohorts %v", got)
	}

	// No valid score means no cohorts at all.
	got, err = e.PatientCohorts(ctx, testTenant, "patient-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("unscored patient matched cohorts %v", got)
	}
}

func TestPatientCohortsInactiveExcluded(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	cohort, err := e.CreateCohort(ctx, testTenant, "retired", "", nil, []risk.Level{risk.LevelHigh}, "admin")
	if err != nil {
		t.Fatal(err)
	}
	cohort.Active = false
	if err := store.UpdateCohort(ctx, cohort); err != nil {
		t.Fatal(err)
	}

	scorePatient(t, e, "patient-high", 0.6)

	got, err := e.PatientCohorts(ctx, testTenant, "patient-high")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Error("inactive cohort matched")
	}
}

func TestCriteriaEvaluation(t *testing.T) {
	upper := risk.Number(80)
	attrs := &mapAttributes{attrs: map[string]map[string]risk.Value{
		"patient-1": {
			"age":       risk.Number(72),
			"diagnosis": risk.String("type 2 diabetes"),
			"smoker":    risk.Bool(false),
		},
	}}
	e, _, _ := newTestEngine(t, WithAttributeSource(attrs))
	ctx := context.Background()

	scorePatient(t, e, "patient-1", 0.6)

	cases := []struct {
		name    string
		crit    risk.Criterion
		matches bool
	}{
		{"equals", risk.Criterion{Field: "smoker", Operator: risk.OpEquals, Value: risk.Bool(false)}, true},
		{"not equals", risk.Criterion{Field: "smoker", Operator: risk.OpNotEquals, Value: risk.Bool(false)}, false},
		{"greater than", risk.Criterion{Field: "age", Operator: risk.OpGreaterThan, Value: risk.Number(65)}, true},
		{"less than", risk.Criterion{Field: "age", Operator: risk.OpLessThan, Value: risk.Number(65)}, false},
		{"contains", risk.Criterion{Field: "diagnosis", Operator: risk.OpContains, Value: risk.String("diabetes")}, true},
		{"in range", risk.Criterion{Field: "age", Operator: risk.OpInRange, Value: risk.Number(65), Upper: &upper}, true},
		{"out of range", risk.Criterion{Field: "age", Operator: risk.OpInRange, Value: risk.Number(75), Upper: &upper}, false},
		{"unknown field passes", risk.Criterion{Field: "zip_code", Operator: risk.OpEquals, Value: risk.String("EC1")}, true},
		{"type mismatch fails", risk.Criterion{Field: "diagnosis", Operator: risk.OpGreaterThan, Value: risk.Number(1)}, false},
	}

	for _, tc := range cases {
		cohort, err := e.CreateCohort(ctx, testTenant, "c-"+tc.name, "",
			[]risk.Criterion{tc.crit}, []risk.Level{risk.LevelHigh}, "admin")
		if err != nil {
			t.Fatal(err)
		}

		got, err := e.PatientCohorts(ctx, testTenant, "patient-1")
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, c := range got {
			if c.ID == cohort.ID {
				found = true
			}
		}
		if found != tc.matches {
			t.Errorf("%s: matched = %v, want %v", tc.name, found, tc.matches)
		}
	}
}

func TestCriteriaWithoutAttributeSource(t *testing.T) {
	// With no attribute source every criterion passes and membership
	// degrades to risk-level matching alone.
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	scorePatient(t, e, "patient-1", 0.6)

	cohort, err := e.CreateCohort(ctx, testTenant, "criteria-cohort", "",
		[]risk.Criterion{{Field: "age", Operator: risk.OpGreaterThan, Value: risk.Number(65)}},
		[]risk.Level{risk.LevelHigh}, "admin")
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.PatientCohorts(ctx, testTenant, "patient-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != cohort.ID {
		t.Error("criterion did not pass without an attribute source")
	}
}

func TestRecountCohort(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	cohort, err := e.CreateCohort(ctx, testTenant, "high-risk", "",
		nil, []risk.Level{risk.LevelHigh, risk.LevelVeryHigh}, "admin")
	if err != nil {
		t.Fatal(err)
	}

	scorePatient(t, e, "p1", 0.6)
	scorePatient(t, e, "p2", 0.8)
	scorePatient(t, e, "p3", 0.1)

	cohort, err = e.RecountCohort(ctx, testTenant, cohort.ID)
	if err != nil {
		t.Fatalf("recount failed: %v", err)
	}
	if cohort.PatientCount != 2 {
		t.Errorf("patient count = %d, want 2", cohort.PatientCount)
	}
}
