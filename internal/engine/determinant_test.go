package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

func TestRecordDeterminant(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	d, err := e.RecordDeterminant(ctx, testTenant, "patient-1",
		risk.DeterminantEconomicStability, "housing instability", risk.SeverityHigh,
		"at risk of eviction", "medication adherence", "social-worker-1")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if d.Status != risk.DeterminantIdentified {
		t.Errorf("status = %s, want identified", d.Status)
	}
	if len(d.Interventions) != 0 {
		t.Error("new determinant should have no interventions")
	}
	if !d.IdentifiedDate.Equal(clock.Now()) {
		t.Error("identified date not stamped")
	}

	fetched, err := e.Determinant(ctx, testTenant, d.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if fetched.Factor != "housing instability" {
		t.Error("fetched determinant differs from created determinant")
	}
}

func TestUpdateDeterminant(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	d, err := e.RecordDeterminant(ctx, testTenant, "patient-1",
		risk.DeterminantHealthcareAccess, "no transportation", risk.SeverityModerate, "", "", "sw-1")
	if err != nil {
		t.Fatal(err)
	}

	status := risk.DeterminantInterventionActive
	interventions := []string{"transport voucher program"}
	d, err = e.UpdateDeterminant(ctx, testTenant, d.ID, DeterminantUpdate{
		Status:        &status,
		Interventions: &interventions,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if d.Status != risk.DeterminantInterventionActive || len(d.Interventions) != 1 {
		t.Errorf("partial update not applied: %+v", d)
	}
	if d.ResolvedDate != nil {
		t.Error("resolved date set without being provided")
	}

	resolved := risk.DeterminantResolved
	when := clock.Now()
	d, err = e.UpdateDeterminant(ctx, testTenant, d.ID, DeterminantUpdate{
		Status:       &resolved,
		ResolvedDate: &when,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != risk.DeterminantResolved || d.ResolvedDate == nil {
		t.Errorf("resolution not applied: %+v", d)
	}
	// Interventions untouched by the second update.
	if len(d.Interventions) != 1 {
		t.Error("omitted field was overwritten")
	}
}

func TestUpdateDeterminantNotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.UpdateDeterminant(context.Background(), testTenant, "missing", DeterminantUpdate{}); !errors.Is(err, risk.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeterminantQueries(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.RecordDeterminant(ctx, testTenant, "patient-1",
		risk.DeterminantEducation, "health literacy", risk.SeverityLow, "", "", "sw-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordDeterminant(ctx, testTenant, "patient-1",
		risk.DeterminantEconomicStability, "food insecurity", risk.SeverityHigh, "", "", "sw-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordDeterminant(ctx, testTenant, "patient-2",
		risk.DeterminantEducation, "health literacy", risk.SeverityLow, "", "", "sw-1"); err != nil {
		t.Fatal(err)
	}

	byPatient, err := e.PatientDeterminants(ctx, testTenant, "patient-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byPatient) != 2 {
		t.Errorf("patient-1 determinants = %d, want 2", len(byPatient))
	}

	byCategory, err := e.DeterminantsByCategory(ctx, testTenant, risk.DeterminantEducation)
	if err != nil {
		t.Fatal(err)
	}
	if len(byCategory) != 2 {
		t.Errorf("education determinants = %d, want 2", len(byCategory))
	}
}
