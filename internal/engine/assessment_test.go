package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newvantageco/riskstrat/internal/domain/risk"
)

func TestAssessmentLifecycle(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	a, err := e.CreateAssessment(ctx, testTenant, "patient-1", "annual-wellness", clock.Now().Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if a.Status != risk.AssessmentPending {
		t.Errorf("status = %s, want pending", a.Status)
	}
	if a.TotalScore != 0 || a.RiskLevel != risk.LevelLow || len(a.Responses) != 0 {
		t.Error("new assessment not zero-initialized")
	}

	a, err = e.RecordResponse(ctx, testTenant, a.ID, risk.Response{
		QuestionID: "q1", Question: "Tobacco use?", Response: risk.Bool(true), Score: 25, Category: "clinical",
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if a.Status != risk.AssessmentInProgress {
		t.Errorf("status = %s, want in_progress", a.Status)
	}

	a, err = e.RecordResponse(ctx, testTenant, a.ID, risk.Response{
		QuestionID: "q2", Question: "Lives alone?", Response: risk.Bool(false), Score: 5, Category: "social",
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	a, err = e.CompleteAssessment(ctx, testTenant, a.ID, "nurse-lee")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if a.TotalScore != 30 {
		t.Errorf("total = %v, want 30", a.TotalScore)
	}
	if a.RiskLevel != risk.LevelModerate {
		t.Errorf("risk level = %s, want moderate", a.RiskLevel)
	}
	if a.CompletedDate == nil || a.AdministeredBy != "nurse-lee" {
		t.Error("completion metadata not stamped")
	}

	// clinical sum 25 >= 20 flags; social sum 5 does not.
	var clinical, social bool
	for _, rec := range a.Recommendations {
		if strings.Contains(rec, "clinical") {
			clinical = true
		}
		if strings.Contains(rec, "social") {
			social = true
		}
	}
	if !clinical {
		t.Errorf("expected a clinical recommendation, got %v", a.Recommendations)
	}
	if social {
		t.Errorf("did not expect a social recommendation, got %v", a.Recommendations)
	}
}

func TestRecordResponseUpsertsByQuestionID(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	a, err := e.CreateAssessment(ctx, testTenant, "patient-1", "phq9", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q1", Score: 10, Category: "behavioral"}); err != nil {
		t.Fatal(err)
	}
	a, err = e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q1", Score: 15, Category: "behavioral"})
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(a.Responses))
	}
	if a.Responses[0].Score != 15 {
		t.Errorf("score = %v, want the replacement value 15", a.Responses[0].Score)
	}
}

func TestRecordResponseErrors(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.RecordResponse(ctx, testTenant, "missing", risk.Response{QuestionID: "q1"}); !errors.Is(err, risk.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	a, err := e.CreateAssessment(ctx, testTenant, "patient-1", "phq9", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q1", Score: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CompleteAssessment(ctx, testTenant, a.ID, "nurse"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q2"}); !errors.Is(err, risk.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState for completed assessment", err)
	}
}

func TestCompleteAssessmentErrors(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.CompleteAssessment(ctx, testTenant, "missing", "nurse"); !errors.Is(err, risk.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	a, err := e.CreateAssessment(ctx, testTenant, "patient-1", "phq9", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q1", Score: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CompleteAssessment(ctx, testTenant, a.ID, "nurse"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CompleteAssessment(ctx, testTenant, a.ID, "nurse"); !errors.Is(err, risk.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState on double completion", err)
	}
}

func TestMarkExpired(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	a, err := e.CreateAssessment(ctx, testTenant, "patient-1", "phq9", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	a, err = e.MarkExpired(ctx, testTenant, a.ID)
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if a.Status != risk.AssessmentExpired {
		t.Errorf("status = %s, want expired", a.Status)
	}

	if _, err := e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q1"}); !errors.Is(err, risk.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState on expired assessment", err)
	}
	if _, err := e.MarkExpired(ctx, testTenant, a.ID); !errors.Is(err, risk.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState on double expiry", err)
	}
}

func TestCompleteAssessmentSignals(t *testing.T) {
	sink := &captureSink{}
	e, _, clock := newTestEngine(t, WithSignalSink(sink))
	ctx := context.Background()

	a, err := e.CreateAssessment(ctx, testTenant, "patient-1", "phq9", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordResponse(ctx, testTenant, a.ID, risk.Response{QuestionID: "q1", Score: 80, Category: "clinical"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CompleteAssessment(ctx, testTenant, a.ID, "nurse"); err != nil {
		t.Fatal(err)
	}

	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	sig := sink.signals[0]
	if sig.Source != SignalSourceAssessment || sig.RiskLevel != risk.LevelVeryHigh {
		t.Errorf("unexpected signal %+v", sig)
	}

	// Low-risk completions do not signal.
	b, err := e.CreateAssessment(ctx, testTenant, "patient-2", "phq9", clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordResponse(ctx, testTenant, b.ID, risk.Response{QuestionID: "q1", Score: 5, Category: "clinical"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CompleteAssessment(ctx, testTenant, b.ID, "nurse"); err != nil {
		t.Fatal(err)
	}
	if len(sink.signals) != 1 {
		t.Errorf("low-risk completion emitted a signal")
	}
}

type captureSink struct {
	signals []*Signal
}

func (s *captureSink) EmitSignal(_ context.Context, sig *Signal) error {
	s.signals = append(s.signals, sig)
	return nil
}
