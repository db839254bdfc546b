package risk

import "testing"

func TestLevelForBoundaries(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		score float64
		want  Level
	}{
		{0, LevelLow},
		{24.99, LevelLow},
		{25.00, LevelModerate},
		{49.99, LevelModerate},
		{50.00, LevelHigh},
		{74.99, LevelHigh},
		{75.00, LevelVeryHigh},
		{100, LevelVeryHigh},
	}

	for _, tc := range cases {
		if got := th.LevelFor(tc.score); got != tc.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestCustomThresholds(t *testing.T) {
	th := Thresholds{Moderate: 10, High: 40, VeryHigh: 90}

	if got := th.LevelFor(39.99); got != LevelModerate {
		t.Errorf("expected moderate, got %s", got)
	}
	if got := th.LevelFor(90); got != LevelVeryHigh {
		t.Errorf("expected very_high, got %s", got)
	}
}

func TestAssessmentTransitions(t *testing.T) {
	cases := []struct {
		from, to AssessmentStatus
		allowed  bool
	}{
		{AssessmentPending, AssessmentInProgress, true},
		{AssessmentPending, AssessmentExpired, true},
		{AssessmentPending, AssessmentCompleted, false},
		{AssessmentInProgress, AssessmentCompleted, true},
		{AssessmentInProgress, AssessmentExpired, true},
		{AssessmentInProgress, AssessmentInProgress, true},
		{AssessmentCompleted, AssessmentInProgress, false},
		{AssessmentCompleted, AssessmentCompleted, false},
		{AssessmentExpired, AssessmentInProgress, false},
		{AssessmentExpired, AssessmentCompleted, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}
