package analytics

import (
	"math"
	"testing"
)

func TestPredictAchievementImprovingTrend(t *testing.T) {
	p := PredictAchievement(series(20, 30, 40, 50), 50)
	// 0.5 base + slope 10 * 0.1 damping = 1.5, clamped to 1.
	if p.AchievementProbability != 1 {
		t.Errorf("probability = %v, want 1 (clamped)", p.AchievementProbability)
	}
	if math.Abs(p.Confidence-1) > 1e-9 {
		t.Errorf("confidence = %v, want 1", p.Confidence)
	}
	if p.PeriodsToCompletion == nil || *p.PeriodsToCompletion != 5 {
		t.Errorf("eta = %v, want 5", p.PeriodsToCompletion)
	}
}

func TestPredictAchievementDecliningTrend(t *testing.T) {
	p := PredictAchievement(series(60, 50, 40), 40)
	// 0.4 base + slope -10 * 0.1 = -0.6, clamped to 0.
	if p.AchievementProbability != 0 {
		t.Errorf("probability = %v, want 0 (clamped)", p.AchievementProbability)
	}
	if p.PeriodsToCompletion != nil {
		t.Errorf("eta = %v, want nil for negative slope", *p.PeriodsToCompletion)
	}
}

func TestPredictAchievementInsufficientData(t *testing.T) {
	p := PredictAchievement(series(40), 40)
	if math.Abs(p.AchievementProbability-0.4) > 1e-9 {
		t.Errorf("probability = %v, want 0.4 (progress only)", p.AchievementProbability)
	}
	if p.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", p.Confidence)
	}
	if p.Trend.Significance != SignificanceInsufficient {
		t.Errorf("significance = %q", p.Trend.Significance)
	}
}

func TestEstimateTimeToCompletion(t *testing.T) {
	if got := EstimateTimeToCompletion(0, 50); got != nil {
		t.Errorf("eta = %v, want nil for zero slope", *got)
	}
	if got := EstimateTimeToCompletion(-5, 50); got != nil {
		t.Errorf("eta = %v, want nil for negative slope", *got)
	}
	if got := EstimateTimeToCompletion(10, 100); got != nil {
		t.Errorf("eta = %v, want nil when done", *got)
	}
	if got := EstimateTimeToCompletion(10, 120); got != nil {
		t.Errorf("eta = %v, want nil when past done", *got)
	}
	if got := EstimateTimeToCompletion(7, 50); got == nil || *got != 8 {
		t.Errorf("eta = %v, want 8 (ceil(50/7))", got)
	}
	if got := EstimateTimeToCompletion(500, 99); got == nil || *got != 1 {
		t.Errorf("eta = %v, want minimum 1", got)
	}
}
