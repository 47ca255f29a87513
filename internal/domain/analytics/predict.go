package analytics

import "math"

// dampingFactor scales the trend slope's contribution to the achievement
// probability so one steep period does not swing the prediction.
const dampingFactor = 0.1

// Prediction is the outcome of the goal-achievement model.
type Prediction struct {
	GoalID                 string      `json:"goal_id,omitempty"`
	AchievementProbability float64     `json:"achievement_probability"`
	Confidence             float64     `json:"confidence"`
	PeriodsToCompletion    *int        `json:"periods_to_completion,omitempty"`
	Trend                  TrendResult `json:"trend"`
}

// PredictAchievement estimates the probability of reaching 100% progress:
// the latest progress as a base, nudged by the damped trend slope, clamped
// to [0,1]. Confidence is the trend's |correlation|.
func PredictAchievement(series []Point, latestProgress float64) Prediction {
	trend := AnalyzeTrend("goal_progress", series)

	p := latestProgress/100 + trend.Slope*dampingFactor
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	return Prediction{
		AchievementProbability: p,
		Confidence:             math.Abs(trend.Correlation),
		PeriodsToCompletion:    EstimateTimeToCompletion(trend.Slope, latestProgress),
		Trend:                  trend,
	}
}

// EstimateTimeToCompletion returns the number of periods until progress
// reaches 100 at the current slope, minimum 1. It returns nil when the goal
// is already done or the slope is non-positive; a negative-time ETA is never
// extrapolated.
func EstimateTimeToCompletion(slope, latestProgress float64) *int {
	if latestProgress >= 100 || slope <= 0 {
		return nil
	}
	periods := int(math.Ceil((100 - latestProgress) / slope))
	if periods < 1 {
		periods = 1
	}
	return &periods
}
