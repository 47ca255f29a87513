package progress

import (
	"math"
	"time"
)

// Tracker holds the pure goal state machine. All functions here are
// deterministic and side-effect free so they can be exercised without any
// persistence in place.

// ClampProgress derives the progress percentage from current and target
// values, clamped to [0,100]. A non-positive target yields zero rather than a
// division blow-up.
func ClampProgress(currentValue, targetValue float64) float64 {
	if targetValue <= 0 {
		return 0
	}
	p := currentValue / targetValue * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// UpdateProgress sets the goal's current value, recomputes progress, applies
// status transitions and milestone checks. Transitions are one-directional:
// completed and overdue goals are left as they are.
func UpdateProgress(g *Goal, currentValue float64, now time.Time) {
	g.CurrentValue = currentValue
	g.Progress = ClampProgress(currentValue, g.TargetValue)

	if g.Status == GoalActive {
		switch {
		case g.Progress >= 100:
			g.Status = GoalCompleted
		case !g.TimeBound.IsZero() && now.After(g.TimeBound):
			g.Status = GoalOverdue
		}
	}

	checkMilestones(g, now)
}

// checkMilestones marks every unreached milestone whose threshold the current
// progress meets. Reached milestones are never cleared.
func checkMilestones(g *Goal, now time.Time) {
	for i := range g.Milestones {
		m := &g.Milestones[i]
		if !m.Reached && g.Progress >= m.Threshold {
			m.Reached = true
			at := now
			m.ReachedAt = &at
		}
	}
}

// ResetGoal is the explicit human action that returns a goal to active. It
// does not clear milestones or progress.
func ResetGoal(g *Goal) {
	g.Status = GoalActive
}

// EstimateEffectiveness scores an intervention from the overall progress
// immediately before and after it, on a 0-100 scale centered at 50 (no
// change). Each point of progress gained or lost moves the estimate by two.
func EstimateEffectiveness(before, after float64) float64 {
	e := 50 + (after-before)*2
	if e < 0 {
		return 0
	}
	if e > 100 {
		return 100
	}
	return e
}

// OverallProgress is the mean progress across all goals, 0 when there are
// none.
func OverallProgress(goals []Goal) float64 {
	if len(goals) == 0 {
		return 0
	}
	sum := 0.0
	for _, g := range goals {
		sum += g.Progress
	}
	return sum / float64(len(goals))
}

// RefreshMetrics recomputes the record's metrics snapshot from its goals and
// interventions.
func RefreshMetrics(r *Record) {
	completed, overdue := 0, 0
	for _, g := range r.Goals {
		switch g.Status {
		case GoalCompleted:
			completed++
		case GoalOverdue:
			overdue++
		}
	}
	r.Metrics = map[string]float64{
		"overall_progress": math.Round(OverallProgress(r.Goals)*100) / 100,
		"goal_count":       float64(len(r.Goals)),
		"completed_goals":  float64(completed),
		"overdue_goals":    float64(overdue),
		"interventions":    float64(len(r.Interventions)),
	}
}
