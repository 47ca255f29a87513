package progress

import (
	"time"

	"github.com/google/uuid"
)

// Record statuses. Records are archived, never deleted.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Goal statuses. Transitions are one-directional: the tracker never moves a
// goal backwards, only an explicit human reset does.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalOverdue   = "overdue"
)

// Milestone marks a progress threshold. Reached is set exactly once; replays
// of lower progress never clear it.
type Milestone struct {
	Label     string     `json:"label"`
	Threshold float64    `json:"threshold"`
	Reached   bool       `json:"reached"`
	ReachedAt *time.Time `json:"reached_at,omitempty"`
}

// Goal is a SMART goal with derived progress.
type Goal struct {
	ID              uuid.UUID   `json:"id"`
	Description     string      `json:"description"`
	Specific        string      `json:"specific,omitempty"`
	Measurable      string      `json:"measurable,omitempty"`
	Achievable      string      `json:"achievable,omitempty"`
	Relevant        string      `json:"relevant,omitempty"`
	TimeBound       time.Time   `json:"time_bound,omitempty"`
	TargetValue     float64     `json:"target_value"`
	CurrentValue    float64     `json:"current_value"`
	Progress        float64     `json:"progress"`
	Status          string      `json:"status"`
	Milestones      []Milestone `json:"milestones,omitempty"`
	InterventionIDs []uuid.UUID `json:"intervention_ids,omitempty"`
}

// Intervention is a recorded care action. Effectiveness is nil until enough
// before/after data exists to estimate it.
type Intervention struct {
	ID            uuid.UUID   `json:"id"`
	Type          string      `json:"type"`
	Description   string      `json:"description"`
	Effectiveness *float64    `json:"effectiveness,omitempty"`
	GoalIDs       []uuid.UUID `json:"goal_ids,omitempty"`
	RecordedAt    time.Time   `json:"recorded_at"`
}

// Record maps to the progress_record table. Goals and Interventions are
// stored as JSONB documents on the record.
type Record struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	PatientID     uuid.UUID          `db:"patient_id" json:"patient_id"`
	AuthorID      uuid.UUID          `db:"author_id" json:"author_id"`
	Goals         []Goal             `db:"goals" json:"goals"`
	Interventions []Intervention     `db:"interventions" json:"interventions"`
	Metrics       map[string]float64 `db:"metrics" json:"metrics"`
	Status        string             `db:"status" json:"status"`
	Version       int                `db:"version" json:"version"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// Goal returns the goal with the given id, or nil.
func (r *Record) Goal(id uuid.UUID) *Goal {
	for i := range r.Goals {
		if r.Goals[i].ID == id {
			return &r.Goals[i]
		}
	}
	return nil
}

// HistoryEntry maps to the progress_history table.
type HistoryEntry struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	RecordID  uuid.UUID              `db:"record_id" json:"record_id"`
	Version   int                    `db:"version" json:"version"`
	Actor     uuid.UUID              `db:"actor" json:"actor"`
	Action    string                 `db:"action" json:"action"`
	Diff      map[string]interface{} `db:"diff" json:"diff,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// SnapshotPoint is one historical overall-progress observation.
type SnapshotPoint struct {
	RecordedAt time.Time `json:"recorded_at"`
	Value      float64   `json:"value"`
}

// Overview summarizes a patient's progress records.
type Overview struct {
	PatientID          uuid.UUID `json:"patient_id"`
	Records            int       `json:"records"`
	Goals              int       `json:"goals"`
	CompletedGoals     int       `json:"completed_goals"`
	OverdueGoals       int       `json:"overdue_goals"`
	Interventions      int       `json:"interventions"`
	OverallProgress    float64   `json:"overall_progress"`
	GoalCompletionRate float64   `json:"goal_completion_rate"`
	// MeanEffectiveness averages the evaluated interventions; nil when none
	// have been evaluated yet.
	MeanEffectiveness *float64 `json:"mean_effectiveness,omitempty"`
}

// BuildOverview aggregates active records into a per-patient overview.
// Unevaluated interventions are counted but excluded from the effectiveness
// mean.
func BuildOverview(patientID uuid.UUID, recs []*Record) *Overview {
	ov := &Overview{PatientID: patientID}
	progressSum := 0.0
	effSum := 0.0
	evaluated := 0
	for _, rec := range recs {
		ov.Records++
		ov.Goals += len(rec.Goals)
		ov.Interventions += len(rec.Interventions)
		for _, g := range rec.Goals {
			switch g.Status {
			case GoalCompleted:
				ov.CompletedGoals++
			case GoalOverdue:
				ov.OverdueGoals++
			}
		}
		for _, iv := range rec.Interventions {
			if iv.Effectiveness != nil {
				effSum += *iv.Effectiveness
				evaluated++
			}
		}
		progressSum += OverallProgress(rec.Goals)
	}
	if ov.Records > 0 {
		ov.OverallProgress = progressSum / float64(ov.Records)
	}
	if ov.Goals > 0 {
		ov.GoalCompletionRate = float64(ov.CompletedGoals) / float64(ov.Goals) * 100
	}
	if evaluated > 0 {
		mean := effSum / float64(evaluated)
		ov.MeanEffectiveness = &mean
	}
	return ov
}
