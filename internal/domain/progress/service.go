package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcore/riskcore/internal/platform/apperr"
	"github.com/riskcore/riskcore/internal/platform/events"
	"github.com/riskcore/riskcore/internal/platform/resilience"
)

// Event types emitted by the progress service.
const (
	EventRecordCreated        = "progress.record-created"
	EventProgressUpdated      = "progress.updated"
	EventGoalCompleted        = "progress.goal-completed"
	EventInterventionRecorded = "progress.intervention-recorded"
	EventRecordArchived       = "progress.archived"
)

const snapshotLookback = 365 * 24 * time.Hour

// Service orchestrates the goal tracker, persistence and the resilience
// layer, mirroring the assessment facade.
type Service struct {
	repo    Repository
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	cache   *resilience.Cache
	retry   resilience.RetryConfig
	events  events.Publisher
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, limiter *resilience.RateLimiter, breaker *resilience.CircuitBreaker,
	cache *resilience.Cache, retry resilience.RetryConfig, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		limiter: limiter,
		breaker: breaker,
		cache:   cache,
		retry:   retry,
		events:  pub,
		logger:  logger.With().Str("service", "progress").Logger(),
		now:     time.Now,
	}
}

func (s *Service) persist(ctx context.Context, fn func(context.Context) error) error {
	return s.breaker.Execute(ctx, "database", func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retry, "database", fn)
	})
}

func (s *Service) allowWrite(actorID uuid.UUID) error {
	if allowed, retryAfter := s.limiter.Allow("progress:write:" + actorID.String()); !allowed {
		return &apperr.RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func validateGoal(g *Goal) error {
	if g.Description == "" {
		return apperr.NewValidation("description", "required", "goal description is required")
	}
	if g.TargetValue <= 0 {
		return apperr.NewValidation("target_value", "range", "target_value must be positive")
	}
	prev := -1.0
	for _, m := range g.Milestones {
		if m.Threshold < 0 || m.Threshold > 100 {
			return apperr.NewValidation("milestones", "range",
				"milestone threshold %.1f outside range 0-100", m.Threshold)
		}
		if m.Threshold <= prev {
			return apperr.NewValidation("milestones", "order",
				"milestone thresholds must be strictly ascending")
		}
		prev = m.Threshold
	}
	return nil
}

// CreateRecord stores a new progress record. Goals get ids and derived
// progress; metrics are snapshotted before the write.
func (s *Service) CreateRecord(ctx context.Context, rec *Record) error {
	if rec.PatientID == uuid.Nil {
		return apperr.NewValidation("patient_id", "required", "patient_id is required")
	}
	if rec.AuthorID == uuid.Nil {
		return apperr.NewValidation("author_id", "required", "author_id is required")
	}
	if err := s.allowWrite(rec.AuthorID); err != nil {
		return err
	}

	now := s.now()
	for i := range rec.Goals {
		g := &rec.Goals[i]
		if err := validateGoal(g); err != nil {
			return err
		}
		g.ID = uuid.New()
		g.Status = GoalActive
		UpdateProgress(g, g.CurrentValue, now)
	}
	rec.Interventions = nil
	rec.Status = StatusActive
	RefreshMetrics(rec)

	// Fixing the id up front keeps a retried transaction from inserting a
	// second record.
	rec.ID = uuid.New()
	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(r Repository) error {
			if err := r.Create(ctx, rec); err != nil {
				return err
			}
			return r.AppendHistory(ctx, &HistoryEntry{
				RecordID: rec.ID,
				Version:  rec.Version,
				Actor:    rec.AuthorID,
				Action:   "created",
				Diff:     s.progressDiff(rec),
			})
		})
	}); err != nil {
		return err
	}

	s.invalidatePatient(rec.PatientID)
	s.publish(EventRecordCreated, map[string]interface{}{
		"record_id":  rec.ID.String(),
		"patient_id": rec.PatientID.String(),
		"goals":      len(rec.Goals),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	key := "progress:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*Record), nil
	}
	var rec *Record
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, rec)
	return rec, nil
}

// mutate loads the record, applies fn, persists with a version check and
// appends a history entry carrying the progress snapshot.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, version int, actor uuid.UUID,
	action string, fn func(*Record) error) (*Record, error) {
	if actor == uuid.Nil {
		return nil, apperr.NewValidation("actor_id", "required", "actor_id is required")
	}
	if version <= 0 {
		return nil, apperr.NewValidation("version", "range", "version must be positive")
	}
	if err := s.allowWrite(actor); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusArchived && action != "archived" {
		return nil, apperr.NewValidation("status", "state", "archived records are read-only")
	}

	rec := *current
	rec.Goals = append([]Goal(nil), current.Goals...)
	rec.Interventions = append([]Intervention(nil), current.Interventions...)
	if err := fn(&rec); err != nil {
		return nil, err
	}
	RefreshMetrics(&rec)

	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(r Repository) error {
			if err := r.Update(ctx, &rec, version); err != nil {
				return err
			}
			return r.AppendHistory(ctx, &HistoryEntry{
				RecordID: rec.ID,
				Version:  rec.Version,
				Actor:    actor,
				Action:   action,
				Diff:     s.progressDiff(&rec),
			})
		})
	}); err != nil {
		return nil, err
	}

	s.cache.Delete("progress:" + id.String())
	s.invalidatePatient(rec.PatientID)
	return &rec, nil
}

// AddGoal appends one goal to the record.
func (s *Service) AddGoal(ctx context.Context, id uuid.UUID, g Goal, version int, actor uuid.UUID) (*Record, error) {
	if err := validateGoal(&g); err != nil {
		return nil, err
	}
	rec, err := s.mutate(ctx, id, version, actor, "goal-added", func(rec *Record) error {
		g.ID = uuid.New()
		g.Status = GoalActive
		UpdateProgress(&g, g.CurrentValue, s.now())
		rec.Goals = append(rec.Goals, g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(EventProgressUpdated, map[string]interface{}{
		"record_id": rec.ID.String(),
		"action":    "goal-added",
	})
	return rec, nil
}

// UpdateGoalProgress sets a goal's current value and runs the state machine.
func (s *Service) UpdateGoalProgress(ctx context.Context, id, goalID uuid.UUID,
	currentValue float64, version int, actor uuid.UUID) (*Record, error) {
	var completed bool
	rec, err := s.mutate(ctx, id, version, actor, "progress-updated", func(rec *Record) error {
		g := rec.Goal(goalID)
		if g == nil {
			return &apperr.NotFoundError{Resource: "goal", ID: goalID.String()}
		}
		was := g.Status
		UpdateProgress(g, currentValue, s.now())
		completed = was != GoalCompleted && g.Status == GoalCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventProgressUpdated, map[string]interface{}{
		"record_id": rec.ID.String(),
		"goal_id":   goalID.String(),
		"progress":  rec.Goal(goalID).Progress,
	})
	if completed {
		s.publish(EventGoalCompleted, map[string]interface{}{
			"record_id": rec.ID.String(),
			"goal_id":   goalID.String(),
		})
	}
	return rec, nil
}

// ResetGoal is the explicit human action returning a goal to active.
func (s *Service) ResetGoal(ctx context.Context, id, goalID uuid.UUID, version int, actor uuid.UUID) (*Record, error) {
	return s.mutate(ctx, id, version, actor, "goal-reset", func(rec *Record) error {
		g := rec.Goal(goalID)
		if g == nil {
			return &apperr.NotFoundError{Resource: "goal", ID: goalID.String()}
		}
		ResetGoal(g)
		return nil
	})
}

// RecordIntervention appends an intervention and re-evaluates every linked
// goal. Effectiveness stays unknown until EvaluateIntervention has both a
// before and an after observation to compare.
func (s *Service) RecordIntervention(ctx context.Context, id uuid.UUID, iv Intervention,
	version int, actor uuid.UUID) (*Record, error) {
	if iv.Type == "" {
		return nil, apperr.NewValidation("type", "required", "intervention type is required")
	}
	if iv.Effectiveness != nil && (*iv.Effectiveness < 0 || *iv.Effectiveness > 100) {
		return nil, apperr.NewValidation("effectiveness", "range",
			"effectiveness %.1f outside range 0-100", *iv.Effectiveness)
	}

	rec, err := s.mutate(ctx, id, version, actor, "intervention-recorded", func(rec *Record) error {
		iv.ID = uuid.New()
		iv.RecordedAt = s.now()
		for _, gid := range iv.GoalIDs {
			g := rec.Goal(gid)
			if g == nil {
				return &apperr.NotFoundError{Resource: "goal", ID: gid.String()}
			}
			UpdateProgress(g, g.CurrentValue, iv.RecordedAt)
			g.InterventionIDs = append(g.InterventionIDs, iv.ID)
		}
		rec.Interventions = append(rec.Interventions, iv)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventInterventionRecorded, map[string]interface{}{
		"record_id":       rec.ID.String(),
		"intervention_id": rec.Interventions[len(rec.Interventions)-1].ID.String(),
		"type":            iv.Type,
	})
	return rec, nil
}

// EvaluateIntervention estimates an intervention's effectiveness from the
// overall-progress observations straddling its timestamp. Without an
// observation on both sides the estimate stays unknown.
func (s *Service) EvaluateIntervention(ctx context.Context, id, interventionID uuid.UUID,
	version int, actor uuid.UUID) (*Intervention, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var target *Intervention
	for i := range current.Interventions {
		if current.Interventions[i].ID == interventionID {
			target = &current.Interventions[i]
		}
	}
	if target == nil {
		return nil, &apperr.NotFoundError{Resource: "intervention", ID: interventionID.String()}
	}

	var points []SnapshotPoint
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		points, err = s.repo.OverallSnapshots(ctx, id, s.now().Add(-snapshotLookback))
		return err
	}); err != nil {
		return nil, err
	}

	// before: last observation at or preceding the intervention; after: the
	// latest one following it, so the estimate reflects where progress
	// settled rather than the snapshot the intervention itself wrote.
	var before, after *float64
	for i := range points {
		p := points[i]
		if !p.RecordedAt.After(target.RecordedAt) {
			before = &p.Value
		} else {
			after = &p.Value
		}
	}
	if before == nil || after == nil {
		return target, nil
	}

	eff := EstimateEffectiveness(*before, *after)
	rec, err := s.mutate(ctx, id, version, actor, "intervention-evaluated", func(rec *Record) error {
		for i := range rec.Interventions {
			if rec.Interventions[i].ID == interventionID {
				rec.Interventions[i].Effectiveness = &eff
				return nil
			}
		}
		return &apperr.NotFoundError{Resource: "intervention", ID: interventionID.String()}
	})
	if err != nil {
		return nil, err
	}
	for i := range rec.Interventions {
		if rec.Interventions[i].ID == interventionID {
			return &rec.Interventions[i], nil
		}
	}
	return target, nil
}

// Archive retires a record, preserving its history.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusArchived {
		return nil
	}

	rec, err := s.mutate(ctx, id, current.Version, actor, "archived", func(rec *Record) error {
		rec.Status = StatusArchived
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(EventRecordArchived, map[string]interface{}{
		"record_id":  rec.ID.String(),
		"patient_id": rec.PatientID.String(),
	})
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var items []*Record
	var total int
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		items, total, err = s.repo.ListByPatient(ctx, patientID, limit, offset)
		return err
	})
	return items, total, err
}

func (s *Service) History(ctx context.Context, id uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	var items []*HistoryEntry
	var total int
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		items, total, err = s.repo.History(ctx, id, limit, offset)
		return err
	})
	return items, total, err
}

func (s *Service) Overview(ctx context.Context, patientID uuid.UUID) (*Overview, error) {
	key := "progress:overview:" + patientID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*Overview), nil
	}
	var ov *Overview
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		ov, err = s.repo.Overview(ctx, patientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, ov)
	return ov, nil
}

// progressDiff is the history payload every mutation carries: the overall
// progress plus each goal's progress, keyed by goal id. Trend extraction
// reads these back as time series.
func (s *Service) progressDiff(rec *Record) map[string]interface{} {
	goals := make(map[string]interface{}, len(rec.Goals))
	for _, g := range rec.Goals {
		goals[g.ID.String()] = g.Progress
	}
	return map[string]interface{}{
		"overall_progress": OverallProgress(rec.Goals),
		"goal_progress":    goals,
		"status":           rec.Status,
	}
}

func (s *Service) invalidatePatient(patientID uuid.UUID) {
	s.cache.Delete("progress:overview:" + patientID.String())
}

func (s *Service) publish(eventType string, payload map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, eventType, payload); err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
		}
	}()
}
