package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcore/riskcore/internal/domain/assessment"
	"github.com/riskcore/riskcore/internal/domain/progress"
	"github.com/riskcore/riskcore/internal/platform/apperr"
	"github.com/riskcore/riskcore/internal/platform/resilience"
)

const historyLookback = 365 * 24 * time.Hour

var validPeriods = map[string]bool{
	PeriodDay: true, PeriodWeek: true, PeriodMonth: true,
}

// Service derives trends and predictions from the score and progress series
// the other domains persist. Results are cached by TTL only; they are
// recomputed rather than invalidated on writes.
type Service struct {
	assessments assessment.Repository
	progress    progress.Repository
	limiter     *resilience.RateLimiter
	breaker     *resilience.CircuitBreaker
	cache       *resilience.Cache
	retry       resilience.RetryConfig
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(assessments assessment.Repository, prog progress.Repository,
	limiter *resilience.RateLimiter, breaker *resilience.CircuitBreaker,
	cache *resilience.Cache, retry resilience.RetryConfig, logger zerolog.Logger) *Service {
	return &Service{
		assessments: assessments,
		progress:    prog,
		limiter:     limiter,
		breaker:     breaker,
		cache:       cache,
		retry:       retry,
		logger:      logger.With().Str("service", "analytics").Logger(),
		now:         time.Now,
	}
}

func (s *Service) persist(ctx context.Context, fn func(context.Context) error) error {
	return s.breaker.Execute(ctx, "database", func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retry, "database", fn)
	})
}

func (s *Service) allow(key string) error {
	if allowed, retryAfter := s.limiter.Allow("analytics:" + key); !allowed {
		return &apperr.RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func normalizePeriod(period string) (string, error) {
	if period == "" {
		return PeriodWeek, nil
	}
	if !validPeriods[period] {
		return "", apperr.NewValidation("period", "enum", "unsupported period %q", period)
	}
	return period, nil
}

// ScoreTrend analyzes the trend of a patient's scores for one tool, grouped
// by the given period.
func (s *Service) ScoreTrend(ctx context.Context, patientID uuid.UUID, tool assessment.ToolType, period string) (*TrendResult, error) {
	period, err := normalizePeriod(period)
	if err != nil {
		return nil, err
	}
	if assessment.MaxScore(tool) == 0 {
		return nil, apperr.NewValidation("tool", "enum", "unsupported tool %q", tool)
	}
	if err := s.allow(patientID.String()); err != nil {
		return nil, err
	}

	key := "analytics:score:" + patientID.String() + ":" + string(tool) + ":" + period
	if v, ok := s.cache.Get(key); ok {
		return v.(*TrendResult), nil
	}

	var points []assessment.ScorePoint
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		points, err = s.assessments.ListScores(ctx, patientID, tool, s.now().Add(-historyLookback))
		return err
	}); err != nil {
		return nil, err
	}

	timed := make([]TimedPoint, len(points))
	for i, p := range points {
		timed[i] = TimedPoint{At: p.RecordedAt, Value: p.Score}
	}
	res := AnalyzeTrend("score:"+string(tool), GroupByPeriod(timed, period))
	s.cache.Set(key, &res)
	return &res, nil
}

// ProgressTrend analyzes a record's overall-progress history.
func (s *Service) ProgressTrend(ctx context.Context, recordID uuid.UUID, period string) (*TrendResult, error) {
	period, err := normalizePeriod(period)
	if err != nil {
		return nil, err
	}
	if err := s.allow(recordID.String()); err != nil {
		return nil, err
	}

	key := "analytics:progress:" + recordID.String() + ":" + period
	if v, ok := s.cache.Get(key); ok {
		return v.(*TrendResult), nil
	}

	var snaps []progress.SnapshotPoint
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		snaps, err = s.progress.OverallSnapshots(ctx, recordID, s.now().Add(-historyLookback))
		return err
	}); err != nil {
		return nil, err
	}

	res := AnalyzeTrend("overall_progress", GroupByPeriod(snapshotsToTimed(snaps), period))
	s.cache.Set(key, &res)
	return &res, nil
}

// PredictGoal estimates a goal's achievement probability and time to
// completion from its progress history.
func (s *Service) PredictGoal(ctx context.Context, recordID, goalID uuid.UUID, period string) (*Prediction, error) {
	period, err := normalizePeriod(period)
	if err != nil {
		return nil, err
	}
	if err := s.allow(recordID.String()); err != nil {
		return nil, err
	}

	key := "analytics:predict:" + recordID.String() + ":" + goalID.String() + ":" + period
	if v, ok := s.cache.Get(key); ok {
		return v.(*Prediction), nil
	}

	var rec *progress.Record
	var snaps []progress.SnapshotPoint
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.progress.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		snaps, err = s.progress.GoalSnapshots(ctx, recordID, goalID, s.now().Add(-historyLookback))
		return err
	}); err != nil {
		return nil, err
	}

	goal := rec.Goal(goalID)
	if goal == nil {
		return nil, &apperr.NotFoundError{Resource: "goal", ID: goalID.String()}
	}

	pred := PredictAchievement(GroupByPeriod(snapshotsToTimed(snaps), period), goal.Progress)
	pred.GoalID = goalID.String()
	s.cache.Set(key, &pred)
	return &pred, nil
}

func snapshotsToTimed(snaps []progress.SnapshotPoint) []TimedPoint {
	timed := make([]TimedPoint, len(snaps))
	for i, sp := range snaps {
		timed[i] = TimedPoint{At: sp.RecordedAt, Value: sp.Value}
	}
	return timed
}
