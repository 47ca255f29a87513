package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcore/riskcore/internal/platform/apperr"
	"github.com/riskcore/riskcore/internal/platform/events"
	"github.com/riskcore/riskcore/internal/platform/insights"
	"github.com/riskcore/riskcore/internal/platform/resilience"
)

// Event types emitted by the assessment service.
const (
	EventCreated   = "assessment.created"
	EventUpdated   = "assessment.updated"
	EventArchived  = "assessment.archived"
	EventRiskAlert = "assessment.risk-alert"
)

const trendLookback = 90 * 24 * time.Hour

// Service orchestrates assessment scoring, persistence, aggregation and the
// resilience layer. All writes are rate limited per author and all repository
// calls run behind the database circuit breaker with retries.
type Service struct {
	repo    Repository
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	cache   *resilience.Cache
	retry   resilience.RetryConfig
	ai      insights.Generator
	events  events.Publisher
	logger  zerolog.Logger
}

func NewService(repo Repository, limiter *resilience.RateLimiter, breaker *resilience.CircuitBreaker,
	cache *resilience.Cache, retry resilience.RetryConfig, ai insights.Generator,
	pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		limiter: limiter,
		breaker: breaker,
		cache:   cache,
		retry:   retry,
		ai:      ai,
		events:  pub,
		logger:  logger.With().Str("service", "assessment").Logger(),
	}
}

func (s *Service) persist(ctx context.Context, fn func(context.Context) error) error {
	return s.breaker.Execute(ctx, "database", func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retry, "database", fn)
	})
}

func (s *Service) allowWrite(authorID uuid.UUID) error {
	if allowed, retryAfter := s.limiter.Allow("assessment:write:" + authorID.String()); !allowed {
		return &apperr.RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// Create scores and stores a new assessment. TotalScore and RiskLevel are
// derived from Categories; scoring warnings are attached to the returned
// record but not persisted.
func (s *Service) Create(ctx context.Context, a *Assessment) error {
	if a.PatientID == uuid.Nil {
		return apperr.NewValidation("patient_id", "required", "patient_id is required")
	}
	if a.AuthorID == uuid.Nil {
		return apperr.NewValidation("author_id", "required", "author_id is required")
	}
	expectedType, ok := typeForTool[a.Tool]
	if !ok {
		return apperr.NewValidation("tool", "enum", "unsupported tool %q", a.Tool)
	}
	if a.Type == "" {
		a.Type = expectedType
	}
	if a.Type != expectedType {
		return apperr.NewValidation("assessment_type", "enum",
			"assessment_type %q does not match tool %q", a.Type, a.Tool)
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if !validStatuses[a.Status] || a.Status == StatusArchived {
		return apperr.NewValidation("status", "enum", "invalid status %q", a.Status)
	}

	if err := s.allowWrite(a.AuthorID); err != nil {
		return err
	}

	res, err := Score(a.Tool, a.Categories)
	if err != nil {
		return err
	}
	a.TotalScore = res.Total
	a.RiskLevel = res.Level
	a.Warnings = res.Warnings

	// The id is fixed up front so a retried transaction re-inserts the same
	// row instead of minting a second assessment.
	a.ID = uuid.New()
	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(r Repository) error {
			if err := r.Create(ctx, a); err != nil {
				return err
			}
			return r.AppendHistory(ctx, &HistoryEntry{
				AssessmentID: a.ID,
				Version:      a.Version,
				Actor:        a.AuthorID,
				Action:       "created",
			})
		})
	}); err != nil {
		return err
	}

	s.invalidatePatient(a.PatientID)
	s.publish(EventCreated, map[string]interface{}{
		"assessment_id": a.ID.String(),
		"patient_id":    a.PatientID.String(),
		"tool":          string(a.Tool),
		"total_score":   a.TotalScore,
		"risk_level":    a.RiskLevel,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	key := "assessment:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*Assessment), nil
	}
	var a *Assessment
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, a)
	return a, nil
}

// UpdateInput carries the mutable fields of an assessment plus the version
// the caller read. Stale versions are rejected with a conflict.
type UpdateInput struct {
	Categories map[string]int `json:"categories"`
	Status     string         `json:"status"`
	Version    int            `json:"version"`
	ActorID    uuid.UUID      `json:"-"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in *UpdateInput) (*Assessment, error) {
	if in.ActorID == uuid.Nil {
		return nil, apperr.NewValidation("actor_id", "required", "actor_id is required")
	}
	if in.Version <= 0 {
		return nil, apperr.NewValidation("version", "range", "version must be positive")
	}
	if err := s.allowWrite(in.ActorID); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusArchived {
		return nil, apperr.NewValidation("status", "state", "archived assessments are read-only")
	}

	updated := *current
	if in.Categories != nil {
		updated.Categories = in.Categories
	}
	if in.Status != "" {
		if !validStatuses[in.Status] {
			return nil, apperr.NewValidation("status", "enum", "invalid status %q", in.Status)
		}
		updated.Status = in.Status
	}

	res, err := Score(updated.Tool, updated.Categories)
	if err != nil {
		return nil, err
	}
	updated.TotalScore = res.Total
	updated.RiskLevel = res.Level
	updated.Warnings = res.Warnings

	diff := diffAssessment(current, &updated)

	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(r Repository) error {
			if err := r.Update(ctx, &updated, in.Version); err != nil {
				return err
			}
			return r.AppendHistory(ctx, &HistoryEntry{
				AssessmentID: updated.ID,
				Version:      updated.Version,
				Actor:        in.ActorID,
				Action:       "updated",
				Diff:         diff,
			})
		})
	}); err != nil {
		return nil, err
	}

	s.cache.Delete("assessment:" + id.String())
	s.invalidatePatient(updated.PatientID)
	s.publish(EventUpdated, map[string]interface{}{
		"assessment_id": updated.ID.String(),
		"patient_id":    updated.PatientID.String(),
		"version":       updated.Version,
		"total_score":   updated.TotalScore,
		"risk_level":    updated.RiskLevel,
	})
	return &updated, nil
}

// Archive retires an assessment. Archived records stay queryable but are
// excluded from scoring aggregates and trend input.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return apperr.NewValidation("actor_id", "required", "actor_id is required")
	}
	if err := s.allowWrite(actorID); err != nil {
		return err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusArchived {
		return nil
	}

	archived := *current
	archived.Status = StatusArchived

	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(r Repository) error {
			if err := r.Update(ctx, &archived, current.Version); err != nil {
				return err
			}
			return r.AppendHistory(ctx, &HistoryEntry{
				AssessmentID: archived.ID,
				Version:      archived.Version,
				Actor:        actorID,
				Action:       "archived",
			})
		})
	}); err != nil {
		return err
	}

	s.cache.Delete("assessment:" + id.String())
	s.invalidatePatient(archived.PatientID)
	s.publish(EventArchived, map[string]interface{}{
		"assessment_id": archived.ID.String(),
		"patient_id":    archived.PatientID.String(),
	})
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var items []*Assessment
	var total int
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		items, total, err = s.repo.ListByPatient(ctx, patientID, limit, offset)
		return err
	})
	return items, total, err
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error) {
	var items []*Assessment
	var total int
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		items, total, err = s.repo.Search(ctx, params, limit, offset)
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

func (s *Service) Stats(ctx context.Context, patientID uuid.UUID) (*Stats, error) {
	key := "assessment:stats:" + patientID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*Stats), nil
	}
	var stats *Stats
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.repo.Stats(ctx, patientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, stats)
	return stats, nil
}

// RiskSummary normalizes each tool's latest score to a 0-100 risk value and
// aggregates them into a patient-level summary. An alert-bearing summary also
// emits a risk-alert event.
func (s *Service) RiskSummary(ctx context.Context, patientID uuid.UUID) (*RiskSummary, error) {
	key := "assessment:risk:" + patientID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*RiskSummary), nil
	}

	var latest map[ToolType]*Assessment
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		latest, err = s.repo.LatestByTool(ctx, patientID)
		return err
	})
	if err != nil {
		return nil, err
	}

	scores := make(map[string]*RiskScore, len(latest))
	for tool, a := range latest {
		scores[a.Type] = normalizeRisk(tool, a)
	}

	summary, err := Aggregate(scores)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, summary)

	if len(summary.Alerts) > 0 {
		s.publish(EventRiskAlert, map[string]interface{}{
			"patient_id":    patientID.String(),
			"overall_level": summary.OverallLevel,
			"alert_count":   len(summary.Alerts),
		})
	}
	return summary, nil
}

// Insights asks the AI generator for narrative guidance over the patient's
// current risk picture. Generator failures degrade to a nil result: the
// caller still gets the deterministic summary it already has.
func (s *Service) Insights(ctx context.Context, patientID uuid.UUID) (*insights.Insights, error) {
	summary, err := s.RiskSummary(ctx, patientID)
	if err != nil {
		return nil, err
	}

	key := "assessment:insights:" + patientID.String()
	if v, ok := s.cache.Get(key); ok {
		return v.(*insights.Insights), nil
	}

	data := map[string]interface{}{
		"overall_level":   summary.OverallLevel,
		"alerts":          summary.Alerts,
		"recommendations": summary.Recommendations,
	}
	var out *insights.Insights
	err = s.breaker.Execute(ctx, "ai", func(ctx context.Context) error {
		res, err := s.ai.GenerateInsights(ctx, "risk-assessment", data)
		if errors.Is(err, insights.ErrDisabled) {
			// Configuration, not an unhealthy dependency: the circuit must
			// stay closed when generation is deliberately off.
			return nil
		}
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).
			Msg("insight generation degraded")
		return nil, nil
	}
	if out == nil {
		return nil, nil
	}
	s.cache.Set(key, out)
	return out, nil
}

// ScoreHistory returns the recent score points for one tool, oldest first.
func (s *Service) ScoreHistory(ctx context.Context, patientID uuid.UUID, tool ToolType) ([]ScorePoint, error) {
	if _, ok := toolSpecs[tool]; !ok {
		return nil, apperr.NewValidation("tool", "enum", "unsupported tool %q", tool)
	}
	var points []ScorePoint
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		points, err = s.repo.ListScores(ctx, patientID, tool, time.Now().Add(-trendLookback))
		return err
	})
	return points, err
}

// normalizeRisk maps a tool total onto the shared 0-100 risk scale. Inverse
// instruments (Braden, MMSE) are flipped so that higher always means riskier.
func normalizeRisk(tool ToolType, a *Assessment) *RiskScore {
	max := MaxScore(tool)
	value := 0.0
	if max > 0 {
		switch tool {
		case ToolBraden, ToolMMSE:
			value = float64(max-a.TotalScore) / float64(max) * 100
		default:
			value = float64(a.TotalScore) / float64(max) * 100
		}
	}
	return &RiskScore{
		Type:       a.Type,
		Value:      value,
		Level:      aggregateLevel(tool, a.RiskLevel),
		Factors:    topFactors(tool, a.Categories),
		Confidence: confidenceFor(a),
	}
}

// aggregateLevel maps tool-specific bands onto the shared severity scale.
func aggregateLevel(tool ToolType, toolLevel string) string {
	switch toolLevel {
	case "low", "none", "normal":
		return LevelLow
	case "moderate", "mild":
		return LevelMedium
	case "high":
		return LevelHigh
	case "severe":
		return LevelCritical
	default:
		return LevelLow
	}
}

// topFactors names the categories contributing most to the risk picture.
func topFactors(tool ToolType, categories map[string]int) []string {
	spec, ok := toolSpecs[tool]
	if !ok {
		return nil
	}
	var factors []string
	for _, cs := range spec.Categories {
		v, present := categories[cs.Name]
		if !present {
			continue
		}
		switch {
		case len(cs.Allowed) > 0:
			// Point-scored instruments: any non-zero contribution counts.
			if v > 0 {
				factors = append(factors, cs.Name)
			}
		default:
			// Rated instruments: the worst rating is the floor of the range
			// for inverse tools.
			if v <= cs.Min+(cs.Max-cs.Min)/4 {
				factors = append(factors, cs.Name)
			}
		}
	}
	return factors
}

// confidenceFor scales down confidence for stale assessments.
func confidenceFor(a *Assessment) float64 {
	age := time.Since(a.UpdatedAt)
	switch {
	case age < 7*24*time.Hour:
		return 0.9
	case age < 30*24*time.Hour:
		return 0.7
	default:
		return 0.5
	}
}

func diffAssessment(old, next *Assessment) map[string]interface{} {
	diff := make(map[string]interface{})
	if old.Status != next.Status {
		diff["status"] = map[string]string{"from": old.Status, "to": next.Status}
	}
	if old.TotalScore != next.TotalScore {
		diff["total_score"] = map[string]int{"from": old.TotalScore, "to": next.TotalScore}
	}
	if old.RiskLevel != next.RiskLevel {
		diff["risk_level"] = map[string]string{"from": old.RiskLevel, "to": next.RiskLevel}
	}
	changed := make(map[string]interface{})
	for k, v := range next.Categories {
		if ov, ok := old.Categories[k]; !ok || ov != v {
			changed[k] = v
		}
	}
	for k := range old.Categories {
		if _, ok := next.Categories[k]; !ok {
			changed[k] = nil
		}
	}
	if len(changed) > 0 {
		diff["categories"] = changed
	}
	return diff
}

func (s *Service) invalidatePatient(patientID uuid.UUID) {
	for _, prefix := range []string{"assessment:stats:", "assessment:risk:", "assessment:insights:"} {
		s.cache.Delete(prefix + patientID.String())
	}
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

// ValidTools exposes the supported tools for the capability endpoint.
func (s *Service) ValidTools() []string {
	tools := SupportedTools()
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = string(t)
	}
	return out
}
