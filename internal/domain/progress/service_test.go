package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcore/riskcore/internal/platform/apperr"
	"github.com/riskcore/riskcore/internal/platform/resilience"
)

type mockRepo struct {
	mu          sync.Mutex
	items       map[uuid.UUID]*Record
	history     []*HistoryEntry
	err         error
	historyFail int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Record)}
}

func cloneRecord(r *Record) *Record {
	cp := *r
	cp.Goals = append([]Goal(nil), r.Goals...)
	cp.Interventions = append([]Intervention(nil), r.Interventions...)
	return &cp
}

func (m *mockRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	itemsBefore := make(map[uuid.UUID]*Record, len(m.items))
	for k, v := range m.items {
		itemsBefore[k] = cloneRecord(v)
	}
	historyBefore := len(m.history)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.items = itemsBefore
		m.history = m.history[:historyBefore]
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockRepo) Create(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, exists := m.items[r.ID]; exists {
		return errors.New("duplicate key")
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Version = 1
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.items[r.ID] = cloneRecord(r)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.items[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "progress record", ID: id.String()}
	}
	return cloneRecord(r), nil
}

func (m *mockRepo) Update(ctx context.Context, r *Record, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	stored, ok := m.items[r.ID]
	if !ok {
		return &apperr.NotFoundError{Resource: "progress record", ID: r.ID.String()}
	}
	if stored.Version != expectedVersion {
		return &apperr.ConflictError{
			Resource:        "progress record",
			ExpectedVersion: expectedVersion,
			ActualVersion:   stored.Version,
		}
	}
	r.Version = expectedVersion + 1
	r.UpdatedAt = time.Now()
	m.items[r.ID] = cloneRecord(r)
	return nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.items {
		if r.PatientID == patientID {
			out = append(out, cloneRecord(r))
		}
	}
	return out, len(out), m.err
}

func (m *mockRepo) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.historyFail > 0 {
		m.historyFail--
		return errors.New("history write failed")
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.history = append(m.history, e)
	return nil
}

func (m *mockRepo) History(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryEntry
	for _, e := range m.history {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, len(out), m.err
}

func (m *mockRepo) OverallSnapshots(ctx context.Context, recordID uuid.UUID, since time.Time) ([]SnapshotPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var points []SnapshotPoint
	for _, e := range m.history {
		if e.RecordID != recordID {
			continue
		}
		if v, ok := e.Diff["overall_progress"].(float64); ok {
			points = append(points, SnapshotPoint{RecordedAt: e.CreatedAt, Value: v})
		}
	}
	return points, m.err
}

func (m *mockRepo) GoalSnapshots(ctx context.Context, recordID, goalID uuid.UUID, since time.Time) ([]SnapshotPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var points []SnapshotPoint
	for _, e := range m.history {
		if e.RecordID != recordID {
			continue
		}
		goals, ok := e.Diff["goal_progress"].(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := goals[goalID.String()].(float64); ok {
			points = append(points, SnapshotPoint{RecordedAt: e.CreatedAt, Value: v})
		}
	}
	return points, m.err
}

func (m *mockRepo) Overview(ctx context.Context, patientID uuid.UUID) (*Overview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var recs []*Record
	for _, r := range m.items {
		if r.PatientID == patientID && r.Status == StatusActive {
			recs = append(recs, cloneRecord(r))
		}
	}
	return BuildOverview(patientID, recs), nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	return nil
}
func (nopPublisher) Close() error { return nil }

func newTestService(repo Repository) *Service {
	return NewService(repo,
		resilience.NewRateLimiter(resilience.RateLimiterConfig{Window: time.Minute, MaxRequests: 100}),
		resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute}),
		resilience.NewCache(resilience.CacheConfig{DefaultTTL: time.Minute, MaxEntries: 100}),
		resilience.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		nopPublisher{}, zerolog.Nop())
}

func seedRecord(t *testing.T, svc *Service) *Record {
	t.Helper()
	rec := &Record{
		PatientID: uuid.New(),
		AuthorID:  uuid.New(),
		Goals: []Goal{{
			Description: "ambulate 100m unassisted",
			TargetValue: 100,
			Milestones:  []Milestone{{Label: "half", Threshold: 50}},
		}},
	}
	if err := svc.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	return rec
}

func TestCreateRecordInitializesGoals(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc)

	if rec.Version != 1 {
		t.Errorf("version = %d, want 1", rec.Version)
	}
	g := rec.Goals[0]
	if g.ID == uuid.Nil {
		t.Error("goal id not assigned")
	}
	if g.Status != GoalActive {
		t.Errorf("goal status = %q, want active", g.Status)
	}
	if rec.Metrics["goal_count"] != 1 {
		t.Errorf("metrics = %+v", rec.Metrics)
	}
	if len(repo.history) != 1 || repo.history[0].Action != "created" {
		t.Errorf("history = %+v", repo.history)
	}
}

func TestCreateRecordValidatesGoals(t *testing.T) {
	svc := newTestService(newMockRepo())

	err := svc.CreateRecord(context.Background(), &Record{
		PatientID: uuid.New(), AuthorID: uuid.New(),
		Goals: []Goal{{Description: "x", TargetValue: 0}},
	})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "target_value" {
		t.Errorf("error = %v, want validation on target_value", err)
	}

	err = svc.CreateRecord(context.Background(), &Record{
		PatientID: uuid.New(), AuthorID: uuid.New(),
		Goals: []Goal{{Description: "x", TargetValue: 10,
			Milestones: []Milestone{{Threshold: 50}, {Threshold: 25}}}},
	})
	if !errors.As(err, &ve) || ve.Field != "milestones" {
		t.Errorf("error = %v, want validation on milestones", err)
	}
}

func TestUpdateGoalProgressTransitions(t *testing.T) {
	svc := newTestService(newMockRepo())
	rec := seedRecord(t, svc)
	actor := uuid.New()
	goalID := rec.Goals[0].ID

	updated, err := svc.UpdateGoalProgress(context.Background(), rec.ID, goalID, 60, 1, actor)
	if err != nil {
		t.Fatalf("UpdateGoalProgress() error = %v", err)
	}
	g := updated.Goal(goalID)
	if g.Progress != 60 {
		t.Errorf("progress = %v, want 60", g.Progress)
	}
	if !g.Milestones[0].Reached {
		t.Error("half milestone not reached")
	}
	if g.Status != GoalActive {
		t.Errorf("status = %q, want active", g.Status)
	}

	updated, err = svc.UpdateGoalProgress(context.Background(), rec.ID, goalID, 150, 2, actor)
	if err != nil {
		t.Fatalf("second update error = %v", err)
	}
	g = updated.Goal(goalID)
	if g.Progress != 100 || g.Status != GoalCompleted {
		t.Errorf("goal = %v/%q, want 100/completed", g.Progress, g.Status)
	}
}

func TestUpdateGoalProgressStaleVersion(t *testing.T) {
	svc := newTestService(newMockRepo())
	rec := seedRecord(t, svc)

	_, err := svc.UpdateGoalProgress(context.Background(), rec.ID, rec.Goals[0].ID, 60, 99, uuid.New())
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
}

func TestUpdateGoalProgressUnknownGoal(t *testing.T) {
	svc := newTestService(newMockRepo())
	rec := seedRecord(t, svc)

	_, err := svc.UpdateGoalProgress(context.Background(), rec.ID, uuid.New(), 60, 1, uuid.New())
	var nfe *apperr.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestRecordInterventionLinksGoals(t *testing.T) {
	svc := newTestService(newMockRepo())
	rec := seedRecord(t, svc)
	goalID := rec.Goals[0].ID

	updated, err := svc.RecordIntervention(context.Background(), rec.ID, Intervention{
		Type:        "physical-therapy",
		Description: "gait training session",
		GoalIDs:     []uuid.UUID{goalID},
	}, 1, uuid.New())
	if err != nil {
		t.Fatalf("RecordIntervention() error = %v", err)
	}
	if len(updated.Interventions) != 1 {
		t.Fatalf("interventions = %d, want 1", len(updated.Interventions))
	}
	iv := updated.Interventions[0]
	if iv.ID == uuid.Nil || iv.RecordedAt.IsZero() {
		t.Errorf("intervention not initialized: %+v", iv)
	}
	if iv.Effectiveness != nil {
		t.Error("effectiveness set without before/after data")
	}
	g := updated.Goal(goalID)
	if len(g.InterventionIDs) != 1 || g.InterventionIDs[0] != iv.ID {
		t.Errorf("goal links = %v", g.InterventionIDs)
	}
}

func TestEvaluateInterventionFromSnapshots(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc)
	goalID := rec.Goals[0].ID
	actor := uuid.New()

	// Before: progress 20.
	if _, err := svc.UpdateGoalProgress(context.Background(), rec.ID, goalID, 20, 1, actor); err != nil {
		t.Fatalf("progress update error = %v", err)
	}
	updated, err := svc.RecordIntervention(context.Background(), rec.ID, Intervention{
		Type: "physical-therapy", GoalIDs: []uuid.UUID{goalID},
	}, 2, actor)
	if err != nil {
		t.Fatalf("RecordIntervention() error = %v", err)
	}
	ivID := updated.Interventions[0].ID

	// Give the after-snapshot a later timestamp than the intervention entry.
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.UpdateGoalProgress(context.Background(), rec.ID, goalID, 40, 3, actor); err != nil {
		t.Fatalf("after update error = %v", err)
	}

	iv, err := svc.EvaluateIntervention(context.Background(), rec.ID, ivID, 4, actor)
	if err != nil {
		t.Fatalf("EvaluateIntervention() error = %v", err)
	}
	if iv.Effectiveness == nil {
		t.Fatal("effectiveness still unknown")
	}
	// 20 -> 40 overall progress: 50 + 20*2 = 90.
	if *iv.Effectiveness != 90 {
		t.Errorf("effectiveness = %v, want 90", *iv.Effectiveness)
	}
}

func TestArchiveMakesRecordReadOnly(t *testing.T) {
	svc := newTestService(newMockRepo())
	rec := seedRecord(t, svc)
	actor := uuid.New()

	if err := svc.Archive(context.Background(), rec.ID, actor); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := svc.Archive(context.Background(), rec.ID, actor); err != nil {
		t.Fatalf("second Archive() error = %v", err)
	}

	_, err := svc.UpdateGoalProgress(context.Background(), rec.ID, rec.Goals[0].ID, 50, 2, actor)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError for archived record", err)
	}
}

func TestOverviewAggregates(t *testing.T) {
	svc := newTestService(newMockRepo())
	patient := uuid.New()
	actor := uuid.New()

	rec := &Record{
		PatientID: patient,
		AuthorID:  actor,
		Goals: []Goal{
			{Description: "a", TargetValue: 100, CurrentValue: 100},
			{Description: "b", TargetValue: 100, CurrentValue: 50},
		},
	}
	if err := svc.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	eff := 80.0
	if _, err := svc.RecordIntervention(context.Background(), rec.ID,
		Intervention{Type: "exercise", Description: "gait training", Effectiveness: &eff}, 1, actor); err != nil {
		t.Fatalf("RecordIntervention() error = %v", err)
	}
	if _, err := svc.RecordIntervention(context.Background(), rec.ID,
		Intervention{Type: "education", Description: "fall precautions"}, 2, actor); err != nil {
		t.Fatalf("RecordIntervention() error = %v", err)
	}

	ov, err := svc.Overview(context.Background(), patient)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if ov.Records != 1 || ov.Goals != 2 || ov.CompletedGoals != 1 {
		t.Errorf("overview = %+v", ov)
	}
	if ov.OverallProgress != 75 {
		t.Errorf("overall = %v, want 75", ov.OverallProgress)
	}
	if ov.GoalCompletionRate != 50 {
		t.Errorf("completion rate = %v, want 50", ov.GoalCompletionRate)
	}
	if ov.Interventions != 2 {
		t.Errorf("interventions = %d, want 2", ov.Interventions)
	}
	// The unevaluated intervention is excluded from the mean.
	if ov.MeanEffectiveness == nil || *ov.MeanEffectiveness != 80 {
		t.Errorf("mean effectiveness = %v, want 80", ov.MeanEffectiveness)
	}
}

func TestResetGoalReturnsToActive(t *testing.T) {
	svc := newTestService(newMockRepo())
	rec := seedRecord(t, svc)
	actor := uuid.New()
	goalID := rec.Goals[0].ID

	if _, err := svc.UpdateGoalProgress(context.Background(), rec.ID, goalID, 100, 1, actor); err != nil {
		t.Fatalf("complete error = %v", err)
	}
	updated, err := svc.ResetGoal(context.Background(), rec.ID, goalID, 2, actor)
	if err != nil {
		t.Fatalf("ResetGoal() error = %v", err)
	}
	if updated.Goal(goalID).Status != GoalActive {
		t.Errorf("status = %q, want active", updated.Goal(goalID).Status)
	}
}

func TestCreateRecordRetriesAsOneUnit(t *testing.T) {
	repo := newMockRepo()
	repo.historyFail = 1
	svc := newTestService(repo)

	rec := &Record{
		PatientID: uuid.New(),
		AuthorID:  uuid.New(),
		Goals:     []Goal{{Description: "sit to stand without support", TargetValue: 10}},
	}
	if err := svc.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if len(repo.items) != 1 {
		t.Fatalf("stored records = %d, want 1", len(repo.items))
	}
	if _, ok := repo.items[rec.ID]; !ok {
		t.Errorf("stored id does not match returned id %s", rec.ID)
	}
	if len(repo.history) != 1 || repo.history[0].Action != "created" {
		t.Errorf("history = %+v, want one created entry", repo.history)
	}
}

func TestMutateRetryKeepsVersionCheckValid(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	rec := seedRecord(t, svc)

	repo.historyFail = 1
	updated, err := svc.UpdateGoalProgress(context.Background(), rec.ID, rec.Goals[0].ID, 60, 1, rec.AuthorID)
	if err != nil {
		t.Fatalf("UpdateGoalProgress() error = %v, want retried success", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	var progressEntries int
	for _, e := range repo.history {
		if e.Action != "created" {
			progressEntries++
		}
	}
	if progressEntries != 1 {
		t.Errorf("mutation history entries = %d, want 1", progressEntries)
	}
}
