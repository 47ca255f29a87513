package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists progress records and their audit history.
type Repository interface {
	// InTx runs fn against a transactional view of the repository so a
	// record write and its history append commit or roll back together.
	InTx(ctx context.Context, fn func(Repository) error) error

	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update rejects stale versions and bumps the stored version by one.
	Update(ctx context.Context, r *Record, expectedVersion int) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)

	AppendHistory(ctx context.Context, e *HistoryEntry) error
	History(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error)

	// OverallSnapshots returns the record's overall-progress observations from
	// its history, oldest first.
	OverallSnapshots(ctx context.Context, recordID uuid.UUID, since time.Time) ([]SnapshotPoint, error)
	// GoalSnapshots returns one goal's progress observations, oldest first.
	GoalSnapshots(ctx context.Context, recordID, goalID uuid.UUID, since time.Time) ([]SnapshotPoint, error)

	Overview(ctx context.Context, patientID uuid.UUID) (*Overview, error)
}
