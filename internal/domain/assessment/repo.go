package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists assessments and their audit history.
type Repository interface {
	// InTx runs fn against a transactional view of the repository. Either
	// every write inside fn lands or none do, so an entity write and its
	// history append can be retried as one unit.
	InTx(ctx context.Context, fn func(Repository) error) error

	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	// Update applies a stale-version check: the write succeeds only when the
	// stored version equals expectedVersion, and bumps the version by one.
	Update(ctx context.Context, a *Assessment, expectedVersion int) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error)

	AppendHistory(ctx context.Context, e *HistoryEntry) error
	History(ctx context.Context, assessmentID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error)

	// ListScores returns non-archived score points for one patient and tool,
	// oldest first, for trend analysis.
	ListScores(ctx context.Context, patientID uuid.UUID, tool ToolType, since time.Time) ([]ScorePoint, error)
	// LatestByTool returns the most recent non-archived assessment per tool.
	LatestByTool(ctx context.Context, patientID uuid.UUID) (map[ToolType]*Assessment, error)
	Stats(ctx context.Context, patientID uuid.UUID) (*Stats, error)
}
