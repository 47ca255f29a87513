package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riskcore/riskcore/internal/platform/apperr"
	"github.com/riskcore/riskcore/internal/platform/db"
)

type repoPG struct{ db db.Queryable }

func NewRepoPG(q db.Queryable) Repository {
	return &repoPG{db: q}
}

func (r *repoPG) InTx(ctx context.Context, fn func(Repository) error) error {
	b, ok := r.db.(db.Beginner)
	if !ok {
		return fn(r)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&repoPG{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const recordCols = `id, patient_id, author_id, goals, interventions, metrics,
	status, version, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.AuthorID, &rec.Goals,
		&rec.Interventions, &rec.Metrics, &rec.Status, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Resource: "progress record"}
	}
	return &rec, err
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Version = 1
	return r.db.QueryRow(ctx, `
		INSERT INTO progress_record (id, patient_id, author_id, goals,
			interventions, metrics, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.AuthorID, rec.Goals,
		rec.Interventions, rec.Metrics, rec.Status, rec.Version).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := r.scan(r.db.QueryRow(ctx, `SELECT `+recordCols+` FROM progress_record WHERE id = $1`, id))
	if err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			nf.ID = id.String()
		}
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) Update(ctx context.Context, rec *Record, expectedVersion int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE progress_record SET goals=$2, interventions=$3, metrics=$4,
			status=$5, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $6`,
		rec.ID, rec.Goals, rec.Interventions, rec.Metrics, rec.Status, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := r.db.QueryRow(ctx, `SELECT version FROM progress_record WHERE id = $1`, rec.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperr.NotFoundError{Resource: "progress record", ID: rec.ID.String()}
		}
		if err != nil {
			return err
		}
		return &apperr.ConflictError{
			Resource:        "progress record",
			ExpectedVersion: expectedVersion,
			ActualVersion:   current,
		}
	}
	rec.Version = expectedVersion + 1
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM progress_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+recordCols+` FROM progress_record
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *repoPG) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	e.ID = uuid.New()
	return r.db.QueryRow(ctx, `
		INSERT INTO progress_history (id, record_id, version, actor, action, diff)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		e.ID, e.RecordID, e.Version, e.Actor, e.Action, e.Diff).
		Scan(&e.CreatedAt)
}

func (r *repoPG) History(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM progress_history WHERE record_id = $1`, recordID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, record_id, version, actor, action, diff, created_at
		FROM progress_history WHERE record_id = $1
		ORDER BY version DESC LIMIT $2 OFFSET $3`,
		recordID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Version, &e.Actor,
			&e.Action, &e.Diff, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, nil
}

func (r *repoPG) OverallSnapshots(ctx context.Context, recordID uuid.UUID, since time.Time) ([]SnapshotPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT created_at, (diff->>'overall_progress')::float8
		FROM progress_history
		WHERE record_id = $1 AND diff ? 'overall_progress' AND created_at >= $2
		ORDER BY created_at ASC`, recordID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (r *repoPG) GoalSnapshots(ctx context.Context, recordID, goalID uuid.UUID, since time.Time) ([]SnapshotPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT created_at, (diff->'goal_progress'->>$2)::float8
		FROM progress_history
		WHERE record_id = $1 AND diff->'goal_progress' ? $2 AND created_at >= $3
		ORDER BY created_at ASC`, recordID, goalID.String(), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]SnapshotPoint, error) {
	var points []SnapshotPoint
	for rows.Next() {
		var p SnapshotPoint
		if err := rows.Scan(&p.RecordedAt, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *repoPG) Overview(ctx context.Context, patientID uuid.UUID) (*Overview, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordCols+` FROM progress_record
		WHERE patient_id = $1 AND status = $2`, patientID, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return BuildOverview(patientID, recs), nil
}
