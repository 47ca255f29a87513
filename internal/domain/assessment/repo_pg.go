package assessment

import (
	"context"
	"errors"
	"fmt"
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

const assessmentCols = `id, patient_id, author_id, assessment_type, tool,
	categories, total_score, risk_level, status, version, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.PatientID, &a.AuthorID, &a.Type, &a.Tool,
		&a.Categories, &a.TotalScore, &a.RiskLevel, &a.Status, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Resource: "assessment"}
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Assessment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Version = 1
	return r.db.QueryRow(ctx, `
		INSERT INTO assessment (id, patient_id, author_id, assessment_type, tool,
			categories, total_score, risk_level, status, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.AuthorID, a.Type, a.Tool,
		a.Categories, a.TotalScore, a.RiskLevel, a.Status, a.Version).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := r.scan(r.db.QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessment WHERE id = $1`, id))
	if err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			nf.ID = id.String()
		}
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Assessment, expectedVersion int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE assessment SET categories=$2, total_score=$3, risk_level=$4,
			status=$5, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $6`,
		a.ID, a.Categories, a.TotalScore, a.RiskLevel, a.Status, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := r.db.QueryRow(ctx, `SELECT version FROM assessment WHERE id = $1`, a.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperr.NotFoundError{Resource: "assessment", ID: a.ID.String()}
		}
		if err != nil {
			return err
		}
		return &apperr.ConflictError{
			Resource:        "assessment",
			ExpectedVersion: expectedVersion,
			ActualVersion:   current,
		}
	}
	a.Version = expectedVersion + 1
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM assessment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+assessmentCols+` FROM assessment
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error) {
	query := `SELECT ` + assessmentCols + ` FROM assessment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM assessment WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["patient"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["tool"]; ok {
		query += fmt.Sprintf(` AND tool = $%d`, idx)
		countQuery += fmt.Sprintf(` AND tool = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["risk-level"]; ok {
		query += fmt.Sprintf(` AND risk_level = $%d`, idx)
		countQuery += fmt.Sprintf(` AND risk_level = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	e.ID = uuid.New()
	return r.db.QueryRow(ctx, `
		INSERT INTO assessment_history (id, assessment_id, version, actor, action, diff)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		e.ID, e.AssessmentID, e.Version, e.Actor, e.Action, e.Diff).
		Scan(&e.CreatedAt)
}

func (r *repoPG) History(ctx context.Context, assessmentID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM assessment_history WHERE assessment_id = $1`, assessmentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, assessment_id, version, actor, action, diff, created_at
		FROM assessment_history WHERE assessment_id = $1
		ORDER BY version DESC LIMIT $2 OFFSET $3`,
		assessmentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.AssessmentID, &e.Version, &e.Actor,
			&e.Action, &e.Diff, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, nil
}

func (r *repoPG) ListScores(ctx context.Context, patientID uuid.UUID, tool ToolType, since time.Time) ([]ScorePoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT created_at, total_score FROM assessment
		WHERE patient_id = $1 AND tool = $2 AND status != $3 AND created_at >= $4
		ORDER BY created_at ASC`,
		patientID, tool, StatusArchived, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []ScorePoint
	for rows.Next() {
		var p ScorePoint
		var score int
		if err := rows.Scan(&p.RecordedAt, &score); err != nil {
			return nil, err
		}
		p.Score = float64(score)
		points = append(points, p)
	}
	return points, nil
}

func (r *repoPG) LatestByTool(ctx context.Context, patientID uuid.UUID) (map[ToolType]*Assessment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (tool) `+assessmentCols+` FROM assessment
		WHERE patient_id = $1 AND status != $2
		ORDER BY tool, created_at DESC`,
		patientID, StatusArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	latest := make(map[ToolType]*Assessment)
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		latest[a.Tool] = a
	}
	return latest, nil
}

func (r *repoPG) Stats(ctx context.Context, patientID uuid.UUID) (*Stats, error) {
	stats := &Stats{
		PatientID:         patientID,
		CountByType:       make(map[string]int),
		LatestScoreByTool: make(map[ToolType]int),
		RiskDistribution:  make(map[string]int),
	}

	rows, err := r.db.Query(ctx, `
		SELECT assessment_type, risk_level, COUNT(*) FROM assessment
		WHERE patient_id = $1 AND status != $2
		GROUP BY assessment_type, risk_level`,
		patientID, StatusArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ, level string
		var count int
		if err := rows.Scan(&typ, &level, &count); err != nil {
			return nil, err
		}
		stats.CountByType[typ] += count
		stats.RiskDistribution[level] += count
		stats.Total += count
	}
	rows.Close()

	latest, err := r.LatestByTool(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for tool, a := range latest {
		stats.LatestScoreByTool[tool] = a.TotalScore
	}
	return stats, nil
}
