package assessment

import (
	"time"

	"github.com/google/uuid"
)

// ToolType identifies the standardized clinical instrument used for an
// assessment. Each tool carries its own category schema and scoring bands, so
// an assessment's categories are only meaningful together with its tool.
type ToolType string

const (
	ToolMorseFall ToolType = "morse-fall"
	ToolBraden    ToolType = "braden"
	ToolMMSE      ToolType = "mmse"
)

// Assessment statuses. Records are archived, never physically deleted, so the
// audit history stays intact.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

var validStatuses = map[string]bool{
	StatusDraft: true, StatusActive: true, StatusArchived: true,
}

// typeForTool maps each tool to its assessment type.
var typeForTool = map[ToolType]string{
	ToolMorseFall: "fall-risk",
	ToolBraden:    "pressure-ulcer",
	ToolMMSE:      "cognition",
}

// Assessment maps to the assessment table. TotalScore and RiskLevel are
// always recomputed from Categories on every mutation; they are never
// accepted from the caller.
type Assessment struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	PatientID  uuid.UUID      `db:"patient_id" json:"patient_id"`
	AuthorID   uuid.UUID      `db:"author_id" json:"author_id"`
	Type       string         `db:"assessment_type" json:"assessment_type"`
	Tool       ToolType       `db:"tool" json:"tool"`
	Categories map[string]int `db:"categories" json:"categories"`
	TotalScore int            `db:"total_score" json:"total_score"`
	RiskLevel  string         `db:"risk_level" json:"risk_level"`
	Status     string         `db:"status" json:"status"`
	Version    int            `db:"version" json:"version"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`

	// Warnings from the last scoring pass (missing or unknown categories).
	// Transient, not persisted.
	Warnings []string `db:"-" json:"warnings,omitempty"`
}

// HistoryEntry maps to the assessment_history table: an append-only log of
// every mutation with the acting clinician and a field-level diff.
type HistoryEntry struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	AssessmentID uuid.UUID              `db:"assessment_id" json:"assessment_id"`
	Version      int                    `db:"version" json:"version"`
	Actor        uuid.UUID              `db:"actor" json:"actor"`
	Action       string                 `db:"action" json:"action"`
	Diff         map[string]interface{} `db:"diff" json:"diff,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

// ScorePoint is one historical score observation used by trend analysis.
type ScorePoint struct {
	RecordedAt time.Time `json:"recorded_at"`
	Score      float64   `json:"score"`
}

// Stats summarizes a patient's stored assessments.
type Stats struct {
	PatientID         uuid.UUID        `json:"patient_id"`
	Total             int              `json:"total"`
	CountByType       map[string]int   `json:"count_by_type"`
	LatestScoreByTool map[ToolType]int `json:"latest_score_by_tool"`
	RiskDistribution  map[string]int   `json:"risk_distribution"`
}
