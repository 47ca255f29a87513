package assessment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riskcore/riskcore/internal/platform/apperr"
)

// Risk levels for aggregated per-domain scores, ordered by severity.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

var severityRank = map[string]int{
	LevelLow: 0, LevelMedium: 1, LevelHigh: 2, LevelCritical: 3,
}

// Alert thresholds: any score at or above this value raises an alert even
// when its level alone would not.
const alertValueThreshold = 75.0

// RiskScore is one normalized risk domain score on a 0-100 scale.
type RiskScore struct {
	Type       string   `json:"risk_type"`
	Value      float64  `json:"value"`
	Level      string   `json:"level"`
	Factors    []string `json:"factors,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Validate checks the score's structural invariants.
func (r *RiskScore) Validate() error {
	if r.Type == "" {
		return apperr.NewValidation("risk_type", "required", "risk_type is required")
	}
	if r.Value < 0 || r.Value > 100 {
		return apperr.NewValidation("value", "range", "value %.1f outside range 0-100", r.Value)
	}
	if _, ok := severityRank[r.Level]; !ok {
		return apperr.NewValidation("level", "enum", "unknown risk level %q", r.Level)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return apperr.NewValidation("confidence", "range", "confidence %.2f outside range 0-1", r.Confidence)
	}
	return nil
}

// Alert flags a risk domain that needs immediate clinical attention.
type Alert struct {
	RiskType string  `json:"risk_type"`
	Level    string  `json:"level"`
	Value    float64 `json:"value"`
	Action   string  `json:"action"`
}

// RiskSummary is the combined view across all of a patient's risk domains.
type RiskSummary struct {
	OverallLevel    string       `json:"overall_level"`
	Scores          []*RiskScore `json:"scores"`
	Alerts          []Alert      `json:"alerts"`
	Recommendations []string     `json:"recommendations"`
}

// Aggregate combines per-domain risk scores into a patient-level summary.
// The overall level is the maximum severity seen. Alerts fire for any domain
// at high severity or above, or with a value at the alert threshold.
// Recommendations are ordered by severity of the contributing domain and
// deduplicated case-insensitively.
func Aggregate(scores map[string]*RiskScore) (*RiskSummary, error) {
	summary := &RiskSummary{
		OverallLevel:    LevelLow,
		Alerts:          []Alert{},
		Recommendations: []string{},
	}

	types := make([]string, 0, len(scores))
	for t := range scores {
		types = append(types, t)
	}
	sort.Strings(types)

	type rec struct {
		text     string
		priority int
	}
	var recs []rec

	for _, t := range types {
		score := scores[t]
		if score == nil {
			continue
		}
		if err := score.Validate(); err != nil {
			return nil, err
		}
		summary.Scores = append(summary.Scores, score)

		rank := severityRank[score.Level]
		if rank > severityRank[summary.OverallLevel] {
			summary.OverallLevel = score.Level
		}

		if rank >= severityRank[LevelHigh] || score.Value >= alertValueThreshold {
			summary.Alerts = append(summary.Alerts, Alert{
				RiskType: score.Type,
				Level:    score.Level,
				Value:    score.Value,
				Action:   immediateActionFor(score.Type),
			})
		}

		for _, text := range recommendationsFor(score) {
			recs = append(recs, rec{text: text, priority: rank})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].priority > recs[j].priority })
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		key := strings.ToLower(strings.TrimSpace(r.text))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		summary.Recommendations = append(summary.Recommendations, r.text)
	}

	return summary, nil
}

func immediateActionFor(riskType string) string {
	switch riskType {
	case "fall-risk":
		return "initiate hourly rounding and verify bed alarm is active"
	case "pressure-ulcer":
		return "begin 2-hour repositioning schedule and skin inspection"
	case "cognition":
		return "notify provider and increase orientation checks"
	default:
		return "escalate to the care team for review"
	}
}

func recommendationsFor(score *RiskScore) []string {
	base := map[string]map[string][]string{
		"fall-risk": {
			LevelLow:      {"continue standard fall precautions"},
			LevelMedium:   {"apply non-slip footwear", "keep call light within reach"},
			LevelHigh:     {"initiate hourly rounding and verify bed alarm is active", "move patient closer to nursing station"},
			LevelCritical: {"initiate hourly rounding and verify bed alarm is active", "consider one-to-one observation"},
		},
		"pressure-ulcer": {
			LevelLow:      {"continue routine skin assessment"},
			LevelMedium:   {"optimize nutrition and hydration", "use pressure-redistribution surface"},
			LevelHigh:     {"begin 2-hour repositioning schedule and skin inspection", "consult wound care team"},
			LevelCritical: {"begin 2-hour repositioning schedule and skin inspection", "consult wound care team"},
		},
		"cognition": {
			LevelLow:      {"continue routine cognitive screening"},
			LevelMedium:   {"reorient patient each shift", "review medications for cognitive side effects"},
			LevelHigh:     {"notify provider and increase orientation checks", "involve family in care planning"},
			LevelCritical: {"notify provider and increase orientation checks", "evaluate for delirium workup"},
		},
	}

	if byLevel, ok := base[score.Type]; ok {
		if out, ok := byLevel[score.Level]; ok {
			return out
		}
	}
	if severityRank[score.Level] >= severityRank[LevelHigh] {
		return []string{fmt.Sprintf("escalate elevated %s risk to the care team", score.Type)}
	}
	return []string{fmt.Sprintf("monitor %s risk at routine intervals", score.Type)}
}
