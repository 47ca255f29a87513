package assessment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riskcore/riskcore/internal/platform/apperr"
)

// categorySpec describes one scored category of a tool. Either Allowed
// enumerates the permitted point values, or Min/Max bound a contiguous range.
type categorySpec struct {
	Name    string
	Allowed []int
	Min     int
	Max     int
}

// band maps a total-score ceiling to a risk level. Bands are ordered by
// ascending ceiling; the first band whose ceiling covers the total wins.
type band struct {
	UpTo  int
	Level string
}

type toolSpec struct {
	Tool       ToolType
	Categories []categorySpec
	Bands      []band
	MaxTotal   int
}

// toolSpecs is the registry of supported clinical instruments. Adding a tool
// means adding an entry here; Score and Validate pick it up automatically.
var toolSpecs = map[ToolType]toolSpec{
	ToolMorseFall: {
		Tool: ToolMorseFall,
		Categories: []categorySpec{
			{Name: "history_of_falls", Allowed: []int{0, 25}},
			{Name: "secondary_diagnosis", Allowed: []int{0, 15}},
			{Name: "ambulatory_aid", Allowed: []int{0, 15, 30}},
			{Name: "iv_therapy", Allowed: []int{0, 20}},
			{Name: "gait", Allowed: []int{0, 10, 20}},
			{Name: "mental_status", Allowed: []int{0, 15}},
		},
		Bands: []band{
			{UpTo: 24, Level: "low"},
			{UpTo: 44, Level: "moderate"},
			{UpTo: 125, Level: "high"},
		},
		MaxTotal: 125,
	},
	ToolBraden: {
		Tool: ToolBraden,
		Categories: []categorySpec{
			{Name: "sensory_perception", Min: 1, Max: 4},
			{Name: "moisture", Min: 1, Max: 4},
			{Name: "activity", Min: 1, Max: 4},
			{Name: "mobility", Min: 1, Max: 4},
			{Name: "nutrition", Min: 1, Max: 4},
			{Name: "friction_shear", Min: 1, Max: 3},
		},
		// Braden is inverse: lower totals mean higher risk.
		Bands: []band{
			{UpTo: 9, Level: "severe"},
			{UpTo: 12, Level: "high"},
			{UpTo: 14, Level: "moderate"},
			{UpTo: 18, Level: "mild"},
			{UpTo: 23, Level: "none"},
		},
		MaxTotal: 23,
	},
	ToolMMSE: {
		Tool: ToolMMSE,
		Categories: []categorySpec{
			{Name: "orientation", Min: 0, Max: 10},
			{Name: "registration", Min: 0, Max: 3},
			{Name: "attention_calculation", Min: 0, Max: 5},
			{Name: "recall", Min: 0, Max: 3},
			{Name: "language", Min: 0, Max: 8},
			{Name: "visuoconstruction", Min: 0, Max: 1},
		},
		Bands: []band{
			{UpTo: 9, Level: "severe"},
			{UpTo: 18, Level: "moderate"},
			{UpTo: 23, Level: "mild"},
			{UpTo: 30, Level: "normal"},
		},
		MaxTotal: 30,
	},
}

// ScoreResult is the outcome of scoring one assessment's categories.
type ScoreResult struct {
	Total    int      `json:"total"`
	Level    string   `json:"level"`
	Warnings []string `json:"warnings,omitempty"`
}

// Score computes the total and risk band for the given tool and category
// values. Missing categories count as zero and produce a warning; unknown
// categories are ignored with a warning; values outside the tool's allowed
// set are a validation error naming the category.
func Score(tool ToolType, categories map[string]int) (*ScoreResult, error) {
	spec, ok := toolSpecs[tool]
	if !ok {
		return nil, apperr.NewValidation("tool", "enum", "unsupported tool %q", tool)
	}

	total := 0
	var warnings []string
	known := make(map[string]bool, len(spec.Categories))

	for _, cs := range spec.Categories {
		known[cs.Name] = true
		v, present := categories[cs.Name]
		if !present {
			warnings = append(warnings, fmt.Sprintf("category %s missing, counted as zero", cs.Name))
			continue
		}
		if err := cs.validate(v); err != nil {
			return nil, err
		}
		total += v
	}

	// Unknown keys in deterministic order.
	var extras []string
	for k := range categories {
		if !known[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		warnings = append(warnings, fmt.Sprintf("unknown category %s ignored", k))
	}

	return &ScoreResult{Total: total, Level: spec.levelFor(total), Warnings: warnings}, nil
}

// SupportedTools lists the registered instruments in stable order.
func SupportedTools() []ToolType {
	tools := make([]ToolType, 0, len(toolSpecs))
	for t := range toolSpecs {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })
	return tools
}

// MaxScore returns the highest attainable total for a tool, or 0 when the
// tool is unknown.
func MaxScore(tool ToolType) int {
	return toolSpecs[tool].MaxTotal
}

func (cs categorySpec) validate(v int) error {
	if len(cs.Allowed) > 0 {
		for _, a := range cs.Allowed {
			if v == a {
				return nil
			}
		}
		parts := make([]string, len(cs.Allowed))
		for i, a := range cs.Allowed {
			parts[i] = fmt.Sprintf("%d", a)
		}
		return apperr.NewValidation(cs.Name, "enum",
			"value %d not in allowed set {%s}", v, strings.Join(parts, ", "))
	}
	if v < cs.Min || v > cs.Max {
		return apperr.NewValidation(cs.Name, "range",
			"value %d outside range %d-%d", v, cs.Min, cs.Max)
	}
	return nil
}

func (ts toolSpec) levelFor(total int) string {
	for _, b := range ts.Bands {
		if total <= b.UpTo {
			return b.Level
		}
	}
	return ts.Bands[len(ts.Bands)-1].Level
}
