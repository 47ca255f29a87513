// Package insights provides AI-generated care insights for assessment and
// progress data. Generation is strictly best-effort: callers log failures and
// continue without enrichment.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrDisabled is returned by the no-op generator when no API key is configured.
var ErrDisabled = errors.New("insight generation disabled")

// Insights is the structured result of a generation call.
type Insights struct {
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
	Narrative       string   `json:"narrative"`
}

// Generator produces insights from a domain data payload. The domain string
// names the data being summarized ("assessment", "progress").
type Generator interface {
	GenerateInsights(ctx context.Context, domain string, data map[string]interface{}) (*Insights, error)
}

// OpenAIGenerator calls the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator constructs an OpenAI-backed generator. An empty model
// falls back to a small default.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

const systemPrompt = `You are a clinical care-planning assistant reviewing risk
scores and goal progress for a single patient. Reply with one line per item:
lines starting with "REC:" are care recommendations, lines starting with
"ALERT:" are urgent concerns, and all remaining lines form a short narrative
summary. Do not diagnose; phrase everything as suggestions for the care team.`

// GenerateInsights sends the domain data to the model and parses the
// line-oriented reply into recommendations, alerts, and a narrative.
func (g *OpenAIGenerator) GenerateInsights(ctx context.Context, domain string, data map[string]interface{}) (*Insights, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Domain: " + domain + "\nData: " + string(payload)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return &Insights{}, nil
	}
	return parseReply(resp.Choices[0].Message.Content), nil
}

// parseReply splits a model reply into REC:/ALERT: items and narrative text.
func parseReply(reply string) *Insights {
	out := &Insights{}
	var narrative []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "REC:"):
			out.Recommendations = append(out.Recommendations, strings.TrimSpace(strings.TrimPrefix(line, "REC:")))
		case strings.HasPrefix(line, "ALERT:"):
			out.Alerts = append(out.Alerts, strings.TrimSpace(strings.TrimPrefix(line, "ALERT:")))
		default:
			narrative = append(narrative, line)
		}
	}
	out.Narrative = strings.Join(narrative, " ")
	return out
}

// Disabled is a Generator that always reports ErrDisabled. Used when no API
// key is configured so that callers keep a single degrade path.
type Disabled struct{}

// GenerateInsights implements Generator.
func (Disabled) GenerateInsights(ctx context.Context, domain string, data map[string]interface{}) (*Insights, error) {
	return nil, ErrDisabled
}
