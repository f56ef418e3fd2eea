// Package synthesis turns a classified, enriched post set into a single
// structured analysis via one model call. Synthesis is advisory: when the
// call or its parse fails the caller gets a deterministic local fallback,
// never an error.
package synthesis

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/pkg/genai"
)

// Generator is the single model operation synthesis needs. The rate
// gateway satisfies it.
type Generator interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResponse, error)
}

// Config tunes the synthesis call.
type Config struct {
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}

// Analyzer produces the report's AI analysis section.
type Analyzer struct {
	gen Generator
	cfg Config
}

func NewAnalyzer(gen Generator, cfg Config) *Analyzer {
	return &Analyzer{gen: gen, cfg: cfg.withDefaults()}
}

// Analyze runs one synthesis call over the full report input. The returned
// result is never nil: provider errors and unparseable responses degrade to
// the local fallback, marked as such.
func (a *Analyzer) Analyze(ctx context.Context, search model.Search, posts []model.Post, breakdown model.SentimentBreakdown, stats map[model.Platform]model.PlatformStats, enrichments []model.CommentEnrichment) *model.AnalysisResult {
	resp, err := a.gen.Generate(ctx, genai.GenerateRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    analysisSystemPrompt,
		Prompt:    buildPrompt(search, posts, breakdown, stats, enrichments),
	})
	if err != nil {
		zap.L().Warn("synthesis: model call failed, using local fallback",
			zap.String("query", search.Query),
			zap.Error(err),
		)
		return buildFallback(search, posts, breakdown)
	}

	result, err := parseAnalysis(resp.Text)
	if err != nil {
		zap.L().Warn("synthesis: unparseable model response, using local fallback",
			zap.String("query", search.Query),
			zap.Error(err),
		)
		return buildFallback(search, posts, breakdown)
	}

	result.Model = resp.Model
	return result
}

// analysisWire matches the JSON shape the model is instructed to emit.
type analysisWire struct {
	Interpretation string   `json:"interpretation"`
	KeyThemes      []string `json:"keyThemes"`
	Sentiment      struct {
		Overall  string `json:"overall"`
		Summary  string `json:"summary"`
		Positive int    `json:"positive"`
		Negative int    `json:"negative"`
		Neutral  int    `json:"neutral"`
	} `json:"sentiment"`
	SuggestedQueries []string       `json:"suggestedQueries"`
	FollowUpQuestion string         `json:"followUpQuestion"`
	IntentBreakdown  map[string]int `json:"intentBreakdown"`
}

func parseAnalysis(text string) (*model.AnalysisResult, error) {
	text = cleanJSONObject(text)

	var wire analysisWire
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, err
	}

	intents := make(map[string]int, len(model.IntentCategories))
	for _, c := range model.IntentCategories {
		intents[c] = wire.IntentBreakdown[c]
	}

	return &model.AnalysisResult{
		Interpretation: wire.Interpretation,
		KeyThemes:      wire.KeyThemes,
		Sentiment: model.SentimentSummary{
			Overall:  normalizeOverall(wire.Sentiment.Overall),
			Summary:  wire.Sentiment.Summary,
			Positive: wire.Sentiment.Positive,
			Negative: wire.Sentiment.Negative,
			Neutral:  wire.Sentiment.Neutral,
		},
		SuggestedQueries: wire.SuggestedQueries,
		FollowUpQuestion: wire.FollowUpQuestion,
		IntentBreakdown:  intents,
	}, nil
}

func normalizeOverall(s string) model.OverallSentiment {
	switch model.OverallSentiment(strings.ToLower(strings.TrimSpace(s))) {
	case model.OverallPositive:
		return model.OverallPositive
	case model.OverallNegative:
		return model.OverallNegative
	case model.OverallMixed:
		return model.OverallMixed
	default:
		return model.OverallNeutral
	}
}

// cleanJSONObject strips a markdown code fence and any prose around the
// outermost JSON object.
func cleanJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		s = s[start : end+1]
	}
	return s
}
