// Package sentiment classifies post text into positive, negative, or
// neutral using batched generative-model calls. Classification is advisory:
// any batch that cannot be classified falls back to neutral rather than
// failing the caller.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/pkg/genai"
)

const classifySystemPrompt = `You classify the sentiment of social media posts. For each numbered post, decide whether it is positive, negative, or neutral toward its subject. Respond with ONLY a JSON array, one object per post, in the form: [{"id": "1", "sentiment": "positive"}]. No prose, no markdown.`

// Generator is the single model operation the classifier needs. The rate
// gateway satisfies it.
type Generator interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResponse, error)
}

// Config tunes batching. Zero values take defaults.
type Config struct {
	// BatchSize is posts per model call, clamped to [10, 30]. Default: 20.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`

	// GroupSize is how many batches run concurrently. Default: 3.
	GroupSize int `yaml:"group_size" mapstructure:"group_size"`

	// MaxPostChars truncates each post's text in the prompt. Default: 300.
	MaxPostChars int `yaml:"max_post_chars" mapstructure:"max_post_chars"`

	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.BatchSize < 10 {
		c.BatchSize = 10
	}
	if c.BatchSize > 30 {
		c.BatchSize = 30
	}
	if c.GroupSize <= 0 {
		c.GroupSize = 3
	}
	if c.MaxPostChars <= 0 {
		c.MaxPostChars = 300
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// Classifier batches posts through a Generator and parses the returned
// sentiment labels.
type Classifier struct {
	gen Generator
	cfg Config
}

func NewClassifier(gen Generator, cfg Config) *Classifier {
	return &Classifier{gen: gen, cfg: cfg.withDefaults()}
}

// Classify returns one sentiment per input post, in input order. It never
// returns an error: batches that fail (model error or unparseable output)
// classify as neutral and are logged.
func (c *Classifier) Classify(ctx context.Context, posts []model.Post) []model.Sentiment {
	out := make([]model.Sentiment, len(posts))
	for i := range out {
		out[i] = model.SentimentNeutral
	}
	if len(posts) == 0 {
		return out
	}

	type batch struct {
		offset int
		posts  []model.Post
	}
	var batches []batch
	for start := 0; start < len(posts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(posts) {
			end = len(posts)
		}
		batches = append(batches, batch{offset: start, posts: posts[start:end]})
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.GroupSize)

	for _, b := range batches {
		g.Go(func() error {
			labels := c.classifyBatch(gCtx, b.posts)
			// Batches cover disjoint ranges of out.
			copy(out[b.offset:], labels)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// classifyBatch runs one model call for up to BatchSize posts. Returns one
// label per post; all neutral if the call or the parse fails.
func (c *Classifier) classifyBatch(ctx context.Context, posts []model.Post) []model.Sentiment {
	labels := make([]model.Sentiment, len(posts))
	for i := range labels {
		labels[i] = model.SentimentNeutral
	}

	resp, err := c.gen.Generate(ctx, genai.GenerateRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    classifySystemPrompt,
		Prompt:    c.buildPrompt(posts),
	})
	if err != nil {
		zap.L().Warn("sentiment: batch classification failed, defaulting to neutral",
			zap.Int("batch_size", len(posts)),
			zap.Error(err),
		)
		return labels
	}

	parsed, err := parseLabels(resp.Text)
	if err != nil {
		zap.L().Warn("sentiment: unparseable batch response, defaulting to neutral",
			zap.Int("batch_size", len(posts)),
			zap.Error(err),
		)
		return labels
	}

	for id, s := range parsed {
		if id >= 1 && id <= len(posts) {
			labels[id-1] = s
		}
	}
	return labels
}

func (c *Classifier) buildPrompt(posts []model.Post) string {
	var b strings.Builder
	b.WriteString("Classify these posts:\n\n")
	for i, p := range posts {
		text := strings.TrimSpace(p.Text)
		if len(text) > c.cfg.MaxPostChars {
			text = text[:c.cfg.MaxPostChars]
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, p.Platform, text)
	}
	return b.String()
}

// parseLabels decodes the model's JSON array, applying repair passes
// cumulatively until the text parses. Returns a map from 1-based ordinal to
// sentiment.
func parseLabels(text string) (map[int]model.Sentiment, error) {
	type item struct {
		ID        json.RawMessage `json:"id"`
		Sentiment string          `json:"sentiment"`
	}

	var items []item
	var err error
	if err = json.Unmarshal([]byte(text), &items); err != nil {
		repaired := text
		for _, pass := range repairPasses {
			repaired = pass(repaired)
			if err = json.Unmarshal([]byte(repaired), &items); err == nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	labels := make(map[int]model.Sentiment, len(items))
	for _, it := range items {
		// Models return the ordinal as either "1" or 1.
		raw := strings.Trim(strings.TrimSpace(string(it.ID)), `"`)
		id, convErr := strconv.Atoi(raw)
		if convErr != nil {
			continue
		}
		labels[id] = model.NormalizeSentiment(it.Sentiment)
	}
	return labels, nil
}

// CalculateBreakdown tallies sentiments into a per-class count. Posts with
// no stored sentiment count as neutral.
func CalculateBreakdown(posts []model.Post) model.SentimentBreakdown {
	var bd model.SentimentBreakdown
	for _, p := range posts {
		s := model.SentimentNeutral
		if p.Sentiment != nil {
			s = *p.Sentiment
		}
		switch s {
		case model.SentimentPositive:
			bd.Positive++
		case model.SentimentNegative:
			bd.Negative++
		default:
			bd.Neutral++
		}
	}
	bd.Total = len(posts)
	return bd
}
