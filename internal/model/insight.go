package model

import "time"

// OverallSentiment is the synthesis-level sentiment label. Unlike per-post
// sentiment it admits "mixed".
type OverallSentiment string

const (
	OverallPositive OverallSentiment = "positive"
	OverallNegative OverallSentiment = "negative"
	OverallNeutral  OverallSentiment = "neutral"
	OverallMixed    OverallSentiment = "mixed"
)

// IntentCategories is the fixed set the intent breakdown is reported over.
var IntentCategories = []string{
	"informational",
	"opinion",
	"question",
	"complaint",
	"promotional",
	"other",
}

// SentimentSummary is the synthesis view of sentiment across all posts.
type SentimentSummary struct {
	Overall  OverallSentiment `json:"overall"`
	Summary  string           `json:"summary"`
	Positive int              `json:"positive"`
	Negative int              `json:"negative"`
	Neutral  int              `json:"neutral"`
}

// AnalysisResult is the structured output of the AI synthesis stage.
// Fallback marks a locally computed result produced when the provider call
// or response parse failed; fallback results are returned to callers but
// never persisted as an Insight.
type AnalysisResult struct {
	Interpretation   string           `json:"interpretation"`
	KeyThemes        []string         `json:"key_themes"`
	Sentiment        SentimentSummary `json:"sentiment"`
	SuggestedQueries []string         `json:"suggested_queries"`
	FollowUpQuestion string           `json:"follow_up_question"`
	IntentBreakdown  map[string]int   `json:"intent_breakdown"`
	Model            string           `json:"model,omitempty"`
	Fallback         bool             `json:"fallback,omitempty"`
}

// Insight is the persisted structured AI synthesis output for a Job. A Job
// has at most one current Insight (the most recent row).
type Insight struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Analysis  AnalysisResult `json:"analysis"`
	Model     string         `json:"model"`
	CreatedAt time.Time      `json:"created_at"`
}

// PlatformStats are the locally computed aggregates fed into the synthesis
// prompt and reported even when every enrichment step degraded.
type PlatformStats struct {
	Posts      int `json:"posts"`
	Likes      int `json:"likes"`
	Comments   int `json:"comments"`
	Shares     int `json:"shares"`
	Views      int `json:"views"`
	Engagement int `json:"engagement"`
}
