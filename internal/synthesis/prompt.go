package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/signalscope/report-cli/internal/model"
)

const analysisSystemPrompt = `You are an analyst summarizing social media discussion for a research report. Base every statement strictly on the provided posts and comments. Respond with ONLY a JSON object of the form:
{"interpretation": "...", "keyThemes": ["..."], "sentiment": {"overall": "positive|negative|neutral|mixed", "summary": "...", "positive": 0, "negative": 0, "neutral": 0}, "suggestedQueries": ["..."], "followUpQuestion": "...", "intentBreakdown": {"informational": 0, "opinion": 0, "question": 0, "complaint": 0, "promotional": 0, "other": 0}}
No prose, no markdown.`

// maxPromptPosts bounds how many posts are rendered into the prompt.
const maxPromptPosts = 100

// maxPromptPostChars truncates each rendered post's text.
const maxPromptPostChars = 300

// buildPrompt renders the entire analysis input as one user prompt: the
// query and its filters, local sentiment and per-platform stats, the
// highest-engagement posts, and any fetched comment threads.
func buildPrompt(search model.Search, posts []model.Post, breakdown model.SentimentBreakdown, stats map[model.Platform]model.PlatformStats, enrichments []model.CommentEnrichment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Search query: %q\n", search.Query)
	if f := renderFilters(search.Filters); f != "" {
		fmt.Fprintf(&b, "Filters: %s\n", f)
	}
	fmt.Fprintf(&b, "Total posts analyzed: %d\n\n", len(posts))

	fmt.Fprintf(&b, "Sentiment counts: %d positive, %d negative, %d neutral (of %d)\n\n",
		breakdown.Positive, breakdown.Negative, breakdown.Neutral, breakdown.Total)

	if len(stats) > 0 {
		b.WriteString("Per-platform stats:\n")
		platforms := make([]model.Platform, 0, len(stats))
		for p := range stats {
			platforms = append(platforms, p)
		}
		sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
		for _, p := range platforms {
			s := stats[p]
			fmt.Fprintf(&b, "- %s: %d posts, %d likes, %d comments, %d shares, %d views\n",
				p, s.Posts, s.Likes, s.Comments, s.Shares, s.Views)
		}
		b.WriteString("\n")
	}

	top := topByEngagement(posts, maxPromptPosts)
	fmt.Fprintf(&b, "Top posts (%d):\n", len(top))
	for i, p := range top {
		text := strings.TrimSpace(p.Text)
		if len(text) > maxPromptPostChars {
			text = text[:maxPromptPostChars]
		}
		sentiment := model.SentimentNeutral
		if p.Sentiment != nil {
			sentiment = *p.Sentiment
		}
		fmt.Fprintf(&b, "%d. [%s] [%s] (%d likes, %d comments) %s\n",
			i+1, p.Platform, sentiment, p.Likes, p.Comments, text)
	}

	if len(enrichments) > 0 {
		b.WriteString("\nComment threads on top posts:\n")
		for _, enr := range enrichments {
			fmt.Fprintf(&b, "Post %s (%s):\n", enr.ParentPostID, enr.Platform)
			for _, c := range enr.Comments {
				text := strings.TrimSpace(c.Text)
				if len(text) > maxPromptPostChars {
					text = text[:maxPromptPostChars]
				}
				fmt.Fprintf(&b, "  - (%d likes) %s\n", c.Likes, text)
			}
		}
	}

	return b.String()
}

// renderFilters produces a human-readable filter description. The language
// tag is rendered as its English display name so the model sees "German",
// not "de".
func renderFilters(f model.Filters) string {
	var parts []string
	if f.TimeRange != "" {
		parts = append(parts, "time range "+f.TimeRange)
	}
	if f.Language != "" {
		name := f.Language
		if tag, err := language.Parse(f.Language); err == nil {
			name = display.English.Tags().Name(tag)
		}
		parts = append(parts, "language "+name)
	}
	if len(f.Sources) > 0 {
		parts = append(parts, "sources "+strings.Join(f.Sources, ", "))
	}
	return strings.Join(parts, "; ")
}

func topByEngagement(posts []model.Post, n int) []model.Post {
	sorted := make([]model.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EngagementScore() > sorted[j].EngagementScore()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
