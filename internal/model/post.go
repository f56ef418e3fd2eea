package model

import "strings"

// Platform identifies the social network a post was collected from.
type Platform string

const (
	PlatformX       Platform = "x"
	PlatformYouTube Platform = "youtube"
	PlatformReddit  Platform = "reddit"
	PlatformTikTok  Platform = "tiktok"
)

// AllPlatforms returns every platform this pipeline can enrich.
func AllPlatforms() []Platform {
	return []Platform{PlatformX, PlatformYouTube, PlatformReddit, PlatformTikTok}
}

// Sentiment is the classified tone of a single post.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// NormalizeSentiment maps an arbitrary label to one of the three sentiment
// values. Anything unrecognized (after trimming and lowercasing) is neutral.
func NormalizeSentiment(label string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(label))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Post is one collected social-media item with engagement metrics.
// Sentiment is the only field the report pipeline mutates; re-running
// classification simply overwrites it.
type Post struct {
	ID         string     `json:"id"`
	SearchID   string     `json:"search_id,omitempty"`
	ExternalID string     `json:"external_id"`
	Platform   Platform   `json:"platform"`
	Author     string     `json:"author"`
	Text       string     `json:"text"`
	URL        string     `json:"url,omitempty"`
	Likes      int        `json:"likes"`
	Comments   int        `json:"comments"`
	Shares     int        `json:"shares"`
	Views      int        `json:"views"`
	Sentiment  *Sentiment `json:"sentiment,omitempty"`
}

// EngagementScore weights comments double: a commenter invested more than a
// liker, and comment-rich posts are the ones worth enriching.
func (p Post) EngagementScore() int {
	return p.Likes + 2*p.Comments
}

// SentimentBreakdown aggregates classified sentiments.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Total    int `json:"total"`
}
