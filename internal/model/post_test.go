package model

import "testing"

func TestNormalizeSentiment(t *testing.T) {
	cases := []struct {
		in   string
		want Sentiment
	}{
		{"positive", SentimentPositive},
		{"  Positive ", SentimentPositive},
		{"NEGATIVE", SentimentNegative},
		{"neutral", SentimentNeutral},
		{"mixed", SentimentNeutral},
		{"", SentimentNeutral},
		{"😀", SentimentNeutral},
	}
	for _, c := range cases {
		if got := NormalizeSentiment(c.in); got != c.want {
			t.Errorf("NormalizeSentiment(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPost_EngagementScore(t *testing.T) {
	p := Post{Likes: 10, Comments: 5, Shares: 100, Views: 1000}
	if got := p.EngagementScore(); got != 20 {
		t.Errorf("EngagementScore() = %d, want 20 (likes + 2*comments)", got)
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	if JobStatusRunning.Terminal() {
		t.Error("running should not be terminal")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Error("completed and failed should be terminal")
	}
}
