package synthesis

import (
	"fmt"

	"github.com/signalscope/report-cli/internal/model"
)

// buildFallback produces a deterministic local analysis used whenever the
// model call or its parse fails. It contains no claims beyond what the
// local counts support, and always carries a follow-up question so the
// report surface renders the same fields either way.
func buildFallback(search model.Search, posts []model.Post, breakdown model.SentimentBreakdown) *model.AnalysisResult {
	overall := localOverall(breakdown)

	intents := make(map[string]int, len(model.IntentCategories))
	for _, c := range model.IntentCategories {
		intents[c] = 0
	}
	intents["other"] = len(posts)

	return &model.AnalysisResult{
		Interpretation: fmt.Sprintf(
			"Analyzed %d posts about %q. Sentiment was %d positive, %d negative, and %d neutral. A detailed AI interpretation was unavailable for this report.",
			len(posts), search.Query, breakdown.Positive, breakdown.Negative, breakdown.Neutral,
		),
		KeyThemes: []string{search.Query},
		Sentiment: model.SentimentSummary{
			Overall: overall,
			Summary: fmt.Sprintf("Overall sentiment across %d posts is %s.", breakdown.Total, overall),
			Positive: breakdown.Positive,
			Negative: breakdown.Negative,
			Neutral:  breakdown.Neutral,
		},
		SuggestedQueries: []string{
			search.Query + " reactions",
			search.Query + " news",
		},
		FollowUpQuestion: fmt.Sprintf("What aspect of %q would you like to explore further?", search.Query),
		IntentBreakdown:  intents,
		Fallback:         true,
	}
}

// localOverall reduces the counted breakdown to one label. When both
// polarized classes hold at least a quarter of the posts the discussion is
// mixed; otherwise the largest class wins.
func localOverall(bd model.SentimentBreakdown) model.OverallSentiment {
	if bd.Total == 0 {
		return model.OverallNeutral
	}
	quarter := bd.Total / 4
	if bd.Positive >= quarter && bd.Negative >= quarter && bd.Positive > 0 && bd.Negative > 0 {
		return model.OverallMixed
	}
	switch {
	case bd.Positive > bd.Negative && bd.Positive > bd.Neutral:
		return model.OverallPositive
	case bd.Negative > bd.Positive && bd.Negative > bd.Neutral:
		return model.OverallNegative
	default:
		return model.OverallNeutral
	}
}
