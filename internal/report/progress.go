package report

// Step names one stage of report generation, in the order a successful run
// emits them.
type Step string

const (
	StepInitializing       Step = "initializing"
	StepFetchingData       Step = "fetching_data"
	StepSentimentAnalysis  Step = "sentiment_analysis"
	StepFetchingComments   Step = "fetching_comments"
	StepCalculatingMetrics Step = "calculating_metrics"
	StepAIAnalysis         Step = "ai_analysis"
	StepComplete           Step = "complete"
	StepError              Step = "error"
)

// Steps returns the ordered pipeline steps, excluding the terminal
// complete/error pair.
func Steps() []Step {
	return []Step{
		StepInitializing,
		StepFetchingData,
		StepSentimentAnalysis,
		StepFetchingComments,
		StepCalculatingMetrics,
		StepAIAnalysis,
	}
}

// Event is one progress update. Detail is free-form and may be empty.
type Event struct {
	Step   Step   `json:"step"`
	Detail string `json:"detail,omitempty"`
}

// ProgressFunc receives progress events during a run. A nil ProgressFunc
// is valid and disables reporting.
type ProgressFunc func(Event)

func (f ProgressFunc) emit(step Step, detail string) {
	if f != nil {
		f(Event{Step: step, Detail: detail})
	}
}
