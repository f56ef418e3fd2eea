package report

import "testing"

func TestProgressFunc_NilEmitDoesNotPanic(t *testing.T) {
	var f ProgressFunc
	f.emit(StepInitializing, "")
}

func TestSteps_Order(t *testing.T) {
	want := []Step{
		StepInitializing, StepFetchingData, StepSentimentAnalysis,
		StepFetchingComments, StepCalculatingMetrics, StepAIAnalysis,
	}
	got := Steps()
	if len(got) != len(want) {
		t.Fatalf("got %d steps, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, got[i], want[i])
		}
	}
}
