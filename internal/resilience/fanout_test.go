package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestFanOut_AllSucceed(t *testing.T) {
	res := FanOut(context.Background(), []int{1, 2, 3}, 2, func(_ context.Context, n int) (int, error) {
		return n * 10, nil
	})
	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failed)
	}
	if len(res.Succeeded) != 3 {
		t.Fatalf("expected 3 successes, got %d", len(res.Succeeded))
	}
	// Successes preserve input order.
	for i, want := range []int{10, 20, 30} {
		if res.Succeeded[i] != want {
			t.Errorf("succeeded[%d] = %d, want %d", i, res.Succeeded[i], want)
		}
	}
}

func TestFanOut_PartialFailure(t *testing.T) {
	boom := errors.New("boom")
	res := FanOut(context.Background(), []string{"a", "b", "c"}, 0, func(_ context.Context, s string) (string, error) {
		if s == "b" {
			return "", boom
		}
		return s + "!", nil
	})
	if len(res.Succeeded) != 2 {
		t.Errorf("expected 2 successes, got %d", len(res.Succeeded))
	}
	if len(res.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(res.Failed))
	}
	if res.Failed[0].Input != "b" || !errors.Is(res.Failed[0].Err, boom) {
		t.Errorf("unexpected failure record: %+v", res.Failed[0])
	}
}

func TestFanOut_FailureDoesNotCancelSiblings(t *testing.T) {
	var ran atomic.Int32
	res := FanOut(context.Background(), []int{0, 1, 2, 3, 4}, 1, func(_ context.Context, n int) (int, error) {
		ran.Add(1)
		if n == 0 {
			return 0, errors.New("first fails")
		}
		return n, nil
	})
	if ran.Load() != 5 {
		t.Errorf("expected all 5 inputs to run, got %d", ran.Load())
	}
	if len(res.Succeeded) != 4 || len(res.Failed) != 1 {
		t.Errorf("got %d successes / %d failures, want 4/1", len(res.Succeeded), len(res.Failed))
	}
}

func TestFanOut_Empty(t *testing.T) {
	res := FanOut(context.Background(), nil, 3, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if len(res.Succeeded) != 0 || len(res.Failed) != 0 {
		t.Error("expected empty result for empty input")
	}
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	FanOut(context.Background(), make([]int, 20), 3, func(_ context.Context, _ int) (int, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		defer inFlight.Add(-1)
		return 0, nil
	})
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent calls, saw %d", peak.Load())
	}
}
