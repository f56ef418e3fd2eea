// Package gateway funnels every outbound generative-text call through a
// single paced, retrying chokepoint. No two provider calls are ever in
// flight at once, and successive call starts are spaced by a configured
// minimum regardless of how many callers queue up.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/signalscope/report-cli/pkg/genai"
)

// Config tunes the gateway. Zero values take the documented defaults.
type Config struct {
	// MinInterval is the minimum elapsed time between successive call
	// start times. Default: 1200ms.
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`

	// MaxAttempts bounds total attempts per call, including the first.
	// Default: 3.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// CallTimeout is the hard per-attempt deadline. Default: 60s.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = 1200 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	return c
}

const (
	initialBackoff = time.Second
	maxBackoff     = 10 * time.Second
)

// Gateway serializes and paces calls to the generative-text provider and
// retries rate-limit responses. It owns all of its timing state; construct
// one per provider rate budget and inject it into callers.
type Gateway struct {
	client genai.Client
	cfg    Config

	mu      sync.Mutex // serializes in-flight calls
	limiter *rate.Limiter

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway around the given provider client.
func New(client genai.Client, cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Generate performs one paced provider call with bounded retries. Only 429
// (rate limited) and 529 (overloaded) trigger a retry; a Retry-After header
// is honored verbatim, otherwise backoff doubles from 1s up to 10s. After
// the attempt budget is spent the last provider error is returned as-is for
// the caller to interpret — the gateway adds nothing on top.
func (g *Gateway) Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		// Pace call starts: never closer together than MinInterval.
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		resp, err := g.client.Generate(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		apiErr := genai.AsAPIError(err)
		if apiErr == nil || !retryableStatus(apiErr.StatusCode) {
			return nil, lastErr
		}
		if attempt >= g.cfg.MaxAttempts-1 {
			break
		}

		delay := g.retryDelay(apiErr.RetryAfter, attempt)
		zap.L().Warn("gateway: provider rate limited, backing off",
			zap.Int("status", apiErr.StatusCode),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if err := g.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == 529
}

// retryDelay picks the wait before the next attempt. A Retry-After value is
// honored whether it parses as an integer second count or an HTTP date;
// otherwise backoff is exponential from 1s, doubling per attempt, capped.
func (g *Gateway) retryDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(retryAfter); err == nil {
			if d := at.Sub(g.now()); d > 0 {
				return d
			}
			return 0
		}
	}

	delay := initialBackoff << attempt
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
