// Package comments fetches the comment threads under the highest-engagement
// posts of each platform. Enrichment is best-effort: failed fetches are
// logged and skipped, and only posts that actually yielded comments appear
// in the result.
package comments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/internal/resilience"
	"github.com/signalscope/report-cli/pkg/social"
)

// PlatformCaps bounds how much one platform contributes.
type PlatformCaps struct {
	// TopPosts is how many highest-engagement posts get enriched.
	TopPosts int `yaml:"top_posts" mapstructure:"top_posts"`

	// CommentsPerPost caps the comments fetched under each post.
	CommentsPerPost int `yaml:"comments_per_post" mapstructure:"comments_per_post"`
}

// Config tunes enrichment. Zero values take defaults; TikTok defaults to
// tighter caps than the other platforms because its comment listing is both
// slower and more heavily rate limited.
type Config struct {
	Default PlatformCaps `yaml:"default" mapstructure:"default"`

	// PerPlatform overrides Default for specific platforms.
	PerPlatform map[model.Platform]PlatformCaps `yaml:"per_platform" mapstructure:"per_platform"`

	// FetchConcurrency limits concurrent fetches within one platform.
	// Default: 4.
	FetchConcurrency int `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
}

func (c Config) withDefaults() Config {
	if c.Default.TopPosts <= 0 {
		c.Default.TopPosts = 5
	}
	if c.Default.CommentsPerPost <= 0 {
		c.Default.CommentsPerPost = 20
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	if c.PerPlatform == nil {
		c.PerPlatform = map[model.Platform]PlatformCaps{
			model.PlatformTikTok: {TopPosts: 3, CommentsPerPost: 10},
		}
	}
	return c
}

func (c Config) capsFor(p model.Platform) PlatformCaps {
	caps, ok := c.PerPlatform[p]
	if !ok {
		return c.Default
	}
	if caps.TopPosts <= 0 {
		caps.TopPosts = c.Default.TopPosts
	}
	if caps.CommentsPerPost <= 0 {
		caps.CommentsPerPost = c.Default.CommentsPerPost
	}
	return caps
}

// Enricher fans out comment fetches across platforms.
type Enricher struct {
	clients map[model.Platform]social.Client
	cfg     Config
}

func NewEnricher(clients map[model.Platform]social.Client, cfg Config) *Enricher {
	return &Enricher{clients: clients, cfg: cfg.withDefaults()}
}

// Enrich selects each platform's top posts by engagement and fetches their
// comment threads, platforms in parallel and posts within a platform in
// parallel. It never returns an error; every failure degrades to a smaller
// result.
func (e *Enricher) Enrich(ctx context.Context, posts []model.Post) []model.CommentEnrichment {
	byPlatform := make(map[model.Platform][]model.Post)
	for _, p := range posts {
		byPlatform[p.Platform] = append(byPlatform[p.Platform], p)
	}

	var mu sync.Mutex
	var enrichments []model.CommentEnrichment

	g, gCtx := errgroup.WithContext(ctx)
	for platform, platformPosts := range byPlatform {
		client, ok := e.clients[platform]
		if !ok {
			zap.L().Debug("comments: no client configured, skipping platform",
				zap.String("platform", string(platform)),
			)
			continue
		}

		g.Go(func() error {
			got := e.enrichPlatform(gCtx, client, platform, platformPosts)
			mu.Lock()
			enrichments = append(enrichments, got...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Deterministic output order regardless of fetch completion order.
	sort.Slice(enrichments, func(i, j int) bool {
		if enrichments[i].Platform != enrichments[j].Platform {
			return enrichments[i].Platform < enrichments[j].Platform
		}
		return enrichments[i].ParentPostID < enrichments[j].ParentPostID
	})
	return enrichments
}

func (e *Enricher) enrichPlatform(ctx context.Context, client social.Client, platform model.Platform, posts []model.Post) []model.CommentEnrichment {
	caps := e.cfg.capsFor(platform)
	top := topByEngagement(posts, caps.TopPosts)

	result := resilience.FanOut(ctx, top, e.cfg.FetchConcurrency, func(ctx context.Context, post model.Post) (model.CommentEnrichment, error) {
		fetched, err := resilience.DoVal(ctx, resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 250 * time.Millisecond,
			ShouldRetry:    retryableFetch,
			OnRetry:        resilience.RetryLogger(string(platform), "fetch_comments"),
		}, func(ctx context.Context) ([]social.Comment, error) {
			return client.FetchComments(ctx, post.ExternalID, caps.CommentsPerPost)
		})
		if err != nil {
			return model.CommentEnrichment{}, err
		}
		return model.CommentEnrichment{
			ParentPostID: post.ID,
			Platform:     platform,
			Comments:     toModelPosts(fetched, post, platform),
		}, nil
	})

	for _, f := range result.Failed {
		zap.L().Warn("comments: fetch failed, skipping post",
			zap.String("platform", string(platform)),
			zap.String("post_id", f.Input.ID),
			zap.Error(f.Err),
		)
	}

	var nonEmpty []model.CommentEnrichment
	for _, enr := range result.Succeeded {
		if len(enr.Comments) > 0 {
			nonEmpty = append(nonEmpty, enr)
		}
	}
	return nonEmpty
}

// retryableFetch retries rate-limit and server-side platform statuses plus
// ordinary network transience; 4xx rejections fail the post immediately.
func retryableFetch(err error) bool {
	var se *social.StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.Code)
	}
	return resilience.IsTransient(err)
}

// topByEngagement returns up to n posts sorted by likes + 2*comments,
// descending. Ties keep their original relative order.
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

func toModelPosts(comments []social.Comment, parent model.Post, platform model.Platform) []model.Post {
	out := make([]model.Post, 0, len(comments))
	for _, c := range comments {
		out = append(out, model.Post{
			ExternalID: c.ID,
			SearchID:   parent.SearchID,
			Platform:   platform,
			Author:     c.Author,
			Text:       c.Text,
			Likes:      c.Likes,
		})
	}
	return out
}
