package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalscope/report-cli/internal/comments"
	"github.com/signalscope/report-cli/internal/config"
	"github.com/signalscope/report-cli/internal/gateway"
	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/internal/notify"
	"github.com/signalscope/report-cli/internal/report"
	"github.com/signalscope/report-cli/internal/sentiment"
	"github.com/signalscope/report-cli/internal/store"
	"github.com/signalscope/report-cli/internal/synthesis"
	"github.com/signalscope/report-cli/pkg/genai"
	"github.com/signalscope/report-cli/pkg/social"
)

// pipelineEnv holds the initialized store and runner needed by the
// report/serve commands.
type pipelineEnv struct {
	Store  store.Store
	Runner *report.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the model gateway, the pipeline stages,
// and the runner. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// All model calls for this process go through one gateway, so
	// sentiment batches and the synthesis call share its pacing.
	gw := gateway.New(genai.NewClient(cfg.Anthropic.Key), cfg.Gateway)

	classifier := sentiment.NewClassifier(gw, cfg.Sentiment)
	analyzer := synthesis.NewAnalyzer(gw, cfg.Synthesis)
	enricher := comments.NewEnricher(socialClients(cfg.Social), cfg.Comments)

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify)
		zap.L().Info("report webhook notifications enabled")
	}

	runner := report.NewRunner(st, classifier, enricher, analyzer, notifier, cfg.Report)

	return &pipelineEnv{
		Store:  st,
		Runner: runner,
	}, nil
}

// socialClients builds one comment client per platform with a configured
// credential. Platforms without a client are skipped during enrichment.
func socialClients(sc config.SocialConfig) map[model.Platform]social.Client {
	clients := make(map[model.Platform]social.Client)

	if sc.XBearerToken != "" {
		clients[model.PlatformX] = social.NewXClient(sc.XBearerToken)
	}
	if sc.YouTubeKey != "" {
		clients[model.PlatformYouTube] = social.NewYouTubeClient(sc.YouTubeKey)
	}
	if sc.RedditAccessToken != "" {
		clients[model.PlatformReddit] = social.NewRedditClient(sc.RedditAccessToken, sc.RedditUserAgent)
	}
	if sc.TikTokAccessToken != "" {
		clients[model.PlatformTikTok] = social.NewTikTokClient(sc.TikTokAccessToken)
	}

	if len(clients) == 0 {
		zap.L().Warn("no social credentials configured, comment enrichment disabled")
	}

	return clients
}
