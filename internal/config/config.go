package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/signalscope/report-cli/internal/comments"
	"github.com/signalscope/report-cli/internal/gateway"
	"github.com/signalscope/report-cli/internal/notify"
	"github.com/signalscope/report-cli/internal/report"
	"github.com/signalscope/report-cli/internal/sentiment"
	"github.com/signalscope/report-cli/internal/store"
	"github.com/signalscope/report-cli/internal/synthesis"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gateway   gateway.Config   `yaml:"gateway" mapstructure:"gateway"`
	Sentiment sentiment.Config `yaml:"sentiment" mapstructure:"sentiment"`
	Comments  comments.Config  `yaml:"comments" mapstructure:"comments"`
	Synthesis synthesis.Config `yaml:"synthesis" mapstructure:"synthesis"`
	Report    report.Config    `yaml:"report" mapstructure:"report"`
	Social    SocialConfig     `yaml:"social" mapstructure:"social"`
	Notify    notify.Config    `yaml:"notify" mapstructure:"notify"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// SocialConfig holds per-platform credentials for comment fetching. A
// platform with no credential is skipped during enrichment.
type SocialConfig struct {
	XBearerToken      string `yaml:"x_bearer_token" mapstructure:"x_bearer_token"`
	YouTubeKey        string `yaml:"youtube_key" mapstructure:"youtube_key"`
	RedditAccessToken string `yaml:"reddit_access_token" mapstructure:"reddit_access_token"`
	RedditUserAgent   string `yaml:"reddit_user_agent" mapstructure:"reddit_user_agent"`
	TikTokAccessToken string `yaml:"tiktok_access_token" mapstructure:"tiktok_access_token"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "report.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("gateway.min_interval", "1200ms")
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.call_timeout", "60s")
	v.SetDefault("sentiment.batch_size", 20)
	v.SetDefault("sentiment.group_size", 3)
	v.SetDefault("sentiment.max_post_chars", 300)
	v.SetDefault("sentiment.model", "claude-haiku-4-5-20251001")
	v.SetDefault("sentiment.max_tokens", 1024)
	v.SetDefault("synthesis.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("synthesis.max_tokens", 4096)
	v.SetDefault("comments.default.top_posts", 5)
	v.SetDefault("comments.default.comments_per_post", 20)
	v.SetDefault("comments.fetch_concurrency", 4)
	v.SetDefault("report.duplicate_window", "10m")
	v.SetDefault("social.reddit_user_agent", "report-cli/1.0")

	// Empty defaults so env-only secrets survive Unmarshal.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("social.x_bearer_token", "")
	v.SetDefault("social.youtube_key", "")
	v.SetDefault("social.reddit_access_token", "")
	v.SetDefault("social.tiktok_access_token", "")
	v.SetDefault("notify.webhook_url", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete for the given mode.
// Modes correspond to CLI commands: "report" and "serve" need the full
// pipeline stack, "migrate" and "import" only need a database.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireDB := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
	}

	requirePipeline := func() {
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Gateway.MaxAttempts < 1 || c.Gateway.MaxAttempts > 10 {
			missing = append(missing, "gateway.max_attempts must be between 1 and 10")
		}
		if c.Sentiment.GroupSize < 1 || c.Sentiment.GroupSize > 10 {
			missing = append(missing, "sentiment.group_size must be between 1 and 10")
		}
	}

	switch mode {
	case "report":
		requireDB()
		requirePipeline()
	case "serve":
		requireDB()
		requirePipeline()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "migrate", "import", "jobs":
		requireDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
