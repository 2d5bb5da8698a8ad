// Package config loads the engine's configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration, read once at startup.
type Config struct {
	DiscordToken   string
	DiscordGuildID string
	CategoryName   string

	// AdminExternalIDs bootstraps the Handle Authority (spec §6: "two string
	// IDs ... may be supplied to bootstrap the Handle Authority; absence is
	// not fatal").
	AdminExternalIDs []string

	DataDir string

	PollIntervalMs         int
	TaskTimeoutMs          int
	StabilizationMs        int
	ClipboardAutoReleaseMs int

	AskPredictTimeoutMs    int
	RedirectGraceMs        int
	MaxConcurrentPreds     int
	UseSovereigntyTimeouts bool

	// SovereigntyScore stands in for the external sovereignty-score
	// collaborator (spec §2: "a scalar in [0,1] supplied by an external
	// collaborator"); this engine has no such collaborator wired, so it
	// reads a fixed, operator-configured value.
	SovereigntyScore float64

	LLMEndpoint      string
	LLMModel         string
	MaxDailyPosts    int
	SpikeThreshold   float64
	ReportIntervalMs int

	SpecDocPath     string
	PipelineDocPath string
	RepoPath        string

	TelegramToken      string
	TelegramAllowedIDs []int64

	// KittySocket is the control socket path kitty-backed cognitive rooms
	// are read from and dispatched into (spec §4.2).
	KittySocket string

	// DriftScanIntervalMs governs how often the Drift Detector sidecar scans
	// (spec §4.12); zero disables it.
	DriftScanIntervalMs int

	// WebsocketBridgeURL, when set, registers a generic websocket
	// Cross-Channel Router adapter (spec §4.5) in addition to Telegram.
	WebsocketBridgeURL string

	// TweetComposeURL, TweetComposerSelector, TweetSubmitSelector configure
	// the External Publish chromedp driver (spec §4.11).
	TweetComposeURL       string
	TweetComposerSelector string
	TweetSubmitSelector   string
}

// Load reads configuration from environment variables, optionally seeded by
// a .env file in the working directory if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	cfg := &Config{
		DiscordToken:   token,
		DiscordGuildID: os.Getenv("DISCORD_GUILD_ID"),
		CategoryName:   envOr("SOVEREIGN_CATEGORY_NAME", "cognitive-rooms"),
		DataDir:        envOr("SOVEREIGN_DATA_DIR", "./data"),

		PollIntervalMs:         envInt("SOVEREIGN_POLL_INTERVAL_MS", 2000),
		TaskTimeoutMs:          envInt("SOVEREIGN_TASK_TIMEOUT_MS", 10*60*1000),
		StabilizationMs:        envInt("SOVEREIGN_STABILIZATION_MS", 5000),
		ClipboardAutoReleaseMs: envInt("SOVEREIGN_CLIPBOARD_AUTO_RELEASE_MS", 30000),

		AskPredictTimeoutMs:    envInt("SOVEREIGN_ASK_PREDICT_TIMEOUT_MS", 30000),
		RedirectGraceMs:        envInt("SOVEREIGN_REDIRECT_GRACE_MS", 2000),
		MaxConcurrentPreds:     envInt("SOVEREIGN_MAX_CONCURRENT_PREDICTIONS", 4),
		UseSovereigntyTimeouts: envBool("SOVEREIGN_USE_SOVEREIGNTY_TIMEOUTS", true),
		SovereigntyScore:       envFloat("SOVEREIGN_SOVEREIGNTY_SCORE", 0.5),

		LLMEndpoint:      envOr("SOVEREIGN_LLM_ENDPOINT", "http://localhost:11434/api/generate"),
		LLMModel:         envOr("SOVEREIGN_LLM_MODEL", "llama3"),
		MaxDailyPosts:    envInt("SOVEREIGN_MAX_DAILY_POSTS", 6),
		SpikeThreshold:   envFloat("SOVEREIGN_SPIKE_THRESHOLD", 0.1),
		ReportIntervalMs: envInt("SOVEREIGN_REPORT_INTERVAL_MS", 0),

		SpecDocPath:     envOr("SOVEREIGN_SPEC_DOC_PATH", "spec.md"),
		PipelineDocPath: envOr("SOVEREIGN_PIPELINE_DOC_PATH", "PIPELINE.md"),
		RepoPath:        envOr("SOVEREIGN_REPO_PATH", "."),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		KittySocket:         envOr("SOVEREIGN_KITTY_SOCKET", "/tmp/kitty-sovereign.sock"),
		DriftScanIntervalMs: envInt("SOVEREIGN_DRIFT_SCAN_INTERVAL_MS", 60*60*1000),
		WebsocketBridgeURL:  os.Getenv("SOVEREIGN_WEBSOCKET_BRIDGE_URL"),

		TweetComposeURL:       envOr("SOVEREIGN_TWEET_COMPOSE_URL", "https://twitter.com/compose/tweet"),
		TweetComposerSelector: envOr("SOVEREIGN_TWEET_COMPOSER_SELECTOR", `div[data-testid="tweetTextarea_0"]`),
		TweetSubmitSelector:   envOr("SOVEREIGN_TWEET_SUBMIT_SELECTOR", `div[data-testid="tweetButton"]`),
	}

	if ids := os.Getenv("SOVEREIGN_ADMIN_EXTERNAL_IDS"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.AdminExternalIDs = append(cfg.AdminExternalIDs, id)
			}
		}
	}

	if userIDs := os.Getenv("TELEGRAM_ALLOWED_USER_IDS"); userIDs != "" {
		for _, idStr := range strings.Split(userIDs, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid telegram user ID %q: %w", idStr, err)
			}
			cfg.TelegramAllowedIDs = append(cfg.TelegramAllowedIDs, id)
		}
	}

	return cfg, nil
}

func (c *Config) PollInterval() time.Duration  { return time.Duration(c.PollIntervalMs) * time.Millisecond }
func (c *Config) TaskTimeout() time.Duration   { return time.Duration(c.TaskTimeoutMs) * time.Millisecond }
func (c *Config) Stabilization() time.Duration { return time.Duration(c.StabilizationMs) * time.Millisecond }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
