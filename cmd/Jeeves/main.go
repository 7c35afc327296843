package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/Jeeves/internal/api"
	"github.com/BTreeMap/Jeeves/internal/genai"
	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/store"
	"github.com/BTreeMap/Jeeves/internal/util"
	"github.com/BTreeMap/Jeeves/internal/whatsapp"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultWhatsAppDBFileName is the whatsmeow device store created in the state directory.
const DefaultWhatsAppDBFileName = "whatsmeow.db"

// Configuration errors reported before anything starts.
var (
	ErrNoWebhookURL   = errors.New("SCHEDULE_WEBHOOK_URL is required")
	ErrNoOpenAIKey    = errors.New("OPENAI_API_KEY is required")
	ErrNoDiscordToken = errors.New("DISCORD_BOT_TOKEN is required for the discord platform")
	ErrNoSlackTokens  = errors.New("SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required for the slack platform")
)

func main() {
	initializeLogger(os.Getenv("JEEVES_LOG_LEVEL"))

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load environment configuration", "error", err)
		os.Exit(1)
	}
	if err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], &config); err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(1)
	}
	if err := validateConfig(config); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping Jeeves", "platform", config.Platform, "state_dir", config.StateDir,
		"dsn_set", config.DatabaseURL != "", "api_addr", config.APIAddr)
	if err := api.Run(buildWhatsAppOptions(config), buildGenAIOptions(config), buildAPIOptions(config)...); err != nil {
		slog.Error("Jeeves failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Jeeves exited successfully")
}

// Config holds environment configuration.
type Config struct {
	Platform        string        `env:"CHAT_PLATFORM" envDefault:"discord"`
	DiscordToken    string        `env:"DISCORD_BOT_TOKEN"`
	DiscordClientID string        `env:"DISCORD_CLIENT_ID"`
	SlackBotToken   string        `env:"SLACK_BOT_TOKEN"`
	SlackAppToken   string        `env:"SLACK_APP_TOKEN"`
	WhatsAppDBDSN   string        `env:"WHATSAPP_DB_DSN"`
	WebhookURL      string        `env:"SCHEDULE_WEBHOOK_URL"`
	WebhookTimeout  time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	OpenAIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIModel     string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Timezone        string        `env:"JEEVES_TIMEZONE" envDefault:"America/Chicago"`
	StateDir        string        `env:"JEEVES_STATE_DIR" envDefault:"/var/lib/jeeves"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	APIAddr         string        `env:"API_ADDR"`
	PruneSchedule   string        `env:"DEDUP_PRUNE_SCHEDULE" envDefault:"0 * * * *"`
	DedupRetention  time.Duration `env:"DEDUP_RETENTION" envDefault:"24h"`
	// IntentHints is read with util.ParseBoolEnv, which also accepts yes/no and on/off.
	IntentHints     bool          `env:"-"`

	// WhatsApp login, flags only.
	QROutput    string `env:"-"`
	NumericCode bool   `env:"-"`
}

// initializeLogger sets up structured logging on stdout. Unknown levels fall back to debug.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelDebug
	}
	return l
}

// loadEnvironmentConfig loads configuration from the environment and an optional .env file.
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	config.IntentHints = util.ParseBoolEnv("JEEVES_INTENT_HINTS", false)

	slog.Debug("environment variables loaded",
		"CHAT_PLATFORM", config.Platform,
		"DISCORD_BOT_TOKEN_SET", config.DiscordToken != "",
		"SLACK_BOT_TOKEN_SET", config.SlackBotToken != "",
		"SCHEDULE_WEBHOOK_URL_SET", config.WebhookURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"JEEVES_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"JEEVES_INTENT_HINTS", config.IntentHints)
	return config, nil
}

// parseCommandLineFlags overrides config with any flags given in args.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config *Config) error {
	fs.StringVar(&config.Platform, "platform", config.Platform, "chat platform: discord, whatsapp or slack (overrides $CHAT_PLATFORM)")
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for Jeeves data (overrides $JEEVES_STATE_DIR)")
	fs.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, "delivery log and dedup database; empty keeps them in memory (overrides $DATABASE_URL)")
	fs.StringVar(&config.WhatsAppDBDSN, "whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.WebhookURL, "webhook-url", config.WebhookURL, "automation webhook URL (overrides $SCHEDULE_WEBHOOK_URL)")
	fs.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&config.OpenAIModel, "openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	fs.StringVar(&config.Timezone, "timezone", config.Timezone, "timezone label for schedule requests (overrides $JEEVES_TIMEZONE)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "admin API address (overrides $API_ADDR)")
	fs.BoolVar(&config.IntentHints, "intent-hints", config.IntentHints, "suggest commands in AI replies (overrides $JEEVES_INTENT_HINTS)")
	fs.StringVar(&config.QROutput, "qr-output", "", "path to write the WhatsApp login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", false, "use a numeric WhatsApp login code instead of a QR code")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite in state directory", "dsn", config.WhatsAppDBDSN)
	}
	slog.Debug("flags parsed", "platform", config.Platform, "stateDir", config.StateDir, "apiAddr", config.APIAddr)
	return nil
}

// validateConfig reports the first missing or inconsistent setting.
func validateConfig(config Config) error {
	platform := models.Platform(strings.ToLower(config.Platform))
	if !models.IsValidPlatform(platform) {
		return fmt.Errorf("%w: %q", models.ErrInvalidPlatform, config.Platform)
	}
	if config.WebhookURL == "" {
		return ErrNoWebhookURL
	}
	if config.OpenAIKey == "" {
		return ErrNoOpenAIKey
	}
	switch platform {
	case models.PlatformDiscord:
		if config.DiscordToken == "" {
			return ErrNoDiscordToken
		}
	case models.PlatformSlack:
		if config.SlackBotToken == "" || config.SlackAppToken == "" {
			return ErrNoSlackTokens
		}
	}
	if config.DatabaseURL != "" {
		slog.Debug("Delivery log database configured", "dsn_type", store.DetectDSNType(config.DatabaseURL))
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options.
func buildWhatsAppOptions(config Config) []whatsapp.Option {
	var opts []whatsapp.Option
	if config.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(config.QROutput))
	}
	if config.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	if config.WhatsAppDBDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(config.WhatsAppDBDSN))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options.
func buildGenAIOptions(config Config) []genai.Option {
	opts := []genai.Option{genai.WithAPIKey(config.OpenAIKey)}
	if config.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(config.OpenAIModel))
	}
	return opts
}

// buildAPIOptions constructs the process options.
func buildAPIOptions(config Config) []api.Option {
	opts := []api.Option{
		api.WithPlatform(models.Platform(strings.ToLower(config.Platform))),
		api.WithDiscord(config.DiscordToken, config.DiscordClientID),
		api.WithSlack(config.SlackBotToken, config.SlackAppToken),
		api.WithWebhook(config.WebhookURL, config.WebhookTimeout),
		api.WithTimezone(config.Timezone),
		api.WithStateDir(config.StateDir),
		api.WithIntentHints(config.IntentHints),
		api.WithDedupPrune(config.PruneSchedule, config.DedupRetention),
	}
	if config.DatabaseURL != "" {
		opts = append(opts, api.WithDBDSN(config.DatabaseURL))
	}
	if config.APIAddr != "" {
		opts = append(opts, api.WithAddr(config.APIAddr))
	}
	return opts
}
