package main

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/Jeeves/internal/api"
	"github.com/BTreeMap/Jeeves/internal/models"
)

func clearJeevesEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHAT_PLATFORM", "DISCORD_BOT_TOKEN", "DISCORD_CLIENT_ID", "SLACK_BOT_TOKEN", "SLACK_APP_TOKEN",
		"WHATSAPP_DB_DSN", "SCHEDULE_WEBHOOK_URL", "WEBHOOK_TIMEOUT", "OPENAI_API_KEY", "OPENAI_MODEL",
		"JEEVES_TIMEZONE", "JEEVES_STATE_DIR", "DATABASE_URL", "API_ADDR", "JEEVES_INTENT_HINTS",
		"DEDUP_PRUNE_SCHEDULE", "DEDUP_RETENTION",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("jeeves", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearJeevesEnv(t)

	config, err := loadEnvironmentConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Platform != "discord" {
		t.Errorf("expected discord platform, got %q", config.Platform)
	}
	if config.StateDir != api.DefaultStateDir {
		t.Errorf("expected state dir %q, got %q", api.DefaultStateDir, config.StateDir)
	}
	if config.WebhookTimeout != 10*time.Second || config.DedupRetention != 24*time.Hour {
		t.Errorf("unexpected durations: timeout=%v retention=%v", config.WebhookTimeout, config.DedupRetention)
	}
	if config.Timezone != models.DefaultTimezone {
		t.Errorf("expected timezone %q, got %q", models.DefaultTimezone, config.Timezone)
	}
	if config.OpenAIModel != "gpt-4o-mini" || config.PruneSchedule != "0 * * * *" {
		t.Errorf("unexpected defaults: model=%q prune=%q", config.OpenAIModel, config.PruneSchedule)
	}
	if config.IntentHints {
		t.Error("intent hints should default to off")
	}
}

func TestLoadEnvironmentConfigFromEnv(t *testing.T) {
	clearJeevesEnv(t)
	t.Setenv("CHAT_PLATFORM", "slack")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("DATABASE_URL", "postgres://jeeves@localhost/jeeves")
	t.Setenv("JEEVES_INTENT_HINTS", "yes")

	config, err := loadEnvironmentConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Platform != "slack" || config.WebhookTimeout != 3*time.Second {
		t.Errorf("unexpected config %+v", config)
	}
	if config.DatabaseURL != "postgres://jeeves@localhost/jeeves" {
		t.Errorf("unexpected DSN %q", config.DatabaseURL)
	}
	if !config.IntentHints {
		t.Error("expected intent hints enabled")
	}
}

func TestLoadEnvironmentConfigIntentHintsLenient(t *testing.T) {
	cases := map[string]bool{"on": true, "1": true, "off": false, "no": false, "maybe": false}
	for value, want := range cases {
		clearJeevesEnv(t)
		t.Setenv("JEEVES_INTENT_HINTS", value)
		config, err := loadEnvironmentConfig()
		if err != nil {
			t.Fatalf("JEEVES_INTENT_HINTS=%q: unexpected error: %v", value, err)
		}
		if config.IntentHints != want {
			t.Errorf("JEEVES_INTENT_HINTS=%q: expected %v, got %v", value, want, config.IntentHints)
		}
	}
}

func TestLoadEnvironmentConfigBadDuration(t *testing.T) {
	clearJeevesEnv(t)
	t.Setenv("WEBHOOK_TIMEOUT", "soon")
	if _, err := loadEnvironmentConfig(); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestParseCommandLineFlagsOverrides(t *testing.T) {
	config := Config{Platform: "discord", StateDir: "/var/lib/jeeves", APIAddr: ""}
	args := []string{"-platform", "whatsapp", "-state-dir", "/tmp/jeeves", "-api-addr", ":8080", "-numeric-code"}
	if err := parseCommandLineFlags(newFlagSet(), args, &config); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Platform != "whatsapp" || config.StateDir != "/tmp/jeeves" || config.APIAddr != ":8080" || !config.NumericCode {
		t.Errorf("flags not applied: %+v", config)
	}
	want := "file:" + filepath.Join("/tmp/jeeves", DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	if config.WhatsAppDBDSN != want {
		t.Errorf("expected WhatsApp DSN %q, got %q", want, config.WhatsAppDBDSN)
	}
}

func TestParseCommandLineFlagsKeepsExplicitWhatsAppDSN(t *testing.T) {
	config := Config{StateDir: "/tmp/a", WhatsAppDBDSN: "postgres://wa@localhost/wa"}
	if err := parseCommandLineFlags(newFlagSet(), nil, &config); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.WhatsAppDBDSN != "postgres://wa@localhost/wa" {
		t.Errorf("explicit DSN overwritten: %q", config.WhatsAppDBDSN)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := Config{Platform: "discord", DiscordToken: "tok", WebhookURL: "https://hooks.example.com/x", OpenAIKey: "sk"}
	if err := validateConfig(valid); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad platform", func(c *Config) { c.Platform = "irc" }, models.ErrInvalidPlatform},
		{"no webhook", func(c *Config) { c.WebhookURL = "" }, ErrNoWebhookURL},
		{"no openai key", func(c *Config) { c.OpenAIKey = "" }, ErrNoOpenAIKey},
		{"no discord token", func(c *Config) { c.DiscordToken = "" }, ErrNoDiscordToken},
		{"slack without app token", func(c *Config) { c.Platform = "slack"; c.SlackBotToken = "xoxb" }, ErrNoSlackTokens},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			if err := validateConfig(c); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	wa := valid
	wa.Platform = "WhatsApp"
	wa.DiscordToken = ""
	if err := validateConfig(wa); err != nil {
		t.Errorf("whatsapp needs no token, got %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelDebug, "info": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError, "loud": slog.LevelDebug}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildOptions(t *testing.T) {
	config := Config{OpenAIKey: "sk", OpenAIModel: "gpt-4o", QROutput: "/tmp/qr.txt", WhatsAppDBDSN: "file:wa.db"}
	if n := len(buildGenAIOptions(config)); n != 2 {
		t.Errorf("expected 2 genai options, got %d", n)
	}
	if n := len(buildWhatsAppOptions(config)); n != 2 {
		t.Errorf("expected 2 whatsapp options, got %d", n)
	}
	base := len(buildAPIOptions(config))
	config.DatabaseURL = "jeeves.db"
	config.APIAddr = ":8080"
	if n := len(buildAPIOptions(config)); n != base+2 {
		t.Errorf("expected DSN and addr options, got %d (base %d)", n, base)
	}
}
