// Package api wires Jeeves together and serves its small admin HTTP surface.
//
// Run owns the process lifecycle: it takes the state directory lock, opens the store,
// builds the webhook and AI clients, starts the chat gateway and router, schedules
// housekeeping, and optionally serves the admin endpoints until the context ends.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/Jeeves/internal/flow"
	"github.com/BTreeMap/Jeeves/internal/genai"
	"github.com/BTreeMap/Jeeves/internal/lockfile"
	"github.com/BTreeMap/Jeeves/internal/messaging"
	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/scheduler"
	"github.com/BTreeMap/Jeeves/internal/store"
	"github.com/BTreeMap/Jeeves/internal/webhook"
	"github.com/BTreeMap/Jeeves/internal/whatsapp"
)

const (
	// DefaultStateDir holds the lock file and, by default, the WhatsApp device store.
	DefaultStateDir = "/var/lib/jeeves"
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second
)

// ErrUnknownPlatform is returned for a platform Jeeves has no gateway for.
var ErrUnknownPlatform = errors.New("unknown chat platform")

// Opts holds configuration options for the bot process.
type Opts struct {
	Platform        models.Platform
	DiscordToken    string
	DiscordClientID string
	SlackBotToken   string
	SlackAppToken   string
	WebhookURL      string
	WebhookTimeout  time.Duration
	Timezone        string
	StateDir        string
	DBDSN           string // delivery log and dedup; empty keeps them in memory
	Addr            string // admin API address; empty disables the server
	IntentHints     bool
	PruneSchedule   string
	DedupRetention  time.Duration
}

// Option defines a configuration option for Run.
type Option func(*Opts)

// WithPlatform selects the chat gateway.
func WithPlatform(p models.Platform) Option {
	return func(o *Opts) { o.Platform = p }
}

// WithDiscord sets the Discord bot token and application client ID.
func WithDiscord(token, clientID string) Option {
	return func(o *Opts) {
		o.DiscordToken = token
		o.DiscordClientID = clientID
	}
}

// WithSlack sets the Slack bot and app-level tokens.
func WithSlack(botToken, appToken string) Option {
	return func(o *Opts) {
		o.SlackBotToken = botToken
		o.SlackAppToken = appToken
	}
}

// WithWebhook sets the automation webhook endpoint and per-request timeout.
func WithWebhook(url string, timeout time.Duration) Option {
	return func(o *Opts) {
		o.WebhookURL = url
		o.WebhookTimeout = timeout
	}
}

// WithTimezone sets the timezone label attached to schedule requests.
func WithTimezone(tz string) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// WithStateDir sets the directory holding the lock file.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithDBDSN sets the delivery log and dedup database.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithAddr enables the admin API on addr.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithIntentHints turns on command suggestions in AI replies.
func WithIntentHints(enabled bool) Option {
	return func(o *Opts) { o.IntentHints = enabled }
}

// WithDedupPrune sets the prune cron expression and how long processed IDs are kept.
func WithDedupPrune(expr string, retention time.Duration) Option {
	return func(o *Opts) {
		o.PruneSchedule = expr
		o.DedupRetention = retention
	}
}

// Server serves the admin endpoints.
type Server struct {
	sessions *flow.SessionStore
	store    store.Store
	platform models.Platform
	started  time.Time
}

// NewServer creates a Server reporting on sessions and st.
func NewServer(sessions *flow.SessionStore, st store.Store, platform models.Platform) *Server {
	return &Server{sessions: sessions, store: st, platform: platform, started: time.Now()}
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/deliveries", s.deliveriesHandler)
	return mux
}

// Run starts Jeeves and blocks until SIGINT/SIGTERM or a fatal error.
func Run(waOpts []whatsapp.Option, genaiOpts []genai.Option, opts ...Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, waOpts, genaiOpts, opts...)
}

// RunContext is Run with a caller-controlled lifetime.
func RunContext(ctx context.Context, waOpts []whatsapp.Option, genaiOpts []genai.Option, opts ...Option) error {
	cfg := Opts{Platform: models.PlatformDiscord, StateDir: DefaultStateDir}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !models.IsValidPlatform(cfg.Platform) {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, cfg.Platform)
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir, string(cfg.Platform))
	if err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	defer lock.Release()

	st, err := store.Open(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hook, err := webhook.NewClient(
		webhook.WithURL(cfg.WebhookURL),
		webhook.WithTimeout(cfg.WebhookTimeout),
		webhook.WithRecorder(st),
	)
	if err != nil {
		return fmt.Errorf("create webhook client: %w", err)
	}

	if cfg.Timezone != "" {
		genaiOpts = append(genaiOpts, genai.WithTimezone(cfg.Timezone))
	}
	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("create GenAI client: %w", err)
	}

	svc, err := newGatewayService(cfg, waOpts)
	if err != nil {
		return fmt.Errorf("create %s gateway: %w", cfg.Platform, err)
	}

	sessions := flow.NewSessionStore()
	deps := flow.Dependencies{
		Sessions:  sessions,
		Replier:   svc,
		Deliverer: hook,
		Timezone:  cfg.Timezone,
	}
	router := messaging.NewRouter(svc, flow.NewScheduler(deps), flow.NewInviter(deps), ai,
		messaging.WithDedup(st),
		messaging.WithHistory(genai.NewHistory(genai.DefaultHistorySize)),
		messaging.WithIntentHints(cfg.IntentHints),
	)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start %s gateway: %w", cfg.Platform, err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			slog.Warn("Run gateway stop failed", "error", err)
		}
	}()
	router.Start(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.SchedulePrune(cfg.PruneSchedule, cfg.DedupRetention, st); err != nil {
		return fmt.Errorf("schedule dedup pruning: %w", err)
	}

	srvErr := make(chan error, 1)
	var httpSrv *http.Server
	if cfg.Addr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewServer(sessions, st, cfg.Platform).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Admin API listening", "addr", cfg.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	slog.Info("Jeeves running", "platform", cfg.Platform, "api", cfg.Addr != "", "dsn_set", cfg.DBDSN != "")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Jeeves shutting down", "reason", ctx.Err())
	case err := <-srvErr:
		runErr = fmt.Errorf("admin API: %w", err)
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Admin API shutdown failed", "error", err)
		}
	}
	return runErr
}

// newGatewayService builds the chat gateway for cfg.Platform.
func newGatewayService(cfg Opts, waOpts []whatsapp.Option) (messaging.Service, error) {
	switch cfg.Platform {
	case models.PlatformDiscord:
		return messaging.NewDiscordService(cfg.DiscordToken, cfg.DiscordClientID)
	case models.PlatformSlack:
		return messaging.NewSlackService(cfg.SlackBotToken, cfg.SlackAppToken)
	case models.PlatformWhatsApp:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, cfg.Platform)
}
