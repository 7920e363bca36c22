package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/eznannya/internal/agent"
	"github.com/p-n-ai/eznannya/internal/ai"
	"github.com/p-n-ai/eznannya/internal/api"
	"github.com/p-n-ai/eznannya/internal/curriculum"
	"github.com/p-n-ai/eznannya/internal/homework"
	"github.com/p-n-ai/eznannya/internal/identity"
	"github.com/p-n-ai/eznannya/internal/platform/auth"
	"github.com/p-n-ai/eznannya/internal/platform/cache"
	"github.com/p-n-ai/eznannya/internal/platform/config"
	"github.com/p-n-ai/eznannya/internal/platform/database"
	"github.com/p-n-ai/eznannya/internal/presence"
	"github.com/p-n-ai/eznannya/internal/quiz"
	"github.com/p-n-ai/eznannya/internal/report"
	"github.com/p-n-ai/eznannya/internal/social"
	"github.com/p-n-ai/eznannya/internal/store"
	"github.com/p-n-ai/eznannya/internal/tutor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend, "ai", cfg.HasAIProvider())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	// Presence streams are long-lived and would hold Shutdown open.
	a.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is the wired service graph.
type app struct {
	handler http.Handler
	hub     *presence.Hub
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured backends and wires every service.
// The memory backend needs no external services.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	var ready []api.Check

	var (
		db *database.DB
		c  *cache.Cache
	)
	if cfg.Store.Backend == config.StorePostgres {
		var err error
		db, err = database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		ready = append(ready, api.Check{Name: "database", Fn: db.HealthCheck})
	}
	if cfg.Store.Backend != config.StoreMemory {
		var err error
		c, err = cache.New(ctx, cfg.Cache.URL, cfg.Store.Prefix)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("failed to close cache", "error", err)
			}
		})
		ready = append(ready, api.Check{Name: "cache", Fn: c.HealthCheck})
	}

	var (
		records  store.Store
		sessions identity.SessionStore
		budget   ai.BudgetChecker
		convs    agent.ConversationStore
		events   agent.EventLogger = agent.NopEventLogger{}
	)
	switch {
	case db != nil:
		ps, err := store.NewPostgresStore(db.Pool, cfg.Store.Prefix)
		if err != nil {
			a.close()
			return nil, err
		}
		records = ps
		pc, err := agent.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		convs = pc
		events = agent.NewPostgresEventLogger(db.Pool)
	case c != nil:
		records = store.NewRedisStore(c.Client, cfg.Store.Prefix)
	default:
		records = store.NewMemoryStore()
	}
	if c != nil {
		sessions = identity.NewRedisSessionStore(c.Client, cfg.Store.Prefix, cfg.Auth.TokenTTL)
		if cfg.AI.DailyBudget > 0 {
			budget = ai.NewRedisBudget(c.Client, cfg.Store.Prefix, cfg.AI.DailyBudget)
		}
	} else {
		sessions = identity.NewMemorySessionStore()
		if cfg.AI.DailyBudget > 0 {
			budget = ai.NewInMemoryBudget(cfg.AI.DailyBudget)
		}
	}

	var routerOpts []ai.RouterOption
	if budget != nil {
		routerOpts = append(routerOpts, ai.WithBudget(budget))
	}
	router := ai.NewRouter(routerOpts...)
	if key := cfg.AI.Google.APIKey; key != "" {
		router.Register("google", ai.NewGoogleProvider(key, ai.WithGoogleModel(cfg.AI.Google.Model)))
	}
	if key := cfg.AI.OpenAI.APIKey; key != "" {
		opts := []ai.OpenAIOption{ai.WithModel(cfg.AI.OpenAI.Model)}
		if cfg.AI.OpenAI.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.AI.OpenAI.BaseURL))
		}
		router.Register("openai", ai.NewOpenAIProvider(key, opts...))
	}
	if !router.HasProvider() {
		slog.Warn("no AI provider configured, serving fallback content")
	}

	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load curriculum: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		a.close()
		return nil, err
	}

	ident := identity.NewManager(records, sessions, identity.WithLocation(loc))
	soc := social.NewManager(records, ident, social.WithOnlineWindow(cfg.Presence.OnlineWindow))
	resolver := curriculum.NewResolver(loader, records)
	tut := tutor.New(router)
	ledger := homework.NewLedger(records, homework.WithLocation(loc))
	a.hub = presence.NewHub(ident, soc, presence.WithIntervals(cfg.Presence.Heartbeat, cfg.Presence.FriendsRefresh))

	srv := api.New(api.Deps{
		Identity:   ident,
		Social:     soc,
		Curriculum: resolver,
		Tutor:      tut,
		Agent:      agent.NewEngine(agent.EngineConfig{AI: router, Store: convs, Events: events}),
		Quiz: quiz.NewEngine(quiz.Config{
			Topics:        resolver,
			Generator:     tut,
			Progress:      ident,
			Ledger:        ledger,
			Events:        events,
			QuestionCount: cfg.Quiz.QuestionCount,
		}),
		Ledger:   ledger,
		Grader:   homework.NewGrader(ledger, tut, ident, events),
		Reports:  report.NewReporter(ident, ledger, resolver),
		Presence: a.hub,
		Tokens:   auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Ready:    ready,
	})
	a.handler = srv.Handler()
	return a, nil
}
