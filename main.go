package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/soulra/clinical-router/internal/agent/graph"
	"github.com/soulra/clinical-router/internal/agent/graph/conversations"
	"github.com/soulra/clinical-router/internal/agent/graph/tools"
	"github.com/soulra/clinical-router/internal/agent/llm"
	"github.com/soulra/clinical-router/internal/agent/model"
	"github.com/soulra/clinical-router/internal/agent/repo"
	"github.com/soulra/clinical-router/internal/api"
	"github.com/soulra/clinical-router/internal/core"
	"github.com/soulra/clinical-router/internal/metrics"
	logx "github.com/soulra/clinical-router/pkg/logger"
	pkgpostgres "github.com/soulra/clinical-router/pkg/postgres"
	pkgredis "github.com/soulra/clinical-router/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment  string `envconfig:"ENVIRONMENT" default:"development"`
	StoreBackend string `envconfig:"STORE_BACKEND" default:"redis"`

	// Infrastructure
	HTTP     api.Config
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config

	// LLM provider
	LLM model.LLMConfig

	// Agent configs
	Conversation model.ConversationConfig
	Classifier   model.ClassifierConfig
	Summary      model.SummaryConfig
	Prescription model.PrescriptionConfig
	General      model.GeneralConfig
	Search       model.GuidelineSearchConfig
}

func main() {
	// Load .env file
	envErr := godotenv.Load(".env")

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process environment config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})
	if envErr != nil {
		logx.Debug().Err(envErr).Msg("No .env file loaded; using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("Service stopped with error")
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}

	searcher, err := tools.NewSearcher(cfg.Search)
	if err != nil {
		return fmt.Errorf("init guideline search: %w", err)
	}

	m := metrics.NewMetrics()

	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		LLM:          client,
		Store:        store,
		Guidelines:   tools.NewGuidelineSearchTool(searcher),
		Conversation: cfg.Conversation,
		Classifier:   cfg.Classifier,
		Summary:      cfg.Summary,
		Prescription: cfg.Prescription,
		General:      cfg.General,
		Search:       cfg.Search,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	srv, err := api.New(cfg.HTTP, runner, conversations.NewMessagesManager(store, cfg.Conversation), m)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logx.Info().
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreBackend).
		Str("provider", client.Provider()).
		Str("model", client.Model()).
		Msg("Clinical router started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newStore connects the configured ContextStore backend.
func newStore(ctx context.Context, cfg AppConfig) (model.ContextStore, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "redis", "":
		ttl, err := cfg.Conversation.TTLDuration()
		if err != nil {
			return nil, nil, err
		}
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis client: %w", err)
		}
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisStore(rdb, ttl), func() { _ = rdb.Close() }, nil

	case "postgres":
		db, err := cfg.Postgres.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := repo.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logx.Info().Msg("Connected to Postgres successfully")
		return repo.NewPostgresStore(db), func() { _ = db.Close() }, nil

	case "memory":
		logx.Warn().Msg("Using in-memory store; conversations are lost on restart")
		return repo.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
