package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code-exam-service/internal/app"
	"code-exam-service/internal/config"
	"code-exam-service/internal/infra/memory"
	pgrepo "code-exam-service/internal/infra/postgres"
	rediscache "code-exam-service/internal/infra/redis"
	"code-exam-service/internal/llm"
	"code-exam-service/internal/sandbox"
	transport "code-exam-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the API server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, cleanup, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		probeCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if _, err := deps.executor.Runtimes(probeCtx); err != nil {
			http.Error(w, "sandbox unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	transport.NewHandler(deps.sessions, deps.generation, logger).Register(mux)
	mux.HandleFunc("GET /ws/jobs", transport.NewWSHandler(deps.generation, logger).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting exam service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type services struct {
	sessions   *app.SessionService
	generation *app.GenerationService
	executor   *sandbox.Client
}

// buildServices wires repositories and collaborators from config. Postgres and
// Redis are optional; without them the service runs fully in memory, which is
// how the test suite and local demos use it.
func buildServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, func(), error) {
	executor := sandbox.NewClient(cfg.Sandbox.URL, sandbox.Options{
		Concurrency:    cfg.Sandbox.Concurrency,
		RunTimeout:     config.TTLDuration(cfg.Sandbox.RunTimeout, 0),
		RequestTimeout: config.TTLDuration(cfg.Sandbox.RequestTimeout, 0),
	}, logger)

	chat := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: config.TTLDuration(cfg.LLM.Timeout, 0),
	})
	generator := llm.NewGenerator(chat, logger)

	cleanup := func() {}

	var bank app.BankRepository = memory.NewBank()
	var jobs app.JobRepository = memory.NewJobStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = pool.Close
		bank = pgrepo.NewBankRepository(pool)
		jobs = pgrepo.NewJobRepository(pool)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bank = rediscache.NewBankCache(bank, client, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	}

	resolver := app.NewResolver(bank, generator, nil, logger)
	sessions := app.NewSessionService(memory.NewSessionStore(), memory.NewAttemptStore(), resolver, executor, generator, logger)
	generation := app.NewGenerationService(jobs, bank, generator, nil, logger)

	return &services{sessions: sessions, generation: generation, executor: executor}, cleanup, nil
}
