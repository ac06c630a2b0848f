package main

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

	"golang.org/x/sync/errgroup"

	h "github.com/veranemoloko/impex-tasks/internal/api/http"
	cfgpkg "github.com/veranemoloko/impex-tasks/internal/config"
	"github.com/veranemoloko/impex-tasks/internal/dispatch"
	"github.com/veranemoloko/impex-tasks/internal/domain"
	"github.com/veranemoloko/impex-tasks/internal/remote"
	repo "github.com/veranemoloko/impex-tasks/internal/repository"
	"github.com/veranemoloko/impex-tasks/internal/repository/postgres"
	svc "github.com/veranemoloko/impex-tasks/internal/service"
	"github.com/veranemoloko/impex-tasks/internal/worker"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully",
		"store", cfg.StoreDriver,
		"dispatch", cfg.DispatchDriver,
	)

	if err := run(cfg, logger); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *cfgpkg.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	dispatcher, closeDispatcher, err := openDispatcher(ctx, g, cfg, logger)
	if err != nil {
		return err
	}

	statusClient := remote.NewStatusClient(remote.Options{
		Timeout: cfg.RemoteTimeout,
		Retries: cfg.RemoteRetries,
	}, logger)

	taskService := svc.NewTaskService(store, dispatcher, statusClient, logger)

	router := h.NewRouter(taskService, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout + cfg.RemoteTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	g.Go(func() error {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		return shutdown(server, cfg.ShutdownTimeout, closeDispatcher)
	})

	return g.Wait()
}

// shutdown drains in-flight requests before closing the dispatcher, so tasks created during
// the drain still get their wake-up.
func shutdown(server *http.Server, timeout time.Duration, closeDispatcher func() error) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverErr := server.Shutdown(shutdownCtx)
	if err := closeDispatcher(); err != nil {
		slog.Error("failed to close dispatcher", "error", err)
	}
	if serverErr != nil {
		return fmt.Errorf("server shutdown failed: %w", serverErr)
	}
	slog.Info("server stopped gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *cfgpkg.Config) (repo.TaskStore, func(), error) {
	switch cfg.StoreDriver {
	case cfgpkg.StorePostgres:
		store := postgres.New(cfg.DatabaseURL)
		if err := store.Open(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := repo.NewTaskStorage(cfg.StateFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize file repository: %w", err)
		}
		return store, func() {}, nil
	}
}

// openDispatcher builds the configured dispatcher and, where commands are consumed in this
// process, starts a listener on g. The returned func releases the dispatcher.
func openDispatcher(ctx context.Context, g *errgroup.Group, cfg *cfgpkg.Config, logger *slog.Logger) (dispatch.WorkerDispatcher, func() error, error) {
	listener := worker.NewListener(logWakeup(logger), 1, logger)

	switch cfg.DispatchDriver {
	case cfgpkg.DispatchRedis:
		d, err := dispatch.NewRedisDispatcher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStream, cfg.RedisMaxLen)
		if err != nil {
			return nil, nil, err
		}
		if cfg.WorkerGroup != "" {
			consumer, _ := os.Hostname()
			g.Go(func() error {
				return listener.ListenStream(ctx, d, cfg.WorkerGroup, consumer)
			})
		}
		return d, d.Close, nil
	default:
		d := dispatch.NewMemoryDispatcher(cfg.QueueSize)
		g.Go(func() error {
			return listener.ListenChannel(ctx, d.C())
		})
		return d, func() error { return nil }, nil
	}
}

func logWakeup(logger *slog.Logger) worker.Handler {
	return func(ctx context.Context, cmd domain.Command) error {
		logger.Info("worker wake-up received",
			"command", cmd.Name,
			"command_id", cmd.ID,
			"issued_at", cmd.IssuedAt,
		)
		return nil
	}
}
