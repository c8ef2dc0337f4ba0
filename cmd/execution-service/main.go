// The execution-service binary runs the code execution and grading engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gradex/internal/common/cache"
	"gradex/internal/execution/attempt"
	"gradex/internal/execution/controller"
	"gradex/internal/execution/quota"
	"gradex/internal/execution/repository"
	"gradex/internal/execution/runner"
	"gradex/internal/execution/sandbox/engine"
	"gradex/internal/execution/sandbox/pool"
	"gradex/internal/execution/service"
	"gradex/pkg/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/execution_service.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "execution-service:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer redisCache.Close()

	eng, err := engine.NewEngine(cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}

	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return fmt.Errorf("create work root: %w", err)
	}

	slotPool := pool.New(cfg.PoolSize)
	caseRunner := runner.New(eng, slotPool, cfg.WorkRoot)
	guard := quota.NewGuard(quota.NewRedisStore(redisCache, 2*cfg.Quota.Window), quota.RealClock(), cfg.Quota)
	runStore := repository.NewRedisRunStore(redisCache, cfg.RunRecordTTL)

	execSvc := service.New(caseRunner, guard, runStore)
	coord := attempt.NewCoordinator(attempt.NewRedisStore(redisCache), execSvc)

	router := controller.NewRouter(
		controller.NewExecutionController(execSvc),
		controller.NewAttemptController(coord),
		redisCache,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "execution service listening",
			zap.String("addr", addr),
			zap.Int("poolSize", cfg.PoolSize))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info(ctx, "shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}
