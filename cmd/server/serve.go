package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/feichai0017/pdf-rag/api/handlers"
	"github.com/feichai0017/pdf-rag/api/routes"
	"github.com/feichai0017/pdf-rag/pkg/logger"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := newScheduling(cfg, log)
	defer sched.close()

	manager, err := newServingManager(ctx, cfg, log, sched.scheduler)
	if err != nil {
		log.Error("Failed to create vector store manager", logger.Error(err))
		return err
	}
	defer manager.Close()

	if err := manager.Open(ctx); err != nil {
		log.Error("Failed to open vector store", logger.Error(err))
		return err
	}
	if err := sched.worker.Start(ctx, manager.ProcessDocument); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		return err
	}
	go manager.RunCleanupLoop(ctx, cfg.Storage.CleanupInterval, cfg.Storage.Retention)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, handlers.NewHandlers(manager, log), cfg.Server.AllowOrigins, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error("Server error", logger.Error(err))
		return err
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Processing.Timeout)
	defer drainCancel()
	if err := sched.worker.Shutdown(drainCtx); err != nil {
		log.Error("Worker did not drain in time", logger.Error(err))
		return fmt.Errorf("failed to drain workers: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
