package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autoremedy/internal/api"
	"autoremedy/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, remediation workers, alert evaluation and metric ingest",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	ar := cfg.AutoRemedy

	logger.Infof("autoremedy starting")
	logger.Infof("Config loaded from: %s", configPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		logger.Errorf("Failed to build components: %v", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Errorf("Shutdown: %v", err)
		}
	}()

	gin.SetMode(ar.API.Mode)
	handlers := api.NewHandlers(a.orchestrator, a.evaluator, a.pool)
	srv := &http.Server{
		Addr:              ar.API.Listen,
		Handler:           api.NewRouter(handlers, a.metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(a.pool.Run(gctx))
	})
	if ar.Alerts.Enabled {
		logger.Infof("Alert evaluation every %s over %s", ar.Alerts.Interval, ar.Alerts.Window)
		g.Go(func() error {
			return a.evaluator.Run(gctx)
		})
	}
	if ar.MetricsInput.Enabled {
		p, err := a.metricPipeline()
		if err != nil {
			logger.Errorf("Failed to create metric pipeline: %v", err)
			return err
		}
		g.Go(func() error {
			return ignoreCanceled(p.Run(gctx))
		})
	}
	g.Go(func() error {
		logger.Infof("API listening on %s", ar.API.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Infof("autoremedy stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
