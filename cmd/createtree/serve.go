package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"createtree/internal/http/handlers"
	"createtree/internal/http/httpapi"
	"createtree/internal/infra"
	"createtree/internal/infra/geoip"
	"createtree/internal/jobs"
	"createtree/internal/providers/image"
	"createtree/internal/providers/music"
	"createtree/internal/storage"
)

const shutdownGrace = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job runner and sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cc *commandContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	logger := cc.log()

	signalCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := jobs.OpenStore(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	assets, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return fmt.Errorf("open asset store: %w", err)
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	styles := image.NewCatalog(cfg.Styles)
	orchestrator := image.NewOpenAIOrchestrator(cfg, styles, assets, &logger)
	if !orchestrator.Available() {
		logger.Warn().Msg("OPENAI_API_KEY missing or malformed; image transforms return placeholders")
	}

	runner := jobs.NewRunner(store, logger, cfg.Jobs.MaxConcurrent)
	sweeper := jobs.NewSweeper(store, cfg.Jobs, logger)
	sweeper.Active = runner.Running

	app := &handlers.App{
		Config:        cfg,
		Logger:        logger,
		Jobs:          store,
		Runner:        runner,
		Images:        orchestrator,
		Music:         music.NewGenerator(cfg.Music, assets, &logger),
		Assets:        assets,
		CountryLookup: geoip.LookupFunc(resolver),
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("job_store", cfg.Jobs.Store).
			Str("music", app.Music.Name()).
			Msg("API listening")
		return server.Start()
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		if err := runner.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("running jobs did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
