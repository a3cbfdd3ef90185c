package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/storybird/internal/config"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.APIPort = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Printf("failed to initialize logger: %v", err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer srv.close(logger)

	caps := cfg.Capabilities
	logger.Info("storybird starting",
		zap.Int("port", cfg.APIPort),
		zap.String("prefix", cfg.CloudinaryPrefix),
		zap.String("store", string(caps.StoreBackend)),
		zap.Bool("push", caps.Push.Enabled),
		zap.Bool("queue", caps.Queue),
		zap.Bool("auth", caps.Auth),
		zap.Bool("live", caps.LiveStream.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if srv.worker != nil {
		g.Go(func() error {
			err := srv.worker.Start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("dispatch worker: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		return srv.app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("storybird stopped with error", zap.Error(err))
		return err
	}

	logger.Info("storybird stopped")
	return nil
}
