package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	grpcapi "ai-live-transcription-service/internal/api/grpc"
	"ai-live-transcription-service/internal/app"
	"ai-live-transcription-service/internal/config"
	httpapi "ai-live-transcription-service/internal/http"
	"ai-live-transcription-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Service exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		return err
	}

	httpLis, err := net.Listen("tcp", ":"+cfg.Service.HTTPPort)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return err
	}
	metricsLis, err := net.Listen("tcp", cfg.Service.MetricsAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpcapi.New(nil)
	obsServer := observability.NewServer(cfg.Service.MetricsAddr, application.Ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpLis.Addr().String()).Msg("Live transcription service started")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		return obsServer.Serve(metricsLis)
	})
	grpcServer.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()

		grpcServer.SetServing(false)
		// sessions drain first so connected clients receive their last finals
		if err := application.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Not every session drained before timeout")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown")
		}
		grpcServer.Shutdown(shutdownCtx)
		return obsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
