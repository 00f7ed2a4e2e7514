package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elizahub/elizahub/server/internal/api"
	"github.com/elizahub/elizahub/server/internal/broker"
	"github.com/elizahub/elizahub/server/internal/config"
	"github.com/elizahub/elizahub/server/internal/eliza"
	"github.com/elizahub/elizahub/server/internal/health"
	"github.com/elizahub/elizahub/server/internal/metrics"
	"github.com/elizahub/elizahub/server/internal/session"
	"github.com/elizahub/elizahub/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("elizahub-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.Level())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"sample_interval", cfg.Server.Metrics.SampleInterval,
		"request_topic", cfg.Server.Broker.RequestTopic,
		"reply_topic", cfg.Server.Broker.ReplyTopic,
	)

	script, err := loadScript(cfg.Server.Eliza.Script)
	if err != nil {
		slog.Error("failed to load eliza script", "path", cfg.Server.Eliza.Script, "err", err)
		os.Exit(1)
	}

	if err := run(*configPath, cfg, script, &level); err != nil {
		slog.Error("elizahub-server stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("elizahub-server stopped")
}

func run(configPath string, cfg *config.Config, script *eliza.Script, level *slog.LevelVar) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	observers := session.NewRegistry()
	agg := metrics.New(cfg.Server.Metrics.SampleInterval, observers)
	topics := broker.New(broker.DefaultBuffer)

	hub := ws.New(ws.Options{
		WriteTimeout:   cfg.Server.WebSocket.WriteTimeout,
		MaxMessageSize: cfg.Server.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.Server.WebSocket.AllowedOrigins,
		RequestTopic:   cfg.Server.Broker.RequestTopic,
		ReplyTopic:     cfg.Server.Broker.ReplyTopic,
	}, agg, observers, topics, script)

	// Combined HTTP server: WebSocket endpoints + REST API on HTTPPort.
	httpMux := http.NewServeMux()
	hub.Routes(httpMux)
	apiHandler := api.New(agg)
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", apiHandler)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcSrv *health.Server
	var grpcLis net.Listener
	if cfg.Server.GRPCPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", cfg.Server.GRPCPort, err)
		}
		grpcSrv, grpcLis = health.New(), lis
	}

	g, gctx := errgroup.WithContext(ctx)

	if grpcSrv != nil {
		g.Go(func() error {
			if err := grpcSrv.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		agg.Run(gctx)
		hub.CloseObservers()
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			level.Set(next.Server.Level())
		})
		if err != nil {
			slog.Warn("config watch disabled", "path", configPath, "err", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("elizahub-server shutting down")
		if grpcSrv != nil {
			grpcSrv.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadScript(path string) (*eliza.Script, error) {
	if path == "" {
		return eliza.Default()
	}
	return eliza.LoadScript(path)
}
