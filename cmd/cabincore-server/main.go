// Command cabincore-server serves the shared event document over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"cabincore/internal/adapters/httpapi"
	"cabincore/internal/appstate"
	"cabincore/internal/blob"
	"cabincore/internal/core"
	"cabincore/internal/docstore"
)

type config struct {
	Addr         string
	DocumentKey  string
	ReadFallback bool
	ShareURL     string
	Origins      []string
	RateLimit    rate.Limit
	Burst        int
}

func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		Addr:         ":8080",
		DocumentKey:  docstore.DefaultKey,
		ReadFallback: true,
		ShareURL:     getenv("CABINCORE_SHARE_URL"),
		RateLimit:    20,
		Burst:        40,
	}
	if v := getenv("CABINCORE_HTTP_ADDR"); v != "" {
		if !strings.Contains(v, ":") {
			v = ":" + v
		}
		cfg.Addr = v
	}
	if v := getenv("CABINCORE_DOCUMENT_KEY"); v != "" {
		cfg.DocumentKey = v
	}
	if v := getenv("CABINCORE_READ_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return config{}, fmt.Errorf("invalid CABINCORE_READ_FALLBACK %q: %w", v, err)
		}
		cfg.ReadFallback = b
	}
	if v := getenv("CABINCORE_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Origins = append(cfg.Origins, o)
			}
		}
	}
	if v := getenv("CABINCORE_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return config{}, fmt.Errorf("invalid CABINCORE_RATE_LIMIT %q", v)
		}
		cfg.RateLimit = rate.Limit(f)
		cfg.Burst = max(1, int(2*f))
	}
	return cfg, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found; using process environment")
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, logger, os.Getenv); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, getenv func(string) string) error {
	cfg, err := loadConfig(getenv)
	if err != nil {
		return err
	}
	store, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := blob.Close(closeCtx, store); err != nil {
			logger.Warn("close blob store", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	client := docstore.New(store,
		docstore.WithKey(cfg.DocumentKey),
		docstore.WithReadFallback(cfg.ReadFallback),
		docstore.WithLogger(logger),
	)
	svc := core.NewService(core.NewStore(client, core.WithLogger(logger), core.WithMetrics(metrics)))
	cache := appstate.New(svc, appstate.WithLogger(logger))
	if err := cache.Load(ctx); err != nil {
		logger.Warn("initial document load", "status", cache.Status(), "error", err)
	}

	opts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(reg),
		httpapi.WithCache(cache),
		httpapi.WithShareURL(cfg.ShareURL),
		httpapi.WithRateLimit(cfg.RateLimit, cfg.Burst),
	}
	if len(cfg.Origins) > 0 {
		opts = append(opts, httpapi.WithAllowedOrigins(cfg.Origins...))
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(svc, opts...).Handler(),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	return serve(ctx, logger, server, store.Driver())
}

func serve(ctx context.Context, logger *slog.Logger, server *http.Server, driver blob.Driver) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "driver", driver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
