package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/polytopelabs/hyperpuzzle-simulator/catalog"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/api"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/observability"
)

// Config collects the view server's startup settings.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	FrameInterval  time.Duration
	LogLevel       string
	LogFormat      string
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ListenAddress, "listen-addr", ":8080", "TCP address the HTTP API listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "separate HTTP address for Prometheus /metrics (empty serves it on the API address)")
	flag.DurationVar(&cfg.FrameInterval, "frame-interval", 50*time.Millisecond, "cadence of animation frames on stream endpoints")
	flag.StringVar(&cfg.LogLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", os.Getenv("LOG_FORMAT"), "log format (text or json)")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(context.Background(), "failed to listen",
			logging.String("addr", cfg.ListenAddress),
			logging.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(context.Background(), "server exited", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

// run wires the catalog, metrics, tracing, and API server, then serves
// until ctx is cancelled. The listener is passed in so tests can bind an
// ephemeral port.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	cat := catalog.New()
	if err := catalog.RegisterStandard(cat); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return err
	}
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return err
	}

	server := api.NewServer(cat,
		api.WithLogger(log),
		api.WithMetrics(apiMetrics),
		api.WithEngineMetrics(engineMetrics),
		api.WithConfig(api.Config{FrameInterval: cfg.FrameInterval}),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/", server.Routes())
	if cfg.MetricsAddress == "" {
		mux.Handle("/metrics", apiMetrics.Handler())
	}
	httpSrv := &http.Server{Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "serving puzzle API",
			logging.String("addr", lis.Addr().String()),
			logging.Int("puzzles", cat.Len()))
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", apiMetrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: metricsMux}
		g.Go(func() error {
			log.Info(ctx, "serving Prometheus metrics", logging.String("addr", cfg.MetricsAddress))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info(context.Background(), "shutting down view server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
