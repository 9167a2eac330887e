package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"factory-digital-twin/incident/internal/api"
	"factory-digital-twin/incident/internal/clients/factorycore"
	"factory-digital-twin/incident/internal/ingest"
	"factory-digital-twin/incident/internal/repos"
	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/cachex"
	"factory-digital-twin/shared/config"
	"factory-digital-twin/shared/dbx"
	"factory-digital-twin/shared/httpx"
	"factory-digital-twin/shared/influxx"
	"factory-digital-twin/shared/logx"
	"factory-digital-twin/shared/metricsx"
	"factory-digital-twin/shared/middleware"
	"factory-digital-twin/shared/mqx"
	"factory-digital-twin/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("incident-event", 8081)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.FactoryCoreURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "FACTORY_CORE_URL", Message: "FACTORY_CORE_URL is required"})
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	shutdownTracer, err := observability.InitTracer(rootCtx, observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Error(context.Background(), "otel_init_failed", "tracer init failed",
			slog.String("error", err.Error()),
		)
		shutdownTracer = func(context.Context) error { return nil }
	}

	metricsx.Register()

	hub := broadcast.NewHub(cfg.StreamBufferSize)

	// With redis configured, events are published remotely and replayed into
	// the local hub by the bridge so every replica serves the same stream.
	var publisher broadcast.Publisher = hub
	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		cache, err = cachex.New(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "REDIS_ADDR", Message: "failed to initialize redis"})
		} else {
			redisPub, pubErr := broadcast.NewRedisPublisher(cache.Client())
			if pubErr == nil {
				publisher = redisPub
			}
			bridge, bridgeErr := broadcast.NewBridge(cache.Client(), hub, logger)
			if bridgeErr == nil {
				go func() {
					if err := bridge.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error(rootCtx, "bridge_failed", "redis event bridge stopped",
							slog.String("error", err.Error()),
						)
					}
				}()
			}
		}
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			logger.Error(context.Background(), "kafka_init_failed", "kafka producer init failed",
				slog.String("error", err.Error()),
			)
		}
	}

	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Error(context.Background(), "influx_init_failed", "influx client init failed",
				slog.String("error", err.Error()),
			)
		}
	}

	var factoryClient *factorycore.Client
	if cfg.FactoryCoreURL != "" {
		factoryClient, err = factorycore.New(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "FACTORY_CORE_URL", Message: "failed to initialize factory-core client"})
		}
	}

	incidentsRepo := repos.NewIncidentsRepo(dbPool)

	svc := &api.Service{
		Logger: logger,
		Orchestrator: &ingest.Orchestrator{
			Logger:        logger,
			Factories:     factoryClient,
			Matcher:       factoryClient,
			Store:         incidentsRepo,
			Publisher:     publisher,
			Producer:      producer,
			Influx:        influx,
			MaxDistance:   cfg.DetectMaxDistance,
			LookupTimeout: time.Duration(cfg.FactoryLookupMS) * time.Millisecond,
			MatchTimeout:  time.Duration(cfg.SpatialMatchMS) * time.Millisecond,
		},
		Store:     incidentsRepo,
		Hub:       hub,
		Publisher: publisher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	svc.Routes(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	skipInfra := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DBRequiredMiddleware{
		Pool: dbPool,
		Skip: skipInfra,
	}.Wrap(handler)
	if cfg.RateLimitRPS > 0 {
		handler = middleware.RateLimitMiddleware{
			Limiter: middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 2*time.Minute),
			Skip:    skipInfra,
		}.Wrap(handler)
	}
	handler = middleware.CORSMiddleware{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Skip:           skipInfra,
	}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, httpx.TimeoutOptions{SkipPaths: api.StreamPaths()}, handler)
	handler = metricsx.Instrument(cfg.ServiceName, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	if cfg.OtelEnabled {
		handler = otelhttp.NewHandler(handler, "http.server")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	_ = shutdownTracer(shutdownCtx)
	if producer != nil {
		_ = producer.Close()
	}
	if influx != nil {
		influx.Close()
	}
	if cache != nil {
		_ = cache.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
