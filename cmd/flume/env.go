package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Flume/internal/config"
	"github.com/shaiso/Flume/internal/executor"
	"github.com/shaiso/Flume/internal/mq"
	"github.com/shaiso/Flume/internal/runner"
	"github.com/shaiso/Flume/internal/telemetry"
)

// env — окружение команды: конфигурация, логгер, метрики и
// опциональный publisher.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *telemetry.Metrics
	conn      *mq.Connection
	publisher *mq.Publisher
}

// newEnv загружает конфигурацию и собирает окружение. Логи пишутся в w.
func newEnv(ctx context.Context, configPath string, w io.Writer) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := telemetry.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e := &env{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  telemetry.NewMetrics(registry),
	}

	if cfg.MQ.URL != "" {
		if err := e.connectMQ(ctx, cfg.MQ.URL); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (e *env) connectMQ(ctx context.Context, url string) error {
	conn, err := mq.NewConnection(url, e.logger)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("setup topology: %w", err)
	}
	e.logger.Debug(mq.TopologyInfo())

	e.conn = conn
	e.publisher = mq.NewPublisher(conn, e.logger)
	return nil
}

// runnerOptions переводит конфигурацию в опции runner.
func (e *env) runnerOptions() runner.Options {
	opts := runner.Options{
		Parallelism:  e.cfg.Runner.Parallelism,
		MaxOutputs:   e.cfg.Runner.MaxOutputs,
		PollInterval: time.Duration(e.cfg.Runner.PollIntervalMS) * time.Millisecond,
		StateBackend: e.cfg.State.Backend,
		State:        e.cfg.StateConfig(),
		Metrics:      e.metrics,
		Logger:       e.logger,
	}
	if e.publisher != nil {
		opts.Observers = []executor.UpdateObserver{e.publisher}
	}
	return opts
}

// metricsHandler отдаёт метрики окружения.
func (e *env) metricsHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// serveMetrics запускает сервер /metrics, если задан адрес.
// Возвращает функцию остановки.
func (e *env) serveMetrics() func() {
	if e.cfg.Metrics.Addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metricsHandler())

	server := &http.Server{Addr: e.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		e.logger.Info("metrics listening", "addr", e.cfg.Metrics.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

// Close закрывает соединение с брокером.
func (e *env) Close() {
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			e.logger.Warn("close rabbitmq", "error", err)
		}
	}
}
