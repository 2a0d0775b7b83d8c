package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/mq"
	"github.com/shaiso/Flume/internal/runner"
	"github.com/shaiso/Flume/internal/telemetry"
	"github.com/shaiso/Flume/internal/transforms"
)

// LaunchFunc запускает pipeline. Обычно обёртка над runner.Run
// с опциями из конфигурации.
type LaunchFunc func(ctx context.Context, spec *domain.PipelineSpec) (*runner.Pipeline, error)

// Handler — обработчик API с зависимостями.
type Handler struct {
	launch    LaunchFunc
	baseCtx   context.Context
	pipelines *Pipelines
	functions *transforms.Registry
	publisher *mq.Publisher
	logger    *slog.Logger
}

// Config — конфигурация Handler.
type Config struct {
	// Launch — запуск pipeline.
	Launch LaunchFunc

	// BaseContext — контекст запущенных pipeline. Отмена останавливает
	// их все. Контекст запроса для этого не подходит: он отменяется
	// сразу после ответа.
	BaseContext context.Context

	// Functions — реестр функций для /functions
	// (default: transforms.DefaultRegistry()).
	Functions *transforms.Registry

	// Publisher — публикация pipeline.started (опционально).
	Publisher *mq.Publisher

	// Logger — логгер.
	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Functions == nil {
		cfg.Functions = transforms.DefaultRegistry()
	}
	logger := telemetry.Component(cfg.Logger, "api")

	return &Handler{
		launch:    cfg.Launch,
		baseCtx:   cfg.BaseContext,
		pipelines: NewPipelines(logger),
		functions: cfg.Functions,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Pipelines возвращает реестр запущенных pipeline.
func (h *Handler) Pipelines() *Pipelines {
	return h.pipelines
}
