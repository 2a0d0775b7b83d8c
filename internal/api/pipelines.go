package api

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
	"github.com/shaiso/Flume/internal/runner"
)

var (
	// ErrPipelineNotFound — pipeline с таким ID не запускался.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineFinished — pipeline уже в терминальном состоянии.
	ErrPipelineFinished = errors.New("pipeline already finished")
)

// entry — pipeline и его итог.
type entry struct {
	pipeline   *runner.Pipeline
	finishedAt time.Time
	err        error
	done       chan struct{}
}

// Pipelines — реестр pipeline, запущенных через API.
//
// Для каждого pipeline фоновая горутина ждёт WaitUntilFinish и
// запоминает итог.
type Pipelines struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// NewPipelines создаёт пустой реестр.
func NewPipelines(logger *slog.Logger) *Pipelines {
	return &Pipelines{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Track добавляет pipeline и начинает ждать его завершения.
func (p *Pipelines) Track(pipeline *runner.Pipeline) {
	e := &entry{pipeline: pipeline, done: make(chan struct{})}

	p.mu.Lock()
	p.entries[pipeline.ID()] = e
	p.mu.Unlock()

	go func() {
		st, err := pipeline.WaitUntilFinish(context.Background())

		p.mu.Lock()
		e.finishedAt = time.Now()
		e.err = err
		p.mu.Unlock()
		close(e.done)

		p.logger.Info("pipeline finished",
			"pipeline_id", pipeline.ID(),
			"state", st,
			"error", err,
		)
	}()
}

// Get возвращает снимок pipeline.
func (p *Pipelines) Get(id string) (PipelineResponse, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[id]
	if !ok {
		return PipelineResponse{}, ErrPipelineNotFound
	}
	return e.snapshot(), nil
}

// List возвращает снимки всех pipeline, новые первыми.
func (p *Pipelines) List() []PipelineResponse {
	p.mu.RLock()
	out := make([]PipelineResponse, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.snapshot())
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Stop отменяет pipeline и ждёт его остановки.
func (p *Pipelines) Stop(ctx context.Context, id string) (PipelineResponse, error) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return PipelineResponse{}, ErrPipelineNotFound
	}
	if e.pipeline.State().IsTerminal() {
		return PipelineResponse{}, ErrPipelineFinished
	}

	e.pipeline.Stop()

	select {
	case <-e.done:
	case <-ctx.Done():
	}
	return p.Get(id)
}

// StopAll отменяет все работающие pipeline.
func (p *Pipelines) StopAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, e := range p.entries {
		if !e.pipeline.State().IsTerminal() {
			e.pipeline.Stop()
		}
	}
}

// Wait ждёт завершения pipeline.
func (p *Pipelines) Wait(ctx context.Context, id string) (PipelineResponse, error) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return PipelineResponse{}, ErrPipelineNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return PipelineResponse{}, ctx.Err()
	}
	return p.Get(id)
}

// snapshot вызывается под блокировкой реестра.
func (e *entry) snapshot() PipelineResponse {
	resp := PipelineResponse{
		ID:           e.pipeline.ID(),
		Name:         e.pipeline.Name(),
		State:        e.pipeline.State(),
		StartedAt:    e.pipeline.StartedAt(),
		LanesCreated: e.pipeline.LanesCreated(),
		ActiveLanes:  e.pipeline.ActiveLanes(),
	}
	if !e.finishedAt.IsZero() {
		finished := e.finishedAt
		resp.FinishedAt = &finished
	}
	if e.err != nil {
		resp.Error = e.err.Error()
	}
	return resp
}
