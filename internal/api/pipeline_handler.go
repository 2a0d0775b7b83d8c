package api

import (
	"io"
	"net/http"

	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/mq"
)

// maxSpecBytes — предел размера PipelineSpec в запросе.
const maxSpecBytes = 1 << 20

// SubmitPipeline проверяет и запускает pipeline.
// POST /api/v1/pipelines
func (h *Handler) SubmitPipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSpecBytes))
	if err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	spec, err := engine.ParseSpec(body)
	if HandleError(w, h.logger, err) {
		return
	}

	pipeline, err := h.launch(h.baseCtx, spec)
	if HandleError(w, h.logger, err) {
		return
	}
	h.pipelines.Track(pipeline)

	if h.publisher != nil {
		payload := mq.StartedPayload{
			PipelineID: pipeline.ID(),
			Name:       pipeline.Name(),
			Stages:     len(spec.Stages),
		}
		if err := h.publisher.PublishStarted(r.Context(), payload); err != nil {
			h.logger.Warn("publish started failed", "pipeline_id", pipeline.ID(), "error", err)
		}
	}

	resp, err := h.pipelines.Get(pipeline.ID())
	if HandleError(w, h.logger, err) {
		return
	}
	Created(w, resp)
}

// ListPipelines возвращает все pipeline.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, _ *http.Request) {
	result := h.pipelines.List()
	List(w, result, len(result))
}

// GetPipeline возвращает pipeline по ID.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	resp, err := h.pipelines.Get(r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, resp)
}

// StopPipeline отменяет pipeline и ждёт остановки.
// POST /api/v1/pipelines/{id}/stop
func (h *Handler) StopPipeline(w http.ResponseWriter, r *http.Request) {
	resp, err := h.pipelines.Stop(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, resp)
}

// ListFunctions возвращает имена зарегистрированных функций.
// GET /api/v1/functions
func (h *Handler) ListFunctions(w http.ResponseWriter, _ *http.Request) {
	Success(w, FunctionsResponse{Functions: h.functions.Names()})
}
