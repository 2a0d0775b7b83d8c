package api

import (
	"time"

	"github.com/shaiso/Flume/internal/domain"
)

// PipelineResponse — состояние pipeline.
type PipelineResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name,omitempty"`
	State        domain.PipelineState `json:"state"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	Error        string               `json:"error,omitempty"`
	LanesCreated int64                `json:"lanes_created"`
	ActiveLanes  int                  `json:"active_lanes"`
}

// FunctionsResponse — зарегистрированные функции.
type FunctionsResponse struct {
	Functions []string `json:"functions"`
}
