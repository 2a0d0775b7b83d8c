// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики исполнителя
//
// Все компоненты используют единый формат логирования,
// cmd/flume экспортирует метрики на /metrics endpoint.
package telemetry
