// Package api содержит HTTP API сервера pipeline.
//
// Endpoints:
//   - POST /api/v1/pipelines           — проверить и запустить PipelineSpec
//   - GET  /api/v1/pipelines           — список запущенных pipeline
//   - GET  /api/v1/pipelines/{id}      — состояние pipeline
//   - POST /api/v1/pipelines/{id}/stop — отменить pipeline
//   - GET  /api/v1/functions           — зарегистрированные функции
//
// Запущенные pipeline живут в памяти процесса (Pipelines). Ошибки
// спецификации возвращаются как 422 INVALID_STATE, неизвестный backend
// состояния как 400.
package api
