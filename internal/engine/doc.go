// Package engine содержит описание графа pipeline.
//
// Включает:
//   - parser.go — парсинг и валидация PipelineSpec из JSON
//   - graph.go  — построение графа стадий и топологический порядок
//   - keyed.go  — классификатор keyed коллекций
//
// Engine отвечает за понимание структуры pipeline: какие стадии
// потребляют какие коллекции и какие коллекции разбиты по ключам.
package engine
