// Package splittable реализует обработку splittable элементов.
//
// Элемент с restriction (описанием оставшейся работы) обрабатывается
// циклами checkpoint/resume вместо одного блокирующего вызова:
//
//   - splitter.go  — начальная restriction, split, уникальный ключ, группировка
//   - processor.go — Resumable Element Processor: seed/resume, остаток, hold, таймер
//   - sink.go      — OutputSink с потолком выходов и принудительным checkpoint
//   - offset.go    — OffsetRange и его tracker
//
// Пользовательская функция описывается набором возможностей (Fn и
// опциональные RestrictionSplitter, ElementDecoder).
package splittable
