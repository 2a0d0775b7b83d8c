// Package evaluator содержит реестр evaluator'ов стадий pipeline.
//
// Evaluator получает закоммиченный bundle одной стадии и возвращает
// закоммиченные выходные bundle'ы. Типы стадий:
//
//   - create — корневая стадия; InitialInputs раскладывает элементы
//     RootFn по начальным bundle'ам
//   - par_do — DoFn над каждым элементом
//   - group_by_key — KV{k, [v...]} из полного keyed bundle'а ключа
//   - split — restriction, разбиение, уникальный ключ для каждой части
//   - group_into_keyed_work_items — один KeyedWorkItem на ключ
//   - process — Resumable Element Processor
//
// Registry.Evaluate превращает панику и ошибки пользовательских функций
// в UserCodeError. Нарушения контракта (например, splittable.ErrEmptySplit)
// возвращаются как есть с контекстом стадии.
//
// Registry.Cleanup выполняет зарегистрированные через OnCleanup действия
// при остановке pipeline.
package evaluator
