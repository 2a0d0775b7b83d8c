// Package runner собирает Flume в работающий pipeline.
//
// Run проверяет PipelineSpec, строит граф и классифицирует keyed
// коллекции, открывает backend состояния, создаёт реестр evaluator'ов и
// исполнитель с in-process driver'ом и запускает его:
//
//	p, err := runner.Run(ctx, spec, runner.Options{Parallelism: 4})
//	if err != nil {
//	    return err
//	}
//	state, err := p.WaitUntilFinish(ctx)
//
// Каждый pipeline получает uuid. Состояние splittable стадий хранится
// под этим идентификатором и очищается при остановке.
package runner
