// Package driver содержит Quiescence — in-process driver, который
// продвигает pipeline поверх executor.Executor.
//
// Driver не исполняет bundle'ы сам: он отдаёт их BundleProcessor'у и
// получает итоги через CompletionCallback. На каждом шаге он:
//   - передаёт выходы завершённых bundle'ов стадиям-потребителям
//   - доставляет сработавшие processing-time таймеры стадиям process
//   - сбрасывает group_by_key, когда все предки простаивают
//
// Pipeline завершён, когда нет bundle'ов в работе, таймеров и
// несброшенных группировок. Первая ошибка bundle'а переводит driver в
// FAILED.
//
//	exec, _ := executor.New(executor.Config{
//	    Evaluator: evaluators,
//	    NewDriver: driver.Factory(driver.Config{Graph: g, Backend: backend}),
//	})
package driver
