// Package executor содержит Bundle Scheduler — параллельный исполнитель
// bundle'ов pipeline.
//
// # Модель исполнения
//
// Один пул фиксированного размера (Parallelism) с неограниченной FIFO
// очередью. Поверх пула работают lanes:
//   - parallel lane — общий, без порядка, для bundle'ов без ключа
//   - serial lane — по одному на (стадия, ключ), задачи строго по одной
//     в порядке постановки
//
// Serial lanes живут в laneCache со счётчиком ссылок (ожидающие +
// выполняющиеся задачи) и вытесняются, как только счётчик доходит до нуля.
//
// # Жизненный цикл
//
//	exec, _ := executor.New(executor.Config{
//	    Parallelism: 4,
//	    Evaluator:   evaluators,
//	    NewDriver:   driver.Factory(driverCfg),
//	})
//	exec.Start(ctx, graph, keyed)
//	state, err := exec.WaitUntilFinish(ctx)
//
// Start вычисляет начальные входы корней (fan-out max(3, Parallelism))
// и ставит в пул задачу driver'а, которая переставляет себя, пока
// driver не вернёт FAILED или SHUTDOWN. Остановка выполняется на
// отдельной горутине:
//
//  1. drain + invalidate laneCache
//  2. остановка parallel lane
//  3. остановка пула и ожидание воркеров
//  4. cleanup evaluator'ов
//  5. CAS RUNNING → терминальное состояние
//  6. публикация ShutdownError, если были ошибки
//
// Stop и завершение могут гоняться: побеждает первый переход.
//
// # Канал завершения
//
// Driver сообщает итог через MessageReceiver (Failed, Cancelled,
// Completed). Обновления копируются UpdateObserver'ам, например
// mq.Publisher.
package executor
