// Package mq публикует обновления pipeline в RabbitMQ и читает их.
//
// Publisher подключается к executor как UpdateObserver. Каждое
// обновление completion channel'а становится сообщением в topic
// обменнике flume.pipeline:
//   - pipeline.started   — pipeline запущен (публикует runner CLI)
//   - pipeline.completed — вся работа выполнена
//   - pipeline.failed    — сбой пользовательского кода или исполнителя
//   - pipeline.cancelled — pipeline остановлен
//
// Очередь pipeline.updates получает все обновления; flume watch
// создаёт себе временную эксклюзивную очередь через DeclareWatchQueue.
package mq
