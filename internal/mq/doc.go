// Package mq публикует и потребляет события runs через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect с backoff, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий runs и задач
//   - consumer.go   — потребление событий
//
// Типы событий (они же routing keys):
//   - run.started, run.succeeded, run.failed
//   - task.succeeded, task.failed
//
// Exchanges:
//   - flows.events — события (topic)
//   - flows.dlq    — dead letter queue
//
// Publisher реализует runner.Notifier: runner сообщает о переходах
// статусов, а подписчики (flowctl events watch, внешние системы)
// получают их из своих очередей.
package mq
