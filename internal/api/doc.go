// Package api содержит HTTP API метаданных runs.
//
// Структура:
//   - handler.go          — Handler с DI (реестр flows, репозитории, datastore, launcher)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (recovery, metrics, logging)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - flow_handler.go     — обработчики для /flows
//   - run_handler.go      — обработчики для /runs
//   - schedule_handler.go — обработчики для /schedules
//
// Ответы: {"data": ...} или {"error": {"code": ..., "message": ...}}.
package api
