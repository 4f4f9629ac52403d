// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog (tint для терминала)
//   - metrics.go — Prometheus метрики запусков, шагов и расписаний
//
// Все бинарники используют единый формат логирования,
// долгоживущие сервисы экспортируют метрики на /metrics.
package telemetry
