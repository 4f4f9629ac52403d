// Package runner запускает flow целиком.
//
// Runner связывает остальные пакеты:
//   - engine строит граф шагов и применяет decospecs
//   - backend выполняет каждый шаг (local или batch) с retry
//   - datastore хранит артефакты каждой задачи
//   - repo хранит метаданные run и tasks
//
// Run блокируется до завершения run. Шаги одного run выполняются
// последовательно в порядке графа; первая ошибка шага останавливает run.
package runner
