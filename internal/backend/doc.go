// Package backend выполняет отдельные шаги flow.
//
// Два backend:
//   - local — функция шага вызывается в текущем процессе
//   - batch — шаг уходит заданием в AWS Batch; внутри контейнера
//     та же функция вызывается командой "flowctl step"
//
// Вход и выход удалённого шага передаются через datastore.
// Retry с backoff реализован поверх любого Executor (ExecuteWithRetry).
package backend
