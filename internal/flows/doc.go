// Package flows содержит flows проекта.
//
//   - ExampleFlow    — линейный CPU flow: случайная матрица и её масштабированная копия
//   - ExampleGPUFlow — проверка GPU в задании AWS Batch
//
// Flows только описывают шаги и декорации. Повторы, таймауты
// и размещение шагов выполняет runner.
package flows
