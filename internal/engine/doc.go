// Package engine содержит валидацию и обход flow.
//
// Включает:
//   - parser.go   — валидация FlowSpec
//   - dag.go      — построение и обход DAG из явных переходов StepDef.Next
//   - decospec.go — разбор decospecs ("batch:queue=q") и их применение к шагам
//
// Engine отвечает за понимание структуры flow и определение
// порядка выполнения шагов. Само выполнение — в пакетах runner и backend.
package engine
