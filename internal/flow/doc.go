// Package flow содержит то, из чего собирается исполняемый flow:
//
//   - Definition — спецификация (domain.FlowSpec) плюс функции шагов
//   - State      — артефакты одного run, общие для всех шагов
//   - Registry   — реестр определений по имени
//
// Шаг это обычная функция StepFunc: читает артефакты из State,
// пишет новые. State сериализуется в JSON, поэтому между шагами
// на разных backend передаются только JSON-совместимые значения.
package flow
