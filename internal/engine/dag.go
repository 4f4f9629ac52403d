package engine

import (
	"fmt"

	"github.com/shaiso/batchflows/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Step — определение шага из FlowSpec.
	Step *domain.StepDef

	// ID — идентификатор узла (совпадает с Step.ID).
	ID string

	// InDegree — количество входящих рёбер (предшественников).
	InDegree int

	// DependsOn — узлы-предшественники.
	DependsOn []*Node

	// Dependents — узлы-последователи (из StepDef.Next).
	Dependents []*Node
}

// DAG — направленный ациклический граф шагов flow.
//
// Рёбра строятся из явных переходов StepDef.Next:
// шаг A с Next=["B"] даёт ребро A → B.
type DAG struct {
	// Nodes — все узлы графа (stepID → Node).
	Nodes map[string]*Node

	// Start — узел "start".
	Start *Node

	// Order — топологически отсортированный список узлов.
	Order []*Node

	// specOrder — ID шагов в порядке объявления (для детерминированного обхода).
	specOrder []string
}

// BuildDAG строит DAG из FlowSpec.
//
// Возвращает ошибку, если переход ссылается на неизвестный шаг,
// в графе есть цикл или шаг недостижим из "start".
func BuildDAG(spec *domain.FlowSpec) (*DAG, error) {
	dag := &DAG{
		Nodes:     make(map[string]*Node, len(spec.Steps)),
		specOrder: make([]string, 0, len(spec.Steps)),
	}

	// Первый проход: создаём все узлы
	for i := range spec.Steps {
		step := &spec.Steps[i]
		dag.Nodes[step.ID] = &Node{
			Step:       step,
			ID:         step.ID,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
		dag.specOrder = append(dag.specOrder, step.ID)
	}

	// Второй проход: связываем узлы по переходам
	for i := range spec.Steps {
		step := &spec.Steps[i]
		from := dag.Nodes[step.ID]

		for _, nextID := range step.Next {
			to, exists := dag.Nodes[nextID]
			if !exists {
				return nil, NewValidationError(step.ID, "next",
					fmt.Sprintf("transitions to unknown step: %s", nextID), ErrUnknownNext)
			}
			dag.addEdge(from, to)
		}
	}

	start, ok := dag.Nodes[domain.StepStart]
	if !ok {
		return nil, NewValidationError("", "steps", "flow has no start step", ErrMissingStart)
	}
	dag.Start = start

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	if err := dag.checkReachable(); err != nil {
		return nil, err
	}

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	// Очередь узлов с inDegree = 0 в порядке объявления
	queue := make([]*Node, 0)
	for _, id := range d.specOrder {
		if inDegree[id] == 0 {
			queue = append(queue, d.Nodes[id])
		}
	}

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// checkReachable проверяет, что все шаги достижимы из "start".
func (d *DAG) checkReachable() error {
	seen := map[string]bool{d.Start.ID: true}
	stack := []*Node{d.Start}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range node.Dependents {
			if !seen[next.ID] {
				seen[next.ID] = true
				stack = append(stack, next)
			}
		}
	}

	for _, id := range d.specOrder {
		if !seen[id] {
			return NewValidationError(id, "next",
				"step is unreachable from start", ErrUnreachableStep)
		}
	}
	return nil
}

// GetReadyNodes возвращает узлы, готовые к выполнению.
//
// Узел готов, если:
// - Все его предшественники завершены (в completed)
// - Сам узел ещё не завершён и не в процессе
//
// Узлы возвращаются в порядке объявления шагов.
func (d *DAG) GetReadyNodes(completed, running map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, id := range d.specOrder {
		node := d.Nodes[id]

		// Пропускаем уже завершённые или выполняющиеся
		if completed[id] || running[id] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range node.DependsOn {
			if !completed[dep.ID] {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			ready = append(ready, node)
		}
	}

	return ready
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// IsComplete проверяет, все ли узлы завершены.
func (d *DAG) IsComplete(completed map[string]bool) bool {
	for id := range d.Nodes {
		if !completed[id] {
			return false
		}
	}
	return true
}

// IsLinear возвращает true, если каждый шаг имеет не более одного
// предшественника и последователя.
func (d *DAG) IsLinear() bool {
	for _, node := range d.Nodes {
		if len(node.DependsOn) > 1 || len(node.Dependents) > 1 {
			return false
		}
	}
	return true
}
