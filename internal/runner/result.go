package runner

import (
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
)

// Result — итог run.
type Result struct {
	// Run — метаданные run.
	Run *domain.Run

	// Tasks — tasks run в порядке выполнения.
	Tasks []domain.Task

	// Data — артефакты после шага end (только для чтения).
	Data *flow.State
}

// Task возвращает task шага или nil.
func (r *Result) Task(stepID string) *domain.Task {
	for i := range r.Tasks {
		if r.Tasks[i].StepID == stepID {
			return &r.Tasks[i]
		}
	}
	return nil
}

// Succeeded сообщает, завершился ли run успешно.
func (r *Result) Succeeded() bool {
	return r.Run != nil && r.Run.Status == domain.RunStatusSucceeded
}
