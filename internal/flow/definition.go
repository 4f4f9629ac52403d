package flow

import (
	"context"
	"fmt"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/engine"
)

// StepFunc — реализация шага.
//
// Шаг читает и пишет артефакты через State. Ошибка останавливает run.
type StepFunc func(ctx context.Context, s *State) error

// Definition — исполняемый flow: спецификация и функции шагов.
type Definition struct {
	Spec  *domain.FlowSpec
	Steps map[string]StepFunc
}

// Name возвращает имя flow.
func (d *Definition) Name() string {
	if d == nil || d.Spec == nil {
		return ""
	}
	return d.Spec.Name
}

// Step возвращает функцию шага.
func (d *Definition) Step(id string) (StepFunc, error) {
	fn, ok := d.Steps[id]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingStepFunc, id)
	}
	return fn, nil
}

// Validate проверяет спецификацию и наличие функции у каждого шага.
func (d *Definition) Validate() error {
	if d == nil || d.Spec == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidDefinition)
	}
	if err := engine.Validate(d.Spec); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Spec.Name, err)
	}
	for _, step := range d.Spec.Steps {
		if _, err := d.Step(step.ID); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Spec.Name, err)
		}
	}
	return nil
}

// WithSpec возвращает копию определения с другой спецификацией.
// Функции шагов общие.
func (d *Definition) WithSpec(spec *domain.FlowSpec) *Definition {
	return &Definition{Spec: spec, Steps: d.Steps}
}
