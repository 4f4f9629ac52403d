package engine

import (
	"fmt"

	"github.com/shaiso/batchflows/internal/domain"
)

// Имена, которые нельзя использовать как параметры:
// они пересекаются с системными полями State.
var reservedParameters = map[string]bool{
	"name":    true,
	"run_id":  true,
	"task_id": true,
	"input":   true,
	"next":    true,
}

// Validate выполняет полную валидацию FlowSpec.
//
// Проверяет:
// - Наличие имени и шагов
// - Уникальность ID шагов
// - Наличие "start" и терминального "end"
// - Что каждый нетерминальный шаг называет существующего последователя
// - Отсутствие циклов и недостижимых шагов (делегируется DAG)
// - Параметры и значения декораций
func Validate(spec *domain.FlowSpec) error {
	if spec == nil {
		return ErrEmptySteps
	}

	if spec.Name == "" {
		return NewValidationError("", "name", "flow spec has empty name", ErrEmptyFlowName)
	}

	if len(spec.Steps) == 0 {
		return ErrEmptySteps
	}

	if err := validateParameters(spec.Parameters); err != nil {
		return err
	}

	if spec.Step(domain.StepStart) == nil {
		return NewValidationError("", "steps", "flow has no start step", ErrMissingStart)
	}
	if spec.Step(domain.StepEnd) == nil {
		return NewValidationError("", "steps", "flow has no end step", ErrMissingEnd)
	}

	stepIDs := make(map[string]bool)
	for i := range spec.Steps {
		if err := ValidateStep(&spec.Steps[i], stepIDs); err != nil {
			return err
		}
	}

	if err := validateTransitions(spec.Steps, stepIDs); err != nil {
		return err
	}

	// Циклы и достижимость проверяет DAG
	if _, err := BuildDAG(spec); err != nil {
		return err
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.StepDef, stepIDs map[string]bool) error {
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if step.ID == domain.StepEnd && len(step.Next) > 0 {
		return NewValidationError(step.ID, "next",
			"end step must not have a successor", ErrEndHasNext)
	}
	if step.ID != domain.StepEnd && len(step.Next) == 0 {
		return NewValidationError(step.ID, "next",
			"step has no successor", ErrMissingNext)
	}

	for _, next := range step.Next {
		if next == step.ID {
			return NewValidationError(step.ID, "next",
				"step transitions to itself", ErrSelfTransition)
		}
	}

	return validateDecorations(step)
}

// validateTransitions проверяет, что все next ссылаются на существующие шаги.
func validateTransitions(steps []domain.StepDef, stepIDs map[string]bool) error {
	for i := range steps {
		step := &steps[i]
		for _, next := range step.Next {
			if !stepIDs[next] {
				return NewValidationError(step.ID, "next",
					fmt.Sprintf("transitions to unknown step: %s", next), ErrUnknownNext)
			}
		}
	}
	return nil
}

// validateDecorations проверяет значения декораций шага.
func validateDecorations(step *domain.StepDef) error {
	if b := step.Batch; b != nil {
		if b.GPU < 0 || b.CPU < 0 || b.MemoryMB < 0 {
			return NewValidationError(step.ID, "batch",
				"batch resources must not be negative", ErrInvalidDecoration)
		}
	}

	if r := step.Retry; r != nil {
		if r.MaxAttempts < 0 {
			return NewValidationError(step.ID, "retry",
				"retry max_attempts must not be negative", ErrInvalidDecoration)
		}
		switch r.Backoff {
		case "", "fixed", "exponential":
		default:
			return NewValidationError(step.ID, "retry",
				fmt.Sprintf("unknown backoff strategy: %s", r.Backoff), ErrInvalidDecoration)
		}
	}

	if step.TimeoutSec < 0 {
		return NewValidationError(step.ID, "timeout_sec",
			"timeout must not be negative", ErrInvalidDecoration)
	}

	return nil
}

// validateParameters проверяет имена параметров flow.
func validateParameters(params []domain.Parameter) error {
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if p.Name == "" {
			return NewValidationError("", "parameters",
				fmt.Sprintf("parameter %d has empty name", i), ErrEmptyParameterName)
		}
		if reservedParameters[p.Name] {
			return NewValidationError("", "parameters",
				fmt.Sprintf("parameter name is reserved: %s", p.Name), ErrReservedParameter)
		}
		if seen[p.Name] {
			return NewValidationError("", "parameters",
				fmt.Sprintf("duplicate parameter: %s", p.Name), ErrDuplicateParameter)
		}
		seen[p.Name] = true

		switch p.Type {
		case "", "int", "float", "bool", "string":
		default:
			return NewValidationError("", "parameters",
				fmt.Sprintf("parameter %s has unknown type: %s", p.Name, p.Type), ErrInvalidDecoration)
		}
	}
	return nil
}
