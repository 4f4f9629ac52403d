package engine

import "errors"

// Ошибки валидации FlowSpec.
var (
	// ErrEmptySteps — flow не содержит шагов.
	ErrEmptySteps = errors.New("flow spec has no steps")

	// ErrEmptyFlowName — flow не имеет имени.
	ErrEmptyFlowName = errors.New("flow spec has empty name")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrMissingStart — нет шага "start".
	ErrMissingStart = errors.New("flow has no start step")

	// ErrMissingEnd — нет шага "end".
	ErrMissingEnd = errors.New("flow has no end step")

	// ErrEndHasNext — шаг "end" называет последователя.
	ErrEndHasNext = errors.New("end step must not have a successor")

	// ErrMissingNext — нетерминальный шаг не называет последователя.
	ErrMissingNext = errors.New("step has no successor")

	// ErrUnknownNext — шаг ссылается на несуществующий шаг.
	ErrUnknownNext = errors.New("step transitions to unknown step")

	// ErrSelfTransition — шаг ссылается сам на себя.
	ErrSelfTransition = errors.New("step transitions to itself")

	// ErrCyclicDependency — обнаружен цикл в графе шагов.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrUnreachableStep — шаг недостижим из "start".
	ErrUnreachableStep = errors.New("step is unreachable from start")

	// ErrInvalidDecoration — некорректное значение декорации.
	ErrInvalidDecoration = errors.New("invalid decoration")
)

// Ошибки параметров.
var (
	// ErrEmptyParameterName — параметр не имеет имени.
	ErrEmptyParameterName = errors.New("parameter has empty name")

	// ErrDuplicateParameter — несколько параметров с одинаковым именем.
	ErrDuplicateParameter = errors.New("duplicate parameter")

	// ErrReservedParameter — имя параметра зарезервировано.
	ErrReservedParameter = errors.New("reserved parameter name")
)

// Ошибки decospecs.
var (
	// ErrInvalidDecoSpec — decospec не удалось разобрать.
	ErrInvalidDecoSpec = errors.New("invalid decospec")

	// ErrUnknownDecorator — неизвестное имя декоратора.
	ErrUnknownDecorator = errors.New("unknown decorator")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
