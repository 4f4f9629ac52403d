package runner

import "errors"

// Ошибки runner.
var (
	// ErrUnknownParameter — передан параметр, которого нет у flow.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrInvalidParameter — значение параметра не приводится к его типу.
	ErrInvalidParameter = errors.New("invalid parameter value")

	// ErrMissingParameter — не передан обязательный параметр без значения по умолчанию.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrUnknownEnvironment — неизвестное окружение пакетов.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrStepFailed — шаг завершился ошибкой, run остановлен.
	ErrStepFailed = errors.New("step failed")
)
