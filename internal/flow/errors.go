package flow

import "errors"

// Ошибки пакета flow.
var (
	// ErrArtifactNotFound — артефакт с таким именем не записан.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactType — артефакт есть, но другого типа.
	ErrArtifactType = errors.New("artifact has unexpected type")

	// ErrFlowNotFound — flow не зарегистрирован.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrMissingStepFunc — для шага спецификации нет функции.
	ErrMissingStepFunc = errors.New("step has no implementation")

	// ErrInvalidDefinition — определение flow не прошло проверку.
	ErrInvalidDefinition = errors.New("invalid flow definition")
)
