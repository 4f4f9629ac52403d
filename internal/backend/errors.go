package backend

import "errors"

// Ошибки backend.
var (
	// ErrUnknownBackend — executor с таким именем не зарегистрирован.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrExecutionTimeout — шаг превысил таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrJobFailed — задание AWS Batch завершилось со статусом FAILED.
	ErrJobFailed = errors.New("batch job failed")

	// ErrInvalidJob — в Job не хватает обязательных полей.
	ErrInvalidJob = errors.New("invalid job")

	// ErrNoImage — у шага на batch не задан образ.
	ErrNoImage = errors.New("batch step has no image")

	// ErrLocalDatastore — datastore недоступен заданиям AWS Batch.
	ErrLocalDatastore = errors.New("batch steps need a shared s3:// datastore")
)
