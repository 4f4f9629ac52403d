// Package datastore хранит артефакты шагов между backend.
//
// Локальный шаг пишет в тот же datastore, что и удалённый:
// путь артефактов одинаков и определяется Key.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound — артефакты по ключу не найдены.
var ErrNotFound = errors.New("artifacts not found")

// ArtifactsFile — имя файла с артефактами задачи.
const ArtifactsFile = "artifacts.json"

// DefaultRoot — корень локального datastore по умолчанию.
const DefaultRoot = ".flows"

// Key адресует артефакты одной задачи.
type Key struct {
	Flow   string
	RunID  string
	StepID string
	TaskID string
}

// Path возвращает относительный путь: flow/run/step/task/artifacts.json.
func (k Key) Path() string {
	return path.Join(k.Flow, k.RunID, k.StepID, k.TaskID, ArtifactsFile)
}

// Validate проверяет, что все части ключа заданы и не содержат "/".
func (k Key) Validate() error {
	for name, v := range map[string]string{"flow": k.Flow, "run": k.RunID, "step": k.StepID, "task": k.TaskID} {
		if v == "" || strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
			return fmt.Errorf("invalid datastore key: %s %q", name, v)
		}
	}
	return nil
}

// Store — хранилище артефактов.
type Store interface {
	// Save сохраняет артефакты задачи, перезаписывая прежние.
	Save(ctx context.Context, key Key, artifacts map[string]any) error

	// Load загружает артефакты задачи.
	// Возвращает ErrNotFound, если их нет.
	Load(ctx context.Context, key Key) (map[string]any, error)

	// Location возвращает адрес артефактов для метаданных задачи.
	Location(key Key) string
}

// New выбирает хранилище по адресу корня:
// "s3://bucket/prefix" — S3, иначе локальная директория.
// Пустой root означает DefaultRoot.
func New(ctx context.Context, root string) (Store, error) {
	if bucket, prefix, ok := ParseS3URL(root); ok {
		return NewS3Store(ctx, bucket, prefix)
	}
	if root == "" {
		root = DefaultRoot
	}
	return NewLocalStore(root), nil
}

// IsShared сообщает, доступен ли datastore с таким корнем удалённым
// заданиям. Локальная директория видна только текущей машине.
func IsShared(root string) bool {
	_, _, ok := ParseS3URL(root)
	return ok
}

// ParseS3URL разбирает "s3://bucket/prefix".
func ParseS3URL(raw string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(raw, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}
