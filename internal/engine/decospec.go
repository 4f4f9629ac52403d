package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shaiso/batchflows/internal/domain"
)

// Имена поддерживаемых декораторов.
const (
	DecoratorBatch   = "batch"
	DecoratorPyPI    = "pypi"
	DecoratorRetry   = "retry"
	DecoratorTimeout = "timeout"
)

// DecoSpec — декорация, применяемая ко всем шагам при запуске.
//
// Формат строки: "name" или "name:key=value,key=value".
//
//	batch
//	batch:queue=metaflow-gpu,gpu=1
//	pypi:disabled=true
//	retry:times=3
type DecoSpec struct {
	// Name — имя декоратора.
	Name string

	// Attrs — атрибуты декоратора.
	Attrs map[string]string
}

// String возвращает каноническое строковое представление.
func (d DecoSpec) String() string {
	if len(d.Attrs) == 0 {
		return d.Name
	}
	keys := make([]string, 0, len(d.Attrs))
	for k := range d.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + d.Attrs[k]
	}
	return d.Name + ":" + strings.Join(parts, ",")
}

// ParseDecoSpec разбирает строку decospec.
func ParseDecoSpec(s string) (DecoSpec, error) {
	s = strings.TrimSpace(s)
	name, rest, hasAttrs := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return DecoSpec{}, fmt.Errorf("%w: %q: empty decorator name", ErrInvalidDecoSpec, s)
	}

	switch name {
	case DecoratorBatch, DecoratorPyPI, DecoratorRetry, DecoratorTimeout:
	default:
		return DecoSpec{}, fmt.Errorf("%w: %s", ErrUnknownDecorator, name)
	}

	spec := DecoSpec{Name: name, Attrs: make(map[string]string)}
	if !hasAttrs {
		return spec, nil
	}

	for _, pair := range strings.Split(rest, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return DecoSpec{}, fmt.Errorf("%w: %q: expected key=value, got %q", ErrInvalidDecoSpec, s, pair)
		}
		spec.Attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return spec, nil
}

// ParseDecoSpecs разбирает список decospecs.
func ParseDecoSpecs(specs []string) ([]DecoSpec, error) {
	out := make([]DecoSpec, 0, len(specs))
	for _, s := range specs {
		d, err := ParseDecoSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ApplyDecoSpecs применяет decospecs ко всем шагам копии spec.
//
// Явно заданные атрибуты шага имеют приоритет: decospec заполняет
// только незаданные поля. Исходный spec не изменяется.
func ApplyDecoSpecs(spec *domain.FlowSpec, decos []DecoSpec) (*domain.FlowSpec, error) {
	out := spec.Clone()

	for _, deco := range decos {
		for i := range out.Steps {
			step := &out.Steps[i]
			var err error
			switch deco.Name {
			case DecoratorBatch:
				err = applyBatch(step, deco.Attrs)
			case DecoratorPyPI:
				err = applyPyPI(step, deco.Attrs)
			case DecoratorRetry:
				err = applyRetry(step, deco.Attrs)
			case DecoratorTimeout:
				err = applyTimeout(step, deco.Attrs)
			default:
				err = fmt.Errorf("%w: %s", ErrUnknownDecorator, deco.Name)
			}
			if err != nil {
				return nil, NewValidationError(step.ID, deco.Name, err.Error(), ErrInvalidDecoSpec)
			}
		}
	}

	return out, nil
}

func applyBatch(step *domain.StepDef, attrs map[string]string) error {
	if step.Batch == nil {
		step.Batch = &domain.Batch{}
	}
	b := step.Batch

	for key, value := range attrs {
		switch key {
		case "queue":
			if b.Queue == "" {
				b.Queue = value
			}
		case "image":
			if b.Image == "" {
				b.Image = value
			}
		case "gpu", "cpu", "memory":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("batch %s must be a non-negative integer, got %q", key, value)
			}
			switch key {
			case "gpu":
				if b.GPU == 0 {
					b.GPU = n
				}
			case "cpu":
				if b.CPU == 0 {
					b.CPU = n
				}
			case "memory":
				if b.MemoryMB == 0 {
					b.MemoryMB = n
				}
			}
		default:
			return fmt.Errorf("unknown batch attribute %q", key)
		}
	}
	return nil
}

func applyPyPI(step *domain.StepDef, attrs map[string]string) error {
	explicit := step.Packages != nil
	if !explicit {
		step.Packages = &domain.Packages{Manager: DecoratorPyPI}
	}

	for key, value := range attrs {
		switch key {
		case "disabled":
			disabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("pypi disabled must be a boolean, got %q", value)
			}
			if !explicit {
				step.Packages.Disabled = disabled
			}
		default:
			return fmt.Errorf("unknown pypi attribute %q", key)
		}
	}
	return nil
}

func applyRetry(step *domain.StepDef, attrs map[string]string) error {
	if step.Retry != nil {
		return nil
	}
	policy := &domain.RetryPolicy{MaxAttempts: 4, Backoff: "fixed", InitialDelayMs: 2 * 60 * 1000}

	for key, value := range attrs {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("retry %s must be a non-negative integer, got %q", key, value)
		}
		switch key {
		case "times":
			// times — количество повторов, попыток на одну больше
			policy.MaxAttempts = n + 1
		case "minutes_between_retries":
			policy.InitialDelayMs = n * 60 * 1000
		default:
			return fmt.Errorf("unknown retry attribute %q", key)
		}
	}
	// Фиксированная пауза не должна упираться в потолок по умолчанию
	policy.MaxDelayMs = policy.InitialDelayMs
	step.Retry = policy
	return nil
}

func applyTimeout(step *domain.StepDef, attrs map[string]string) error {
	total := 0
	for key, value := range attrs {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("timeout %s must be a non-negative integer, got %q", key, value)
		}
		switch key {
		case "seconds":
			total += n
		case "minutes":
			total += n * 60
		case "hours":
			total += n * 3600
		default:
			return fmt.Errorf("unknown timeout attribute %q", key)
		}
	}
	if step.TimeoutSec == 0 {
		step.TimeoutSec = total
	}
	return nil
}
