package domain

// Зарезервированные ID шагов.
const (
	// StepStart — шаг, с которого начинается любой flow.
	StepStart = "start"

	// StepEnd — терминальный шаг flow. Не имеет последователей.
	StepEnd = "end"
)

// FlowSpec — декларативное описание flow.
//
// Flow — это упорядоченная цепочка шагов. Каждый шаг явно называет
// своего последователя (Next), поэтому граф выполнения полностью
// определяется данными, без скрытого control flow.
type FlowSpec struct {
	// Name — уникальное имя flow (например, "ExampleFlow").
	Name string `json:"name"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// Parameters — параметры запуска flow.
	Parameters []Parameter `json:"parameters,omitempty"`

	// Schedule — расписание запуска (опционально).
	Schedule *Schedule `json:"schedule,omitempty"`

	// BasePackages — зависимости, общие для всех шагов flow.
	// Шаговое Packages дополняет их.
	BasePackages *Packages `json:"base_packages,omitempty"`

	// Steps — шаги flow.
	Steps []StepDef `json:"steps"`
}

// Parameter — параметр запуска flow.
type Parameter struct {
	// Name — имя параметра. Доступен в State как обычный артефакт.
	Name string `json:"name"`

	// Type — тип: "int", "float", "bool", "string".
	// Если пустой, тип выводится из Default.
	Type string `json:"type,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`

	// Required — параметр обязан быть передан при запуске.
	Required bool `json:"required,omitempty"`

	// Help — описание параметра.
	Help string `json:"help,omitempty"`
}

// StepDef — определение шага в flow.
type StepDef struct {
	// ID — уникальный идентификатор шага в рамках flow.
	ID string `json:"id"`

	// Next — ID шагов-последователей. Пусто только у шага "end".
	Next []string `json:"next,omitempty"`

	// Batch — размещение шага на AWS Batch. Nil — шаг выполняется локально.
	Batch *Batch `json:"batch,omitempty"`

	// Packages — внешние зависимости шага.
	Packages *Packages `json:"packages,omitempty"`

	// Retry — политика повторных попыток.
	Retry *RetryPolicy `json:"retry,omitempty"`

	// TimeoutSec — таймаут выполнения шага. 0 — без таймаута.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// Batch — параметры размещения шага на AWS Batch.
type Batch struct {
	// Queue — имя очереди заданий.
	Queue string `json:"queue,omitempty"`

	// Image — контейнерный образ.
	Image string `json:"image,omitempty"`

	// GPU — количество запрашиваемых ускорителей.
	GPU int `json:"gpu,omitempty"`

	// CPU — количество vCPU.
	CPU int `json:"cpu,omitempty"`

	// MemoryMB — память в мегабайтах.
	MemoryMB int `json:"memory,omitempty"`
}

// Packages — внешние зависимости шага или flow.
type Packages struct {
	// Manager — менеджер пакетов окружения (например, "pypi").
	Manager string `json:"manager,omitempty"`

	// Packages — имя пакета → версия.
	Packages map[string]string `json:"packages,omitempty"`

	// Disabled — разрешение зависимостей отключено, образ используется как есть.
	Disabled bool `json:"disabled,omitempty"`
}

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// Step возвращает определение шага по ID или nil.
func (s *FlowSpec) Step(id string) *StepDef {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i]
		}
	}
	return nil
}

// Parameter возвращает определение параметра по имени или nil.
func (s *FlowSpec) Parameter(name string) *Parameter {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i]
		}
	}
	return nil
}

// Clone возвращает глубокую копию спецификации.
// Декорации копируются, чтобы применение decospecs не меняло исходный flow.
func (s *FlowSpec) Clone() *FlowSpec {
	out := *s
	out.Parameters = append([]Parameter(nil), s.Parameters...)
	if s.Schedule != nil {
		sched := *s.Schedule
		out.Schedule = &sched
	}
	out.BasePackages = s.BasePackages.Clone()

	out.Steps = make([]StepDef, len(s.Steps))
	for i, step := range s.Steps {
		cp := step
		cp.Next = append([]string(nil), step.Next...)
		if step.Batch != nil {
			b := *step.Batch
			cp.Batch = &b
		}
		cp.Packages = step.Packages.Clone()
		if step.Retry != nil {
			r := *step.Retry
			cp.Retry = &r
		}
		out.Steps[i] = cp
	}
	return &out
}

// Clone возвращает копию Packages. Безопасен для nil.
func (p *Packages) Clone() *Packages {
	if p == nil {
		return nil
	}
	out := *p
	if p.Packages != nil {
		out.Packages = make(map[string]string, len(p.Packages))
		for k, v := range p.Packages {
			out.Packages[k] = v
		}
	}
	return &out
}

// MergePackages возвращает объединение base и step зависимостей.
// Версии шага имеют приоритет. Disabled берётся из шага.
func MergePackages(base, step *Packages) *Packages {
	if base == nil && step == nil {
		return nil
	}
	out := &Packages{Packages: make(map[string]string)}
	for _, p := range []*Packages{base, step} {
		if p == nil {
			continue
		}
		if p.Manager != "" {
			out.Manager = p.Manager
		}
		for k, v := range p.Packages {
			out.Packages[k] = v
		}
	}
	if step != nil {
		out.Disabled = step.Disabled
	}
	return out
}
