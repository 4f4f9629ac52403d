package flow

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// State — артефакты одного run.
//
// Параметры run видны как обычные артефакты. Значения должны
// переживать JSON: после удалённого шага числа приходят как float64,
// матрицы как [][]any. Типизированные геттеры это учитывают.
type State struct {
	mu   sync.RWMutex
	data map[string]any
	env  map[string]string
}

// NewState создаёт State с начальными артефактами.
func NewState(initial map[string]any) *State {
	s := &State{data: make(map[string]any, len(initial))}
	for k, v := range initial {
		s.data[k] = v
	}
	return s
}

// WithEnv задаёт переменные окружения, видимые шагам через Env.
func (s *State) WithEnv(env map[string]string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env = make(map[string]string, len(env))
	for k, v := range env {
		s.env[k] = v
	}
	return s
}

// Env возвращает переменную окружения run.
func (s *State) Env(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.env[key]
	return v, ok
}

// Set записывает артефакт.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// SetMatrix записывает матрицу как [][]float64.
func (s *State) SetMatrix(key string, m mat.Matrix) {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	s.Set(key, rows)
}

// Get возвращает артефакт.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Has проверяет наличие артефакта.
func (s *State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys возвращает отсортированные имена артефактов.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *State) lookup(key string) (any, error) {
	v, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
	}
	return v, nil
}

func typeError(key string, v any, want string) error {
	return fmt.Errorf("%w: %s is %T, want %s", ErrArtifactType, key, v, want)
}

// String возвращает строковый артефакт.
func (s *State) String(key string) (string, error) {
	v, err := s.lookup(key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", typeError(key, v, "string")
	}
	return str, nil
}

// Bool возвращает булев артефакт.
func (s *State) Bool(key string) (bool, error) {
	v, err := s.lookup(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeError(key, v, "bool")
	}
	return b, nil
}

// Float возвращает числовой артефакт как float64.
func (s *State) Float(key string) (float64, error) {
	v, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, typeError(key, v, "number")
	}
	return f, nil
}

// Int возвращает целочисленный артефакт.
// float64 без дробной части (после JSON) тоже принимается.
func (s *State) Int(key string) (int, error) {
	v, err := s.lookup(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, typeError(key, v, "int")
		}
		return int(i), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, typeError(key, v, "int")
}

// Matrix возвращает матричный артефакт.
func (s *State) Matrix(key string) (*mat.Dense, error) {
	v, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	m, ok := toDense(v)
	if !ok {
		return nil, typeError(key, v, "matrix")
	}
	return m, nil
}

// Snapshot возвращает копию артефактов верхнего уровня.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Merge записывает артефакты поверх текущих.
func (s *State) Merge(artifacts map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range artifacts {
		s.data[k] = v
	}
}

// Clone возвращает копию State вместе с env.
// Копируется только верхний уровень: значения артефактов общие.
func (s *State) Clone() *State {
	s.mu.RLock()
	env := s.env
	s.mu.RUnlock()

	c := NewState(s.Snapshot())
	if env != nil {
		c.WithEnv(env)
	}
	return c
}

// MarshalJSON сериализует только артефакты.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON заменяет артефакты содержимым data.
func (s *State) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]any)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = m
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toDense(v any) (*mat.Dense, bool) {
	switch m := v.(type) {
	case *mat.Dense:
		return mat.DenseCopyOf(m), true
	case [][]float64:
		return denseFromRows(len(m), func(i int) (int, func(j int) (float64, bool)) {
			return len(m[i]), func(j int) (float64, bool) { return m[i][j], true }
		})
	case []any:
		return denseFromRows(len(m), func(i int) (int, func(j int) (float64, bool)) {
			row, ok := m[i].([]any)
			if !ok {
				return -1, nil
			}
			return len(row), func(j int) (float64, bool) { return toFloat(row[j]) }
		})
	}
	return nil, false
}

// denseFromRows собирает прямоугольную матрицу построчно.
func denseFromRows(r int, row func(i int) (int, func(j int) (float64, bool))) (*mat.Dense, bool) {
	if r == 0 {
		return nil, false
	}
	var cols int
	var data []float64
	for i := 0; i < r; i++ {
		c, at := row(i)
		if c <= 0 || (i > 0 && c != cols) {
			return nil, false
		}
		cols = c
		for j := 0; j < c; j++ {
			f, ok := at(j)
			if !ok {
				return nil, false
			}
			data = append(data, f)
		}
	}
	return mat.NewDense(r, cols, data), true
}
