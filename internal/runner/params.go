package runner

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shaiso/batchflows/internal/domain"
)

// Типы параметров.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeString = "string"
)

// ResolveParams применяет значения по умолчанию и приводит значения
// к объявленным типам. Строки (из CLI) разбираются по типу параметра.
func ResolveParams(spec *domain.FlowSpec, raw map[string]any) (map[string]any, error) {
	for name := range raw {
		if spec.Parameter(name) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
	}

	params := make(map[string]any, len(spec.Parameters))
	for _, p := range spec.Parameters {
		value, ok := raw[p.Name]
		if !ok {
			if p.Default == nil {
				if p.Required {
					return nil, fmt.Errorf("%w: %s", ErrMissingParameter, p.Name)
				}
				continue
			}
			value = p.Default
		}

		coerced, err := coerce(paramType(p), value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, p.Name, err)
		}
		params[p.Name] = coerced
	}
	return params, nil
}

// paramType возвращает тип параметра; без явного типа — по значению по умолчанию.
func paramType(p domain.Parameter) string {
	if p.Type != "" {
		return p.Type
	}
	switch d := p.Default.(type) {
	case int, int64, int32:
		return TypeInt
	case float64:
		// После JSON целые значения по умолчанию приходят как float64
		if d == math.Trunc(d) {
			return TypeInt
		}
		return TypeFloat
	case float32:
		return TypeFloat
	case bool:
		return TypeBool
	case string:
		return TypeString
	}
	return ""
}

func coerce(typ string, v any) (any, error) {
	switch typ {
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeBool:
		return toBool(v)
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	default:
		return v, nil
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

// ParseAssignments разбирает "name=value" из командной строки.
// Значения остаются строками; ResolveParams приведёт их к типам.
func ParseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", ErrInvalidParameter, pair)
		}
		out[name] = value
	}
	return out, nil
}
