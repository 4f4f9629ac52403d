package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/batchflows/internal/domain"
)

func paramSpec() *domain.FlowSpec {
	return &domain.FlowSpec{
		Name: "ParamFlow",
		Parameters: []domain.Parameter{
			{Name: "multiplier", Default: 10},
			{Name: "rate", Type: TypeFloat, Default: 0.5},
			{Name: "label", Type: TypeString},
			{Name: "dry", Type: TypeBool, Default: false},
			{Name: "token", Type: TypeString, Required: true, Default: "x"},
		},
	}
}

func TestResolveParams_Defaults(t *testing.T) {
	params, err := ResolveParams(paramSpec(), nil)
	require.NoError(t, err)

	assert.Equal(t, 10, params["multiplier"])
	assert.Equal(t, 0.5, params["rate"])
	assert.Equal(t, false, params["dry"])
	assert.NotContains(t, params, "label")
}

func TestResolveParams_CoercesStrings(t *testing.T) {
	params, err := ResolveParams(paramSpec(), map[string]any{
		"multiplier": "3",
		"rate":       "1.25",
		"dry":        "true",
		"label":      "demo",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, params["multiplier"])
	assert.Equal(t, 1.25, params["rate"])
	assert.Equal(t, true, params["dry"])
	assert.Equal(t, "demo", params["label"])
}

func TestResolveParams_JSONNumbers(t *testing.T) {
	params, err := ResolveParams(paramSpec(), map[string]any{"multiplier": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, params["multiplier"])

	_, err = ResolveParams(paramSpec(), map[string]any{"multiplier": 7.5})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestResolveParams_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec *domain.FlowSpec
		raw  map[string]any
		want error
	}{
		{
			name: "unknown parameter",
			spec: paramSpec(),
			raw:  map[string]any{"nope": 1},
			want: ErrUnknownParameter,
		},
		{
			name: "not an int",
			spec: paramSpec(),
			raw:  map[string]any{"multiplier": "ten"},
			want: ErrInvalidParameter,
		},
		{
			name: "required without default",
			spec: &domain.FlowSpec{Parameters: []domain.Parameter{{Name: "p", Required: true}}},
			want: ErrMissingParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveParams(tt.spec, tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseAssignments(t *testing.T) {
	out, err := ParseAssignments([]string{"multiplier=3", "label=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"multiplier": "3", "label": "a=b"}, out)

	_, err = ParseAssignments([]string{"novalue"})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = ParseAssignments([]string{"=1"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
