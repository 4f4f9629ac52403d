package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/batchflows/internal/domain"
)

func TestValidate_EmptySteps(t *testing.T) {
	tests := []struct {
		name string
		spec *domain.FlowSpec
	}{
		{
			name: "nil spec",
			spec: nil,
		},
		{
			name: "empty steps",
			spec: &domain.FlowSpec{
				Name:  "Empty",
				Steps: []domain.StepDef{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if !errors.Is(err, ErrEmptySteps) {
				t.Errorf("expected ErrEmptySteps, got %v", err)
			}
		})
	}
}

func TestValidate_ValidSpec(t *testing.T) {
	spec := linearSpec()
	spec.Parameters = []domain.Parameter{{Name: "multiplier", Type: "int", Default: 10}}
	spec.Steps[1].Batch = &domain.Batch{Queue: "q", GPU: 1}
	spec.Steps[1].Retry = &domain.RetryPolicy{MaxAttempts: 3, Backoff: "exponential"}

	if err := Validate(spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(spec *domain.FlowSpec)
		wantErr error
	}{
		{
			name:    "empty name",
			mutate:  func(s *domain.FlowSpec) { s.Name = "" },
			wantErr: ErrEmptyFlowName,
		},
		{
			name:    "empty step id",
			mutate:  func(s *domain.FlowSpec) { s.Steps[1].ID = "" },
			wantErr: ErrEmptyStepID,
		},
		{
			name:    "duplicate step id",
			mutate:  func(s *domain.FlowSpec) { s.Steps[1].ID = "start" },
			wantErr: ErrDuplicateStepID,
		},
		{
			name: "missing start",
			mutate: func(s *domain.FlowSpec) {
				s.Steps[0].ID = "begin"
			},
			wantErr: ErrMissingStart,
		},
		{
			name: "missing end",
			mutate: func(s *domain.FlowSpec) {
				s.Steps[2].ID = "finish"
				s.Steps[2].Next = nil
				s.Steps[1].Next = []string{"finish"}
			},
			wantErr: ErrMissingEnd,
		},
		{
			name:    "end has next",
			mutate:  func(s *domain.FlowSpec) { s.Steps[2].Next = []string{"start"} },
			wantErr: ErrEndHasNext,
		},
		{
			name:    "missing next",
			mutate:  func(s *domain.FlowSpec) { s.Steps[1].Next = nil },
			wantErr: ErrMissingNext,
		},
		{
			name:    "self transition",
			mutate:  func(s *domain.FlowSpec) { s.Steps[1].Next = []string{"process"} },
			wantErr: ErrSelfTransition,
		},
		{
			name:    "unknown next",
			mutate:  func(s *domain.FlowSpec) { s.Steps[1].Next = []string{"nowhere"} },
			wantErr: ErrUnknownNext,
		},
		{
			name:    "negative gpu",
			mutate:  func(s *domain.FlowSpec) { s.Steps[1].Batch = &domain.Batch{GPU: -1} },
			wantErr: ErrInvalidDecoration,
		},
		{
			name: "unknown backoff",
			mutate: func(s *domain.FlowSpec) {
				s.Steps[1].Retry = &domain.RetryPolicy{Backoff: "random"}
			},
			wantErr: ErrInvalidDecoration,
		},
		{
			name: "reserved parameter",
			mutate: func(s *domain.FlowSpec) {
				s.Parameters = []domain.Parameter{{Name: "run_id"}}
			},
			wantErr: ErrReservedParameter,
		},
		{
			name: "duplicate parameter",
			mutate: func(s *domain.FlowSpec) {
				s.Parameters = []domain.Parameter{{Name: "m"}, {Name: "m"}}
			},
			wantErr: ErrDuplicateParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := linearSpec()
			tt.mutate(spec)

			err := Validate(spec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ValidationErrorContext(t *testing.T) {
	spec := linearSpec()
	spec.Steps[1].Next = []string{"nowhere"}

	err := Validate(spec)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if vErr.StepID != "process" {
		t.Errorf("expected step process, got %s", vErr.StepID)
	}
	if vErr.Field != "next" {
		t.Errorf("expected field next, got %s", vErr.Field)
	}
	if vErr.Error() != "step process: transitions to unknown step: nowhere" {
		t.Errorf("unexpected message: %s", vErr.Error())
	}
}
