package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
)

func testFlow(steps map[string]flow.StepFunc) *flow.Definition {
	return &flow.Definition{
		Spec: &domain.FlowSpec{
			Name: "TestFlow",
			Steps: []domain.StepDef{
				{ID: "start", Next: []string{"end"}},
				{ID: "end"},
			},
		},
		Steps: steps,
	}
}

func testJob(def *flow.Definition, stepID string, input map[string]any) *Job {
	return &Job{
		Flow:   def,
		Step:   def.Spec.Step(stepID),
		RunID:  "run-1",
		TaskID: "task-1",
		Input:  flow.NewState(input),
	}
}

// --- LocalExecutor Tests ---

func TestLocalExecutor_Success(t *testing.T) {
	def := testFlow(map[string]flow.StepFunc{
		"start": func(_ context.Context, s *flow.State) error {
			m, err := s.Int("multiplier")
			if err != nil {
				return err
			}
			s.Set("doubled", m*2)
			return nil
		},
	})

	job := testJob(def, "start", map[string]any{"multiplier": 10})
	result, err := NewLocalExecutor().Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Artifacts["doubled"] != 20 {
		t.Errorf("expected doubled=20, got %v", result.Artifacts["doubled"])
	}
	if result.Artifacts["multiplier"] != 10 {
		t.Error("input artifacts should be carried over")
	}

	// Вход не изменился
	if job.Input.Has("doubled") {
		t.Error("executor must not modify job input")
	}
}

func TestLocalExecutor_StepError(t *testing.T) {
	boom := errors.New("boom")
	def := testFlow(map[string]flow.StepFunc{
		"start": func(context.Context, *flow.State) error { return boom },
	})

	_, err := NewLocalExecutor().Execute(context.Background(), testJob(def, "start", nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestLocalExecutor_Panic(t *testing.T) {
	def := testFlow(map[string]flow.StepFunc{
		"start": func(context.Context, *flow.State) error { panic("bad step") },
	})

	_, err := NewLocalExecutor().Execute(context.Background(), testJob(def, "start", nil))
	if err == nil {
		t.Fatal("expected error from panicking step")
	}
}

func TestLocalExecutor_Timeout(t *testing.T) {
	def := testFlow(map[string]flow.StepFunc{
		"start": func(context.Context, *flow.State) error {
			time.Sleep(3 * time.Second)
			return nil
		},
	})
	job := testJob(def, "start", nil)
	job.Step.TimeoutSec = 1

	start := time.Now()
	_, err := NewLocalExecutor().Execute(context.Background(), job)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}
	if time.Since(start) > 2500*time.Millisecond {
		t.Error("executor should return at the deadline")
	}
}

func TestLocalExecutor_EnvAndNilInput(t *testing.T) {
	def := testFlow(map[string]flow.StepFunc{
		"start": func(_ context.Context, s *flow.State) error {
			v, _ := s.Env("CFN_STACK_NAME")
			s.Set("stack", v)
			return nil
		},
	})
	job := testJob(def, "start", nil)
	job.Input = nil
	job.Env = map[string]string{"CFN_STACK_NAME": "metaflow"}

	result, err := NewLocalExecutor().Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Artifacts["stack"] != "metaflow" {
		t.Errorf("expected stack=metaflow, got %v", result.Artifacts["stack"])
	}
}

func TestLocalExecutor_InvalidJob(t *testing.T) {
	_, err := NewLocalExecutor().Execute(context.Background(), &Job{})
	if !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

// --- Registry Tests ---

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get(Local); err != nil {
		t.Errorf("local executor should be registered: %v", err)
	}
	if _, err := r.Get(Batch); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}

	r.Register(Batch, NewLocalExecutor())
	names := r.Names()
	if len(names) != 2 || names[0] != Batch || names[1] != Local {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestFor(t *testing.T) {
	if For(&domain.StepDef{ID: "s"}) != Local {
		t.Error("undecorated step should run locally")
	}
	if For(&domain.StepDef{ID: "s", Batch: &domain.Batch{GPU: 1}}) != Batch {
		t.Error("batch-decorated step should run on batch")
	}
}

func TestPackageList(t *testing.T) {
	base := &domain.Packages{Manager: "pypi", Packages: map[string]string{"python-dotenv": "1.0.1"}}
	step := &domain.Packages{Packages: map[string]string{"numpy": "2.1.0"}}

	if got := PackageList(base, step); got != "numpy==2.1.0,python-dotenv==1.0.1" {
		t.Errorf("unexpected package list: %s", got)
	}
	if got := PackageList(base, &domain.Packages{Disabled: true}); got != "" {
		t.Errorf("disabled packages should yield empty list, got %s", got)
	}
	if got := PackageList(nil, nil); got != "" {
		t.Errorf("expected empty list, got %s", got)
	}
}
