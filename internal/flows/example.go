package flows

import (
	"context"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// Имена flows.
const (
	ExampleFlowName    = "ExampleFlow"
	ExampleGPUFlowName = "ExampleGPUFlow"
)

// Размер матрицы, которую генерирует шаг process.
const matrixSize = 3

// ExampleSchedule — расписание ExampleFlow: каждые 5 минут.
const ExampleSchedule = "0/5 * * * ? *"

// DefaultMultiplier — значение параметра multiplier по умолчанию.
const DefaultMultiplier = 10

// ExampleFlow: start → process → end.
//
// process генерирует случайную матрицу 3×3 (my_data)
// и её копию, умноженную на multiplier (my_data_tf).
func ExampleFlow() *flow.Definition {
	return &flow.Definition{
		Spec: &domain.FlowSpec{
			Name:        ExampleFlowName,
			Description: "Linear CPU example: random matrix and its scaled copy",
			Schedule:    &domain.Schedule{Cron: ExampleSchedule},
			Parameters: []domain.Parameter{
				{Name: "multiplier", Type: "int", Default: DefaultMultiplier, Help: "scale factor for my_data"},
			},
			Steps: []domain.StepDef{
				{ID: domain.StepStart, Next: []string{"process"}},
				{
					ID:       "process",
					Next:     []string{domain.StepEnd},
					Packages: &domain.Packages{Manager: "pypi", Packages: map[string]string{"numpy": "2.1.0"}},
				},
				{ID: domain.StepEnd},
			},
		},
		Steps: map[string]flow.StepFunc{
			domain.StepStart: exampleStart,
			"process":        exampleProcess,
			domain.StepEnd:   exampleEnd,
		},
	}
}

func exampleStart(ctx context.Context, s *flow.State) error {
	s.Set("message", "Starting!")
	telemetry.FromContext(ctx).Info("Starting!")
	return nil
}

func exampleProcess(ctx context.Context, s *flow.State) error {
	multiplier, err := s.Int("multiplier")
	if err != nil {
		return err
	}

	data := mat.NewDense(matrixSize, matrixSize, nil)
	data.Apply(func(_, _ int, _ float64) float64 { return rand.Float64() }, data)

	var scaled mat.Dense
	scaled.Scale(float64(multiplier), data)

	s.SetMatrix("my_data", data)
	s.SetMatrix("my_data_tf", &scaled)

	telemetry.FromContext(ctx).Info("Processed data!")
	return nil
}

func exampleEnd(ctx context.Context, s *flow.State) error {
	s.Set("message", "Finished!")
	telemetry.FromContext(ctx).Info("Finished!")
	return nil
}
