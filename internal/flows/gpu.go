package flows

import (
	"context"

	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/gpu"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// GPUImage — образ шага start ExampleGPUFlow, относительно ECRPath.
const GPUImage = config.DefaultBatchImage

// ExampleGPUFlow: start → end.
//
// start выполняется в AWS Batch на GPU-очереди стека, без разрешения
// зависимостей (образ уже содержит всё нужное), и записывает
// gpu_detected — видит ли задание ускоритель.
func ExampleGPUFlow(cfg config.Config, prober gpu.Prober) *flow.Definition {
	if prober == nil {
		prober = gpu.NewSystemProber()
	}

	return &flow.Definition{
		Spec: &domain.FlowSpec{
			Name:        ExampleGPUFlowName,
			Description: "Checks that a Batch job on the GPU queue sees an accelerator",
			BasePackages: &domain.Packages{
				Manager:  "pypi",
				Packages: copyDeps(config.ConfigDeps),
			},
			Steps: []domain.StepDef{
				{
					ID:   domain.StepStart,
					Next: []string{domain.StepEnd},
					Batch: &domain.Batch{
						GPU:   1,
						Queue: cfg.BatchGPUQueue,
						Image: cfg.Image(GPUImage),
					},
					Packages: &domain.Packages{Manager: "pypi", Disabled: true},
				},
				{ID: domain.StepEnd},
			},
		},
		Steps: map[string]flow.StepFunc{
			domain.StepStart: func(ctx context.Context, s *flow.State) error {
				detected := prober.Available(ctx)
				s.Set("gpu_detected", detected)

				if detected {
					telemetry.FromContext(ctx).Info("GPU is available!")
				} else {
					telemetry.FromContext(ctx).Warn("GPU is NOT available!")
				}
				return nil
			},
			domain.StepEnd: func(context.Context, *flow.State) error { return nil },
		},
	}
}

func copyDeps(deps map[string]string) map[string]string {
	out := make(map[string]string, len(deps))
	for k, v := range deps {
		out[k] = v
	}
	return out
}
