//go:build integration

package flows

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/gpu"
	"github.com/shaiso/batchflows/internal/runner"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// Запуск в AWS Batch. Нужны учётные данные AWS, переменные стека
// и общий datastore:
//
//	FLOWS_DATASTORE=s3://bucket/prefix go test -tags integration ./internal/flows/
func remoteRunner(t *testing.T, def *flow.Definition, environment string) *runner.Runner {
	t.Helper()

	root := os.Getenv(backend.EnvDatastore)
	if root == "" {
		t.Skipf("%s is not set", backend.EnvDatastore)
	}

	ctx := context.Background()
	cfg := config.Default()

	store, err := datastore.New(ctx, root)
	require.NoError(t, err)

	logger := telemetry.NewLogger(os.Stderr, "text", telemetry.LogLevel())
	executors, err := runner.NewExecutors(ctx, store, root, cfg, logger)
	require.NoError(t, err)

	return runner.New(def, runner.Options{
		Environment: environment,
		DecoSpecs:   []string{"batch"},
		Env:         cfg.Env(),
		Store:       store,
		Executors:   executors,
		Logger:      logger,
	})
}

func TestExampleFlow_Remote(t *testing.T) {
	r := remoteRunner(t, ExampleFlow(), runner.EnvironmentPyPI)

	result, err := r.Run(context.Background(), map[string]any{"multiplier": 5})
	require.NoError(t, err)

	multiplier, err := result.Data.Int("multiplier")
	require.NoError(t, err)
	assertScaled(t, result.Data, float64(multiplier))
}

func TestExampleGPUFlow_Remote(t *testing.T) {
	r := remoteRunner(t, ExampleGPUFlow(config.Default(), gpu.NewSystemProber()), "")

	result, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	detected, err := result.Data.Bool("gpu_detected")
	require.NoError(t, err)
	require.True(t, detected)
}
