package flows

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/engine"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/gpu"
	"github.com/shaiso/batchflows/internal/runner"
	"github.com/shaiso/batchflows/internal/telemetry"
)

const tolerance = 1e-9

func testConfig() config.Config {
	return config.Resolve(config.MapLookup(map[string]string{
		config.EnvAWSAccountID:  "123456789012",
		config.EnvAWSRegion:     "us-west-2",
		config.EnvCFNStackName:  "metaflow",
		config.EnvTestNamespace: "ci",
	}))
}

// localBatch подменяет AWS Batch локальным выполнением.
func localBatch() *backend.Registry {
	executors := backend.NewRegistry()
	executors.Register(backend.Batch, backend.NewLocalExecutor())
	return executors
}

func newRunner(t *testing.T, def *flow.Definition, opts runner.Options) *runner.Runner {
	t.Helper()
	opts.Store = datastore.NewLocalStore(t.TempDir())
	opts.Logger = telemetry.Discard()
	return runner.New(def, opts)
}

func values(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := range r {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// assertScaled проверяет, что my_data_tf = multiplier * my_data
// по среднему и стандартному отклонению.
func assertScaled(t *testing.T, data *flow.State, multiplier float64) {
	t.Helper()

	original, err := data.Matrix("my_data")
	require.NoError(t, err)
	scaled, err := data.Matrix("my_data_tf")
	require.NoError(t, err)

	r, c := original.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)

	meanA, stdA := stat.PopMeanStdDev(values(original), nil)
	meanB, stdB := stat.PopMeanStdDev(values(scaled), nil)

	assert.InDelta(t, 0, multiplier*meanA-meanB, tolerance)
	assert.InDelta(t, 0, multiplier*stdA-stdB, tolerance)
	assert.InDelta(t, 0, multiplier*math.Sqrt(stat.PopVariance(values(original), nil))-stdB, tolerance)
}

func TestExampleFlow(t *testing.T) {
	r := newRunner(t, ExampleFlow(), runner.Options{})

	result, err := r.Run(context.Background(), map[string]any{"multiplier": 5})
	require.NoError(t, err)

	multiplier, err := result.Data.Int("multiplier")
	require.NoError(t, err)
	assert.Equal(t, 5, multiplier)

	assertScaled(t, result.Data, float64(multiplier))

	message, err := result.Data.String("message")
	require.NoError(t, err)
	assert.Equal(t, "Finished!", message)
}

func TestExampleFlow_DefaultMultiplier(t *testing.T) {
	r := newRunner(t, ExampleFlow(), runner.Options{})

	result, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	multiplier, err := result.Data.Int("multiplier")
	require.NoError(t, err)
	assert.Equal(t, DefaultMultiplier, multiplier)
	assertScaled(t, result.Data, DefaultMultiplier)
}

func TestExampleFlow_MultiplierFromCLI(t *testing.T) {
	params, err := runner.ParseAssignments([]string{"multiplier=7"})
	require.NoError(t, err)

	r := newRunner(t, ExampleFlow(), runner.Options{})
	result, err := r.Run(context.Background(), params)
	require.NoError(t, err)
	assertScaled(t, result.Data, 7)
}

func TestExampleFlow_BatchDecoSpec(t *testing.T) {
	r := newRunner(t, ExampleFlow(), runner.Options{
		Environment: runner.EnvironmentPyPI,
		DecoSpecs:   []string{"batch"},
		Executors:   localBatch(),
	})

	result, err := r.Run(context.Background(), map[string]any{"multiplier": 5})
	require.NoError(t, err)
	assertScaled(t, result.Data, 5)

	for _, task := range result.Tasks {
		assert.Equal(t, backend.Batch, task.Backend, task.StepID)
	}
}

func TestExampleFlow_Spec(t *testing.T) {
	def := ExampleFlow()
	require.NoError(t, def.Validate())

	assert.Equal(t, ExampleSchedule, def.Spec.Schedule.Cron)
	process := def.Spec.Step("process")
	require.NotNil(t, process)
	assert.Equal(t, "2.1.0", process.Packages.Packages["numpy"])
	assert.Nil(t, process.Batch)

	dag, err := engine.BuildDAG(def.Spec)
	require.NoError(t, err)
	assert.True(t, dag.IsLinear())
}

func TestExampleGPUFlow(t *testing.T) {
	tests := []struct {
		name   string
		prober gpu.Static
	}{
		{name: "gpu available", prober: true},
		{name: "no gpu", prober: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(t, ExampleGPUFlow(testConfig(), tt.prober), runner.Options{
				DecoSpecs: []string{"batch"},
				Executors: localBatch(),
			})

			result, err := r.Run(context.Background(), nil)
			require.NoError(t, err)

			detected, err := result.Data.Bool("gpu_detected")
			require.NoError(t, err)
			assert.Equal(t, bool(tt.prober), detected)
		})
	}
}

func TestExampleGPUFlow_Decorations(t *testing.T) {
	cfg := testConfig()
	def := ExampleGPUFlow(cfg, gpu.Static(true))
	require.NoError(t, def.Validate())

	start := def.Spec.Step(domain.StepStart)
	require.NotNil(t, start.Batch)
	assert.Equal(t, 1, start.Batch.GPU)
	assert.Equal(t, "metaflow-gpu", start.Batch.Queue)
	assert.Equal(t,
		"123456789012.dkr.ecr.us-west-2.amazonaws.com/metaflow/pytorch-extras:2.4.0-cuda12.4-cudnn9-runtime",
		start.Batch.Image)
	require.NotNil(t, start.Packages)
	assert.True(t, start.Packages.Disabled)

	assert.Equal(t, "1.0.1", def.Spec.BasePackages.Packages["python-dotenv"])
	assert.Nil(t, def.Spec.Step(domain.StepEnd).Batch)
}

func TestExampleGPUFlow_QueueOverride(t *testing.T) {
	cfg := config.Resolve(config.OverlayLookup(config.MapLookup(nil), map[string]string{
		config.EnvCFNStackName: "other-stack",
	}))
	def := ExampleGPUFlow(cfg, gpu.Static(false))

	start := def.Spec.Step(domain.StepStart)
	assert.Equal(t, "other-stack-gpu", start.Batch.Queue)
	assert.Equal(t, "None.dkr.ecr.None.amazonaws.com/other-stack/"+GPUImage, start.Batch.Image)
}

func TestExampleGPUFlow_PyPIDisabledDecoSpec(t *testing.T) {
	r := newRunner(t, ExampleGPUFlow(testConfig(), gpu.Static(true)), runner.Options{
		Environment: runner.EnvironmentPyPI,
		DecoSpecs:   []string{"batch:queue=override", "pypi:disabled=true"},
		Executors:   localBatch(),
	})

	def, err := r.Prepare()
	require.NoError(t, err)

	start := def.Spec.Step(domain.StepStart)
	// Явная очередь шага не перекрывается decospec
	assert.Equal(t, "metaflow-gpu", start.Batch.Queue)
	assert.Equal(t, "override", def.Spec.Step(domain.StepEnd).Batch.Queue)
	assert.True(t, def.Spec.Step(domain.StepEnd).Packages.Disabled)
}

func TestRegistry(t *testing.T) {
	reg := Registry(testConfig(), gpu.Static(false))
	assert.Equal(t, []string{ExampleFlowName, ExampleGPUFlowName}, reg.Names())

	def, err := reg.Get(ExampleGPUFlowName)
	require.NoError(t, err)
	assert.Equal(t, "metaflow-gpu", def.Spec.Step(domain.StepStart).Batch.Queue)
}
