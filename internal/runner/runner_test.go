package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/batchflows/internal/backend"
	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/telemetry"
)

// counterFlow: start -> double -> end.
func counterFlow(double flow.StepFunc) *flow.Definition {
	return &flow.Definition{
		Spec: &domain.FlowSpec{
			Name:       "CounterFlow",
			Parameters: []domain.Parameter{{Name: "n", Default: 2}},
			BasePackages: &domain.Packages{
				Manager:  "pypi",
				Packages: map[string]string{"python-dotenv": "1.0.1"},
			},
			Steps: []domain.StepDef{
				{ID: "start", Next: []string{"double"}},
				{ID: "double", Next: []string{"end"}},
				{ID: domain.StepEnd},
			},
		},
		Steps: map[string]flow.StepFunc{
			"start": func(_ context.Context, s *flow.State) error {
				s.Set("started", true)
				return nil
			},
			"double": double,
			"end":    func(context.Context, *flow.State) error { return nil },
		},
	}
}

func doubleStep(_ context.Context, s *flow.State) error {
	n, err := s.Int("n")
	if err != nil {
		return err
	}
	s.Set("result", n*2)
	return nil
}

func newTestRunner(t *testing.T, def *flow.Definition, opts Options) (*Runner, *datastore.LocalStore) {
	t.Helper()
	store := datastore.NewLocalStore(t.TempDir())
	if opts.Store == nil {
		opts.Store = store
	}
	opts.Logger = telemetry.Discard()
	return New(def, opts), store
}

func TestRun_Success(t *testing.T) {
	runs := repo.NewMemoryRunRepo()
	r, store := newTestRunner(t, counterFlow(doubleStep), Options{Runs: runs})

	result, err := r.Run(context.Background(), map[string]any{"n": "21"})
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, domain.RunStatusSucceeded, result.Run.Status)
	assert.Equal(t, 21, result.Run.Params["n"])

	got, err := result.Data.Int("result")
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	started, err := result.Data.Bool("started")
	require.NoError(t, err)
	assert.True(t, started)

	require.Len(t, result.Tasks, 3)
	for i, id := range []string{"start", "double", "end"} {
		task := result.Tasks[i]
		assert.Equal(t, id, task.StepID)
		assert.Equal(t, domain.TaskStatusSucceeded, task.Status)
		assert.Equal(t, backend.Local, task.Backend)
		assert.Equal(t, 1, task.Attempt)
		assert.NotEmpty(t, task.ArtifactsRef)
	}

	// Артефакты шага сохранены в datastore
	saved, err := store.Load(context.Background(), datastore.Key{
		Flow:   "CounterFlow",
		RunID:  result.Run.ID.String(),
		StepID: "double",
		TaskID: result.Task("double").ID.String(),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, saved["result"])

	stored, err := runs.GetByID(context.Background(), result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, stored.Status)
}

func TestRun_DefaultParams(t *testing.T) {
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{})

	result, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	got, err := result.Data.Int("result")
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestRun_UnknownParameter(t *testing.T) {
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{})

	_, err := r.Run(context.Background(), map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestRun_UnknownEnvironment(t *testing.T) {
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{Environment: "conda"})

	_, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
}

func TestRun_StepFailure(t *testing.T) {
	boom := errors.New("boom")
	r, _ := newTestRunner(t, counterFlow(func(context.Context, *flow.State) error { return boom }), Options{})

	result, err := r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepFailed)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "double")

	require.NotNil(t, result)
	assert.False(t, result.Succeeded())
	assert.Equal(t, domain.RunStatusFailed, result.Run.Status)
	assert.Contains(t, result.Run.Error, "boom")

	// end не выполнялся
	require.Len(t, result.Tasks, 2)
	assert.Equal(t, domain.TaskStatusFailed, result.Task("double").Status)
	assert.Nil(t, result.Task("end"))
}

func TestRun_Retry(t *testing.T) {
	calls := 0
	def := counterFlow(func(ctx context.Context, s *flow.State) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return doubleStep(ctx, s)
	})
	def.Spec.Steps[1].Retry = &domain.RetryPolicy{MaxAttempts: 3, InitialDelayMs: 1}

	r, _ := newTestRunner(t, def, Options{})
	result, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Task("double").Attempt)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	def := counterFlow(func(context.Context, *flow.State) error {
		cancel()
		return nil
	})

	r, _ := newTestRunner(t, def, Options{})
	result, err := r.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunStatusFailed, result.Run.Status)
}

func TestRun_IdempotencyKey(t *testing.T) {
	runs := repo.NewMemoryRunRepo()
	opts := Options{Runs: runs, IdempotencyKey: "CounterFlow_1700000000"}

	r, _ := newTestRunner(t, counterFlow(doubleStep), opts)
	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)
}

// recordingExecutor запоминает jobs и выполняет их локально.
type recordingExecutor struct {
	mu   sync.Mutex
	jobs []backend.Job
}

func (e *recordingExecutor) Execute(ctx context.Context, job *backend.Job) (*backend.Result, error) {
	e.mu.Lock()
	e.jobs = append(e.jobs, *job)
	e.mu.Unlock()

	result, err := backend.NewLocalExecutor().Execute(ctx, job)
	if err != nil {
		return nil, err
	}
	result.JobID = "job-" + job.Step.ID
	return result, nil
}

func TestRun_DecoSpecBatch(t *testing.T) {
	batchExec := &recordingExecutor{}
	executors := backend.NewRegistry()
	executors.Register(backend.Batch, batchExec)

	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{
		DecoSpecs: []string{"batch:queue=q-gpu,gpu=1"},
		Executors: executors,
		Env:       map[string]string{"CFN_STACK_NAME": "metaflow"},
	})

	result, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"batch:queue=q-gpu,gpu=1"}, result.Run.DecoSpecs)
	require.Len(t, batchExec.jobs, 3)
	for _, job := range batchExec.jobs {
		require.NotNil(t, job.Step.Batch)
		assert.Equal(t, "q-gpu", job.Step.Batch.Queue)
		assert.Equal(t, 1, job.Step.Batch.GPU)
		assert.Equal(t, "metaflow", job.Env["CFN_STACK_NAME"])
		// Без --environment=pypi пакеты не передаются
		assert.Nil(t, job.Flow.Spec.BasePackages)
	}

	double := result.Task("double")
	assert.Equal(t, backend.Batch, double.Backend)
	assert.Equal(t, "job-double", double.JobID)
}

func TestRun_EnvironmentPyPIKeepsPackages(t *testing.T) {
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{Environment: EnvironmentPyPI})

	def, err := r.Prepare()
	require.NoError(t, err)
	require.NotNil(t, def.Spec.BasePackages)
	assert.Equal(t, "1.0.1", def.Spec.BasePackages.Packages["python-dotenv"])
}

func TestRun_MissingBatchBackend(t *testing.T) {
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{DecoSpecs: []string{"batch"}})

	_, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStepFailed)
	assert.ErrorIs(t, err, backend.ErrUnknownBackend)
}

func TestRun_InvalidDecoSpec(t *testing.T) {
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{DecoSpecs: []string{"kubernetes"}})

	_, err := r.Run(context.Background(), nil)
	assert.Error(t, err)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (n *recordingNotifier) RunChanged(_ context.Context, run *domain.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "run:"+string(run.Status))
	if n.fail {
		return errors.New("broker down")
	}
	return nil
}

func (n *recordingNotifier) TaskChanged(_ context.Context, flowName string, task *domain.Task) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, flowName+"/"+task.StepID+":"+string(task.Status))
	if n.fail {
		return errors.New("broker down")
	}
	return nil
}

func TestRun_Notifier(t *testing.T) {
	notifier := &recordingNotifier{}
	r, _ := newTestRunner(t, counterFlow(doubleStep), Options{Notifier: notifier})

	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"run:RUNNING",
		"CounterFlow/start:SUCCEEDED",
		"CounterFlow/double:SUCCEEDED",
		"CounterFlow/end:SUCCEEDED",
		"run:SUCCEEDED",
	}, notifier.events)
}

func TestRun_NotifierFailureDoesNotFailRun(t *testing.T) {
	notifier := &recordingNotifier{fail: true}
	r, _ := newTestRunner(t, counterFlow(func(context.Context, *flow.State) error {
		return errors.New("boom")
	}), Options{Notifier: notifier})

	result, err := r.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Equal(t, domain.RunStatusFailed, result.Run.Status)
	assert.Equal(t, "run:FAILED", notifier.events[len(notifier.events)-1])
	assert.Contains(t, notifier.events, "CounterFlow/double:FAILED")
}
