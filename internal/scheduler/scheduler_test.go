package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/repo"
	"github.com/shaiso/batchflows/internal/runner"
	"github.com/shaiso/batchflows/internal/telemetry"
)

func TestNormalizeCron(t *testing.T) {
	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{expr: "*/5 * * * *", want: "*/5 * * * *"},
		{expr: "0/5 * * * ? *", want: "0/5 * * * *"},
		{expr: "0 12 ? * 2-6 *", want: "0 12 * * 1-5"},
		{expr: "0 12 ? * 1,7 *", want: "0 12 * * 0,6"},
		{expr: "0 12 ? * MON-FRI *", want: "0 12 * * MON-FRI"},
		{expr: "0 12 ? * 2/2 *", want: "0 12 * * 1/2"},
		{expr: "0 12 * * ? 2030", wantErr: true},
		{expr: "0 12 ? * 8 *", wantErr: true},
		{expr: "* * *", wantErr: true},
		{expr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := NormalizeCron(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCron)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextDue_EveryFiveMinutes(t *testing.T) {
	from := time.Date(2026, 10, 18, 10, 2, 30, 0, time.UTC)

	next, err := NextDue("0/5 * * * ? *", "", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 5, 0, 0, time.UTC), next)

	times, err := NextN("0/5 * * * ? *", "", from, 3)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, 5*time.Minute, times[1].Sub(times[0]))
	assert.Equal(t, 5*time.Minute, times[2].Sub(times[1]))
}

func TestNextDue_Timezone(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextDue("0 9 * * *", "Europe/Moscow", from)
	require.NoError(t, err)
	// 09:00 MSK = 06:00 UTC
	assert.Equal(t, time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC), next)

	// Неизвестная timezone — UTC
	next, err = NextDue("0 9 * * *", "Mars/Olympus", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0/5 * * * ? *"))
	assert.ErrorIs(t, ValidateCron("61 * * * *"), ErrInvalidCron)
}

type launch struct {
	flow   string
	params map[string]any
	key    string
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches []launch
	fail     map[string]error
}

func (l *fakeLauncher) Launch(_ context.Context, def *flow.Definition, params map[string]any, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail[def.Name()]; err != nil {
		return err
	}
	l.launches = append(l.launches, launch{flow: def.Name(), params: params, key: key})
	return nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func scheduledFlow(name, cron string) *flow.Definition {
	noop := func(context.Context, *flow.State) error { return nil }
	return &flow.Definition{
		Spec: &domain.FlowSpec{
			Name:     name,
			Schedule: &domain.Schedule{Cron: cron, Params: map[string]any{"n": 1}},
			Parameters: []domain.Parameter{
				{Name: "n", Default: 0},
			},
			Steps: []domain.StepDef{
				{ID: domain.StepStart, Next: []string{domain.StepEnd}},
				{ID: domain.StepEnd},
			},
		},
		Steps: map[string]flow.StepFunc{domain.StepStart: noop, domain.StepEnd: noop},
	}
}

type fixture struct {
	clock     *clockwork.FakeClock
	launcher  *fakeLauncher
	runs      *repo.MemoryRunRepo
	schedules *repo.MemoryScheduleRepo
	sched     *Scheduler
}

func newFixture(t *testing.T, defs ...*flow.Definition) *fixture {
	t.Helper()

	reg := flow.NewRegistry()
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}

	f := &fixture{
		clock:     clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 10, 2, 0, 0, time.UTC)),
		launcher:  &fakeLauncher{fail: map[string]error{}},
		runs:      repo.NewMemoryRunRepo(),
		schedules: repo.NewMemoryScheduleRepo(),
	}
	f.sched = New(Config{
		Flows:     reg,
		Schedules: f.schedules,
		Runs:      f.runs,
		Launcher:  f.launcher,
		Clock:     f.clock,
		Logger:    telemetry.Discard(),
	})
	require.NoError(t, f.sched.Sync(context.Background()))
	return f
}

func TestSync_RegistersScheduledFlows(t *testing.T) {
	unscheduled := scheduledFlow("Manual", "")
	unscheduled.Spec.Schedule = nil

	f := newFixture(t, scheduledFlow("Every5", "0/5 * * * ? *"), unscheduled)

	states, err := f.schedules.List(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "Every5", states[0].Flow)
	assert.True(t, states[0].Enabled)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 5, 0, 0, time.UTC), *states[0].NextDueAt)
}

func TestSync_KeepsNextDueWhenCronUnchanged(t *testing.T) {
	f := newFixture(t, scheduledFlow("Every5", "0/5 * * * ? *"))

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.sched.Sync(context.Background()))

	state, err := f.schedules.Get(context.Background(), "Every5")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 5, 0, 0, time.UTC), *state.NextDueAt)
}

func TestSync_InvalidCron(t *testing.T) {
	reg := flow.NewRegistry()
	require.NoError(t, reg.Register(scheduledFlow("Broken", "not a cron")))

	s := New(Config{Flows: reg, Launcher: &fakeLauncher{}, Logger: telemetry.Discard()})
	assert.ErrorIs(t, s.Sync(context.Background()), ErrInvalidCron)
}

func TestTick_FiresOncePerSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduledFlow("Every5", "0/5 * * * ? *"))

	// Ещё рано
	require.NoError(t, f.sched.Tick(ctx))
	assert.Equal(t, 0, f.launcher.count())

	f.clock.Advance(3 * time.Minute) // 10:05
	require.NoError(t, f.sched.Tick(ctx))
	require.NoError(t, f.sched.Tick(ctx))
	require.Equal(t, 1, f.launcher.count())

	due := time.Date(2026, 10, 18, 10, 5, 0, 0, time.UTC)
	got := f.launcher.launches[0]
	assert.Equal(t, "Every5", got.flow)
	assert.Equal(t, IdempotencyKey("Every5", due), got.key)
	assert.Equal(t, map[string]any{"n": 1}, got.params)

	state, err := f.schedules.Get(ctx, "Every5")
	require.NoError(t, err)
	assert.Equal(t, due.Add(5*time.Minute), *state.NextDueAt)
	require.NotNil(t, state.LastRunAt)
	assert.Nil(t, state.LastRunID)

	f.clock.Advance(5 * time.Minute) // 10:10
	require.NoError(t, f.sched.Tick(ctx))
	assert.Equal(t, 2, f.launcher.count())
}

func TestTick_SkipsExistingRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduledFlow("Every5", "0/5 * * * ? *"))

	due := time.Date(2026, 10, 18, 10, 5, 0, 0, time.UTC)
	run := domain.NewRun("Every5", nil)
	run.IdempotencyKey = IdempotencyKey("Every5", due)
	require.NoError(t, f.runs.Create(ctx, run))

	f.clock.Advance(3 * time.Minute)
	require.NoError(t, f.sched.Tick(ctx))
	assert.Equal(t, 0, f.launcher.count())

	state, err := f.schedules.Get(ctx, "Every5")
	require.NoError(t, err)
	assert.Equal(t, due.Add(5*time.Minute), *state.NextDueAt)
	require.NotNil(t, state.LastRunID)
	assert.Equal(t, run.ID, *state.LastRunID)
}

func TestTick_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		scheduledFlow("Broken", "*/5 * * * *"),
		scheduledFlow("Healthy", "*/5 * * * *"),
	)
	f.launcher.fail["Broken"] = errors.New("no capacity")

	f.clock.Advance(3 * time.Minute)
	require.NoError(t, f.sched.Tick(ctx))

	require.Equal(t, 1, f.launcher.count())
	assert.Equal(t, "Healthy", f.launcher.launches[0].flow)

	// Слот упавшего расписания не сдвигается, следующий тик повторит попытку
	state, err := f.schedules.Get(ctx, "Broken")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 5, 0, 0, time.UTC), *state.NextDueAt)
}

func TestTick_DisabledSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduledFlow("Every5", "*/5 * * * *"))

	state, err := f.schedules.Get(ctx, "Every5")
	require.NoError(t, err)
	state.Enabled = false
	require.NoError(t, f.schedules.Upsert(ctx, state))

	f.clock.Advance(time.Hour)
	require.NoError(t, f.sched.Tick(ctx))
	assert.Equal(t, 0, f.launcher.count())
}

func TestRun_TicksOnClock(t *testing.T) {
	f := newFixture(t, scheduledFlow("Every5", "*/5 * * * *"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx, time.Second, nil) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(3 * time.Minute)

	assert.Eventually(t, func() bool { return f.launcher.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_NotLeader(t *testing.T) {
	f := newFixture(t, scheduledFlow("Every5", "*/5 * * * *"))

	ctx, cancel := context.WithCancel(context.Background())
	checked := make(chan struct{}, 1)
	leader := func(context.Context) bool {
		select {
		case checked <- struct{}{}:
		default:
		}
		return false
	}

	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx, time.Second, leader) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(3 * time.Minute)
	<-checked

	cancel()
	<-done
	assert.Equal(t, 0, f.launcher.count())
}

func TestRunnerLauncher(t *testing.T) {
	runs := repo.NewMemoryRunRepo()

	var mu sync.Mutex
	var results []*runner.Result
	launcher := &RunnerLauncher{
		Options: runner.Options{
			Store:  datastore.NewLocalStore(t.TempDir()),
			Runs:   runs,
			Logger: telemetry.Discard(),
		},
		OnRun: func(result *runner.Result, err error) {
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		},
	}

	def := scheduledFlow("Every5", "*/5 * * * *")
	require.NoError(t, launcher.Launch(context.Background(), def, map[string]any{"n": 3}, "Every5_1"))
	launcher.Wait()

	require.Len(t, results, 1)
	assert.Equal(t, "Every5_1", results[0].Run.IdempotencyKey)
	assert.Equal(t, 3, results[0].Run.Params["n"])

	run, err := runs.GetByIdempotencyKey(context.Background(), "Every5", "Every5_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
}

func TestRunnerLauncher_PrepareError(t *testing.T) {
	launcher := &RunnerLauncher{Options: runner.Options{Environment: "conda", Logger: telemetry.Discard()}}

	err := launcher.Launch(context.Background(), scheduledFlow("Every5", "*/5 * * * *"), nil, "k")
	assert.ErrorIs(t, err, runner.ErrUnknownEnvironment)
	launcher.Wait()
}
