package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/cenkalti/backoff/v5"

	"github.com/shaiso/batchflows/internal/datastore"
	"github.com/shaiso/batchflows/internal/domain"
)

// Переменные окружения, которые получает удалённый шаг.
const (
	EnvDatastore = "FLOWS_DATASTORE"
	EnvPackages  = "FLOWS_PACKAGES"
)

// EnvJobRole — IAM роль заданий AWS Batch.
const EnvJobRole = "FLOWS_BATCH_JOB_ROLE"

// Значения по умолчанию для BatchExecutor.
const (
	defaultPollInitial = 5 * time.Second
	defaultPollMax     = time.Minute
	defaultMaxWait     = 24 * time.Hour
	defaultVCPU        = "1"
	defaultMemoryMB    = "4096"
	jobDefinitionPref  = "batchflows-"
	minJobTimeoutSec   = 60
)

// errJobPending — задание ещё не в терминальном статусе.
var errJobPending = errors.New("batch job is not finished")

// BatchAPI — используемая часть клиента AWS Batch.
type BatchAPI interface {
	RegisterJobDefinition(ctx context.Context, in *batch.RegisterJobDefinitionInput, optFns ...func(*batch.Options)) (*batch.RegisterJobDefinitionOutput, error)
	SubmitJob(ctx context.Context, in *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, in *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
}

// NewBatchClient создаёт клиент AWS Batch.
// region "" или "None" означает регион из стандартной цепочки AWS.
func NewBatchClient(ctx context.Context, region string) (*batch.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" && region != "None" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return batch.NewFromConfig(cfg), nil
}

// BatchConfig — конфигурация BatchExecutor.
type BatchConfig struct {
	// Client — клиент AWS Batch.
	Client BatchAPI

	// Store — datastore, доступный и отсюда, и из контейнера.
	Store datastore.Store

	// DatastoreRoot — адрес Store для контейнера (FLOWS_DATASTORE).
	DatastoreRoot string

	// JobRoleARN — IAM роль заданий (опционально).
	JobRoleARN string

	// DefaultQueue и DefaultImage подставляются в шаги,
	// у которых batch-декорация не задаёт очередь или образ.
	DefaultQueue string
	DefaultImage string

	// Command — бинарник внутри образа (default: ["flowctl"]).
	Command []string

	// Интервалы опроса статуса задания.
	PollInitial time.Duration
	PollMax     time.Duration

	// MaxWait — сколько ждать завершения задания (default: 24h).
	MaxWait time.Duration

	Logger *slog.Logger
}

// BatchExecutor выполняет шаги заданиями AWS Batch.
//
// Job definition регистрируется один раз на образ и кэшируется.
type BatchExecutor struct {
	client        BatchAPI
	store         datastore.Store
	datastoreRoot string
	jobRoleARN    string
	defaultQueue  string
	defaultImage  string
	command       []string
	pollInitial   time.Duration
	pollMax       time.Duration
	maxWait       time.Duration
	logger        *slog.Logger

	mu          sync.Mutex
	definitions map[string]string
}

// NewBatchExecutor создаёт BatchExecutor.
func NewBatchExecutor(cfg BatchConfig) *BatchExecutor {
	e := &BatchExecutor{
		client:        cfg.Client,
		store:         cfg.Store,
		datastoreRoot: cfg.DatastoreRoot,
		jobRoleARN:    cfg.JobRoleARN,
		defaultQueue:  cfg.DefaultQueue,
		defaultImage:  cfg.DefaultImage,
		command:       cfg.Command,
		pollInitial:   cfg.PollInitial,
		pollMax:       cfg.PollMax,
		maxWait:       cfg.MaxWait,
		logger:        cfg.Logger,
		definitions:   make(map[string]string),
	}
	if len(e.command) == 0 {
		e.command = []string{"flowctl"}
	}
	if e.pollInitial <= 0 {
		e.pollInitial = defaultPollInitial
	}
	if e.pollMax <= 0 {
		e.pollMax = defaultPollMax
	}
	if e.maxWait <= 0 {
		e.maxWait = defaultMaxWait
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute отправляет шаг в AWS Batch и ждёт завершения.
//
// Порядок: вход сохраняется в datastore, задание отправляется,
// статус опрашивается с exponential backoff, выход читается из datastore.
// Datastore должен быть общим (s3://): контейнер не видит локальных файлов.
func (e *BatchExecutor) Execute(ctx context.Context, job *Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if job.Step.Batch == nil {
		return nil, fmt.Errorf("%w: step %s has no batch decoration", ErrInvalidJob, job.Step.ID)
	}
	if !datastore.IsShared(e.datastoreRoot) {
		return nil, fmt.Errorf("%w: %q, step %s", ErrLocalDatastore, e.datastoreRoot, job.Step.ID)
	}
	deco := e.decoration(job.Step.Batch)
	if deco.Image == "" {
		return nil, fmt.Errorf("%w: step %s", ErrNoImage, job.Step.ID)
	}
	if deco.Queue == "" {
		return nil, fmt.Errorf("%w: step %s has no batch queue", ErrInvalidJob, job.Step.ID)
	}

	inputKey := InputKey(job)
	if err := e.store.Save(ctx, inputKey, job.input().Snapshot()); err != nil {
		return nil, fmt.Errorf("save step input: %w", err)
	}

	definition, err := e.jobDefinition(ctx, deco.Image)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("flow", job.Flow.Name(), "step", job.Step.ID, "task_id", job.TaskID)

	submitted, err := e.client.SubmitJob(ctx, e.submitInput(job, deco, definition, inputKey))
	if err != nil {
		return nil, fmt.Errorf("submit batch job: %w", err)
	}
	jobID := aws.ToString(submitted.JobId)
	logger.Info("batch job submitted", "job_id", jobID, "queue", deco.Queue, "gpu", deco.GPU)

	detail, err := e.wait(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for batch job %s: %w", jobID, err)
	}

	if detail.Status == types.JobStatusFailed {
		reason := aws.ToString(detail.StatusReason)
		logger.Warn("batch job failed", "job_id", jobID, "reason", reason)
		return nil, fmt.Errorf("%w: %s: %s", ErrJobFailed, jobID, reason)
	}

	outputKey := OutputKey(job)
	artifacts, err := e.store.Load(ctx, outputKey)
	if err != nil {
		return nil, fmt.Errorf("load output of batch job %s: %w", jobID, err)
	}

	logger.Info("batch job succeeded", "job_id", jobID)
	return &Result{Artifacts: artifacts, JobID: jobID, Location: e.store.Location(outputKey)}, nil
}

// jobDefinition возвращает ARN job definition для образа,
// регистрируя её при первом обращении.
func (e *BatchExecutor) jobDefinition(ctx context.Context, image string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if arn, ok := e.definitions[image]; ok {
		return arn, nil
	}

	props := &types.ContainerProperties{
		Image:   aws.String(image),
		Command: e.command,
		ResourceRequirements: []types.ResourceRequirement{
			{Type: types.ResourceTypeVcpu, Value: aws.String(defaultVCPU)},
			{Type: types.ResourceTypeMemory, Value: aws.String(defaultMemoryMB)},
		},
	}
	if e.jobRoleARN != "" {
		props.JobRoleArn = aws.String(e.jobRoleARN)
	}

	out, err := e.client.RegisterJobDefinition(ctx, &batch.RegisterJobDefinitionInput{
		JobDefinitionName:   aws.String(JobDefinitionName(image)),
		Type:                types.JobDefinitionTypeContainer,
		ContainerProperties: props,
	})
	if err != nil {
		return "", fmt.Errorf("register job definition for %s: %w", image, err)
	}

	arn := aws.ToString(out.JobDefinitionArn)
	e.definitions[image] = arn
	return arn, nil
}

// decoration возвращает копию декорации шага с очередью и образом по умолчанию.
func (e *BatchExecutor) decoration(step *domain.Batch) *domain.Batch {
	deco := *step
	if deco.Queue == "" {
		deco.Queue = e.defaultQueue
	}
	if deco.Image == "" {
		deco.Image = e.defaultImage
	}
	return &deco
}

func (e *BatchExecutor) submitInput(job *Job, deco *domain.Batch, definition string, inputKey datastore.Key) *batch.SubmitJobInput {
	command := append([]string(nil), e.command...)
	command = append(command, StepCommand(job.Flow.Name(), job.Step.ID, job.RunID, job.TaskID, inputKey.TaskID)...)

	in := &batch.SubmitJobInput{
		JobName:       aws.String(jobName(job)),
		JobQueue:      aws.String(deco.Queue),
		JobDefinition: aws.String(definition),
		ContainerOverrides: &types.ContainerOverrides{
			Command:              command,
			Environment:          e.environment(job),
			ResourceRequirements: resourceRequirements(deco),
		},
	}

	if job.Step.TimeoutSec > 0 {
		sec := max(job.Step.TimeoutSec, minJobTimeoutSec)
		in.Timeout = &types.JobTimeout{AttemptDurationSeconds: aws.Int32(int32(sec))}
	}
	return in
}

func (e *BatchExecutor) environment(job *Job) []types.KeyValuePair {
	env := make(map[string]string, len(job.Env)+2)
	for k, v := range job.Env {
		env[k] = v
	}
	if e.datastoreRoot != "" {
		env[EnvDatastore] = e.datastoreRoot
	}
	if pkgs := PackageList(job.Flow.Spec.BasePackages, job.Step.Packages); pkgs != "" {
		env[EnvPackages] = pkgs
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]types.KeyValuePair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, types.KeyValuePair{Name: aws.String(k), Value: aws.String(env[k])})
	}
	return pairs
}

// wait опрашивает DescribeJobs до терминального статуса.
func (e *BatchExecutor) wait(ctx context.Context, jobID string) (types.JobDetail, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.pollInitial
	b.MaxInterval = e.pollMax

	return backoff.Retry(ctx, func() (types.JobDetail, error) {
		out, err := e.client.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: []string{jobID}})
		if err != nil {
			return types.JobDetail{}, err
		}
		if len(out.Jobs) == 0 {
			return types.JobDetail{}, backoff.Permanent(fmt.Errorf("batch job %s not found", jobID))
		}

		detail := out.Jobs[0]
		switch detail.Status {
		case types.JobStatusSucceeded, types.JobStatusFailed:
			return detail, nil
		default:
			e.logger.Debug("batch job in progress", "job_id", jobID, "status", detail.Status)
			return detail, errJobPending
		}
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(e.maxWait))
}

func resourceRequirements(deco *domain.Batch) []types.ResourceRequirement {
	var reqs []types.ResourceRequirement
	if deco.GPU > 0 {
		reqs = append(reqs, types.ResourceRequirement{Type: types.ResourceTypeGpu, Value: aws.String(strconv.Itoa(deco.GPU))})
	}
	if deco.CPU > 0 {
		reqs = append(reqs, types.ResourceRequirement{Type: types.ResourceTypeVcpu, Value: aws.String(strconv.Itoa(deco.CPU))})
	}
	if deco.MemoryMB > 0 {
		reqs = append(reqs, types.ResourceRequirement{Type: types.ResourceTypeMemory, Value: aws.String(strconv.Itoa(deco.MemoryMB))})
	}
	return reqs
}

// JobDefinitionName возвращает имя job definition для образа.
// Имя детерминировано: один образ — одна definition.
func JobDefinitionName(image string) string {
	sum := sha256.Sum256([]byte(image))
	return jobDefinitionPref + hex.EncodeToString(sum[:])[:16]
}

// jobName собирает имя задания из допустимых символов (буквы, цифры, - и _).
func jobName(job *Job) string {
	task := job.TaskID
	if len(task) > 8 {
		task = task[:8]
	}
	raw := job.Flow.Name() + "-" + job.Step.ID + "-" + task

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := b.String()
	if len(name) > 128 {
		name = name[:128]
	}
	return name
}

// PackageList возвращает пакеты шага в виде "name==version,...".
// Пустая строка, если пакеты отключены или их нет.
func PackageList(base, step *domain.Packages) string {
	merged := domain.MergePackages(base, step)
	if merged == nil || merged.Disabled || len(merged.Packages) == 0 {
		return ""
	}

	names := make([]string, 0, len(merged.Packages))
	for name := range merged.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if v := merged.Packages[name]; v != "" {
			parts = append(parts, name+"=="+v)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}
