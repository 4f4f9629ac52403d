package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ParameterResponse — параметр flow из API.
type ParameterResponse struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default any    `json:"default,omitempty"`
	Help    string `json:"help,omitempty"`
}

// FlowResponse — flow из API.
type FlowResponse struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Parameters  []ParameterResponse `json:"parameters,omitempty"`
	Steps       []string            `json:"steps"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID             string         `json:"id"`
	Flow           string         `json:"flow"`
	Status         string         `json:"status"`
	Params         map[string]any `json:"params,omitempty"`
	DecoSpecs      []string       `json:"decospecs,omitempty"`
	StartedAt      string         `json:"started_at,omitempty"`
	FinishedAt     string         `json:"finished_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID           string `json:"id"`
	RunID        string `json:"run_id"`
	StepID       string `json:"step_id"`
	Backend      string `json:"backend"`
	Attempt      int    `json:"attempt"`
	Status       string `json:"status"`
	JobID        string `json:"job_id,omitempty"`
	ArtifactsRef string `json:"artifacts_ref,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	Flow      string         `json:"flow"`
	Cron      string         `json:"cron"`
	Timezone  string         `json:"timezone,omitempty"`
	Enabled   bool           `json:"enabled"`
	NextDueAt string         `json:"next_due_at,omitempty"`
	LastRunAt string         `json:"last_run_at,omitempty"`
	LastRunID string         `json:"last_run_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// LaunchResponse — ответ на асинхронный запуск.
type LaunchResponse struct {
	Flow           string `json:"flow"`
	IdempotencyKey string `json:"idempotency_key"`
}

// --- Request types ---

// CreateRunRequest — запуск flow.
type CreateRunRequest struct {
	Params         map[string]any `json:"params,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Flow   string
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для API flow-scheduler.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Flows ---

// ListFlows возвращает зарегистрированные flows.
func (c *Client) ListFlows(ctx context.Context) ([]FlowResponse, error) {
	var flows []FlowResponse
	err := c.list(ctx, "/api/v1/flows", nil, &flows)
	return flows, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Flow != "" {
		params.Set("flow", opts.Flow)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list(ctx, "/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun запускает flow.
//
// Ответ 202 несёт LaunchResponse. Если run с таким ключом уже есть,
// API отвечает 200 с самим run: тогда заполнен второй результат.
func (c *Client) CreateRun(ctx context.Context, flow string, req CreateRunRequest) (*LaunchResponse, *RunResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/flows/"+url.PathEscape(flow)+"/runs", req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode == http.StatusAccepted {
		var launch LaunchResponse
		if err := json.Unmarshal(dr.Data, &launch); err != nil {
			return nil, nil, err
		}
		return &launch, nil, nil
	}

	var run RunResponse
	if err := json.Unmarshal(dr.Data, &run); err != nil {
		return nil, nil, err
	}
	return &LaunchResponse{Flow: run.Flow, IdempotencyKey: run.IdempotencyKey}, &run, nil
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// ListTasks возвращает tasks для run.
func (c *Client) ListTasks(ctx context.Context, runID string) ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/tasks", nil, &tasks)
	return tasks, err
}

// GetRunData возвращает артефакты шага end.
func (c *Client) GetRunData(ctx context.Context, runID string) (map[string]any, error) {
	var data map[string]any
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/data", &data)
	return data, err
}

// GetTaskArtifacts возвращает артефакты шага run.
func (c *Client) GetTaskArtifacts(ctx context.Context, runID, stepID string) (map[string]any, error) {
	var data map[string]any
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/tasks/"+url.PathEscape(stepID)+"/artifacts", &data)
	return data, err
}

// --- Schedules ---

// ListSchedules возвращает расписания.
func (c *Client) ListSchedules(ctx context.Context) ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list(ctx, "/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// GetSchedule возвращает расписание flow.
func (c *Client) GetSchedule(ctx context.Context, flow string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get(ctx, "/api/v1/schedules/"+url.PathEscape(flow), &schedule)
	return &schedule, err
}

// SetScheduleEnabled включает или выключает расписание flow.
func (c *Client) SetScheduleEnabled(ctx context.Context, flow string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put(ctx, "/api/v1/schedules/"+url.PathEscape(flow)+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPut, path, body, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
