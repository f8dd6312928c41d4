package client

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

	"github.com/opensnatch/snatchd/pkg/types"
)

const requestTimeout = 10 * time.Second

// Client is a typed HTTP client for the snatchd REST API, used by the
// CLI subcommands.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the server at baseURL. apiKey may be empty
// when the server runs without authentication.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// apiError is the server's uniform error envelope.
type apiError struct {
	Error string `json:"error"`
}

// do issues one request and decodes the JSON response into out (when
// out is non-nil). Non-2xx responses are returned as errors carrying
// the server's message.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiError
		if jerr := json.Unmarshal(data, &envelope); jerr == nil && envelope.Error != "" {
			return fmt.Errorf("%s", envelope.Error)
		}
		return fmt.Errorf("HTTP %d from server", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListProfiles returns the configured profile aliases in display order.
func (c *Client) ListProfiles(ctx context.Context) ([]string, error) {
	var aliases []string
	err := c.do(ctx, http.MethodGet, "/profiles", nil, &aliases)
	return aliases, err
}

// UpsertProfile creates or patches a profile.
func (c *Client) UpsertProfile(ctx context.Context, alias string, prof *types.Profile) error {
	return c.do(ctx, http.MethodPost, "/profiles", map[string]interface{}{
		"alias":        alias,
		"profile_data": prof,
	}, nil)
}

// GetProfile returns one profile.
func (c *Client) GetProfile(ctx context.Context, alias string) (*types.Profile, error) {
	var prof types.Profile
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(alias), nil, &prof); err != nil {
		return nil, err
	}
	return &prof, nil
}

// DeleteProfile removes a profile.
func (c *Client) DeleteProfile(ctx context.Context, alias string) error {
	return c.do(ctx, http.MethodDelete, "/profiles/"+url.PathEscape(alias), nil, nil)
}

// ListInstances returns the derived instance rows of one profile.
func (c *Client) ListInstances(ctx context.Context, alias string) ([]types.InstanceSummary, error) {
	var summaries []types.InstanceSummary
	err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(alias)+"/instances", nil, &summaries)
	return summaries, err
}

// LaunchInstance starts snatch tasks and returns their ids.
func (c *Client) LaunchInstance(ctx context.Context, alias string, details types.SnatchDetails) ([]string, error) {
	var resp struct {
		TaskIDs []string `json:"task_ids"`
	}
	err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(alias)+"/launch-instance", details, &resp)
	return resp.TaskIDs, err
}

// CreateInstance starts a one-shot create task and returns its id.
func (c *Client) CreateInstance(ctx context.Context, alias string, details types.SnatchDetails) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(alias)+"/create-instance", details, &resp)
	return resp.TaskID, err
}

// InstanceAction queues an action against an instance and returns the
// task id.
func (c *Client) InstanceAction(ctx context.Context, alias, instanceID, kind string, params map[string]interface{}) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(alias)+"/instance-action", map[string]interface{}{
		"action":      kind,
		"instance_id": instanceID,
		"params":      params,
	}, &resp)
	return resp.TaskID, err
}

// RunningSnatches returns the running and paused snatch tasks.
func (c *Client) RunningSnatches(ctx context.Context) ([]types.Task, error) {
	var tasks []types.Task
	err := c.do(ctx, http.MethodGet, "/tasks/snatching/running", nil, &tasks)
	return tasks, err
}

// CompletedSnatches returns terminal snatch tasks, newest first.
// limit 0 means no limit.
func (c *Client) CompletedSnatches(ctx context.Context, limit int) ([]types.Task, error) {
	path := "/tasks/snatching/completed"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var tasks []types.Task
	err := c.do(ctx, http.MethodGet, path, nil, &tasks)
	return tasks, err
}

// TaskStatus returns one task's status, result and type.
func (c *Client) TaskStatus(ctx context.Context, id string) (status, result, taskType string, err error) {
	var resp struct {
		Status string `json:"status"`
		Result string `json:"result"`
		Type   string `json:"type"`
	}
	err = c.do(ctx, http.MethodGet, "/task_status/"+url.PathEscape(id), nil, &resp)
	return resp.Status, resp.Result, resp.Type, err
}

// StopTask pauses a running snatch.
func (c *Client) StopTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/stop", nil, nil)
}

// ResumeTasks resumes paused snatches; it returns the resumed ids and a
// per-id reason for the rest.
func (c *Client) ResumeTasks(ctx context.Context, ids []string) (resumed []string, failed map[string]string, err error) {
	var resp struct {
		Resumed []string          `json:"resumed"`
		Failed  map[string]string `json:"failed"`
	}
	err = c.do(ctx, http.MethodPost, "/tasks/resume", map[string][]string{"task_ids": ids}, &resp)
	return resp.Resumed, resp.Failed, err
}

// DeleteTask removes a non-running task row.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// TelegramSettings reads the Telegram notification config.
func (c *Client) TelegramSettings(ctx context.Context) (*types.TelegramSettings, error) {
	var cfg types.TelegramSettings
	if err := c.do(ctx, http.MethodGet, "/tg-config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetTelegramSettings writes the Telegram notification config.
func (c *Client) SetTelegramSettings(ctx context.Context, cfg *types.TelegramSettings) error {
	return c.do(ctx, http.MethodPost, "/tg-config", cfg, nil)
}

// CloudflareSettings reads the Cloudflare DNS config.
func (c *Client) CloudflareSettings(ctx context.Context) (*types.CloudflareSettings, error) {
	var cfg types.CloudflareSettings
	if err := c.do(ctx, http.MethodGet, "/cloudflare-config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetCloudflareSettings writes the Cloudflare DNS config.
func (c *Client) SetCloudflareSettings(ctx context.Context, cfg *types.CloudflareSettings) error {
	return c.do(ctx, http.MethodPost, "/cloudflare-config", cfg, nil)
}

// SetDefaultSSHKey writes the global fallback SSH public key.
func (c *Client) SetDefaultSSHKey(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/default-ssh-key", types.DefaultSSHKey{Key: key}, nil)
}
