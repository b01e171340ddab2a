package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/pkg/utils/json"
)

// RelayClient is the HTTP client for the relayd /v1 API.
type RelayClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewRelayClient creates a new client.
func NewRelayClient(baseURL, token string, httpClient *http.Client) *RelayClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &RelayClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: httpClient,
	}
}

// ChunkCallback is called for each stream chunk during streaming.
type ChunkCallback func(chunk *entity.StreamChunk)

// ExecuteTaskStream submits a task in streaming mode and calls cb for
// each chunk until the server sends its done sentinel.
func (c *RelayClient) ExecuteTaskStream(ctx context.Context, task *entity.TaskRequest, cb ChunkCallback) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" || data == `"[DONE]"` {
			if data != "" {
				break
			}
			continue
		}

		var chunk entity.StreamChunk
		if err := json.UnmarshalString(data, &chunk); err != nil {
			continue
		}
		if cb != nil {
			cb(&chunk)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// ExecuteTask submits a task in sync mode and returns the TaskResult.
func (c *RelayClient) ExecuteTask(ctx context.Context, task *entity.TaskRequest) (*entity.TaskResult, error) {
	var result entity.TaskResult
	if err := c.postJSON(ctx, "/v1/tasks", task, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Approve submits a tool approval decision for a live task.
func (c *RelayClient) Approve(ctx context.Context, taskID, interactionID string, approved bool) error {
	body := map[string]any{"interaction_id": interactionID, "approved": approved}
	return c.postJSON(ctx, "/v1/tasks/"+taskID+"/approvals", body, nil)
}

// ListAgents returns the pooled agents.
func (c *RelayClient) ListAgents(ctx context.Context) ([]map[string]any, error) {
	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := c.getJSON(ctx, "/v1/agents", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListRunners returns the pooled runners.
func (c *RelayClient) ListRunners(ctx context.Context) ([]map[string]any, error) {
	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := c.getJSON(ctx, "/v1/runners", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *RelayClient) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *RelayClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *RelayClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *RelayClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
