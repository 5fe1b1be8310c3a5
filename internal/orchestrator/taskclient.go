// Package orchestrator implements the control-plane node: the worker
// registry endpoints, the external query endpoint, and the dispatcher that
// compiles SELECTs into plans and drives their level-ordered execution on
// workers.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/snowfort-db/snowfort/internal/protocol"
)

// TaskClient sends tasks to worker nodes. Transport failures are folded into
// the response envelope so the dispatcher handles worker death and task
// failure through one path.
type TaskClient struct {
	client *http.Client
}

// NewTaskClient builds a client with a per-task timeout.
func NewTaskClient(timeout time.Duration) *TaskClient {
	return &TaskClient{client: &http.Client{Timeout: timeout}}
}

// Send executes one task on the worker at baseURL.
func (c *TaskClient) Send(ctx context.Context, baseURL string, task protocol.TaskRequest) protocol.TaskResponse {
	body, err := json.Marshal(task)
	if err != nil {
		return protocol.TaskResponse{OK: false, Error: fmt.Sprintf("encoding task: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/tasks/execute", bytes.NewReader(body))
	if err != nil {
		return protocol.TaskResponse{OK: false, Error: fmt.Sprintf("building task request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return protocol.TaskResponse{OK: false, Error: fmt.Sprintf("worker unreachable: %v", err)}
	}
	defer resp.Body.Close()

	var tr protocol.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return protocol.TaskResponse{OK: false, Error: fmt.Sprintf("malformed worker response: %v", err)}
	}
	return tr
}
