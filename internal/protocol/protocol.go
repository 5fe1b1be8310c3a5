// Package protocol defines the JSON wire types exchanged between the
// orchestrator, workers and clients. Both sides marshal with encoding/json;
// optional payloads are pointers so absent sections stay off the wire.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/snowfort-db/snowfort/internal/catalog"
)

// Task kinds a worker understands.
const (
	TaskCreate = "create"
	TaskDrop   = "drop"
	TaskInsert = "insert"
	TaskSelect = "select"
)

// RegisterRequest announces a worker to the orchestrator. BaseURL is the
// address the orchestrator dials back for task execution.
type RegisterRequest struct {
	WorkerID string  `json:"worker_id"`
	BaseURL  string  `json:"base_url"`
	Load     float64 `json:"load"`
}

// HeartbeatRequest refreshes a registration. An unknown worker_id gets a 404
// so the client knows to re-register. BaseURL is optional; when present it
// replaces the registered dial-back address.
type HeartbeatRequest struct {
	WorkerID string  `json:"worker_id"`
	BaseURL  string  `json:"base_url,omitempty"`
	Load     float64 `json:"load"`
}

// Ack is the minimal success/failure envelope for register and heartbeat.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// WorkerInfo is the registry view exposed on the workers listing endpoint.
type WorkerInfo struct {
	WorkerID string    `json:"worker_id"`
	BaseURL  string    `json:"base_url"`
	Load     float64   `json:"load"`
	LastSeen time.Time `json:"last_seen"`
}

// WorkersResponse lists the currently active registrations.
type WorkersResponse struct {
	Active []WorkerInfo `json:"active"`
}

// QueryRequest is the external entry point: one SQL text to run against the
// database rooted at Path.
type QueryRequest struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

// QueryResponse reports how the query was routed and, for SELECT, where the
// result file landed.
type QueryResponse struct {
	OK        bool            `json:"ok"`
	Kind      string          `json:"kind,omitempty"`
	WorkerID  string          `json:"worker_id,omitempty"`
	WorkerURL string          `json:"worker_url,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// TaskRequest is the tagged union dispatched to a worker. Exactly one payload
// matching Kind is set. DBPath is the database root the task operates in.
type TaskRequest struct {
	Kind   string      `json:"kind"`
	DBPath string      `json:"db_path"`
	Create *CreateTask `json:"create,omitempty"`
	Drop   *DropTask   `json:"drop,omitempty"`
	Insert *InsertTask `json:"insert,omitempty"`
	Select *SelectTask `json:"select,omitempty"`
}

// CreateTask provisions a table: manifest first, then the catalog entry.
type CreateTask struct {
	Table       string               `json:"table"`
	Schema      []catalog.ColumnInfo `json:"schema"`
	IfNotExists bool                 `json:"if_not_exists"`
}

// DropTask removes a table and its shard directory.
type DropTask struct {
	Table    string `json:"table"`
	IfExists bool   `json:"if_exists"`
}

// InsertTask loads SrcPath into the table, splitting rows into shards.
// RowsPerShard zero means use the manifest's configured value.
type InsertTask struct {
	Table        string `json:"table"`
	SrcPath      string `json:"src_path"`
	RowsPerShard int    `json:"rows_per_shard"`
}

// SelectTask is one materializing plan statement, executed verbatim. Out is
// the parquet file the statement writes, echoed back for diagnostics.
type SelectTask struct {
	SQL string `json:"sql"`
	Out string `json:"out"`
}

// TaskResponse is the worker's verdict on one task.
type TaskResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
