package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snowfort-db/snowfort/internal/catalog"
	"github.com/snowfort-db/snowfort/internal/plan"
	"github.com/snowfort-db/snowfort/internal/protocol"
	"github.com/snowfort-db/snowfort/internal/registry"
	"github.com/snowfort-db/snowfort/internal/sqlparse"
	"github.com/snowfort-db/snowfort/internal/telemetry"
)

// Dispatcher routes parsed queries to workers. DDL and INSERT go to a single
// active worker; SELECT becomes a plan whose levels run in order, each
// statement on whichever worker is active when its turn comes.
type Dispatcher struct {
	reg   *registry.Registry
	tasks *TaskClient

	waitTimeout  time.Duration
	pollInterval time.Duration

	rr  atomic.Uint64
	log *logrus.Entry
}

// NewDispatcher wires the registry and task client. waitTimeout bounds how
// long a SELECT waits for any worker to show up; pollInterval is the re-check
// cadence while waiting.
func NewDispatcher(reg *registry.Registry, tasks *TaskClient, waitTimeout, pollInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		reg:          reg,
		tasks:        tasks,
		waitTimeout:  waitTimeout,
		pollInterval: pollInterval,
		log:          logrus.WithField("component", "dispatcher"),
	}
}

// Route parses one external query and dispatches it.
func (d *Dispatcher) Route(ctx context.Context, dbPath, raw string) protocol.QueryResponse {
	q, err := sqlparse.Parse(raw)
	if err != nil {
		return protocol.QueryResponse{OK: false, Error: err.Error()}
	}

	switch q := q.(type) {
	case sqlparse.CreateQuery:
		return d.single(ctx, protocol.TaskCreate, protocol.TaskRequest{
			Kind:   protocol.TaskCreate,
			DBPath: dbPath,
			Create: &protocol.CreateTask{
				Table:       q.Table,
				Schema:      q.Schema,
				IfNotExists: q.IfNotExists,
			},
		})
	case sqlparse.DropQuery:
		return d.single(ctx, protocol.TaskDrop, protocol.TaskRequest{
			Kind:   protocol.TaskDrop,
			DBPath: dbPath,
			Drop:   &protocol.DropTask{Table: q.Table, IfExists: q.IfExists},
		})
	case sqlparse.InsertQuery:
		return d.single(ctx, protocol.TaskInsert, protocol.TaskRequest{
			Kind:   protocol.TaskInsert,
			DBPath: dbPath,
			Insert: &protocol.InsertTask{
				Table:        q.Table,
				SrcPath:      q.SrcPath,
				RowsPerShard: q.RowsPerShard,
			},
		})
	case sqlparse.SelectQuery:
		return d.orchestrateSelect(ctx, dbPath, q)
	default:
		return protocol.QueryResponse{OK: false, Error: fmt.Sprintf("unsupported query type %T", q)}
	}
}

// single runs one task on the first active worker.
func (d *Dispatcher) single(ctx context.Context, kind string, task protocol.TaskRequest) protocol.QueryResponse {
	workers := d.reg.ListActive()
	if len(workers) == 0 {
		return protocol.QueryResponse{OK: false, Kind: kind, Error: "no active workers"}
	}
	chosen := workers[0]

	resp := d.tasks.Send(ctx, chosen.BaseURL, task)
	if !resp.OK {
		telemetry.CountTaskFailure(ctx, kind)
	}
	return protocol.QueryResponse{
		OK:        resp.OK,
		Kind:      kind,
		WorkerID:  chosen.WorkerID,
		WorkerURL: chosen.BaseURL,
		Result:    resp.Result,
		Error:     resp.Error,
	}
}

// execRecord is one dispatched plan statement, kept for failure diagnostics.
type execRecord struct {
	Job      int    `json:"job"`
	Level    int    `json:"level"`
	WorkerID string `json:"worker_id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

func (d *Dispatcher) orchestrateSelect(ctx context.Context, dbPath string, q sqlparse.SelectQuery) protocol.QueryResponse {
	kind := protocol.TaskSelect

	man, err := catalog.LoadManifest(catalog.ManifestPath(dbPath, q.Table))
	if err != nil {
		return protocol.QueryResponse{OK: false, Kind: kind, Error: fmt.Sprintf("table %q: %v", q.Table, err)}
	}
	if len(man.Shards) == 0 {
		return protocol.QueryResponse{OK: false, Kind: kind,
			Error: fmt.Sprintf("no shards found for table %q", q.Table)}
	}

	tmpDir := filepath.Join(dbPath, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return protocol.QueryResponse{OK: false, Kind: kind, Error: fmt.Sprintf("creating tmp dir: %v", err)}
	}
	outPath := filepath.Join(dbPath, "out.parquet")

	p, err := plan.Build(q, man.Shards, dbPath, tmpDir, outPath)
	if err != nil {
		return protocol.QueryResponse{OK: false, Kind: kind, Error: err.Error()}
	}
	d.log.WithFields(logrus.Fields{
		"table":      q.Table,
		"levels":     len(p.Levels),
		"statements": p.Statements(),
		"fanout":     p.Fanout,
	}).Info("executing select plan")
	telemetry.CountStatementsDispatched(ctx, p.Statements())

	var executions []execRecord
	job := 0
	waitStart := time.Now()

	for levelIdx, level := range p.Levels {
		for _, st := range level {
			worker, err := d.waitForWorker(ctx, waitStart)
			if err != nil {
				return protocol.QueryResponse{OK: false, Kind: kind,
					Error: fmt.Sprintf("%v\nexecutions: %s", err, renderExecutions(executions))}
			}

			resp := d.tasks.Send(ctx, worker.BaseURL, protocol.TaskRequest{
				Kind:   protocol.TaskSelect,
				DBPath: dbPath,
				Select: &protocol.SelectTask{SQL: st.SQL, Out: st.Out},
			})
			rec := execRecord{
				Job:      job,
				Level:    levelIdx,
				WorkerID: worker.WorkerID,
				OK:       resp.OK,
				Error:    resp.Error,
			}
			executions = append(executions, rec)
			job++

			if !resp.OK {
				telemetry.CountTaskFailure(ctx, kind)
				return protocol.QueryResponse{OK: false, Kind: kind,
					Error: fmt.Sprintf("execution failed at level %d: %s\nexecutions: %s",
						levelIdx, resp.Error, renderExecutions(executions))}
			}
		}
		d.log.WithFields(logrus.Fields{"level": levelIdx, "statements": len(level)}).Info("completed plan level")
	}

	if err := os.RemoveAll(tmpDir); err != nil {
		d.log.WithError(err).Warn("failed to clean tmp dir")
	}

	result, _ := json.Marshal(fmt.Sprintf("select complete, result in %s", outPath))
	return protocol.QueryResponse{OK: true, Kind: kind, Result: result}
}

// waitForWorker blocks until a worker is active, polling the registry. The
// timeout is measured from the start of the whole select, not per statement.
// Active workers rotate round-robin across statements.
func (d *Dispatcher) waitForWorker(ctx context.Context, waitStart time.Time) (protocol.WorkerInfo, error) {
	for {
		if workers := d.reg.ListActive(); len(workers) > 0 {
			i := int(d.rr.Add(1)-1) % len(workers)
			return workers[i], nil
		}
		if time.Since(waitStart) > d.waitTimeout {
			return protocol.WorkerInfo{}, fmt.Errorf("no active workers became available before timeout")
		}
		d.log.Warn("no active workers, waiting")

		select {
		case <-ctx.Done():
			return protocol.WorkerInfo{}, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

func renderExecutions(execs []execRecord) string {
	data, err := json.Marshal(execs)
	if err != nil {
		return fmt.Sprintf("%+v", execs)
	}
	return string(data)
}
