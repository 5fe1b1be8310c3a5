package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snowfort-db/snowfort/internal/catalog"
	"github.com/snowfort-db/snowfort/internal/protocol"
	"github.com/snowfort-db/snowfort/internal/registry"
)

// fakeWorker records every task it receives and can be told to start
// failing after a number of successes.
type fakeWorker struct {
	mu        sync.Mutex
	tasks     []protocol.TaskRequest
	failAfter int // fail once this many tasks have succeeded; 0 means never
}

func (f *fakeWorker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/execute", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var task protocol.TaskRequest
		_ = json.NewDecoder(r.Body).Decode(&task)
		f.tasks = append(f.tasks, task)

		resp := protocol.TaskResponse{OK: true}
		if f.failAfter > 0 && len(f.tasks) > f.failAfter {
			resp = protocol.TaskResponse{OK: false, Error: "simulated worker failure"}
		} else {
			resp.Result, _ = json.Marshal("done")
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func (f *fakeWorker) received() []protocol.TaskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.TaskRequest(nil), f.tasks...)
}

func newTestDispatcher(t *testing.T, worker *fakeWorker) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New(0)
	if worker != nil {
		srv := httptest.NewServer(worker.handler())
		t.Cleanup(srv.Close)
		reg.Upsert("w-1", srv.URL, 0)
	}
	return NewDispatcher(reg, NewTaskClient(15*time.Second), 200*time.Millisecond, 10*time.Millisecond), reg
}

// seedTable writes a manifest naming the given shards; shard files themselves
// are not needed since the fake worker never executes SQL.
func seedTable(t *testing.T, dbPath, table string, shards []string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dbPath, table), 0o755); err != nil {
		t.Fatal(err)
	}
	man := catalog.NewManifest(table, []catalog.ColumnInfo{
		{Name: "event_type", Nullable: true, Type: "varchar"},
		{Name: "value", Nullable: true, Type: "double"},
	})
	man.Shards = shards
	if err := man.Save(catalog.ManifestPath(dbPath, table)); err != nil {
		t.Fatalf("saving manifest: %v", err)
	}
}

func TestRouteCreate(t *testing.T) {
	worker := &fakeWorker{}
	disp, _ := newTestDispatcher(t, worker)

	resp := disp.Route(context.Background(), t.TempDir(),
		"create table events (event_type varchar, value double) if not exists")
	if !resp.OK {
		t.Fatalf("Route() failed: %s", resp.Error)
	}
	if resp.Kind != protocol.TaskCreate || resp.WorkerID != "w-1" {
		t.Errorf("kind=%q worker=%q", resp.Kind, resp.WorkerID)
	}

	tasks := worker.received()
	if len(tasks) != 1 || tasks[0].Kind != protocol.TaskCreate {
		t.Fatalf("worker received %+v", tasks)
	}
	if tasks[0].Create == nil || tasks[0].Create.Table != "events" || !tasks[0].Create.IfNotExists {
		t.Errorf("create payload = %+v", tasks[0].Create)
	}
}

func TestRouteParseError(t *testing.T) {
	disp, _ := newTestDispatcher(t, &fakeWorker{})
	resp := disp.Route(context.Background(), t.TempDir(), "explain select 1")
	if resp.OK {
		t.Error("unparseable query routed successfully")
	}
}

func TestRouteNoActiveWorkers(t *testing.T) {
	disp, _ := newTestDispatcher(t, nil)
	resp := disp.Route(context.Background(), t.TempDir(), "drop table events")
	if resp.OK || !strings.Contains(resp.Error, "no active workers") {
		t.Errorf("response = %+v", resp)
	}
}

func TestRouteSelectExecutesAllLevels(t *testing.T) {
	worker := &fakeWorker{}
	disp, _ := newTestDispatcher(t, worker)

	db := t.TempDir()
	seedTable(t, db, "events", []string{"shard-0.parquet", "shard-1.parquet"})

	resp := disp.Route(context.Background(), db,
		"select event_type, count(*) from events group by event_type")
	if !resp.OK {
		t.Fatalf("Route() failed: %s", resp.Error)
	}

	// 2 map statements + 1 final.
	tasks := worker.received()
	if len(tasks) != 3 {
		t.Fatalf("worker received %d tasks, want 3", len(tasks))
	}
	for i, task := range tasks {
		if task.Kind != protocol.TaskSelect || task.Select == nil {
			t.Errorf("task %d = %+v, want select", i, task)
		}
	}
	final := tasks[2].Select
	if final.Out != filepath.Join(db, "out.parquet") {
		t.Errorf("final statement writes %q", final.Out)
	}

	if _, err := os.Stat(filepath.Join(db, "tmp")); !os.IsNotExist(err) {
		t.Error("tmp dir not cleaned up after success")
	}
}

func TestRouteSelectNoShards(t *testing.T) {
	disp, _ := newTestDispatcher(t, &fakeWorker{})
	db := t.TempDir()
	seedTable(t, db, "events", nil)

	resp := disp.Route(context.Background(), db, "select count(*) from events")
	if resp.OK || !strings.Contains(resp.Error, "no shards found") {
		t.Errorf("response = %+v", resp)
	}
}

func TestRouteSelectUnknownTable(t *testing.T) {
	disp, _ := newTestDispatcher(t, &fakeWorker{})
	resp := disp.Route(context.Background(), t.TempDir(), "select count(*) from nope")
	if resp.OK {
		t.Error("select against a missing manifest succeeded")
	}
}

func TestRouteSelectFailureDiagnostics(t *testing.T) {
	worker := &fakeWorker{failAfter: 1}
	disp, _ := newTestDispatcher(t, worker)

	db := t.TempDir()
	seedTable(t, db, "events", []string{"shard-0.parquet", "shard-1.parquet"})

	resp := disp.Route(context.Background(), db, "select count(*) from events")
	if resp.OK {
		t.Fatal("Route() succeeded despite worker failure")
	}
	if !strings.Contains(resp.Error, "execution failed at level 0") {
		t.Errorf("error does not name the failing level: %s", resp.Error)
	}
	if !strings.Contains(resp.Error, "simulated worker failure") {
		t.Errorf("error does not carry the worker error: %s", resp.Error)
	}
	if !strings.Contains(resp.Error, `"job"`) {
		t.Errorf("error does not include the execution trace: %s", resp.Error)
	}
}

func TestRouteSelectWaitTimeout(t *testing.T) {
	disp, _ := newTestDispatcher(t, nil)
	db := t.TempDir()
	seedTable(t, db, "events", []string{"shard-0.parquet"})

	start := time.Now()
	resp := disp.Route(context.Background(), db, "select count(*) from events")
	if resp.OK || !strings.Contains(resp.Error, "timeout") {
		t.Errorf("response = %+v", resp)
	}
	if time.Since(start) < 200*time.Millisecond {
		t.Error("dispatcher gave up before the wait timeout")
	}
}

func TestRouteSelectPicksUpLateWorker(t *testing.T) {
	worker := &fakeWorker{}
	srv := httptest.NewServer(worker.handler())
	defer srv.Close()

	reg := registry.New(0)
	disp := NewDispatcher(reg, NewTaskClient(15*time.Second), 2*time.Second, 10*time.Millisecond)

	db := t.TempDir()
	seedTable(t, db, "events", []string{"shard-0.parquet"})

	go func() {
		time.Sleep(50 * time.Millisecond)
		reg.Upsert("w-late", srv.URL, 0)
	}()

	resp := disp.Route(context.Background(), db, "select count(*) from events")
	if !resp.OK {
		t.Fatalf("Route() failed: %s", resp.Error)
	}
	if len(worker.received()) != 2 {
		t.Errorf("worker received %d tasks, want 2", len(worker.received()))
	}
}
