package worker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/snowfort-db/snowfort/internal/protocol"
)

func TestServerRejectsMalformedTask(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestExecutor(t)).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tasks/execute", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerExecutesTask(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestExecutor(t)).Router())
	defer srv.Close()

	db := t.TempDir()
	body, _ := json.Marshal(protocol.TaskRequest{
		Kind:   protocol.TaskCreate,
		DBPath: db,
		Create: &protocol.CreateTask{Table: "events", Schema: eventsSchema()},
	})

	resp, err := http.Post(srv.URL+"/tasks/execute", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var tr protocol.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !tr.OK {
		t.Errorf("task failed: %s", tr.Error)
	}
}

func TestServerTaskFailureStaysInEnvelope(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestExecutor(t)).Router())
	defer srv.Close()

	body, _ := json.Marshal(protocol.TaskRequest{
		Kind:   protocol.TaskDrop,
		DBPath: t.TempDir(),
		Drop:   &protocol.DropTask{Table: "nope"},
	})
	resp, err := http.Post(srv.URL+"/tasks/execute", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with ok=false envelope", resp.StatusCode)
	}
	var tr protocol.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if tr.OK || tr.Error == "" {
		t.Errorf("response = %+v, want ok=false with error", tr)
	}
}

func TestServerHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestExecutor(t)).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
