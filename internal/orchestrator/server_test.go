package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snowfort-db/snowfort/internal/protocol"
	"github.com/snowfort-db/snowfort/internal/registry"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(0)
	disp := NewDispatcher(reg, NewTaskClient(time.Second), 100*time.Millisecond, 10*time.Millisecond)
	srv := httptest.NewServer(NewServer(reg, disp).Router())
	t.Cleanup(srv.Close)
	return srv, reg
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestRegisterThenHeartbeat(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/workers/register", protocol.RegisterRequest{
		WorkerID: "w-1",
		BaseURL:  "http://127.0.0.1:8710/",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/workers/heartbeat", protocol.HeartbeatRequest{WorkerID: "w-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("heartbeat status = %d", resp.StatusCode)
	}
}

func TestHeartbeatUnknownWorkerIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/workers/heartbeat", protocol.HeartbeatRequest{WorkerID: "ghost"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("heartbeat status = %d, want 404", resp.StatusCode)
	}
}

func TestRegisterRequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/workers/register", protocol.RegisterRequest{WorkerID: "w-1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("register without base_url status = %d, want 400", resp.StatusCode)
	}
}

func TestListWorkersNormalizesBaseURL(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/workers/register", protocol.RegisterRequest{
		WorkerID: "w-1",
		BaseURL:  "http://127.0.0.1:8710/",
	}).Body.Close()

	resp, err := http.Get(srv.URL + "/workers")
	if err != nil {
		t.Fatalf("GET /workers failed: %v", err)
	}
	defer resp.Body.Close()

	var list protocol.WorkersResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding workers: %v", err)
	}
	if len(list.Active) != 1 {
		t.Fatalf("active = %+v, want one worker", list.Active)
	}
	if list.Active[0].BaseURL != "http://127.0.0.1:8710" {
		t.Errorf("base_url = %q, want trailing slash stripped", list.Active[0].BaseURL)
	}
}

func TestQueryRequiresPathAndQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/query", protocol.QueryRequest{Query: "select 1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("query without path status = %d, want 400", resp.StatusCode)
	}
}

func TestQueryFailureKeepsEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/query", protocol.QueryRequest{
		Path:  t.TempDir(),
		Query: "drop table events",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with ok=false envelope", resp.StatusCode)
	}
	var qr protocol.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if qr.OK || qr.Error == "" {
		t.Errorf("response = %+v, want ok=false with error", qr)
	}
}

func TestOrchestratorHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
