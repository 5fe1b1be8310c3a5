package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/snowfort-db/snowfort/internal/protocol"
)

// fakeOrchestrator records registrations and heartbeats and can forget a
// worker to force re-registration.
type fakeOrchestrator struct {
	mu         sync.Mutex
	registered map[string]bool
	registers  int
	heartbeats int
	rejectN    int
}

func (f *fakeOrchestrator) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/workers/register", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectN > 0 {
			f.rejectN--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req protocol.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.registered[req.WorkerID] = true
		f.registers++
		_ = json.NewEncoder(w).Encode(protocol.Ack{OK: true})
	})
	mux.HandleFunc("/workers/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req protocol.HeartbeatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !f.registered[req.WorkerID] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.heartbeats++
		_ = json.NewEncoder(w).Encode(protocol.Ack{OK: true})
	})
	return mux
}

func (f *fakeOrchestrator) snapshot() (registers, heartbeats int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers, f.heartbeats
}

func (f *fakeOrchestrator) forget(workerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, workerID)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestHeartbeatRegistersWithRetry(t *testing.T) {
	fake := &fakeOrchestrator{registered: map[string]bool{}, rejectN: 1}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	hb := NewHeartbeatClient(srv.URL, "w-1", "http://127.0.0.1:8710", 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()

	waitFor(t, 10*time.Second, func() bool {
		registers, heartbeats := fake.snapshot()
		return registers == 1 && heartbeats >= 2
	})

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestHeartbeatReregistersAfter404(t *testing.T) {
	fake := &fakeOrchestrator{registered: map[string]bool{}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	hb := NewHeartbeatClient(srv.URL, "w-1", "http://127.0.0.1:8710", 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = hb.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool {
		registers, _ := fake.snapshot()
		return registers == 1
	})

	fake.forget("w-1")

	waitFor(t, 5*time.Second, func() bool {
		registers, _ := fake.snapshot()
		return registers == 2
	})
}
