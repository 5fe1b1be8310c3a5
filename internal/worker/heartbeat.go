package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/snowfort-db/snowfort/internal/protocol"
)

// HeartbeatClient keeps a worker registered with the orchestrator. It
// registers with exponential-backoff retries, then heartbeats on a fixed
// interval; a 404 from the orchestrator means the registration expired and
// triggers re-registration.
type HeartbeatClient struct {
	orchestratorURL string
	workerID        string
	baseURL         string
	interval        time.Duration

	client *http.Client
	log    *logrus.Entry
}

// NewHeartbeatClient builds a client for one worker identity. baseURL is the
// address advertised for task callbacks.
func NewHeartbeatClient(orchestratorURL, workerID, baseURL string, interval time.Duration) *HeartbeatClient {
	return &HeartbeatClient{
		orchestratorURL: orchestratorURL,
		workerID:        workerID,
		baseURL:         baseURL,
		interval:        interval,
		client:          &http.Client{Timeout: 5 * time.Second},
		log:             logrus.WithField("component", "heartbeat"),
	}
}

// Run blocks until ctx is canceled, keeping the registration fresh.
func (h *HeartbeatClient) Run(ctx context.Context) error {
	if err := h.register(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := h.post(ctx, "/workers/heartbeat", protocol.HeartbeatRequest{
			WorkerID: h.workerID,
			BaseURL:  h.baseURL,
		})
		if err != nil {
			h.log.WithError(err).Warn("heartbeat failed, will retry")
			continue
		}
		if status == http.StatusNotFound {
			h.log.Warn("registration expired, re-registering")
			if err := h.register(ctx); err != nil {
				return err
			}
		}
	}
}

// register retries until the orchestrator accepts the registration or ctx is
// canceled. The orchestrator may simply not be up yet.
func (h *HeartbeatClient) register(ctx context.Context) error {
	op := func() error {
		status, err := h.post(ctx, "/workers/register", protocol.RegisterRequest{
			WorkerID: h.workerID,
			BaseURL:  h.baseURL,
		})
		if err != nil {
			return err
		}
		if status >= 400 {
			return fmt.Errorf("register returned status %d", status)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = 0 // retry until canceled

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("registering with orchestrator: %w", err)
	}
	h.log.WithField("worker_id", h.workerID).Info("registered with orchestrator")
	return nil
}

func (h *HeartbeatClient) post(ctx context.Context, path string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.orchestratorURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
