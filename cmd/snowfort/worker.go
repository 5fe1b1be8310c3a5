package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/snowfort-db/snowfort/internal/config"
	"github.com/snowfort-db/snowfort/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a data-plane worker node",
	Long: `Run a worker: registers with the orchestrator, heartbeats to stay
live, and executes tasks (DDL, inserts, plan statements) on an embedded
DuckDB engine.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().String("listen", "", "listen address (default :8710)")
	workerCmd.Flags().String("worker-id", "", "worker identity (default hostname plus random suffix)")
	workerCmd.Flags().String("base-url", "", "advertised callback URL (default http://127.0.0.1:8710)")
	workerCmd.Flags().String("orchestrator-url", "", "orchestrator URL (default http://127.0.0.1:8700)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	for flag, key := range map[string]string{
		"listen":           config.KeyWorkerListenAddr,
		"worker-id":        config.KeyWorkerID,
		"base-url":         config.KeyBaseURL,
		"orchestrator-url": config.KeyOrchestratorURL,
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			config.Set(key, v)
		}
	}

	workerID := config.GetString(config.KeyWorkerID)
	if workerID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	eng, err := worker.NewEngine(config.GetInt(config.KeyDuckDBThreads))
	if err != nil {
		return err
	}
	defer eng.Close()

	addr := config.GetString(config.KeyWorkerListenAddr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           worker.NewServer(worker.NewExecutor(eng)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	hb := worker.NewHeartbeatClient(
		config.GetString(config.KeyOrchestratorURL),
		workerID,
		config.GetString(config.KeyBaseURL),
		config.GetDuration(config.KeyHeartbeatInterval))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithFields(logrus.Fields{"addr": addr, "worker_id": workerID}).Info("worker listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := hb.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
