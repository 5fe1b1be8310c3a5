package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/snowfort-db/snowfort/internal/config"
	"github.com/snowfort-db/snowfort/internal/orchestrator"
	"github.com/snowfort-db/snowfort/internal/registry"
)

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run the control-plane server",
	Long: `Run the orchestrator: accepts worker registrations and heartbeats,
parses external SQL, and drives distributed select plans across workers.`,
	RunE: runOrchestrator,
}

func init() {
	orchestratorCmd.Flags().String("listen", "", "listen address (default :8700)")
	rootCmd.AddCommand(orchestratorCmd)
}

func runOrchestrator(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		config.Set(config.KeyListenAddr, v)
	}

	reg := registry.New(config.GetDuration(config.KeyWorkerTTL))
	tasks := orchestrator.NewTaskClient(config.GetDuration(config.KeyTaskTimeout))
	disp := orchestrator.NewDispatcher(reg, tasks,
		config.GetDuration(config.KeyWorkerWaitTimeout),
		config.GetDuration(config.KeyWorkerPoll))

	addr := config.GetString(config.KeyListenAddr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           orchestrator.NewServer(reg, disp).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", addr).Info("orchestrator listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
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
