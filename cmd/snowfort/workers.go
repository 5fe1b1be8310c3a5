package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowfort-db/snowfort/internal/config"
	"github.com/snowfort-db/snowfort/internal/protocol"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List workers currently active on the orchestrator",
	RunE:  runWorkers,
}

func init() {
	workersCmd.Flags().String("orchestrator-url", "", "orchestrator URL (default http://127.0.0.1:8700)")
	rootCmd.AddCommand(workersCmd)
}

func runWorkers(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("orchestrator-url"); v != "" {
		config.Set(config.KeyOrchestratorURL, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(config.GetString(config.KeyOrchestratorURL) + "/workers")
	if err != nil {
		return fmt.Errorf("reaching orchestrator: %w", err)
	}
	defer resp.Body.Close()

	var list protocol.WorkersResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("malformed orchestrator response: %w", err)
	}

	if len(list.Active) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no active workers")
		return nil
	}
	for _, w := range list.Active {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-32s load=%.2f last_seen=%s\n",
			w.WorkerID, w.BaseURL, w.Load, w.LastSeen.Format(time.RFC3339))
	}
	return nil
}
