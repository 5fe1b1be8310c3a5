package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowfort-db/snowfort/internal/config"
	"github.com/snowfort-db/snowfort/internal/protocol"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one SQL statement through the orchestrator",
	Example: `  snowfort query --path ./data/mydb "create table events (event_type varchar, value double)"
  snowfort query --path ./data/mydb "insert into events from './events.csv' rows per shard 100000"
  snowfort query --path ./data/mydb "select event_type, avg(value) from events group by event_type"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("path", "", "database root directory (required)")
	queryCmd.Flags().String("orchestrator-url", "", "orchestrator URL (default http://127.0.0.1:8700)")
	_ = queryCmd.MarkFlagRequired("path")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("orchestrator-url"); v != "" {
		config.Set(config.KeyOrchestratorURL, v)
	}
	path, _ := cmd.Flags().GetString("path")

	body, err := json.Marshal(protocol.QueryRequest{Path: path, Query: args[0]})
	if err != nil {
		return err
	}

	// Long budget: a select may wait for workers and run many statements.
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(
		config.GetString(config.KeyOrchestratorURL)+"/query",
		"application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reaching orchestrator: %w", err)
	}
	defer resp.Body.Close()

	var qr protocol.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return fmt.Errorf("malformed orchestrator response: %w", err)
	}

	out, err := json.MarshalIndent(qr, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !qr.OK {
		return fmt.Errorf("query failed")
	}
	return nil
}
