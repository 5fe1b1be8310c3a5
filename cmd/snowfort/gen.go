package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snowfort-db/snowfort/internal/datagen"
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a synthetic events CSV for demos and load tests",
	RunE:  runGen,
}

func init() {
	genCmd.Flags().Int("rows", 100_000, "number of rows to generate")
	genCmd.Flags().Int64("seed", 42, "random seed (same seed, same file)")
	genCmd.Flags().String("out", "events.csv", "output file")
	rootCmd.AddCommand(genCmd)
}

func runGen(cmd *cobra.Command, args []string) error {
	rows, _ := cmd.Flags().GetInt("rows")
	seed, _ := cmd.Flags().GetInt64("seed")
	out, _ := cmd.Flags().GetString("out")

	if err := datagen.Generate(datagen.Spec{Rows: rows, Seed: seed, Path: out}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", rows, out)
	return nil
}
