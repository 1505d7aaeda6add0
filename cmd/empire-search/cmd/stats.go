package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jayusctrojan/empire-search/internal/output"
)

// indexStats summarizes the on-disk and in-memory indexes.
type indexStats struct {
	DataDir    string `json:"data_dir"`
	Units      int    `json:"units"`
	Vectors    int    `json:"vectors"`
	Lexical    int    `json:"lexical"`
	Trigram    int    `json:"trigram"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	unitCount, err := a.units.Count(ctx)
	if err != nil {
		return fmt.Errorf("count units: %w", err)
	}
	lexicalCount, err := a.lexical.Count()
	if err != nil {
		return fmt.Errorf("count lexical docs: %w", err)
	}

	stats := indexStats{
		DataDir:    a.dataDir,
		Units:      unitCount,
		Vectors:    a.vectors.Count(),
		Lexical:    lexicalCount,
		Trigram:    a.trigrams.Count(),
		Dimensions: a.cfg.Index.Dimensions,
		Metric:     a.cfg.Index.Metric,
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("index at %s", stats.DataDir)
	fmt.Fprintf(cmd.OutOrStdout(), "  units      %d\n", stats.Units)
	fmt.Fprintf(cmd.OutOrStdout(), "  vectors    %d (%dd, %s)\n", stats.Vectors, stats.Dimensions, stats.Metric)
	fmt.Fprintf(cmd.OutOrStdout(), "  lexical    %d\n", stats.Lexical)
	fmt.Fprintf(cmd.OutOrStdout(), "  trigram    %d\n", stats.Trigram)
	return nil
}
