package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jayusctrojan/empire-search/internal/output"
	"github.com/jayusctrojan/empire-search/internal/preflight"
	"github.com/jayusctrojan/empire-search/internal/store"
	"github.com/jayusctrojan/empire-search/internal/validation"
)

// indexBatchSize bounds memory per embedding batch.
const indexBatchSize = 256

func newIndexCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "index <units.jsonl>",
		Short: "Index units from a JSONL file",
		Long: `Index units from a JSON Lines file. Each line is one unit:

  {"unit_id": "doc-1-003", "parent_id": "doc-1", "sequence_index": 3,
   "text": "...", "attributes": {"type": "policy", "year": "2024"}}

Units are embedded, stored, and added to the lexical, vector, and
fuzzy indexes. Existing units with the same unit_id are replaced.

Examples:
  empire-search index ./corpus/units.jsonl
  empire-search index ./corpus/units.jsonl --purge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], purge)
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Delete all existing units before indexing")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, purge bool) error {
	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open units file: %w", err)
	}
	defer f.Close()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := preflight.Run(a.dataDir)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Status == preflight.Warn {
			out.Warning(fmt.Sprintf("%s: %s", r.Name, r.Message))
		}
	}

	if purge {
		existing, err := a.units.AllUnits(ctx)
		if err != nil {
			return fmt.Errorf("list existing units: %w", err)
		}
		ids := make([]string, len(existing))
		for i, u := range existing {
			ids[i] = u.UnitID
		}
		if len(ids) > 0 {
			if err := a.indexer.DeleteUnits(ctx, ids); err != nil {
				return fmt.Errorf("purge existing units: %w", err)
			}
			out.Successf("purged %d existing units", len(ids))
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var (
		batch   []*store.IndexedUnit
		total   int
		lineNum int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := a.indexer.IndexUnits(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var unit store.IndexedUnit
		if err := json.Unmarshal([]byte(line), &unit); err != nil {
			return fmt.Errorf("line %d: parse unit: %w", lineNum, err)
		}
		if err := validation.ValidateUnit(&unit); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}

		batch = append(batch, &unit)
		if len(batch) >= indexBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read units file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	if err := a.Save(); err != nil {
		return fmt.Errorf("persist vector index: %w", err)
	}

	out.Successf("indexed %d units in %s", total, time.Since(start).Round(time.Millisecond))
	return nil
}
