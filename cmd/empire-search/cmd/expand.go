package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jayusctrojan/empire-search/internal/output"
	"github.com/jayusctrojan/empire-search/internal/search"
)

// expandOptions holds CLI flags for expand.
type expandOptions struct {
	parent string
	start  int
	end    int
	radius int
	budget int
	format string
}

func newExpandCmd() *cobra.Command {
	var opts expandOptions

	cmd := &cobra.Command{
		Use:   "expand [unit-id]",
		Short: "Expand context around a unit or a range",
		Long: `Expand context either around a single unit (radius mode) or for an
explicit range of a parent's units. Output is capped by the token
budget; truncation is reported, not an error.

Examples:
  empire-search expand doc-1-042 --radius 3
  empire-search expand --parent doc-1 --start 10 --end 20
  empire-search expand doc-1-042 --token-budget 1000 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.parent, "parent", "", "Parent ID for range mode")
	cmd.Flags().IntVar(&opts.start, "start", 0, "Range start sequence index (inclusive)")
	cmd.Flags().IntVar(&opts.end, "end", -1, "Range end sequence index (inclusive)")
	cmd.Flags().IntVar(&opts.radius, "radius", 0, "Radius in units (0 = configured default)")
	cmd.Flags().IntVar(&opts.budget, "token-budget", 0, "Token budget (0 = configured default)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runExpand(ctx context.Context, cmd *cobra.Command, args []string, opts expandOptions) error {
	rangeMode := opts.parent != ""
	radiusMode := len(args) == 1

	if rangeMode == radiusMode {
		return fmt.Errorf("provide either a unit ID (radius mode) or --parent with --start/--end (range mode)")
	}

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var result *search.ExpandResult
	if radiusMode {
		result, err = a.engine.ExpandAround(ctx, args[0], opts.radius, opts.budget)
	} else {
		if opts.end < 0 {
			return fmt.Errorf("--end is required in range mode")
		}
		result, err = a.engine.Expand(ctx, []search.ExpandRequest{{
			ParentID: opts.parent,
			Start:    opts.start,
			End:      opts.end,
		}}, opts.budget)
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	output.New(cmd.OutOrStdout()).ExpandResult(result)
	return nil
}
