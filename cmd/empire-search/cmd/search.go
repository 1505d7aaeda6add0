package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jayusctrojan/empire-search/internal/filter"
	"github.com/jayusctrojan/empire-search/internal/output"
	"github.com/jayusctrojan/empire-search/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit   int
	filters []string
	weights string
	format  string
	expand  bool
	radius  int
	budget  int
	noCache bool
	rerank  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed units",
		Long: `Search indexed units with all four retrieval signals fused by
weighted Reciprocal Rank Fusion. The query is classified to pick the
signal weights; use --weights to override them.

Filters compare unit attributes. Operators: = != > >= < <= ~ (contains).

Examples:
  empire-search search "refund policy"
  empire-search search '"exact policy number 12345"'
  empire-search search "quarterly revenue" --filter year=2024 --filter "amount>=1000"
  empire-search search "similar cases" --expand --radius 3
  empire-search search "error handling" --format json --no-cache
  empire-search search "refund policy" --rerank
  empire-search search "refund" --weights 0.25,0.25,0.25,0.25`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = configured default)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil,
		"Attribute filter, repeatable (e.g. --filter year=2024, --filter \"amount>=1000\")")
	cmd.Flags().StringVar(&opts.weights, "weights", "",
		"Override fusion weights as dense,lexical,pattern,fuzzy (must sum to 1.0)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.expand, "expand", false, "Expand results into context windows")
	cmd.Flags().IntVar(&opts.radius, "radius", 0, "Expansion radius in units (0 = configured default)")
	cmd.Flags().IntVar(&opts.budget, "token-budget", 0, "Expansion token budget (0 = configured default)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Bypass the semantic cache for this query")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rescore results against the query and drop weak ones")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	searchOpts := search.Options{
		TopK:            opts.limit,
		ExpandResults:   opts.expand,
		ExpansionRadius: opts.radius,
		TokenBudget:     opts.budget,
		RerankEnabled:   opts.rerank,
	}

	if len(opts.filters) > 0 {
		expr, err := parseFilterFlags(opts.filters)
		if err != nil {
			return err
		}
		searchOpts.Filter = expr
	}
	if opts.weights != "" {
		w, err := parseWeightsFlag(opts.weights)
		if err != nil {
			return err
		}
		searchOpts.WeightOverride = w
	}
	if opts.noCache {
		enabled := false
		searchOpts.CacheEnabled = &enabled
	}

	resp, err := a.engine.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out.SearchResponse(resp)
	if opts.expand && len(resp.Expanded) > 0 {
		out.Newline()
		out.ExpandResult(&search.ExpandResult{Units: resp.Expanded})
	}
	return nil
}

// filterOps in match order: two-character operators before their
// one-character prefixes.
var filterOps = []string{">=", "<=", "!=", "=", ">", "<", "~"}

// parseFilterFlags parses repeated --filter flags into one conjunction.
func parseFilterFlags(raw []string) (*filter.Expression, error) {
	exprs := make([]*filter.Expression, 0, len(raw))
	for _, spec := range raw {
		expr, err := parseFilterSpec(spec)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return filter.And(exprs...), nil
}

func parseFilterSpec(spec string) (*filter.Expression, error) {
	for _, op := range filterOps {
		idx := strings.Index(spec, op)
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(spec[:idx])
		value := strings.TrimSpace(spec[idx+len(op):])
		if field == "" || value == "" {
			break
		}

		switch op {
		case "=":
			if values := strings.Split(value, ","); len(values) > 1 {
				return filter.In(field, values...), nil
			}
			return filter.Eq(field, value), nil
		case "!=":
			return filter.Ne(field, value), nil
		case ">":
			return filter.Gt(field, value), nil
		case ">=":
			return filter.Gte(field, value), nil
		case "<":
			return filter.Lt(field, value), nil
		case "<=":
			return filter.Lte(field, value), nil
		case "~":
			return filter.Contains(field, value), nil
		}
	}
	return nil, fmt.Errorf("invalid filter %q: expected <field><op><value> with op one of = != > >= < <= ~", spec)
}

// parseWeightsFlag parses "dense,lexical,pattern,fuzzy".
func parseWeightsFlag(raw string) (*search.Weights, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid weights %q: expected four comma-separated values (dense,lexical,pattern,fuzzy)", raw)
	}

	values := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		values[i] = v
	}
	return &search.Weights{
		Dense:   values[0],
		Lexical: values[1],
		Pattern: values[2],
		Fuzzy:   values[3],
	}, nil
}
