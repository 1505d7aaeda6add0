package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/jayusctrojan/empire-search/internal/errors"
	"github.com/jayusctrojan/empire-search/internal/store"
)

// ExpandRequest names one contiguous slice of a parent's units.
type ExpandRequest struct {
	ParentID string `json:"parent_id"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// Hierarchy situates a unit within its parent: neighbor summaries, the
// parent's structural label, and how many siblings exist in total.
type Hierarchy struct {
	PrevSummary  string `json:"prev_summary,omitempty"`
	NextSummary  string `json:"next_summary,omitempty"`
	ParentLabel  string `json:"parent_label,omitempty"`
	SiblingCount int    `json:"sibling_count"`
}

// ExpandedUnit is one unit of expanded context.
type ExpandedUnit struct {
	UnitID        string    `json:"unit_id"`
	ParentID      string    `json:"parent_id"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	Entities      []string  `json:"entities,omitempty"`
	Hierarchy     Hierarchy `json:"hierarchy"`
}

// ExpandResult is the budgeted outcome of an expansion call.
type ExpandResult struct {
	Units      []*ExpandedUnit `json:"units"`
	TokensUsed int             `json:"tokens_used"`
	Truncated  bool            `json:"truncated"`
}

// summaryLength caps neighbor summaries.
const summaryLength = 80

// Expander assembles token-budgeted context around units. Fetches for
// independent ranges run concurrently but results merge in input order,
// so the same call always yields the same prefix under the same budget.
type Expander struct {
	units store.UnitStore
}

// NewExpander creates an expander over the unit store.
func NewExpander(units store.UnitStore) *Expander {
	return &Expander{units: units}
}

// ExpandRanges resolves each requested range and appends units in
// request order, then sequence order, until the token budget is spent.
// Hitting the budget truncates the output; it is not an error.
func (e *Expander) ExpandRanges(ctx context.Context, requests []ExpandRequest, budget int) (*ExpandResult, error) {
	for i, req := range requests {
		if req.ParentID == "" {
			return nil, errors.New(errors.ErrCodeInvalidRange,
				fmt.Sprintf("request %d has no parent id", i), nil)
		}
		if req.Start < 0 || req.End < req.Start {
			return nil, errors.New(errors.ErrCodeInvalidRange,
				fmt.Sprintf("request %d has invalid range [%d, %d]", i, req.Start, req.End), nil)
		}
	}

	result := &ExpandResult{Units: []*ExpandedUnit{}}
	if len(requests) == 0 {
		return result, nil
	}

	// Fetch all ranges concurrently; slots keep input order intact.
	fetched := make([][]*store.IndexedUnit, len(requests))
	counts := make([]int, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			units, err := e.units.GetRange(gctx, req.ParentID, req.Start, req.End)
			if err != nil {
				return fmt.Errorf("fetch range %s[%d:%d]: %w", req.ParentID, req.Start, req.End, err)
			}
			n, err := e.units.CountSiblings(gctx, req.ParentID)
			if err != nil {
				return fmt.Errorf("count siblings of %s: %w", req.ParentID, err)
			}
			fetched[i] = units
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, units := range fetched {
		for j, u := range units {
			cost := tokenCost(u.Text)
			if result.TokensUsed+cost > budget {
				result.Truncated = true
				return result, nil
			}

			expanded := &ExpandedUnit{
				UnitID:        u.UnitID,
				ParentID:      u.ParentID,
				SequenceIndex: u.SequenceIndex,
				Text:          u.Text,
				Entities:      splitEntities(u.Attributes["entities"]),
				Hierarchy: Hierarchy{
					ParentLabel:  u.Attributes["type"],
					SiblingCount: counts[i],
				},
			}
			if j > 0 {
				expanded.Hierarchy.PrevSummary = summarize(units[j-1].Text)
			}
			if j+1 < len(units) {
				expanded.Hierarchy.NextSummary = summarize(units[j+1].Text)
			}

			result.Units = append(result.Units, expanded)
			result.TokensUsed += cost
		}
	}
	return result, nil
}

// ExpandRadius resolves the seed unit and expands the window of radius
// units on either side of it, clamped at the sequence boundaries.
func (e *Expander) ExpandRadius(ctx context.Context, unitID string, radius, budget int) (*ExpandResult, error) {
	if radius < 0 {
		return nil, errors.New(errors.ErrCodeInvalidRange,
			fmt.Sprintf("radius must be >= 0, got %d", radius), nil)
	}

	seed, err := e.units.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("resolve seed unit %s: %w", unitID, err)
	}
	if seed == nil {
		return nil, errors.ValidationError(
			fmt.Sprintf("unit %s does not exist", unitID), nil)
	}

	start := seed.SequenceIndex - radius
	if start < 0 {
		start = 0
	}
	return e.ExpandRanges(ctx, []ExpandRequest{{
		ParentID: seed.ParentID,
		Start:    start,
		End:      seed.SequenceIndex + radius,
	}}, budget)
}

// tokenCost approximates token usage as len(text)/4, matching the
// budget accounting of the upstream context pipeline.
func tokenCost(text string) int {
	return len(text) / 4
}

func summarize(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= summaryLength {
		return text
	}
	// Back off to a rune boundary so the cut never splits a character.
	cut := summaryLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

func splitEntities(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	entities := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			entities = append(entities, trimmed)
		}
	}
	return entities
}
