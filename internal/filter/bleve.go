package filter

import (
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// AttributeFieldPrefix namespaces unit attributes inside the lexical
// index so they cannot collide with the content field.
const AttributeFieldPrefix = "attr_"

// AttributeField returns the indexed field name for an attribute key.
func AttributeField(key string) string {
	return AttributeFieldPrefix + key
}

// BleveQuery translates the tree into a native bleve query. Attribute
// values that parse as numbers are indexed as numeric fields, so
// ordered comparisons use numeric ranges; everything else uses exact
// term matching on keyword-analyzed fields.
func (e *Expression) BleveQuery() query.Query {
	if e == nil {
		return bleve.NewMatchAllQuery()
	}

	if e.IsGroup() {
		children := make([]query.Query, len(e.Children))
		for i, c := range e.Children {
			children[i] = c.BleveQuery()
		}
		if e.Logic == LogicAnd {
			return bleve.NewConjunctionQuery(children...)
		}
		return bleve.NewDisjunctionQuery(children...)
	}

	field := AttributeField(e.Field)

	switch e.Op {
	case OpEq:
		return leafMatch(field, e.Value)
	case OpNe:
		q := bleve.NewBooleanQuery()
		q.AddMust(bleve.NewMatchAllQuery())
		q.AddMustNot(leafMatch(field, e.Value))
		return q
	case OpGt:
		return rangeQuery(field, e.Value, "", false, false)
	case OpGte:
		return rangeQuery(field, e.Value, "", true, false)
	case OpLt:
		return rangeQuery(field, "", e.Value, false, false)
	case OpLte:
		return rangeQuery(field, "", e.Value, false, true)
	case OpIn:
		alts := make([]query.Query, len(e.Values))
		for i, v := range e.Values {
			alts[i] = leafMatch(field, v)
		}
		return bleve.NewDisjunctionQuery(alts...)
	case OpContains:
		q := bleve.NewWildcardQuery("*" + e.Value + "*")
		q.SetField(field)
		return q
	default:
		// Validate rejects unknown operators before queries are built.
		return bleve.NewMatchNoneQuery()
	}
}

func leafMatch(field, value string) query.Query {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		tr := true
		q := bleve.NewNumericRangeInclusiveQuery(&f, &f, &tr, &tr)
		q.SetField(field)
		return q
	}
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func rangeQuery(field, min, max string, minIncl, maxIncl bool) query.Query {
	var fmin, fmax *float64
	numeric := true
	if min != "" {
		if f, err := strconv.ParseFloat(min, 64); err == nil {
			fmin = &f
		} else {
			numeric = false
		}
	}
	if max != "" {
		if f, err := strconv.ParseFloat(max, 64); err == nil {
			fmax = &f
		} else {
			numeric = false
		}
	}
	if numeric {
		q := bleve.NewNumericRangeInclusiveQuery(fmin, fmax, &minIncl, &maxIncl)
		q.SetField(field)
		return q
	}

	// Non-numeric bounds fall back to lexicographic term ranges,
	// mirroring Matches on string attributes.
	q := query.NewTermRangeInclusiveQuery(min, max, &minIncl, &maxIncl)
	q.SetField(field)
	return q
}
