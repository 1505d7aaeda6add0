// Package filter provides a typed predicate tree over unit attributes.
//
// Expressions replace ad hoc string-built queries: every predicate is
// validated before execution and translated to the underlying index's
// native filter API, never concatenated into query text.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jayusctrojan/empire-search/internal/errors"
)

// Op is a leaf comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Logic combines child expressions in a group node.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Expression is one node of a predicate tree. A node is either a leaf
// (Field/Op/Value set) or a group (Logic/Children set), never both.
type Expression struct {
	// Leaf fields
	Field  string   `json:"field,omitempty" yaml:"field,omitempty"`
	Op     Op       `json:"op,omitempty" yaml:"op,omitempty"`
	Value  string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`

	// Group fields
	Logic    Logic         `json:"logic,omitempty" yaml:"logic,omitempty"`
	Children []*Expression `json:"children,omitempty" yaml:"children,omitempty"`
}

// Eq builds an equality leaf.
func Eq(field, value string) *Expression {
	return &Expression{Field: field, Op: OpEq, Value: value}
}

// Ne builds an inequality leaf.
func Ne(field, value string) *Expression {
	return &Expression{Field: field, Op: OpNe, Value: value}
}

// Gt builds a greater-than leaf.
func Gt(field, value string) *Expression {
	return &Expression{Field: field, Op: OpGt, Value: value}
}

// Gte builds a greater-or-equal leaf.
func Gte(field, value string) *Expression {
	return &Expression{Field: field, Op: OpGte, Value: value}
}

// Lt builds a less-than leaf.
func Lt(field, value string) *Expression {
	return &Expression{Field: field, Op: OpLt, Value: value}
}

// Lte builds a less-or-equal leaf.
func Lte(field, value string) *Expression {
	return &Expression{Field: field, Op: OpLte, Value: value}
}

// In builds a membership leaf.
func In(field string, values ...string) *Expression {
	return &Expression{Field: field, Op: OpIn, Values: values}
}

// Contains builds a substring-containment leaf.
func Contains(field, value string) *Expression {
	return &Expression{Field: field, Op: OpContains, Value: value}
}

// And groups children with AND logic.
func And(children ...*Expression) *Expression {
	return &Expression{Logic: LogicAnd, Children: children}
}

// Or groups children with OR logic.
func Or(children ...*Expression) *Expression {
	return &Expression{Logic: LogicOr, Children: children}
}

// IsGroup reports whether the node is a group.
func (e *Expression) IsGroup() bool {
	return e.Logic != ""
}

// Validate checks the whole tree for well-formedness. Malformed
// operator/value combinations are rejected before execution.
func (e *Expression) Validate() error {
	if e == nil {
		return nil
	}
	return e.validate("$")
}

func (e *Expression) validate(path string) error {
	if e.IsGroup() {
		if e.Field != "" || e.Op != "" || e.Value != "" || len(e.Values) > 0 {
			return errors.FilterError(fmt.Sprintf("%s: node mixes group and leaf fields", path), nil)
		}
		if e.Logic != LogicAnd && e.Logic != LogicOr {
			return errors.FilterError(fmt.Sprintf("%s: unknown logic %q", path, e.Logic), nil)
		}
		if len(e.Children) == 0 {
			return errors.FilterError(fmt.Sprintf("%s: %s group has no children", path, e.Logic), nil)
		}
		for i, c := range e.Children {
			if c == nil {
				return errors.FilterError(fmt.Sprintf("%s[%d]: nil child", path, i), nil)
			}
			if err := c.validate(fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if e.Field == "" {
		return errors.FilterError(fmt.Sprintf("%s: leaf has no field", path), nil)
	}
	switch e.Op {
	case OpEq, OpNe, OpContains:
		if len(e.Values) > 0 {
			return errors.FilterError(fmt.Sprintf("%s: %s takes a single value", path, e.Op), nil)
		}
	case OpGt, OpGte, OpLt, OpLte:
		if len(e.Values) > 0 {
			return errors.FilterError(fmt.Sprintf("%s: %s takes a single value", path, e.Op), nil)
		}
		if e.Value == "" {
			return errors.FilterError(fmt.Sprintf("%s: %s requires a value", path, e.Op), nil)
		}
	case OpIn:
		if len(e.Values) == 0 {
			return errors.FilterError(fmt.Sprintf("%s: in requires values", path), nil)
		}
		if e.Value != "" {
			return errors.FilterError(fmt.Sprintf("%s: in takes values, not value", path), nil)
		}
	default:
		return errors.FilterError(fmt.Sprintf("%s: unknown operator %q", path, e.Op), nil)
	}
	return nil
}

// Matches evaluates the tree against a unit's attribute map.
// A missing attribute fails its leaf, including negated leaves.
func (e *Expression) Matches(attrs map[string]string) bool {
	if e == nil {
		return true
	}

	if e.IsGroup() {
		if e.Logic == LogicAnd {
			for _, c := range e.Children {
				if !c.Matches(attrs) {
					return false
				}
			}
			return true
		}
		for _, c := range e.Children {
			if c.Matches(attrs) {
				return true
			}
		}
		return false
	}

	actual, ok := attrs[e.Field]
	if !ok {
		return false
	}

	switch e.Op {
	case OpEq:
		return actual == e.Value
	case OpNe:
		return actual != e.Value
	case OpGt:
		return compareValues(actual, e.Value) > 0
	case OpGte:
		return compareValues(actual, e.Value) >= 0
	case OpLt:
		return compareValues(actual, e.Value) < 0
	case OpLte:
		return compareValues(actual, e.Value) <= 0
	case OpIn:
		for _, v := range e.Values {
			if actual == v {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(actual, e.Value)
	default:
		return false
	}
}

// compareValues compares numerically when both sides parse as numbers,
// lexicographically otherwise.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// String renders the tree for logging.
func (e *Expression) String() string {
	if e == nil {
		return "<nil>"
	}
	if e.IsGroup() {
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, fmt.Sprintf(" %s ", strings.ToUpper(string(e.Logic)))))
	}
	if e.Op == OpIn {
		return fmt.Sprintf("%s in [%s]", e.Field, strings.Join(e.Values, ","))
	}
	return fmt.Sprintf("%s %s %q", e.Field, e.Op, e.Value)
}
