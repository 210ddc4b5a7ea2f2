// Package predicate implements row predicates that can be evaluated both on
// decoded rows and on min/max/null-count statistics.
package predicate

import (
	"fmt"
	"strings"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/stats"
)

// Predicate tests rows and statistics. TestStats returns false only when the
// statistics prove that no row of the summarized set can match.
type Predicate interface {
	Test(row core.Row) bool
	TestStats(rowCount int64, fields []stats.FieldStats) bool
	fmt.Stringer
}

// Function is the comparison applied by a Leaf.
type Function uint8

const (
	Equal Function = iota
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	IsNull
	IsNotNull
	In
)

var functionNames = [...]string{"=", "!=", "<", "<=", ">", ">=", "IS NULL", "IS NOT NULL", "IN"}

func (f Function) String() string {
	if int(f) < len(functionNames) {
		return functionNames[f]
	}
	return "?"
}

// Leaf compares a single field against literals.
type Leaf struct {
	Func     Function
	Index    int
	Name     string
	Type     core.DataType
	Literals []any
}

var _ Predicate = (*Leaf)(nil)

// Test evaluates the leaf against a decoded row.
func (l *Leaf) Test(row core.Row) bool {
	if l.Index < 0 || l.Index >= len(row) {
		return false
	}
	v := row[l.Index]
	switch l.Func {
	case IsNull:
		return v == nil
	case IsNotNull:
		return v != nil
	}
	if v == nil {
		return false
	}
	switch l.Func {
	case In:
		for _, lit := range l.Literals {
			if core.Equal(v, lit) {
				return true
			}
		}
		return false
	case NotEqual:
		c, ok := l.compare(v)
		return ok && c != 0
	}
	c, ok := l.compare(v)
	if !ok {
		return false
	}
	switch l.Func {
	case Equal:
		return c == 0
	case LessThan:
		return c < 0
	case LessOrEqual:
		return c <= 0
	case GreaterThan:
		return c > 0
	case GreaterOrEqual:
		return c >= 0
	}
	return false
}

// TestStats evaluates the leaf against column statistics.
func (l *Leaf) TestStats(rowCount int64, fields []stats.FieldStats) bool {
	if l.Index < 0 || l.Index >= len(fields) {
		return true
	}
	s := fields[l.Index]
	switch l.Func {
	case IsNull:
		return s.NullCount > 0
	case IsNotNull:
		return s.NullCount < rowCount
	}
	if rowCount > 0 && s.NullCount == rowCount {
		return false
	}
	if s.Min == nil || s.Max == nil {
		return true
	}
	switch l.Func {
	case Equal:
		return l.inRange(l.literal(), s)
	case In:
		for _, lit := range l.Literals {
			if l.inRange(lit, s) {
				return true
			}
		}
		return false
	case NotEqual:
		lit := l.literal()
		return !(core.Equal(s.Min, lit) && core.Equal(s.Max, lit))
	case LessThan:
		return cmpOrTrue(s.Min, l.literal(), func(c int) bool { return c < 0 })
	case LessOrEqual:
		return cmpOrTrue(s.Min, l.literal(), func(c int) bool { return c <= 0 })
	case GreaterThan:
		return cmpOrTrue(s.Max, l.literal(), func(c int) bool { return c > 0 })
	case GreaterOrEqual:
		return cmpOrTrue(s.Max, l.literal(), func(c int) bool { return c >= 0 })
	}
	return true
}

func (l *Leaf) literal() any {
	if len(l.Literals) == 0 {
		return nil
	}
	return l.Literals[0]
}

func (l *Leaf) compare(v any) (int, bool) {
	lit := l.literal()
	if lit == nil {
		return 0, false
	}
	c, err := core.Compare(v, lit)
	return c, err == nil
}

func (l *Leaf) inRange(lit any, s stats.FieldStats) bool {
	if lit == nil {
		return false
	}
	lo, err := core.Compare(s.Min, lit)
	if err != nil {
		return true
	}
	hi, err := core.Compare(s.Max, lit)
	if err != nil {
		return true
	}
	return lo <= 0 && hi >= 0
}

func cmpOrTrue(a, b any, ok func(int) bool) bool {
	if b == nil {
		return false
	}
	c, err := core.Compare(a, b)
	if err != nil {
		return true
	}
	return ok(c)
}

func (l *Leaf) String() string {
	switch l.Func {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", l.Name, l.Func)
	case In:
		parts := make([]string, len(l.Literals))
		for i, lit := range l.Literals {
			parts[i] = fmt.Sprint(lit)
		}
		return fmt.Sprintf("%s IN (%s)", l.Name, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %v", l.Name, l.Func, l.literal())
}

// Op is the boolean connective of a Compound.
type Op uint8

const (
	OpAnd Op = iota
	OpOr
)

// Compound combines children with AND or OR.
type Compound struct {
	Op       Op
	Children []Predicate
}

var _ Predicate = (*Compound)(nil)

func (c *Compound) Test(row core.Row) bool {
	if c.Op == OpAnd {
		for _, p := range c.Children {
			if !p.Test(row) {
				return false
			}
		}
		return true
	}
	for _, p := range c.Children {
		if p.Test(row) {
			return true
		}
	}
	return false
}

func (c *Compound) TestStats(rowCount int64, fields []stats.FieldStats) bool {
	if c.Op == OpAnd {
		for _, p := range c.Children {
			if !p.TestStats(rowCount, fields) {
				return false
			}
		}
		return true
	}
	for _, p := range c.Children {
		if p.TestStats(rowCount, fields) {
			return true
		}
	}
	return false
}

func (c *Compound) String() string {
	sep := " AND "
	if c.Op == OpOr {
		sep = " OR "
	}
	parts := make([]string, len(c.Children))
	for i, p := range c.Children {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// And combines predicates, ignoring nils. It returns nil when nothing remains.
func And(preds ...Predicate) Predicate {
	return combine(OpAnd, preds)
}

// Or combines predicates, ignoring nils. It returns nil when nothing remains.
func Or(preds ...Predicate) Predicate {
	return combine(OpOr, preds)
}

func combine(op Op, preds []Predicate) Predicate {
	children := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p == nil {
			continue
		}
		if c, ok := p.(*Compound); ok && c.Op == op {
			children = append(children, c.Children...)
			continue
		}
		children = append(children, p)
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &Compound{Op: op, Children: children}
}

// SplitAnd returns the top-level conjuncts of p.
func SplitAnd(p Predicate) []Predicate {
	return split(p, OpAnd)
}

// SplitOr returns the top-level disjuncts of p.
func SplitOr(p Predicate) []Predicate {
	return split(p, OpOr)
}

func split(p Predicate, op Op) []Predicate {
	if p == nil {
		return nil
	}
	if c, ok := p.(*Compound); ok && c.Op == op {
		var out []Predicate
		for _, child := range c.Children {
			out = append(out, split(child, op)...)
		}
		return out
	}
	return []Predicate{p}
}
