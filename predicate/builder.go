package predicate

import (
	"fmt"

	"github.com/INLOpen/nexuslake/core"
)

// Builder creates leaves bound to the positions of a RowType.
type Builder struct {
	rowType core.RowType
}

// NewBuilder returns a builder for rowType.
func NewBuilder(rowType core.RowType) *Builder {
	return &Builder{rowType: rowType}
}

// IndexOf returns the position of the named field or -1.
func (b *Builder) IndexOf(name string) int {
	return b.rowType.IndexOf(name)
}

// leaf normalizes literals to the field type where possible. Literals that do
// not convert are kept as given and simply fail to compare.
func (b *Builder) leaf(fn Function, idx int, literals ...any) Predicate {
	f := b.rowType[idx]
	lits := make([]any, len(literals))
	for i, lit := range literals {
		if v, ok := core.Coerce(lit, f.Type); ok {
			lit = v
		}
		lits[i] = lit
	}
	return &Leaf{Func: fn, Index: idx, Name: f.Name, Type: f.Type, Literals: lits}
}

func (b *Builder) Equal(idx int, literal any) Predicate { return b.leaf(Equal, idx, literal) }

func (b *Builder) NotEqual(idx int, literal any) Predicate { return b.leaf(NotEqual, idx, literal) }

func (b *Builder) LessThan(idx int, literal any) Predicate { return b.leaf(LessThan, idx, literal) }

func (b *Builder) LessOrEqual(idx int, literal any) Predicate {
	return b.leaf(LessOrEqual, idx, literal)
}

func (b *Builder) GreaterThan(idx int, literal any) Predicate {
	return b.leaf(GreaterThan, idx, literal)
}

func (b *Builder) GreaterOrEqual(idx int, literal any) Predicate {
	return b.leaf(GreaterOrEqual, idx, literal)
}

func (b *Builder) IsNull(idx int) Predicate { return b.leaf(IsNull, idx) }

func (b *Builder) IsNotNull(idx int) Predicate { return b.leaf(IsNotNull, idx) }

func (b *Builder) In(idx int, literals ...any) Predicate { return b.leaf(In, idx, literals...) }

// EqualField is Equal addressed by field name.
func (b *Builder) EqualField(name string, literal any) (Predicate, error) {
	idx := b.rowType.IndexOf(name)
	if idx < 0 {
		return nil, fmt.Errorf("field %q not found", name)
	}
	return b.Equal(idx, literal), nil
}

// EqualRow matches exactly the given row: an AND of equalities, with IS NULL for
// null values.
func (b *Builder) EqualRow(row core.Row) (Predicate, error) {
	if len(row) != len(b.rowType) {
		return nil, fmt.Errorf("row arity %d does not match row type arity %d", len(row), len(b.rowType))
	}
	preds := make([]Predicate, len(row))
	for i, v := range row {
		if v == nil {
			preds[i] = b.IsNull(i)
		} else {
			preds[i] = b.Equal(i, v)
		}
	}
	return And(preds...), nil
}

// PartitionsToPredicate builds an OR of row equalities over the given partitions.
// Zero-arity partitions are ignored; nil is returned when none remain.
func PartitionsToPredicate(partitionType core.RowType, partitions []core.BinaryRow) (Predicate, error) {
	b := NewBuilder(partitionType)
	var ors []Predicate
	for _, p := range partitions {
		if p.Arity() == 0 {
			continue
		}
		row, err := p.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode partition: %w", err)
		}
		eq, err := b.EqualRow(row)
		if err != nil {
			return nil, err
		}
		ors = append(ors, eq)
	}
	return Or(ors...), nil
}

// FieldRefs returns the distinct field positions referenced by p, in first-seen order.
func FieldRefs(p Predicate) []int {
	seen := map[int]struct{}{}
	var out []int
	walkLeaves(p, func(l *Leaf) {
		if _, ok := seen[l.Index]; !ok {
			seen[l.Index] = struct{}{}
			out = append(out, l.Index)
		}
	})
	return out
}

// Literals collects the literals of every Equal and In leaf on field idx under a
// pure disjunction. ok is false when p constrains idx with anything else.
func Literals(p Predicate, idx int) (values []any, ok bool) {
	for _, d := range SplitOr(p) {
		l, isLeaf := d.(*Leaf)
		if !isLeaf || l.Index != idx {
			return nil, false
		}
		switch l.Func {
		case Equal, In:
			values = append(values, l.Literals...)
		default:
			return nil, false
		}
	}
	return values, len(values) > 0
}

func walkLeaves(p Predicate, fn func(*Leaf)) {
	switch x := p.(type) {
	case *Leaf:
		fn(x)
	case *Compound:
		for _, c := range x.Children {
			walkLeaves(c, fn)
		}
	}
}
