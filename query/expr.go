// Package query holds the predicate language and the analyzers that answer
// predicates and orderings from the primary key map and secondary indexes,
// falling back to reading records only for what no index can answer.
package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
)

var (
	ErrUnknownField         = model.ErrUnknownField
	ErrUnsupportedOperation = errors.New("query: unsupported operation")
)

type Op uint8

const (
	Equals Op = iota + 1
	NotEquals
	Less
	Great
	LessOrEquals
	GreatOrEquals
	Like
	NotLike
	In
	NotIn
)

var opNames = [...]string{
	Equals:        "=",
	NotEquals:     "!=",
	Less:          "<",
	Great:         ">",
	LessOrEquals:  "<=",
	GreatOrEquals: ">=",
	Like:          "LIKE",
	NotLike:       "NOT LIKE",
	In:            "IN",
	NotIn:         "NOT IN",
}

func (op Op) String() string {
	if op == 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
	return opNames[op]
}

// Negate returns the operation matching exactly the values op rejects.
func (op Op) Negate() Op {
	switch op {
	case Equals:
		return NotEquals
	case NotEquals:
		return Equals
	case Less:
		return GreatOrEquals
	case GreatOrEquals:
		return Less
	case Great:
		return LessOrEquals
	case LessOrEquals:
		return Great
	case Like:
		return NotLike
	case NotLike:
		return Like
	case In:
		return NotIn
	case NotIn:
		return In
	}
	return op
}

// Target is the left side of a comparison: a schema field or the primary key.
type Target struct {
	Field      uint8
	PrimaryKey bool
}

// Field targets the schema field with the given number.
func Field(number uint8) Target { return Target{Field: number} }

// Key targets the primary key.
var Key = Target{PrimaryKey: true}

func (t Target) String() string {
	if t.PrimaryKey {
		return "$key"
	}
	return fmt.Sprintf("$%d", t.Field)
}

// Expr is a predicate tree node.
type Expr interface {
	fmt.Stringer
	isExpr()
}

type And struct{ Left, Right Expr }

type Or struct{ Left, Right Expr }

type Not struct{ Expr Expr }

// Compare is a leaf comparing a target with a constant. In and NotIn use
// Values; every other operation uses Value. Like matches the text form of
// Value as a substring.
type Compare struct {
	Target Target
	Op     Op
	Value  model.Value
	Values []model.Value
}

// keys is a leaf matching records by slot. It only appears in residual
// predicates built by the analyzer.
type keys struct{ set *keyset.Set }

func (And) isExpr()     {}
func (Or) isExpr()      {}
func (Not) isExpr()     {}
func (Compare) isExpr() {}
func (keys) isExpr()    {}

func (e And) String() string { return "(" + e.Left.String() + " AND " + e.Right.String() + ")" }
func (e Or) String() string  { return "(" + e.Left.String() + " OR " + e.Right.String() + ")" }
func (e Not) String() string { return "NOT " + e.Expr.String() }
func (e keys) String() string {
	return fmt.Sprintf("$slot IN <%d keys>", e.set.Len())
}

func (e Compare) String() string {
	if e.Op == In || e.Op == NotIn {
		parts := make([]string, len(e.Values))
		for i, v := range e.Values {
			parts[i] = v.GoString()
		}
		return fmt.Sprintf("%s %s (%s)", e.Target, e.Op, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %#v", e.Target, e.Op, e.Value)
}

func Eq(t Target, v model.Value) Expr { return Compare{Target: t, Op: Equals, Value: v} }
func Ne(t Target, v model.Value) Expr { return Compare{Target: t, Op: NotEquals, Value: v} }
func Lt(t Target, v model.Value) Expr { return Compare{Target: t, Op: Less, Value: v} }
func Le(t Target, v model.Value) Expr { return Compare{Target: t, Op: LessOrEquals, Value: v} }
func Gt(t Target, v model.Value) Expr { return Compare{Target: t, Op: Great, Value: v} }
func Ge(t Target, v model.Value) Expr { return Compare{Target: t, Op: GreatOrEquals, Value: v} }

// Contains matches records whose target text contains pattern.
func Contains(t Target, pattern string) Expr {
	return Compare{Target: t, Op: Like, Value: model.StringValue(pattern)}
}

func OneOf(t Target, values ...model.Value) Expr {
	return Compare{Target: t, Op: In, Values: values}
}

// AllOf joins exprs with AND. It returns nil for no exprs.
func AllOf(exprs ...Expr) Expr {
	return chain(exprs, func(l, r Expr) Expr { return And{Left: l, Right: r} })
}

// AnyOf joins exprs with OR. It returns nil for no exprs.
func AnyOf(exprs ...Expr) Expr {
	return chain(exprs, func(l, r Expr) Expr { return Or{Left: l, Right: r} })
}

func Negate(e Expr) Expr { return Not{Expr: e} }

func chain(exprs []Expr, join func(l, r Expr) Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = join(out, e)
	}
	return out
}

// Fields lists the field numbers e reads, in first-use order.
func Fields(e Expr) []uint8 {
	var out []uint8
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case And:
			walk(n.Left)
			walk(n.Right)
		case Or:
			walk(n.Left)
			walk(n.Right)
		case Not:
			walk(n.Expr)
		case Compare:
			if !n.Target.PrimaryKey && !slices.Contains(out, n.Target.Field) {
				out = append(out, n.Target.Field)
			}
		}
	}
	if e != nil {
		walk(e)
	}
	return out
}

// Bind checks every field of e against schema and converts constants to the
// type of the field they are compared with. Numeric constants are left as
// they are since numeric values compare across types.
func Bind(e Expr, schema *model.Schema) (Expr, error) {
	if e == nil {
		return nil, nil
	}
	switch n := e.(type) {
	case And:
		l, r, err := bindPair(n.Left, n.Right, schema)
		return And{Left: l, Right: r}, err
	case Or:
		l, r, err := bindPair(n.Left, n.Right, schema)
		return Or{Left: l, Right: r}, err
	case Not:
		inner, err := Bind(n.Expr, schema)
		return Not{Expr: inner}, err
	case Compare:
		return bindCompare(n, schema)
	}
	return nil, fmt.Errorf("%w: expression %T", ErrUnsupportedOperation, e)
}

func bindPair(l, r Expr, schema *model.Schema) (Expr, Expr, error) {
	l, err := Bind(l, schema)
	if err != nil {
		return nil, nil, err
	}
	r, err = Bind(r, schema)
	return l, r, err
}

func bindCompare(c Compare, schema *model.Schema) (Expr, error) {
	if c.Op == 0 || int(c.Op) >= len(opNames) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.Op)
	}
	t := schema.KeyType
	if !c.Target.PrimaryKey {
		f, ok := schema.Field(c.Target.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownField, c.Target.Field)
		}
		t = f.Type
	}
	if c.Op == Like || c.Op == NotLike {
		c.Value = model.StringValue(c.Value.String())
		return c, nil
	}

	var err error
	if c.Op == In || c.Op == NotIn {
		values := make([]model.Value, len(c.Values))
		for i, v := range c.Values {
			if values[i], err = coerce(v, t); err != nil {
				return nil, err
			}
		}
		c.Values = values
		return c, nil
	}
	c.Value, err = coerce(c.Value, t)
	return c, err
}

func coerce(v model.Value, t model.Type) (model.Value, error) {
	if v.Type().IsNumeric() && t.IsNumeric() && !v.IsNull() {
		return v, nil
	}
	return model.Convert(v, t)
}
