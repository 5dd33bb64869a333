package query

import "github.com/cqkv/cqdb/model"

// Record is what a predicate is evaluated against. Fields must hold every
// field the predicate reads.
type Record struct {
	Key    model.Value
	Slot   uint32
	Fields map[uint8]model.Value
}

// Eval evaluates e directly against rec. A nil e matches everything.
func Eval(e Expr, rec Record) bool {
	switch n := e.(type) {
	case nil:
		return true
	case And:
		return Eval(n.Left, rec) && Eval(n.Right, rec)
	case Or:
		return Eval(n.Left, rec) || Eval(n.Right, rec)
	case Not:
		return !Eval(n.Expr, rec)
	case keys:
		return n.set.Contains(rec.Slot)
	case Compare:
		v := rec.Key
		if !n.Target.PrimaryKey {
			v = rec.Fields[n.Target.Field]
		}
		return Match(n, v)
	}
	return false
}

// Match applies the comparison c to v.
func Match(c Compare, v model.Value) bool {
	switch c.Op {
	case Equals:
		return model.Compare(v, c.Value) == 0
	case NotEquals:
		return model.Compare(v, c.Value) != 0
	case Less:
		return model.Compare(v, c.Value) < 0
	case Great:
		return model.Compare(v, c.Value) > 0
	case LessOrEquals:
		return model.Compare(v, c.Value) <= 0
	case GreatOrEquals:
		return model.Compare(v, c.Value) >= 0
	case Like:
		return model.Like(v, c.Value.String())
	case NotLike:
		return !model.Like(v, c.Value.String())
	case In:
		return in(c.Values, v)
	case NotIn:
		return !in(c.Values, v)
	}
	return false
}

func in(values []model.Value, v model.Value) bool {
	for _, c := range values {
		if model.Equal(c, v) {
			return true
		}
	}
	return false
}
