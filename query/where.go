package query

import (
	"fmt"

	"github.com/cqkv/cqdb/index"
	"github.com/cqkv/cqdb/keydir"
	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
)

// Source is the collection state an analyzer works on. It is borrowed for
// the duration of one call.
type Source interface {
	Keydir() keydir.Keydir
	// Index returns an index ordered by field, or nil.
	Index(field uint8) *index.Index
	// ReadFields reads fields of the record pk points to into out.
	ReadFields(pk *model.PrimaryKey, fields []uint8, out map[uint8]model.Value) error
}

// FieldMap holds recovered field values per slot.
type FieldMap map[uint32]map[uint8]model.Value

// Merge copies the values of o into m and returns m.
func (m FieldMap) Merge(o FieldMap) FieldMap {
	if m == nil {
		return o
	}
	for slot, fields := range o {
		dst, ok := m[slot]
		if !ok {
			m[slot] = fields
			continue
		}
		for number, v := range fields {
			dst[number] = v
		}
	}
	return m
}

func (m FieldMap) put(slot uint32) map[uint8]model.Value {
	fields, ok := m[slot]
	if !ok {
		fields = make(map[uint8]model.Value)
		m[slot] = fields
	}
	return fields
}

// Plan counts how a predicate was answered.
type Plan struct {
	IndexedLeaves int // answered by an index or the key map
	ScannedLeaves int // left for direct evaluation
	Residuals     int // unresolved disjuncts evaluated per record
	Evaluated     int // records evaluated directly
	FieldReads    int // records read from the data file
}

func (p Plan) String() string {
	return fmt.Sprintf("indexed=%d scanned=%d residuals=%d evaluated=%d reads=%d",
		p.IndexedLeaves, p.ScannedLeaves, p.Residuals, p.Evaluated, p.FieldReads)
}

// Result is the outcome of a WHERE analysis: matching slots plus every field
// value recovered on the way, keyed by slot.
type Result struct {
	Keys   *keyset.Set
	Fields FieldMap
	Plan   Plan
}

// node is a partially folded predicate. A resolved node is an exact key
// set. An unresolved node is a residual predicate that still has to be
// evaluated against cands, or against every live record when cands is nil.
type node struct {
	resolved bool
	keys     *keyset.Set
	residual Expr
	cands    *keyset.Set
	fields   FieldMap
}

type WhereAnalyzer struct {
	src Source
}

func NewWhereAnalyzer(src Source) *WhereAnalyzer {
	return &WhereAnalyzer{src: src}
}

// GetResult returns the live records matching e. e must be bound to the
// collection schema. A nil e matches every live record.
func (a *WhereAnalyzer) GetResult(e Expr) (*Result, error) {
	res := &Result{Keys: keyset.New(), Fields: FieldMap{}}
	if e == nil {
		res.Keys = a.src.Keydir().Slots()
		return res, nil
	}

	// disjuncts hanging off the root through OR only are final once resolved
	var pending []*node
	for _, d := range disjuncts(e, false, nil) {
		n, err := a.fold(d.expr, d.neg, &res.Plan)
		if err != nil {
			return nil, err
		}
		if n.resolved {
			res.Keys.Merge(n.keys)
			res.Fields = res.Fields.Merge(n.fields)
			continue
		}
		pending = append(pending, n)
	}

	for _, n := range pending {
		if err := a.evaluate(n, res); err != nil {
			return nil, err
		}
	}

	for slot := range res.Fields {
		if !res.Keys.Contains(slot) {
			delete(res.Fields, slot)
		}
	}
	return res, nil
}

type disjunct struct {
	expr Expr
	neg  bool
}

// disjuncts flattens the OR chain at the root, reading NOT over AND as OR.
func disjuncts(e Expr, neg bool, out []disjunct) []disjunct {
	switch n := e.(type) {
	case Not:
		return disjuncts(n.Expr, !neg, out)
	case Or:
		if !neg {
			out = disjuncts(n.Left, neg, out)
			return disjuncts(n.Right, neg, out)
		}
	case And:
		if neg {
			out = disjuncts(n.Left, neg, out)
			return disjuncts(n.Right, neg, out)
		}
	}
	return append(out, disjunct{expr: e, neg: neg})
}

// fold resolves e bottom up, carrying the negation down to the leaves.
func (a *WhereAnalyzer) fold(e Expr, neg bool, plan *Plan) (*node, error) {
	switch n := e.(type) {
	case Not:
		return a.fold(n.Expr, !neg, plan)
	case And:
		return a.foldPair(n.Left, n.Right, true, neg, plan)
	case Or:
		return a.foldPair(n.Left, n.Right, false, neg, plan)
	case Compare:
		if neg {
			n.Op = n.Op.Negate()
		}
		return a.resolve(n, plan)
	}
	return nil, fmt.Errorf("%w: expression %T", ErrUnsupportedOperation, e)
}

func (a *WhereAnalyzer) foldPair(l, r Expr, isAnd, neg bool, plan *Plan) (*node, error) {
	left, err := a.fold(l, neg, plan)
	if err != nil {
		return nil, err
	}
	right, err := a.fold(r, neg, plan)
	if err != nil {
		return nil, err
	}
	// De Morgan: under negation AND folds as OR and OR as AND
	if isAnd != neg {
		return foldAnd(left, right), nil
	}
	return foldOr(left, right), nil
}

func foldAnd(a, b *node) *node {
	switch {
	case a.resolved && b.resolved:
		return &node{resolved: true, keys: a.keys.And(b.keys), fields: a.fields.Merge(b.fields)}
	case a.resolved:
		return restrict(b, a)
	case b.resolved:
		return restrict(a, b)
	}
	return &node{
		residual: And{Left: a.residual, Right: b.residual},
		cands:    intersect(a.cands, b.cands),
		fields:   a.fields.Merge(b.fields),
	}
}

// restrict narrows the unresolved u to the keys of the resolved r.
func restrict(u, r *node) *node {
	u.cands = intersect(u.cands, r.keys)
	u.fields = u.fields.Merge(r.fields)
	return u
}

func foldOr(a, b *node) *node {
	switch {
	case a.resolved && b.resolved:
		return &node{resolved: true, keys: a.keys.Or(b.keys), fields: a.fields.Merge(b.fields)}
	case a.resolved:
		return widen(b, a)
	case b.resolved:
		return widen(a, b)
	}
	return &node{
		residual: Or{Left: a.guarded(), Right: b.guarded()},
		cands:    union(a.cands, b.cands),
		fields:   a.fields.Merge(b.fields),
	}
}

// widen ORs the resolved r into the unresolved u.
func widen(u, r *node) *node {
	return &node{
		residual: Or{Left: keys{set: r.keys}, Right: u.guarded()},
		cands:    union(u.cands, r.keys),
		fields:   u.fields.Merge(r.fields),
	}
}

// guarded returns the residual of an unresolved n with its candidate
// restriction folded in, so the restriction survives a wider union.
func (n *node) guarded() Expr {
	if n.cands == nil {
		return n.residual
	}
	return And{Left: keys{set: n.cands}, Right: n.residual}
}

// intersect treats nil as the universe.
func intersect(a, b *keyset.Set) *keyset.Set {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}
	return a.And(b)
}

// union treats nil as the universe.
func union(a, b *keyset.Set) *keyset.Set {
	if a == nil || b == nil {
		return nil
	}
	return a.Or(b)
}

// resolve answers a leaf from the key map or an index when it can.
func (a *WhereAnalyzer) resolve(c Compare, plan *Plan) (*node, error) {
	if c.Target.PrimaryKey {
		plan.IndexedLeaves++
		set, err := a.resolveKey(c)
		if err != nil {
			return nil, err
		}
		return &node{resolved: true, keys: set}, nil
	}

	ix := a.src.Index(c.Target.Field)
	if ix == nil {
		plan.ScannedLeaves++
		return &node{residual: c}, nil
	}
	plan.IndexedLeaves++
	entries, err := lookup(ix, c)
	if err != nil {
		return nil, err
	}
	n := &node{resolved: true, keys: keyset.New(), fields: FieldMap{}}
	for _, e := range entries {
		for _, item := range e.Items {
			n.keys.Add(item.Slot)
			ix.FieldValues(e, item, n.fields.put(item.Slot))
		}
	}
	return n, nil
}

func (a *WhereAnalyzer) resolveKey(c Compare) (*keyset.Set, error) {
	kd := a.src.Keydir()
	switch c.Op {
	case Equals:
		if pk := kd.Get(c.Value); pk != nil {
			return keyset.Of(pk.Slot), nil
		}
		return keyset.New(), nil
	case NotEquals:
		set := kd.Slots()
		if pk := kd.Get(c.Value); pk != nil {
			set.Remove(pk.Slot)
		}
		return set, nil
	case Less:
		return kd.Less(c.Value, false), nil
	case LessOrEquals:
		return kd.Less(c.Value, true), nil
	case Great:
		return kd.Greater(c.Value, false), nil
	case GreatOrEquals:
		return kd.Greater(c.Value, true), nil
	case Like, NotLike, In, NotIn:
		set := keyset.New()
		kd.Ascend(func(pk *model.PrimaryKey) bool {
			if Match(c, pk.Value) {
				set.Add(pk.Slot)
			}
			return true
		})
		return set, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.Op)
}

func lookup(ix *index.Index, c Compare) ([]*index.Entry, error) {
	switch c.Op {
	case Equals:
		return ix.Equals(c.Value), nil
	case NotEquals:
		return ix.NotEquals(c.Value), nil
	case Less:
		return ix.Less(c.Value), nil
	case Great:
		return ix.Great(c.Value), nil
	case LessOrEquals:
		return ix.LessOrEquals(c.Value), nil
	case GreatOrEquals:
		return ix.GreatOrEquals(c.Value), nil
	case Like:
		return ix.Like(c.Value.String()), nil
	case NotLike:
		return ix.NotLike(c.Value.String()), nil
	case In:
		return ix.In(c.Values), nil
	case NotIn:
		return ix.NotIn(c.Values), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, c.Op)
}

// evaluate runs an unresolved disjunct against its candidates, reading only
// the fields no index supplied.
func (a *WhereAnalyzer) evaluate(n *node, res *Result) error {
	res.Plan.Residuals++
	kd := a.src.Keydir()
	cands := n.cands
	if cands == nil {
		cands = kd.Slots()
	}
	needed := Fields(n.residual)

	// slots matched by earlier disjuncts need no evaluation
	for slot := range cands.AndNot(res.Keys).All() {
		pk := kd.BySlot(slot)
		if pk == nil {
			continue
		}
		fields := res.Fields[slot]
		if fields == nil {
			fields = n.fields[slot]
		} else if known, ok := n.fields[slot]; ok {
			for number, v := range known {
				fields[number] = v
			}
		}
		if fields == nil {
			fields = make(map[uint8]model.Value, len(needed))
		}

		var missing []uint8
		for _, number := range needed {
			if _, ok := fields[number]; !ok {
				missing = append(missing, number)
			}
		}
		if len(missing) > 0 {
			res.Plan.FieldReads++
			if err := a.src.ReadFields(pk, missing, fields); err != nil {
				return err
			}
		}

		res.Plan.Evaluated++
		res.Fields[slot] = fields
		if Eval(n.residual, Record{Key: pk.Value, Slot: slot, Fields: fields}) {
			res.Keys.Add(slot)
		}
	}
	return nil
}
