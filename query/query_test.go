package query

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/cqkv/cqdb/index"
	"github.com/cqkv/cqdb/keydir"
	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fieldAge   uint8 = 1
	fieldName  uint8 = 2
	fieldScore uint8 = 3
)

type memSource struct {
	kd      *keydir.BTree
	indexes map[uint8]*index.Index
	records map[uint32]map[uint8]model.Value
	reads   int
}

func newMemSource() *memSource {
	return &memSource{
		kd:      keydir.NewBTree(8),
		indexes: map[uint8]*index.Index{},
		records: map[uint32]map[uint8]model.Value{},
	}
}

func (s *memSource) Keydir() keydir.Keydir { return s.kd }

func (s *memSource) Index(field uint8) *index.Index { return s.indexes[field] }

func (s *memSource) ReadFields(pk *model.PrimaryKey, fields []uint8, out map[uint8]model.Value) error {
	s.reads++
	rec, ok := s.records[pk.Slot]
	if !ok {
		return fmt.Errorf("no record at slot %d", pk.Slot)
	}
	for _, f := range fields {
		out[f] = rec[f]
	}
	return nil
}

func (s *memSource) insert(key int64, fields map[uint8]model.Value) {
	pk := &model.PrimaryKey{Value: model.Int64Value(key)}
	s.kd.Put(pk)
	s.records[pk.Slot] = fields
}

func (s *memSource) delete(key int64) {
	pk := s.kd.Get(model.Int64Value(key))
	s.kd.Delete(pk.Value)
	delete(s.records, pk.Slot)
}

// addIndex indexes field, including fieldName unless field is fieldName.
func (s *memSource) addIndex(field uint8) {
	meta := index.Meta{Entity: "user", Name: fmt.Sprintf("ix%d", field), Field: field}
	if field != fieldName {
		meta.Included = []uint8{fieldName}
	}
	ix := index.New(meta)
	s.kd.Ascend(func(pk *model.PrimaryKey) bool {
		rec := s.records[pk.Slot]
		var included []model.Value
		if len(meta.Included) > 0 {
			included = []model.Value{rec[fieldName]}
		}
		ix.Insert(rec[field], pk.Value, pk.Slot, included)
		return true
	})
	s.indexes[field] = ix
}

func (s *memSource) scan(e Expr) *keyset.Set {
	set := keyset.New()
	s.kd.Ascend(func(pk *model.PrimaryKey) bool {
		if Eval(e, Record{Key: pk.Value, Slot: pk.Slot, Fields: s.records[pk.Slot]}) {
			set.Add(pk.Slot)
		}
		return true
	})
	return set
}

func record(age int32, name string, score int32) map[uint8]model.Value {
	return map[uint8]model.Value{
		fieldAge:   model.Int32Value(age),
		fieldName:  model.StringValue(name),
		fieldScore: model.Int32Value(score),
	}
}

func randomSource(r *rand.Rand, n int) *memSource {
	s := newMemSource()
	for i := 0; i < n; i++ {
		s.insert(int64(i), record(int32(r.Intn(20)), fmt.Sprintf("n%d", r.Intn(30)), int32(r.Intn(10))))
	}
	for i := 0; i < n/10; i++ {
		key := int64(r.Intn(n))
		if s.kd.Get(model.Int64Value(key)) != nil {
			s.delete(key)
		}
	}
	return s
}

var allOps = []Op{Equals, NotEquals, Less, Great, LessOrEquals, GreatOrEquals, Like, NotLike, In, NotIn}

func randomLeaf(r *rand.Rand) Expr {
	op := allOps[r.Intn(len(allOps))]
	var t Target
	var constant func() model.Value
	switch r.Intn(4) {
	case 0:
		t = Key
		constant = func() model.Value { return model.Int64Value(int64(r.Intn(100))) }
	case 1:
		t = Field(fieldAge)
		constant = func() model.Value { return model.Int32Value(int32(r.Intn(22))) }
	case 2:
		t = Field(fieldName)
		constant = func() model.Value { return model.StringValue(fmt.Sprintf("n%d", r.Intn(32))) }
	default:
		t = Field(fieldScore)
		constant = func() model.Value { return model.Int32Value(int32(r.Intn(11))) }
	}
	c := Compare{Target: t, Op: op}
	switch op {
	case Like, NotLike:
		c.Value = model.StringValue(fmt.Sprint(r.Intn(10)))
	case In, NotIn:
		for i := r.Intn(4); i >= 0; i-- {
			c.Values = append(c.Values, constant())
		}
	default:
		c.Value = constant()
	}
	return c
}

func randomExpr(r *rand.Rand, depth int) Expr {
	if depth == 0 || r.Intn(4) == 0 {
		return randomLeaf(r)
	}
	switch r.Intn(3) {
	case 0:
		return And{Left: randomExpr(r, depth-1), Right: randomExpr(r, depth-1)}
	case 1:
		return Or{Left: randomExpr(r, depth-1), Right: randomExpr(r, depth-1)}
	default:
		return Not{Expr: randomExpr(r, depth-1)}
	}
}

func TestWhereAnalyzer_MatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(20240601))
	indexSets := [][]uint8{nil, {fieldAge}, {fieldName}, {fieldAge, fieldScore}, {fieldAge, fieldName, fieldScore}}

	for round := 0; round < 20; round++ {
		for _, fields := range indexSets {
			s := randomSource(r, 100)
			for _, f := range fields {
				s.addIndex(f)
			}
			for i := 0; i < 25; i++ {
				e := randomExpr(r, 4)
				want := s.scan(e)
				res, err := NewWhereAnalyzer(s).GetResult(e)
				require.Nil(t, err)
				if !assert.True(t, want.Equal(res.Keys), "indexes %v expr %s: want %v got %v", fields, e, want.ToSlice(), res.Keys.ToSlice()) {
					return
				}
				for slot, values := range res.Fields {
					assert.True(t, res.Keys.Contains(slot))
					for number, v := range values {
						assert.True(t, model.Equal(s.records[slot][number], v), "slot %d field %d", slot, number)
					}
				}
			}
		}
	}
}

func scenarioSource() *memSource {
	s := newMemSource()
	s.insert(1, record(10, "a", 0))
	s.insert(2, record(20, "b", 0))
	s.insert(3, record(30, "c", 0))
	return s
}

func keysOf(s *memSource, set *keyset.Set) []int64 {
	var out []int64
	for slot := range set.All() {
		out = append(out, s.kd.BySlot(slot).Value.Int())
	}
	return out
}

func TestWhereAnalyzer_ScanWithoutIndex(t *testing.T) {
	s := scenarioSource()
	res, err := NewWhereAnalyzer(s).GetResult(Lt(Field(fieldAge), model.Int32Value(20)))
	require.Nil(t, err)
	assert.Equal(t, []int64{1}, keysOf(s, res.Keys))
	assert.Equal(t, 3, res.Plan.Evaluated)
	assert.Equal(t, 1, res.Plan.ScannedLeaves)
	assert.Equal(t, 3, s.reads)
}

func TestWhereAnalyzer_IndexLookup(t *testing.T) {
	s := scenarioSource()
	s.addIndex(fieldAge)
	res, err := NewWhereAnalyzer(s).GetResult(Eq(Field(fieldAge), model.Int32Value(20)))
	require.Nil(t, err)
	assert.Equal(t, []int64{2}, keysOf(s, res.Keys))
	assert.Equal(t, 0, s.reads)
	assert.Equal(t, 1, res.Plan.IndexedLeaves)

	// indexed and included values come back without a read
	slot := s.kd.Get(model.Int64Value(2)).Slot
	assert.Equal(t, int64(20), res.Fields[slot][fieldAge].Int())
	assert.Equal(t, "b", res.Fields[slot][fieldName].String())
}

func TestWhereAnalyzer_ResolvedSideRestrictsCandidates(t *testing.T) {
	s := scenarioSource()
	s.addIndex(fieldAge)
	e := AllOf(
		Ge(Field(fieldAge), model.Int32Value(20)),
		Ne(Field(fieldScore), model.Int32Value(1)),
	)
	res, err := NewWhereAnalyzer(s).GetResult(e)
	require.Nil(t, err)
	assert.Equal(t, []int64{2, 3}, keysOf(s, res.Keys))
	// only the two candidates are read
	assert.Equal(t, 2, s.reads)
	assert.Equal(t, 2, res.Plan.Evaluated)
}

func TestWhereAnalyzer_RestrictionSurvivesUnion(t *testing.T) {
	for _, indexed := range [][]uint8{nil, {fieldAge}, {fieldName}} {
		s := scenarioSource()
		for _, f := range indexed {
			s.addIndex(f)
		}
		// the key restriction on the first branch must outlive the OR
		e := AllOf(
			AnyOf(
				AllOf(Eq(Key, model.Int64Value(1)), Ge(Field(fieldAge), model.Int32Value(0))),
				Eq(Field(fieldAge), model.Int32Value(30)),
			),
			Ne(Field(fieldName), model.StringValue("zzz")),
		)
		res, err := NewWhereAnalyzer(s).GetResult(e)
		require.Nil(t, err)
		assert.Equal(t, []int64{1, 3}, keysOf(s, res.Keys), "indexes %v", indexed)
	}
}

func TestWhereAnalyzer_PartialBucket(t *testing.T) {
	s := scenarioSource()
	s.addIndex(fieldAge)
	e := AnyOf(
		Eq(Field(fieldAge), model.Int32Value(10)),
		Eq(Field(fieldName), model.StringValue("c")),
	)
	res, err := NewWhereAnalyzer(s).GetResult(e)
	require.Nil(t, err)
	assert.Equal(t, []int64{1, 3}, keysOf(s, res.Keys))
	// the indexed disjunct already matched key 1, so it is not evaluated again
	assert.Equal(t, 2, res.Plan.Evaluated)
}

func TestWhereAnalyzer_NotElimination(t *testing.T) {
	s := scenarioSource()
	s.addIndex(fieldAge)
	e := Negate(AnyOf(
		Lt(Field(fieldAge), model.Int32Value(20)),
		Gt(Field(fieldAge), model.Int32Value(20)),
	))
	res, err := NewWhereAnalyzer(s).GetResult(e)
	require.Nil(t, err)
	assert.Equal(t, []int64{2}, keysOf(s, res.Keys))
	assert.Equal(t, 0, s.reads)

	res, err = NewWhereAnalyzer(s).GetResult(Negate(Negate(Eq(Key, model.Int64Value(3)))))
	require.Nil(t, err)
	assert.Equal(t, []int64{3}, keysOf(s, res.Keys))
}

func TestWhereAnalyzer_NilMatchesAll(t *testing.T) {
	s := scenarioSource()
	s.delete(2)
	res, err := NewWhereAnalyzer(s).GetResult(nil)
	require.Nil(t, err)
	assert.Equal(t, []int64{1, 3}, keysOf(s, res.Keys))
}

func TestBind(t *testing.T) {
	schema, err := model.NewSchema("user", "Id", model.TypeInt64, "", []model.FieldMeta{
		{Number: fieldAge, Name: "Age", Type: model.TypeInt32},
		{Number: fieldName, Name: "Name", Type: model.TypeString},
		{Number: 4, Name: "Born", Type: model.TypeTime},
	})
	require.Nil(t, err)

	e, err := Bind(AllOf(
		Eq(Field(4), model.StringValue("2024-01-02T03:04:05Z")),
		OneOf(Field(fieldName), model.Int32Value(5)),
		Contains(Field(fieldAge), "1"),
	), schema)
	require.Nil(t, err)
	and := e.(And)
	born := and.Left.(And).Left.(Compare)
	assert.Equal(t, model.TypeTime, born.Value.Type())
	name := and.Left.(And).Right.(Compare)
	assert.Equal(t, model.StringValue("5"), name.Values[0])

	_, err = Bind(Eq(Field(9), model.Int32Value(1)), schema)
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = Bind(Eq(Field(4), model.BoolValue(true)), schema)
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
	_, err = Bind(Compare{Target: Key, Op: Op(99)}, schema)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	assert.Equal(t, []uint8{4, fieldName, fieldAge}, Fields(e))
}

func TestOpNegate(t *testing.T) {
	v := model.Int32Value(5)
	for _, op := range allOps {
		assert.Equal(t, op, op.Negate().Negate())
		for _, x := range []int32{4, 5, 6} {
			c := Compare{Op: op, Value: v, Values: []model.Value{v}}
			neg := c
			neg.Op = op.Negate()
			xv := model.Int32Value(x)
			assert.NotEqual(t, Match(c, xv), Match(neg, xv), "%s on %d", op, x)
		}
	}
}

func TestOrderByAnalyzer_MatchesStableSort(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	s := randomSource(r, 200)
	s.addIndex(fieldAge)
	s.addIndex(fieldScore)
	a := NewOrderByAnalyzer(s)

	assert.False(t, a.CanSort(nil))
	assert.False(t, a.CanSort([]Order{Asc(Field(fieldName))}))

	cases := [][]Order{
		{Asc(Field(fieldAge))},
		{Desc(Field(fieldAge))},
		{Desc(Key)},
		{Asc(Field(fieldAge)), Desc(Field(fieldScore))},
		{Desc(Field(fieldScore)), Asc(Field(fieldAge))},
		{Asc(Field(fieldScore)), Desc(Key)},
		{Desc(Field(fieldScore)), Desc(Field(fieldAge)), Asc(Key)},
	}
	for _, orders := range cases {
		require.True(t, a.CanSort(orders))
		var records []Record
		s.kd.Ascend(func(pk *model.PrimaryKey) bool {
			records = append(records, Record{Key: pk.Value, Slot: pk.Slot, Fields: s.records[pk.Slot]})
			return true
		})
		SortRecords(records, orders)
		want := make([]uint32, len(records))
		for i, rec := range records {
			want[i] = rec.Slot
		}
		assert.Equal(t, want, a.Sort(orders), "%v", orders)
	}
	assert.Equal(t, 0, s.reads)
}
