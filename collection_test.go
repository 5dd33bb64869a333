package cqdb

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
	"github.com/cqkv/cqdb/storage"
)

func TestCollection_CRUD(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper())
	abc(t, c)
	assert.Equal(t, 3, c.Count())

	err := c.Insert(&user{Id: 2, Name: "bobby"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	u, ok, err := c.Get(model.Int64Value(2))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", u.Name)
	assert.Equal(t, int32(20), u.Age)

	// keys are converted to the key type
	u, ok, err = c.Get(model.Int32Value(3))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "carol", u.Name)

	_, _, err = c.Get(model.NullValue(model.TypeInt64))
	assert.ErrorIs(t, err, ErrNullPrimaryKey)
	// a key beyond the key type never wraps around to another record
	_, _, err = c.Get(model.Uint64Value(math.MaxUint64))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	found, err := c.Update(&user{Id: 2, Name: "bobby", Age: 21})
	assert.Nil(t, err)
	assert.True(t, found)
	found, err = c.Update(&user{Id: 9})
	assert.Nil(t, err)
	assert.False(t, found)

	assert.Nil(t, c.Upsert(&user{Id: 4, Name: "dave", Age: 40}))
	assert.Nil(t, c.Upsert(&user{Id: 1, Name: "alicia", Age: 11}))
	assert.Equal(t, 4, c.Count())

	u, _, err = c.Get(model.Int64Value(1))
	assert.Nil(t, err)
	assert.Equal(t, "alicia", u.Name)
	u, _, err = c.Get(model.Int64Value(2))
	assert.Nil(t, err)
	assert.Equal(t, "bobby", u.Name)
	assert.Equal(t, int32(21), u.Age)

	deleted, err := c.Delete(model.Int64Value(4))
	assert.Nil(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete(model.Int64Value(4))
	assert.Nil(t, err)
	assert.False(t, deleted)
	ok, err = c.Exists(model.Int64Value(4))
	assert.Nil(t, err)
	assert.False(t, ok)

	// a deleted key can be inserted again
	assert.Nil(t, c.Insert(&user{Id: 4, Name: "dora"}))
	u, ok, err = c.Get(model.Int64Value(4))
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dora", u.Name)
}

func TestCollection_InsertMany(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper())

	err := c.InsertMany([]*user{{Id: 1}, {Id: 2}, {Id: 1}, {Id: 3}})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, 2, c.Count())
}

func TestCollection_FieldTypes(t *testing.T) {
	for _, compression := range []codec.Compression{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZSTD} {
		db := openMemDB(t, fio.NewMemFileSystem(), WithCompression(compression))
		c := openUsers(t, db, userMapper())

		in := &user{
			Id:      7,
			Name:    "grace",
			Age:     -3,
			Score:   98.5,
			Bio:     strings.Repeat("compilers and cobol ", 64),
			Born:    time.Date(1906, 12, 9, 10, 30, 0, 123000, time.UTC),
			Ref:     uuid.New(),
			Balance: decimal.RequireFromString("-1234.5678"),
			Tags:    []string{"navy", "cobol"},
		}
		require.Nil(t, c.Insert(in))

		out, ok, err := c.Get(model.Int64Value(7))
		require.Nil(t, err)
		require.True(t, ok)
		assert.Equal(t, in.Id, out.Id)
		assert.Equal(t, in.Name, out.Name)
		assert.Equal(t, in.Age, out.Age)
		assert.Equal(t, in.Score, out.Score)
		assert.Equal(t, in.Bio, out.Bio)
		assert.True(t, in.Born.Equal(out.Born))
		assert.Equal(t, in.Ref, out.Ref)
		assert.True(t, in.Balance.Equal(out.Balance))
		assert.Equal(t, in.Tags, out.Tags)
		require.Nil(t, db.Close())
	}
}

func TestCollection_ScanWithoutIndex(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper())
	abc(t, c)

	expr := query.Lt(c.Mapper().Ref("Age"), model.Int32Value(20))
	got, err := c.Find(Query{Where: expr})
	require.Nil(t, err)
	assert.Equal(t, []int64{1}, ids(got))

	err = c.withFiles(fio.ReadOnly, func(h *handles) error {
		res, err := c.s.where(h, expr)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, res.Plan.ScannedLeaves)
		assert.Equal(t, 0, res.Plan.IndexedLeaves)
		assert.Equal(t, 3, res.Plan.FieldReads)
		return nil
	})
	assert.Nil(t, err)
}

func TestCollection_IndexLookup(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper().Index("by_age", fAge))
	abc(t, c)

	expr := query.Eq(c.Mapper().Ref("Age"), model.Int32Value(20))
	got, err := c.Find(Query{Where: expr})
	require.Nil(t, err)
	assert.Equal(t, []int64{2}, ids(got))
	assert.Equal(t, "bob", got[0].Name)

	err = c.withFiles(fio.ReadOnly, func(h *handles) error {
		res, err := c.s.where(h, expr)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, res.Plan.IndexedLeaves)
		assert.Equal(t, 0, res.Plan.FieldReads)
		return nil
	})
	assert.Nil(t, err)
}

func TestCollection_UpdateWhereShrinksInPlace(t *testing.T) {
	fs := fio.NewMemFileSystem()
	db := openMemDB(t, fs)
	c := openUsers(t, db, userMapper())
	require.Nil(t, c.Insert(&user{Id: 1, Name: "abcdefghij", Age: 10}))
	require.Nil(t, c.Insert(&user{Id: 2, Name: "other", Age: 20}))

	before := *c.s.kd.Get(model.Int64Value(1))
	n, err := c.UpdateWhere(query.Eq(query.Key, model.Int64Value(1)),
		model.FieldValue{Number: fName, Value: model.StringValue("abc")})
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	after := *c.s.kd.Get(model.Int64Value(1))
	assert.Equal(t, before.StartOffset, after.StartOffset)
	assert.Equal(t, before.EndOffset-7, after.EndOffset)
	require.Nil(t, db.Close())

	db = openMemDB(t, fs)
	defer db.Close()
	c = openUsers(t, db, userMapper())
	pk := c.s.kd.Get(model.Int64Value(1))
	require.NotNil(t, pk)
	assert.Equal(t, after.EndOffset, pk.EndOffset)
	u, ok, err := c.Get(model.Int64Value(1))
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", u.Name)
	assert.Equal(t, int32(10), u.Age)
}

func TestCollection_DeleteTombstone(t *testing.T) {
	fs := fio.NewMemFileSystem()
	db := openMemDB(t, fs)
	c := openUsers(t, db, userMapper())
	abc(t, c)
	deleted, err := c.Delete(model.Int64Value(2))
	require.Nil(t, err)
	require.True(t, deleted)
	require.Nil(t, db.Close())

	ioManager, err := fs.Open(model.GetFileName(memDir, model.PrimaryKeyFileType, "user"), fio.ReadOnly)
	require.Nil(t, err)
	keys := storage.OpenPrimaryKeyFile(ioManager, model.TypeInt64)
	pks, err := keys.GetAllPrimaryKeys()
	require.Nil(t, err)
	require.Nil(t, keys.Close())
	require.Len(t, pks, 3)
	for _, pk := range pks {
		assert.Equal(t, pk.Value.Int() == 2, pk.Deleted, "key %d", pk.Value.Int())
	}

	db = openMemDB(t, fs)
	defer db.Close()
	c = openUsers(t, db, userMapper())
	assert.Equal(t, 2, c.Count())
	got, err := c.Find(Query{})
	require.Nil(t, err)
	assert.Equal(t, []int64{1, 3}, ids(got))
}

func TestCollection_Find(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	m := userMapper()
	c := openUsers(t, db, m)
	abc(t, c)
	age, name := m.Ref("Age"), m.Ref("Name")

	tests := []struct {
		name string
		q    Query
		want []int64
	}{
		{"all", Query{}, []int64{1, 2, 3}},
		{"by key", Query{Where: query.Eq(query.Key, model.Int64Value(2))}, []int64{2}},
		{"key range converts", Query{Where: query.Gt(query.Key, model.Int32Value(1))}, []int64{2, 3}},
		{"contains", Query{Where: query.Contains(name, "ar")}, []int64{3}},
		{"not contains", Query{Where: query.Negate(query.Contains(name, "o"))}, []int64{1}},
		{"one of", Query{Where: query.OneOf(age, model.Int32Value(10), model.Int32Value(30))}, []int64{1, 3}},
		{"all of", Query{Where: query.AllOf(query.Ge(age, model.Int32Value(20)), query.Ne(name, model.StringValue("carol")))}, []int64{2}},
		{"any of", Query{Where: query.AnyOf(query.Le(age, model.Int32Value(10)), query.Eq(name, model.StringValue("carol")))}, []int64{1, 3}},
		{"order desc", Query{OrderBy: []query.Order{query.Desc(age)}}, []int64{3, 2, 1}},
		{"skip limit", Query{OrderBy: []query.Order{query.Desc(age)}, Skip: 1, Limit: 1}, []int64{2}},
		{"skip past end", Query{Skip: 5}, []int64{}},
		{"negative skip", Query{Skip: -1, Limit: 2}, []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Find(tt.q)
			require.Nil(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCollection_FindFields(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper().Index("by_age", fAge, fName))
	abc(t, c)

	got, err := c.Find(Query{
		Where:   query.Ge(c.Mapper().Ref("Age"), model.Int32Value(20)),
		Fields:  []uint8{fName},
		OmitKey: true,
	})
	require.Nil(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, user{Name: "bob"}, *got[0])
	assert.Equal(t, user{Name: "carol"}, *got[1])

	_, err = c.Find(Query{Fields: []uint8{99}})
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = c.Find(Query{Where: query.Eq(query.Field(99), model.Int32Value(1))})
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = c.Find(Query{OrderBy: []query.Order{query.Asc(query.Field(99))}})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestCollection_BackfillFromCoveringIndex(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper().Index("by_age", fAge, fName))
	for i := 1; i <= 100; i++ {
		require.Nil(t, c.Insert(&user{Id: int64(i), Name: fmt.Sprintf("u%03d", i), Age: int32(i)}))
	}
	slot := func(id int64) uint32 { return c.s.kd.Get(model.Int64Value(id)).Slot }

	// a few matches are read from the data file rather than by walking the index
	fields := query.FieldMap{}
	assert.Equal(t, 0, c.s.backfill(keyset.Of(slot(7), slot(8)), fields, []uint8{fName}))
	assert.Empty(t, fields)

	all := keyset.New()
	for id := int64(1); id <= 100; id++ {
		all.Add(slot(id))
	}
	assert.Equal(t, 1, c.s.backfill(all, fields, []uint8{fName, fAge}))
	require.Len(t, fields, 100)
	assert.Equal(t, "u042", fields[slot(42)][fName].String())
	assert.Equal(t, int64(42), fields[slot(42)][fAge].Int())

	// both paths return the same entities
	got, err := c.Find(Query{Where: query.OneOf(c.Mapper().Ref("Id"), model.Int64Value(7), model.Int64Value(8))})
	require.Nil(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(8), got[1].Id)
	assert.Equal(t, "u008", got[1].Name)
	assert.Equal(t, int32(8), got[1].Age)
	got, err = c.Find(Query{Where: query.Ge(c.Mapper().Ref("Age"), model.Int32Value(1)), Fields: []uint8{fName}})
	require.Nil(t, err)
	require.Len(t, got, 100)
	assert.Equal(t, user{Id: 99, Name: "u099"}, *got[98])
}

func TestCollection_CountQuery(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	c := openUsers(t, db, userMapper())
	for i := int64(1); i <= 10; i++ {
		require.Nil(t, c.Insert(&user{Id: i, Age: int32(i)}))
	}
	age := c.Mapper().Ref("Age")

	tests := []struct {
		q    Query
		want int
	}{
		{Query{}, 10},
		{Query{Limit: 4}, 4},
		{Query{Skip: 3}, 7},
		{Query{Skip: 3, Limit: 4}, 1},
		{Query{Skip: 5, Limit: 4}, 0},
		{Query{Skip: 20}, 0},
		{Query{Where: query.Gt(age, model.Int32Value(6))}, 4},
		{Query{Where: query.Gt(age, model.Int32Value(6)), Skip: 1, Limit: 10}, 3},
	}
	for _, tt := range tests {
		n, err := c.CountQuery(tt.q)
		assert.Nil(t, err)
		assert.Equal(t, tt.want, n)
	}
}

func TestCollection_UpdateWhere(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	m := userMapper().Index("by_age", fAge).Index("by_name", fName)
	c := openUsers(t, db, m)
	abc(t, c)
	age, name := m.Ref("Age"), m.Ref("Name")

	// fixed width field, patched in place
	n, err := c.UpdateWhere(query.Eq(name, model.StringValue("bob")),
		model.FieldValue{Number: fAge, Value: model.Int32Value(99)})
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	got, err := c.Find(Query{Where: query.Eq(age, model.Int32Value(99))})
	require.Nil(t, err)
	assert.Equal(t, []int64{2}, ids(got))
	got, err = c.Find(Query{Where: query.Eq(age, model.Int32Value(20))})
	require.Nil(t, err)
	assert.Empty(t, got)

	// a longer value moves the record
	n, err = c.UpdateWhere(query.Eq(age, model.Int32Value(99)),
		model.FieldValue{Number: fName, Value: model.StringValue("bartholomew")})
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	got, err = c.Find(Query{Where: query.Eq(name, model.StringValue("bartholomew"))})
	require.Nil(t, err)
	require.Equal(t, []int64{2}, ids(got))
	assert.Equal(t, int32(99), got[0].Age)
	got, err = c.Find(Query{Where: query.Eq(name, model.StringValue("bob"))})
	require.Nil(t, err)
	assert.Empty(t, got)

	// null is stored as the field default
	n, err = c.UpdateWhere(nil, model.FieldValue{Number: fAge, Value: model.NullValue(model.TypeInt32)})
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	got, err = c.Find(Query{Where: query.Eq(age, model.Int32Value(0))})
	require.Nil(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(got))

	_, err = c.UpdateWhere(nil, model.FieldValue{Number: 99, Value: model.Int32Value(1)})
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = c.UpdateWhere(nil, model.FieldValue{Number: fAge, Value: model.StringValue("old")})
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = c.UpdateWhere(nil, model.FieldValue{Number: fAge, Value: model.Int64Value(1 << 40)})
	assert.ErrorIs(t, err, ErrTypeMismatch)
	got, err = c.Find(Query{Where: query.Eq(age, model.Int32Value(0))})
	require.Nil(t, err)
	assert.Len(t, got, 3)

	n, err = c.UpdateWhere(nil)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
}

func TestCollection_DeleteWhere(t *testing.T) {
	db := openMemDB(t, fio.NewMemFileSystem())
	defer db.Close()
	m := userMapper().Index("by_age", fAge)
	c := openUsers(t, db, m)
	abc(t, c)
	age := m.Ref("Age")

	n, err := c.DeleteWhere(query.Ge(age, model.Int32Value(20)))
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Count())
	got, err := c.Find(Query{Where: query.Gt(age, model.Int32Value(0))})
	require.Nil(t, err)
	assert.Equal(t, []int64{1}, ids(got))

	n, err = c.DeleteWhere(nil)
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, c.Count())
}

func TestCollection_IndexPersistence(t *testing.T) {
	fs := fio.NewMemFileSystem()
	path := model.GetIndexFileName(memDir, "user", "by_age")
	withIndex := func() *Mapper[user] { return userMapper().Index("by_age", fAge) }

	db := openMemDB(t, fs)
	c := openUsers(t, db, withIndex())
	abc(t, c)
	require.Nil(t, c.Flush())
	assert.True(t, fs.Exists(path))
	require.Nil(t, db.Close())

	db = openMemDB(t, fs)
	c = openUsers(t, db, withIndex())
	require.Len(t, c.Indexes(), 1)
	assert.Equal(t, 3, countIndexed(t, c, "by_age"))
	got, err := c.Find(Query{Where: query.Eq(c.Mapper().Ref("Age"), model.Int32Value(30))})
	require.Nil(t, err)
	assert.Equal(t, []int64{3}, ids(got))
	require.Nil(t, db.Close())

	// writes made while the index is not loaded leave its file stale
	db = openMemDB(t, fs)
	c = openUsers(t, db, userMapper())
	require.Nil(t, c.Insert(&user{Id: 4, Name: "dave", Age: 40}))
	require.Nil(t, db.Close())

	db = openMemDB(t, fs)
	c = openUsers(t, db, withIndex())
	assert.Equal(t, 4, countIndexed(t, c, "by_age"))
	got, err = c.Find(Query{Where: query.Eq(c.Mapper().Ref("Age"), model.Int32Value(40))})
	require.Nil(t, err)
	assert.Equal(t, []int64{4}, ids(got))
	require.Nil(t, db.Close())

	// a damaged file is rebuilt
	ioManager, err := fs.Open(path, fio.ReadWrite)
	require.Nil(t, err)
	_, err = ioManager.Write([]byte("garbage"), 0)
	require.Nil(t, err)
	require.Nil(t, ioManager.Close())

	db = openMemDB(t, fs)
	defer db.Close()
	c = openUsers(t, db, withIndex())
	assert.Equal(t, 4, countIndexed(t, c, "by_age"))
}

func TestCollection_IndexStaleAfterUpdate(t *testing.T) {
	fs := fio.NewMemFileSystem()
	withIndex := func() *Mapper[user] { return userMapper().Index("by_age", fAge) }
	findAge := func(c *Collection[user], age int32) []*user {
		got, err := c.Find(Query{Where: query.Eq(c.Mapper().Ref("Age"), model.Int32Value(age))})
		require.Nil(t, err)
		return got
	}

	db := openMemDB(t, fs)
	c := openUsers(t, db, withIndex())
	abc(t, c)
	require.Nil(t, db.Close())

	// the record count stays the same, only a value changes
	db = openMemDB(t, fs)
	c = openUsers(t, db, userMapper())
	n, err := c.UpdateWhere(query.Eq(query.Key, model.Int64Value(1)),
		model.FieldValue{Number: fAge, Value: model.Int32Value(99)})
	require.Nil(t, err)
	require.Equal(t, 1, n)
	require.Nil(t, db.Close())

	db = openMemDB(t, fs)
	c = openUsers(t, db, userMapper())
	require.Nil(t, c.EnsureIndex("by_age", fAge))
	assert.Equal(t, []int64{1}, ids(findAge(c, 99)))
	assert.Empty(t, findAge(c, 10))

	// writes after a flush leave the saved file behind again; the second
	// handle sees the files as a crashed process would have left them
	require.Nil(t, c.Flush())
	_, err = c.UpdateWhere(query.Eq(query.Key, model.Int64Value(3)),
		model.FieldValue{Number: fAge, Value: model.Int32Value(77)})
	require.Nil(t, err)

	other := openMemDB(t, fs)
	defer other.Close()
	reopened := openUsers(t, other, withIndex())
	got := findAge(reopened, 77)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Id)
	assert.Equal(t, int32(77), got[0].Age)
	assert.Empty(t, findAge(reopened, 30))
	require.Nil(t, db.Close())
}

func countIndexed(t *testing.T, c *Collection[user], name string) int {
	t.Helper()
	_, ix := c.s.indexByName(name)
	require.NotNil(t, ix)
	return ix.Len()
}

func TestCollection_EnsureDropIndex(t *testing.T) {
	fs := fio.NewMemFileSystem()
	db := openMemDB(t, fs)
	defer db.Close()
	c := openUsers(t, db, userMapper())
	abc(t, c)
	path := model.GetIndexFileName(memDir, "user", "by_age")

	require.Nil(t, c.EnsureIndex("by_age", fAge, fName))
	assert.True(t, fs.Exists(path))
	require.Len(t, c.Indexes(), 1)
	meta := c.Indexes()[0]
	assert.Equal(t, "by_age", meta.Name)
	assert.Equal(t, fAge, meta.Field)
	assert.Equal(t, []uint8{fName}, meta.Included)

	// ensuring the same definition again is a no-op
	assert.Nil(t, c.EnsureIndex("by_age", fAge, fName))
	assert.ErrorIs(t, c.EnsureIndex("by_age", fName), ErrIndexExists)
	assert.ErrorIs(t, c.EnsureIndex("by_nothing", 99), ErrUnknownField)

	require.Nil(t, c.DropIndex("by_age"))
	assert.Empty(t, c.Indexes())
	assert.False(t, fs.Exists(path))
	assert.ErrorIs(t, c.DropIndex("by_age"), ErrIndexNotFound)

	// queries still work without the index
	got, err := c.Find(Query{Where: query.Eq(c.Mapper().Ref("Age"), model.Int32Value(20))})
	require.Nil(t, err)
	assert.Equal(t, []int64{2}, ids(got))
}

func TestCollection_OrderByIndexMatchesSort(t *testing.T) {
	m := userMapper().Index("by_age", fAge).Index("by_name", fName)
	db1 := openMemDB(t, fio.NewMemFileSystem())
	defer db1.Close()
	db2 := openMemDB(t, fio.NewMemFileSystem())
	defer db2.Close()
	indexed := openUsers(t, db1, m)
	plain := openUsers(t, db2, userMapper())
	r := rand.New(rand.NewSource(7))

	names := []string{"ann", "ben", "cid", "dot"}
	var users []*user
	for i := int64(1); i <= 60; i++ {
		u := &user{
			Id:   i,
			Name: names[r.Intn(len(names))],
			Age:  int32(r.Intn(5)),
		}
		users = append(users, u)
		require.Nil(t, indexed.Insert(u))
		require.Nil(t, plain.Insert(u))
	}

	want := make([]*user, len(users))
	copy(want, users)
	sort.SliceStable(want, func(i, j int) bool {
		if want[i].Age != want[j].Age {
			return want[i].Age > want[j].Age
		}
		return want[i].Name < want[j].Name
	})

	q := Query{OrderBy: []query.Order{query.Desc(m.Ref("Age")), query.Asc(m.Ref("Name"))}}
	viaIndex, err := indexed.Find(q)
	require.Nil(t, err)
	viaSort, err := plain.Find(q)
	require.Nil(t, err)
	assert.Equal(t, ids(want), ids(viaIndex))
	assert.Equal(t, ids(want), ids(viaSort))

	// the primary key counts as indexed
	q = Query{OrderBy: []query.Order{query.Desc(query.Key)}, Limit: 3}
	viaIndex, err = indexed.Find(q)
	require.Nil(t, err)
	assert.Equal(t, []int64{60, 59, 58}, ids(viaIndex))
}
