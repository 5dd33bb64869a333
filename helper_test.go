package cqdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/model"
)

type user struct {
	Id      int64
	Name    string
	Age     int32
	Score   float64
	Bio     string
	Born    time.Time
	Ref     uuid.UUID
	Balance decimal.Decimal
	Tags    []string
}

const (
	fName uint8 = iota + 1
	fAge
	fScore
	fBio
	fBorn
	fRef
	fBalance
	fTags
)

func userMapper() *Mapper[user] {
	m := NewMapper[user]("user").
		Key("Id", model.TypeInt64,
			func(u *user) model.Value { return model.Int64Value(u.Id) },
			func(u *user, v model.Value) { u.Id = v.Int() }).
		Field(fName, "Name", model.TypeString,
			func(u *user) model.Value { return model.StringValue(u.Name) },
			func(u *user, v model.Value) { u.Name = v.String() }).
		Field(fAge, "Age", model.TypeInt32,
			func(u *user) model.Value { return model.Int32Value(u.Age) },
			func(u *user, v model.Value) { u.Age = int32(v.Int()) }).
		Field(fScore, "Score", model.TypeFloat64,
			func(u *user) model.Value { return model.Float64Value(u.Score) },
			func(u *user, v model.Value) { u.Score = v.Float() }).
		Field(fBio, "Bio", model.TypeString,
			func(u *user) model.Value { return model.StringValue(u.Bio) },
			func(u *user, v model.Value) { u.Bio = v.String() },
			Compressed()).
		Field(fBorn, "Born", model.TypeTime,
			func(u *user) model.Value { return model.TimeValue(u.Born) },
			func(u *user, v model.Value) { u.Born = v.Time() }).
		Field(fRef, "Ref", model.TypeUUID,
			func(u *user) model.Value { return model.UUIDValue(u.Ref) },
			func(u *user, v model.Value) { u.Ref = v.UUID() }).
		Field(fBalance, "Balance", model.TypeDecimal,
			func(u *user) model.Value { return model.DecimalValue(u.Balance) },
			func(u *user, v model.Value) { u.Balance = v.Decimal() })
	return ObjectField(m, fTags, "Tags",
		func(u *user) []string { return u.Tags },
		func(u *user, tags []string) { u.Tags = tags })
}

const memDir = "/cqdb-test"

func openMemDB(t *testing.T, fs *fio.MemFileSystem, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithFileSystem(fs), WithLogger(NoopLogger())}, opts...)
	db, err := Open(memDir, opts...)
	require.Nil(t, err)
	return db
}

func openUsers(t *testing.T, db *DB, mapper *Mapper[user]) *Collection[user] {
	t.Helper()
	c, err := OpenCollection(db, mapper)
	require.Nil(t, err)
	return c
}

func ids(users []*user) []int64 {
	out := make([]int64, 0, len(users))
	for _, u := range users {
		out = append(out, u.Id)
	}
	return out
}

// abc inserts the users 1, 2 and 3 aged 10, 20 and 30.
func abc(t *testing.T, c *Collection[user]) {
	t.Helper()
	for i, name := range []string{"alice", "bob", "carol"} {
		require.Nil(t, c.Insert(&user{Id: int64(i + 1), Name: name, Age: int32(10 * (i + 1))}))
	}
}
