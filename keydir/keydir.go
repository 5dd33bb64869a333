package keydir

import (
	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
)

// Keydir maps primary key values to their location in the data file.
// you can use some other data structure once you implement this interface
type Keydir interface {
	// Put stores pk and assigns its slot. Returns false when it replaced an
	// existing entry, which keeps its slot.
	Put(pk *model.PrimaryKey) bool
	Get(key model.Value) *model.PrimaryKey
	Delete(key model.Value) bool
	BySlot(slot uint32) *model.PrimaryKey
	Size() int

	// Slots returns a copy of the live slot set.
	Slots() *keyset.Set
	// Less returns the slots of keys below key, or at most key if orEqual.
	Less(key model.Value, orEqual bool) *keyset.Set
	// Greater returns the slots of keys above key, or at least key if orEqual.
	Greater(key model.Value, orEqual bool) *keyset.Set

	Ascend(fn func(pk *model.PrimaryKey) bool)
	Iterator(reverse bool) Iterator
	Close() error
}

// Iterator walks a snapshot of the keydir in key order.
type Iterator interface {
	Rewind()
	Next()
	Valid() bool
	Key() model.Value
	Value() *model.PrimaryKey
	Close()
}
