// Package index implements secondary indexes: a red-black tree keyed by the
// indexed field value whose entries list the records holding that value,
// together with snapshots of the index's included fields.
package index

import (
	"errors"
	"iter"
	"slices"

	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/rbtree"
)

var (
	ErrIndexCorrupted = errors.New("index: index file checksum mismatch")
	ErrIndexMismatch  = errors.New("index: index file does not match schema")
)

// Meta describes an index. It is written at the head of every index file.
type Meta struct {
	Entity    string
	FieldType model.Type
	Name      string
	Field     uint8
	Included  []uint8
}

// Covers reports whether the index can supply values of field.
func (m Meta) Covers(field uint8) bool {
	return field == m.Field || slices.Contains(m.Included, field)
}

// Fields returns the indexed field followed by the included fields.
func (m Meta) Fields() []uint8 {
	return append([]uint8{m.Field}, m.Included...)
}

// Item is one record under an indexed value.
type Item struct {
	Key      model.Value
	Slot     uint32
	Included []model.Value
}

// Entry holds every item sharing one indexed value, ordered by primary key.
type Entry struct {
	Value model.Value
	Items []*Item
}

func (e *Entry) find(key model.Value) (int, bool) {
	return slices.BinarySearchFunc(e.Items, key, func(it *Item, k model.Value) int {
		return model.Compare(it.Key, k)
	})
}

type Index struct {
	meta  Meta
	tree  *rbtree.Tree[model.Value, *Entry]
	items int
	dirty bool
	// generation of the collection the index was last saved at
	gen uint64
}

func New(meta Meta) *Index {
	return &Index{
		meta: meta,
		tree: rbtree.New[model.Value, *Entry](model.Compare),
	}
}

func (ix *Index) Meta() Meta { return ix.meta }

func (ix *Index) Name() string { return ix.meta.Name }

// Len returns the number of indexed records.
func (ix *Index) Len() int { return ix.items }

// Distinct returns the number of distinct indexed values.
func (ix *Index) Distinct() int { return ix.tree.Len() }

// Dirty reports whether the index changed since it was last loaded or saved.
func (ix *Index) Dirty() bool { return ix.dirty }

// Generation returns the collection write generation the index was last
// loaded or saved at.
func (ix *Index) Generation() uint64 { return ix.gen }

// MarkClean records that the index was saved at generation gen.
func (ix *Index) MarkClean(gen uint64) {
	ix.dirty = false
	ix.gen = gen
}

func (ix *Index) Covers(field uint8) bool { return ix.meta.Covers(field) }

// Insert adds the record key under indexed. Inserting a key that is already
// present under the same value replaces its included snapshot.
func (ix *Index) Insert(indexed, key model.Value, slot uint32, included []model.Value) {
	node, _ := ix.tree.InsertOrGetExists(indexed)
	if node.Value == nil {
		node.Value = &Entry{Value: indexed}
	}
	e := node.Value
	item := &Item{Key: key, Slot: slot, Included: included}
	i, found := e.find(key)
	if found {
		e.Items[i] = item
	} else {
		e.Items = slices.Insert(e.Items, i, item)
		ix.items++
	}
	ix.dirty = true
}

// Remove drops the record key from under indexed.
func (ix *Index) Remove(indexed, key model.Value) bool {
	node := ix.tree.Find(indexed)
	if node == nil {
		return false
	}
	e := node.Value
	i, found := e.find(key)
	if !found {
		return false
	}
	e.Items = slices.Delete(e.Items, i, i+1)
	ix.items--
	if len(e.Items) == 0 {
		ix.tree.Delete(indexed)
	}
	ix.dirty = true
	return true
}

// FieldValues copies the indexed and included values of item into out.
func (ix *Index) FieldValues(e *Entry, item *Item, out map[uint8]model.Value) {
	out[ix.meta.Field] = e.Value
	for i, number := range ix.meta.Included {
		if i < len(item.Included) {
			out[number] = item.Included[i]
		}
	}
}

func (ix *Index) Equals(v model.Value) []*Entry {
	if node := ix.tree.Find(v); node != nil {
		return []*Entry{node.Value}
	}
	return nil
}

func (ix *Index) NotEquals(v model.Value) []*Entry {
	return entries(ix.tree.NotEquals(v))
}

func (ix *Index) Less(v model.Value) []*Entry {
	return entries(ix.tree.Less(v))
}

func (ix *Index) LessOrEquals(v model.Value) []*Entry {
	return entries(ix.tree.LessOrEquals(v))
}

func (ix *Index) Great(v model.Value) []*Entry {
	return entries(ix.tree.Great(v))
}

func (ix *Index) GreatOrEquals(v model.Value) []*Entry {
	return entries(ix.tree.GreatOrEquals(v))
}

// Like scans every entry for values whose text contains pattern.
func (ix *Index) Like(pattern string) []*Entry {
	return ix.scan(func(v model.Value) bool { return model.Like(v, pattern) })
}

func (ix *Index) NotLike(pattern string) []*Entry {
	return ix.scan(func(v model.Value) bool { return !model.Like(v, pattern) })
}

// In scans every entry for values equal to one of values.
func (ix *Index) In(values []model.Value) []*Entry {
	return ix.scan(func(v model.Value) bool { return contains(values, v) })
}

func (ix *Index) NotIn(values []model.Value) []*Entry {
	return ix.scan(func(v model.Value) bool { return !contains(values, v) })
}

// Ascend iterates entries by ascending indexed value.
func (ix *Index) Ascend() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for n := range ix.tree.Ascend() {
			if !yield(n.Value) {
				return
			}
		}
	}
}

// Descend iterates entries by descending indexed value.
func (ix *Index) Descend() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for n := range ix.tree.Descend() {
			if !yield(n.Value) {
				return
			}
		}
	}
}

func (ix *Index) scan(match func(model.Value) bool) []*Entry {
	var out []*Entry
	for n := range ix.tree.Ascend() {
		if match(n.Key) {
			out = append(out, n.Value)
		}
	}
	return out
}

func contains(values []model.Value, v model.Value) bool {
	for _, c := range values {
		if model.Equal(c, v) {
			return true
		}
	}
	return false
}

func entries(nodes []*rbtree.Node[model.Value, *Entry]) []*Entry {
	out := make([]*Entry, len(nodes))
	for i, n := range nodes {
		out[i] = n.Value
	}
	return out
}
