package index

import (
	"slices"

	"github.com/cqkv/cqdb/model"
)

// Updater keeps a set of indexes in step with record writes. Field maps hold
// normalized values keyed by field number and must contain every field
// returned by Fields for the indexes involved.
type Updater struct {
	indexes []*Index
}

func NewUpdater(indexes ...*Index) *Updater {
	return &Updater{indexes: indexes}
}

// Fields returns the fields read by the indexes touched by changed. A nil
// changed selects every index.
func (u *Updater) Fields(changed []uint8) []uint8 {
	var out []uint8
	for _, ix := range u.touched(changed) {
		for _, number := range ix.meta.Fields() {
			if !slices.Contains(out, number) {
				out = append(out, number)
			}
		}
	}
	return out
}

func (u *Updater) Insert(key model.Value, slot uint32, fields map[uint8]model.Value) {
	for _, ix := range u.indexes {
		ix.Insert(fields[ix.meta.Field], key, slot, included(ix, fields))
	}
}

// Update moves the record from its old values to its new values in every
// index covering one of the changed fields.
func (u *Updater) Update(key model.Value, slot uint32, changed []uint8, old, updated map[uint8]model.Value) {
	for _, ix := range u.touched(changed) {
		ix.Remove(old[ix.meta.Field], key)
		ix.Insert(updated[ix.meta.Field], key, slot, included(ix, updated))
	}
}

func (u *Updater) Delete(key model.Value, fields map[uint8]model.Value) {
	for _, ix := range u.indexes {
		ix.Remove(fields[ix.meta.Field], key)
	}
}

func (u *Updater) touched(changed []uint8) []*Index {
	if changed == nil {
		return u.indexes
	}
	var out []*Index
	for _, ix := range u.indexes {
		if slices.ContainsFunc(changed, ix.meta.Covers) {
			out = append(out, ix)
		}
	}
	return out
}

func included(ix *Index, fields map[uint8]model.Value) []model.Value {
	if len(ix.meta.Included) == 0 {
		return nil
	}
	out := make([]model.Value, len(ix.meta.Included))
	for i, number := range ix.meta.Included {
		out[i] = fields[number]
	}
	return out
}
