// Package keyset holds sets of record slots backed by roaring bitmaps.
// A slot is the dense process-local id the keydir assigns to every primary key.
package keyset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

type Set struct {
	rb *roaring.Bitmap
}

func New() *Set {
	return &Set{rb: roaring.New()}
}

func Of(slots ...uint32) *Set {
	return &Set{rb: roaring.BitmapOf(slots...)}
}

func (s *Set) Add(slot uint32)           { s.rb.Add(slot) }
func (s *Set) Remove(slot uint32)        { s.rb.Remove(slot) }
func (s *Set) Contains(slot uint32) bool { return s.rb.Contains(slot) }
func (s *Set) IsEmpty() bool             { return s.rb.IsEmpty() }
func (s *Set) Len() int                  { return int(s.rb.GetCardinality()) }

func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// And returns the intersection as a new set.
func (s *Set) And(o *Set) *Set {
	return &Set{rb: roaring.And(s.rb, o.rb)}
}

// Or returns the union as a new set.
func (s *Set) Or(o *Set) *Set {
	return &Set{rb: roaring.Or(s.rb, o.rb)}
}

// AndNot returns the members of s missing from o as a new set.
func (s *Set) AndNot(o *Set) *Set {
	return &Set{rb: roaring.AndNot(s.rb, o.rb)}
}

// Merge adds every member of o to s.
func (s *Set) Merge(o *Set) {
	s.rb.Or(o.rb)
}

// Equal reports whether both sets hold the same slots.
func (s *Set) Equal(o *Set) bool {
	return s.rb.Equals(o.rb)
}

// All iterates slots in ascending order.
func (s *Set) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

func (s *Set) ToSlice() []uint32 {
	return s.rb.ToArray()
}
