package query

import (
	"cmp"
	"slices"

	"github.com/cqkv/cqdb/model"
)

// Order is one ORDER BY term.
type Order struct {
	Target Target
	Desc   bool
}

func Asc(t Target) Order  { return Order{Target: t} }
func Desc(t Target) Order { return Order{Target: t, Desc: true} }

func (o Order) String() string {
	if o.Desc {
		return o.Target.String() + " DESC"
	}
	return o.Target.String() + " ASC"
}

// OrderByAnalyzer orders every live record using only the key map and
// indexes. Records that tie on all terms keep ascending primary key order.
type OrderByAnalyzer struct {
	src Source
}

func NewOrderByAnalyzer(src Source) *OrderByAnalyzer {
	return &OrderByAnalyzer{src: src}
}

// CanSort reports whether every term is on the primary key or an indexed
// field.
func (a *OrderByAnalyzer) CanSort(orders []Order) bool {
	if len(orders) == 0 {
		return false
	}
	for _, o := range orders {
		if !o.Target.PrimaryKey && a.src.Index(o.Target.Field) == nil {
			return false
		}
	}
	return true
}

// Sort returns the live slots in order. CanSort(orders) must hold.
func (a *OrderByAnalyzer) Sort(orders []Order) []uint32 {
	runs := a.runs(orders[0])
	if len(orders) == 1 {
		return flatten(runs)
	}

	ranks := make([]map[uint32]int, len(orders)-1)
	for i, o := range orders[1:] {
		ranks[i] = a.ranks(o.Target)
	}
	secondary := orders[1:]
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		slices.SortStableFunc(run, func(x, y uint32) int {
			for i, o := range secondary {
				c := cmp.Compare(ranks[i][x], ranks[i][y])
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	return flatten(runs)
}

// runs lists slots in the order of o, grouped into runs of equal values.
func (a *OrderByAnalyzer) runs(o Order) [][]uint32 {
	var runs [][]uint32
	if o.Target.PrimaryKey {
		it := a.src.Keydir().Iterator(o.Desc)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			runs = append(runs, []uint32{it.Value().Slot})
		}
		return runs
	}

	ix := a.src.Index(o.Target.Field)
	entries := ix.Ascend()
	if o.Desc {
		entries = ix.Descend()
	}
	for e := range entries {
		run := make([]uint32, len(e.Items))
		for i, item := range e.Items {
			run[i] = item.Slot
		}
		runs = append(runs, run)
	}
	return runs
}

// ranks gives each slot the position of its value in ascending order.
func (a *OrderByAnalyzer) ranks(t Target) map[uint32]int {
	ranks := make(map[uint32]int)
	if t.PrimaryKey {
		rank := 0
		a.src.Keydir().Ascend(func(pk *model.PrimaryKey) bool {
			ranks[pk.Slot] = rank
			rank++
			return true
		})
		return ranks
	}
	rank := 0
	for e := range a.src.Index(t.Field).Ascend() {
		for _, item := range e.Items {
			ranks[item.Slot] = rank
		}
		rank++
	}
	return ranks
}

func flatten(runs [][]uint32) []uint32 {
	var out []uint32
	for _, run := range runs {
		out = append(out, run...)
	}
	return out
}

// SortRecords stable sorts materialized records by orders.
func SortRecords(records []Record, orders []Order) {
	slices.SortStableFunc(records, func(x, y Record) int {
		for _, o := range orders {
			c := model.Compare(value(x, o.Target), value(y, o.Target))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func value(r Record, t Target) model.Value {
	if t.PrimaryKey {
		return r.Key
	}
	return r.Fields[t.Field]
}
