package cqdb

import (
	"fmt"
	"slices"

	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
)

// Query selects records of a collection.
type Query struct {
	Where   query.Expr
	OrderBy []query.Order
	Skip    int
	// Limit caps the number of records returned; 0 means no limit.
	Limit int
	// Fields restricts the fields read and set on entities; nil means all.
	Fields []uint8
	// OmitKey leaves the primary key of returned entities unset.
	OmitKey bool
}

type row struct {
	pk     *model.PrimaryKey
	fields map[uint8]model.Value
}

// where binds expr to the schema and resolves it to matching slots.
func (s *store) where(h *handles, expr query.Expr) (*query.Result, error) {
	bound, err := query.Bind(expr, s.schema)
	if err != nil {
		return nil, err
	}
	res, err := query.NewWhereAnalyzer(s.view(h)).GetResult(bound)
	if err != nil {
		return nil, err
	}
	if bound != nil {
		s.log.Debug("where resolved", "expr", bound.String(), "plan", res.Plan.String(), "matched", res.Keys.Len())
	}
	return res, nil
}

func (s *store) checkFields(numbers []uint8) error {
	for _, number := range numbers {
		if _, ok := s.schema.Field(number); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownField, number)
		}
	}
	return nil
}

func (s *store) checkOrders(orders []query.Order) error {
	for _, o := range orders {
		if o.Target.PrimaryKey {
			continue
		}
		if err := s.checkFields([]uint8{o.Target.Field}); err != nil {
			return err
		}
	}
	return nil
}

// count answers a count aggregate without materializing records: the
// matches capped by the limit, minus the skipped prefix.
func (s *store) count(h *handles, q Query) (int, error) {
	res, err := s.where(h, q.Where)
	if err != nil {
		return 0, err
	}
	n := res.Keys.Len()
	if q.Limit > 0 && q.Limit < n {
		n = q.Limit
	}
	return max(0, n-max(0, q.Skip)), nil
}

// selectRows runs WHERE, ORDER BY, SKIP and LIMIT and reads the requested
// fields of the surviving records.
func (s *store) selectRows(h *handles, q Query) ([]row, error) {
	wanted := q.Fields
	if wanted == nil {
		wanted = s.schema.Numbers()
	}
	if err := s.checkFields(wanted); err != nil {
		return nil, err
	}
	if err := s.checkOrders(q.OrderBy); err != nil {
		return nil, err
	}

	res, err := s.where(h, q.Where)
	if err != nil {
		return nil, err
	}
	fields := res.Fields
	s.backfill(res.Keys, fields, wanted)

	slots, err := s.order(h, q, res.Keys, fields)
	if err != nil {
		return nil, err
	}
	skip := max(0, q.Skip)
	if skip >= len(slots) {
		return nil, nil
	}
	slots = slots[skip:]
	if q.Limit > 0 && q.Limit < len(slots) {
		slots = slots[:q.Limit]
	}

	rows := make([]row, 0, len(slots))
	for _, slot := range slots {
		pk := s.kd.BySlot(slot)
		values := fields[slot]
		if values == nil {
			values = make(map[uint8]model.Value, len(wanted))
		}
		if missing := missingFields(values, wanted); len(missing) > 0 {
			if err = h.data.ReadFields(pk.StartOffset, pk.EndOffset, missing, values); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row{pk: pk, fields: values})
	}
	return rows, nil
}

// backfillRatio bounds how many index items a backfill walk may visit per
// matched record before reading the data file is the cheaper way.
const backfillRatio = 8

// backfill copies values of wanted fields out of covering indexes so they
// need no data file read. It returns the number of indexes walked.
func (s *store) backfill(keys *keyset.Set, fields query.FieldMap, wanted []uint8) int {
	matched := keys.Len()
	if matched == 0 {
		return 0
	}
	var walked int
	for _, ix := range s.indexes {
		if ix.Len() > matched*backfillRatio || !slices.ContainsFunc(wanted, ix.Covers) {
			continue
		}
		walked++
		pending := matched
		for e := range ix.Ascend() {
			for _, item := range e.Items {
				if !keys.Contains(item.Slot) {
					continue
				}
				values, ok := fields[item.Slot]
				if !ok {
					values = make(map[uint8]model.Value, len(wanted))
					fields[item.Slot] = values
				}
				ix.FieldValues(e, item, values)
				pending--
			}
			if pending == 0 {
				break
			}
		}
	}
	return walked
}

// order lists keys in the requested order. Without ORDER BY records come in
// ascending primary key order, which is also the tie order of every sort.
func (s *store) order(h *handles, q Query, keys *keyset.Set, fields query.FieldMap) ([]uint32, error) {
	if len(q.OrderBy) == 0 {
		out := make([]uint32, 0, keys.Len())
		s.kd.Ascend(func(pk *model.PrimaryKey) bool {
			if keys.Contains(pk.Slot) {
				out = append(out, pk.Slot)
			}
			return true
		})
		return out, nil
	}

	ob := query.NewOrderByAnalyzer(s.view(h))
	if q.Where == nil && ob.CanSort(q.OrderBy) {
		s.log.Debug("order by index", "orders", fmt.Sprint(q.OrderBy))
		return ob.Sort(q.OrderBy), nil
	}

	var needed []uint8
	for _, o := range q.OrderBy {
		if !o.Target.PrimaryKey && !slices.Contains(needed, o.Target.Field) {
			needed = append(needed, o.Target.Field)
		}
	}
	records := make([]query.Record, 0, keys.Len())
	var err error
	s.kd.Ascend(func(pk *model.PrimaryKey) bool {
		if !keys.Contains(pk.Slot) {
			return true
		}
		values, ok := fields[pk.Slot]
		if !ok {
			values = make(map[uint8]model.Value, len(needed))
			fields[pk.Slot] = values
		}
		if missing := missingFields(values, needed); len(missing) > 0 {
			if err = h.data.ReadFields(pk.StartOffset, pk.EndOffset, missing, values); err != nil {
				return false
			}
		}
		records = append(records, query.Record{Key: pk.Value, Slot: pk.Slot, Fields: values})
		return true
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("order by sort", "orders", fmt.Sprint(q.OrderBy), "records", len(records))
	query.SortRecords(records, q.OrderBy)

	out := make([]uint32, len(records))
	for i, r := range records {
		out[i] = r.Slot
	}
	return out, nil
}

func missingFields(values map[uint8]model.Value, wanted []uint8) []uint8 {
	var missing []uint8
	for _, number := range wanted {
		if _, ok := values[number]; !ok {
			missing = append(missing, number)
		}
	}
	return missing
}
