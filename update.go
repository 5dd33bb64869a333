package cqdb

import (
	"errors"
	"fmt"

	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
	"github.com/cqkv/cqdb/storage"
)

// updateWhere sets fields on every record matching expr. Each record is
// first patched in place; a record whose patched fields change length is
// rewritten whole and may move to the end of the data file.
func (s *store) updateWhere(h *handles, expr query.Expr, set []model.FieldValue) (int, error) {
	if len(set) == 0 {
		return 0, nil
	}
	changed := make([]uint8, len(set))
	values := make([]model.FieldValue, len(set))
	fixedOnly := true
	for i, fv := range set {
		f, ok := s.schema.Field(fv.Number)
		if !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownField, fv.Number)
		}
		v, err := model.Normalize(fv.Value, f.Type)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", f.Name, err)
		}
		changed[i] = fv.Number
		values[i] = model.FieldValue{Number: fv.Number, Value: v}
		if f.Type.IsVariable() || f.Compressed {
			fixedOnly = false
		}
	}

	res, err := s.where(h, expr)
	if err != nil {
		return 0, err
	}
	u := s.updater()
	indexFields := u.Fields(changed)

	var updated, relocated int
	for slot := range res.Keys.All() {
		pk := s.kd.BySlot(slot)
		old := make(map[uint8]model.Value, len(indexFields))
		for number, v := range res.Fields[slot] {
			old[number] = v
		}
		if missing := missingFields(old, indexFields); len(missing) > 0 {
			if err = h.data.ReadFields(pk.StartOffset, pk.EndOffset, missing, old); err != nil {
				return updated, err
			}
		}

		err = h.data.UpdateManual(pk.StartOffset, pk.EndOffset, values)
		switch {
		case err == nil:
		case !fixedOnly && errors.Is(err, storage.ErrFieldSizeChanged):
			moved, err := s.rewrite(h, pk, values)
			if err != nil {
				return updated, err
			}
			if moved {
				relocated++
			}
		default:
			return updated, err
		}

		if len(indexFields) > 0 {
			next := make(map[uint8]model.Value, len(old)+len(values))
			for number, v := range old {
				next[number] = v
			}
			for _, fv := range values {
				next[fv.Number] = fv.Value
			}
			u.Update(pk.Value, slot, changed, old, next)
		}
		updated++
	}

	if relocated > 0 && relocated*4 >= updated {
		s.log.Warn("update relocated records", "updated", updated, "relocated", relocated)
	}
	s.log.Debug("update done", "updated", updated, "relocated", relocated, "fixed_width", fixedOnly)
	return updated, nil
}

// rewrite reads the whole record of pk, applies values and writes it back
// with a full update.
func (s *store) rewrite(h *handles, pk *model.PrimaryKey, values []model.FieldValue) (bool, error) {
	all, err := h.data.ReadAll(pk.StartOffset, pk.EndOffset)
	if err != nil {
		return false, err
	}
	for _, fv := range values {
		all[fv.Number] = fv.Value
	}
	record := make([]model.FieldValue, 0, len(s.schema.Fields))
	for _, f := range s.schema.Fields {
		if v, ok := all[f.Number]; ok {
			record = append(record, model.FieldValue{Number: f.Number, Value: v})
		}
	}
	start, end, err := h.data.Update(pk.StartOffset, pk.EndOffset, record)
	if err != nil {
		return false, err
	}
	return s.relocate(h, pk, start, end)
}
