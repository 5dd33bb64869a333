package cqdb

import "github.com/cqkv/cqdb/query"

// deleteWhere tombstones every record matching expr and drops it from the
// key map and every index.
func (s *store) deleteWhere(h *handles, expr query.Expr) (int, error) {
	res, err := s.where(h, expr)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, slot := range res.Keys.ToSlice() {
		pk := s.kd.BySlot(slot)
		if pk == nil {
			continue
		}
		if err = s.remove(h, pk, res.Fields[slot]); err != nil {
			return deleted, err
		}
		deleted++
	}
	s.log.Debug("delete done", "deleted", deleted)
	return deleted, nil
}
