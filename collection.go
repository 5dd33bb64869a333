package cqdb

import (
	"errors"

	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/index"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
)

// Collection stores entities of type T. Operations on one collection are
// serialized; every operation opens the collection files on entry and closes
// them before returning.
type Collection[T any] struct {
	s      *store
	mapper *Mapper[T]
}

// OpenCollection opens, or creates, the collection described by mapper and
// ensures the indexes it declares.
func OpenCollection[T any](db *DB, mapper *Mapper[T]) (*Collection[T], error) {
	if mapper.objectCodec == nil {
		mapper.objectCodec = db.options.objectCodec
	}
	s, err := db.collection(mapper)
	if err != nil {
		return nil, err
	}
	c := &Collection[T]{s: s, mapper: mapper}
	if len(mapper.indexes) > 0 {
		if err = s.lock(); err != nil {
			return nil, err
		}
		defer s.mu.Unlock()
		if err = s.ensureIndexes(mapper.indexes); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collection[T]) Schema() *model.Schema { return c.s.schema }

func (c *Collection[T]) Mapper() *Mapper[T] { return c.mapper }

// withFiles runs fn holding the collection with its files open in mode.
func (c *Collection[T]) withFiles(mode fio.Mode, fn func(h *handles) error) (err error) {
	if err = c.s.lock(); err != nil {
		return err
	}
	defer c.s.mu.Unlock()

	if mode != fio.ReadOnly {
		if err = c.s.touch(); err != nil {
			return err
		}
	}
	h, err := c.s.open(mode)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, h.Close())
	}()
	if err = fn(h); err != nil {
		return err
	}
	if mode != fio.ReadOnly {
		return c.s.sync(h)
	}
	return nil
}

// Insert stores a new entity. It fails with ErrDuplicateKey when the key is
// taken.
func (c *Collection[T]) Insert(e *T) error {
	values, err := c.mapper.FieldValues(e, nil)
	if err != nil {
		return err
	}
	return c.withFiles(fio.Append, func(h *handles) error {
		_, err := c.s.insert(h, c.mapper.PrimaryKey(e), values)
		return err
	})
}

// InsertMany inserts entities in order and stops at the first failure.
// Entities inserted before it stay inserted.
func (c *Collection[T]) InsertMany(es []*T) error {
	all := make([][]model.FieldValue, len(es))
	for i, e := range es {
		values, err := c.mapper.FieldValues(e, nil)
		if err != nil {
			return err
		}
		all[i] = values
	}
	return c.withFiles(fio.Append, func(h *handles) error {
		for i, e := range es {
			if _, err := c.s.insert(h, c.mapper.PrimaryKey(e), all[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the entity stored under key.
func (c *Collection[T]) Get(key model.Value) (*T, bool, error) {
	var out *T
	err := c.withFiles(fio.ReadOnly, func(h *handles) error {
		pk, err := c.lookup(key)
		if pk == nil || err != nil {
			return err
		}
		fields, err := h.data.ReadAll(pk.StartOffset, pk.EndOffset)
		if err != nil {
			return err
		}
		out, err = c.mapper.MakeEntity(pk.Value, fields, true, nil)
		return err
	})
	if err != nil || out == nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *Collection[T]) lookup(key model.Value) (*model.PrimaryKey, error) {
	key, err := c.s.key(key)
	if err != nil {
		return nil, err
	}
	return c.s.kd.Get(key), nil
}

func (c *Collection[T]) Exists(key model.Value) (bool, error) {
	if err := c.s.lock(); err != nil {
		return false, err
	}
	defer c.s.mu.Unlock()
	pk, err := c.lookup(key)
	return pk != nil, err
}

// Update rewrites the stored entity with the key of e. It reports false when
// no such entity exists.
func (c *Collection[T]) Update(e *T) (bool, error) {
	values, err := c.mapper.FieldValues(e, nil)
	if err != nil {
		return false, err
	}
	found := false
	err = c.withFiles(fio.ReadWrite, func(h *handles) error {
		pk, err := c.lookup(c.mapper.PrimaryKey(e))
		if pk == nil || err != nil {
			return err
		}
		found = true
		return c.s.replace(h, pk, values)
	})
	return found, err
}

// Upsert updates e when its key exists and inserts it otherwise.
func (c *Collection[T]) Upsert(e *T) error {
	values, err := c.mapper.FieldValues(e, nil)
	if err != nil {
		return err
	}
	return c.withFiles(fio.ReadWrite, func(h *handles) error {
		pk, err := c.lookup(c.mapper.PrimaryKey(e))
		if err != nil {
			return err
		}
		if pk != nil {
			return c.s.replace(h, pk, values)
		}
		_, err = c.s.insert(h, c.mapper.PrimaryKey(e), values)
		return err
	})
}

// Delete removes the entity stored under key. It reports false when no such
// entity exists.
func (c *Collection[T]) Delete(key model.Value) (bool, error) {
	found := false
	err := c.withFiles(fio.ReadWrite, func(h *handles) error {
		pk, err := c.lookup(key)
		if pk == nil || err != nil {
			return err
		}
		found = true
		return c.s.remove(h, pk, nil)
	})
	return found, err
}

// Count returns the number of live entities.
func (c *Collection[T]) Count() int {
	if err := c.s.lock(); err != nil {
		return 0
	}
	defer c.s.mu.Unlock()
	return c.s.kd.Size()
}

// Find returns the entities selected by q.
func (c *Collection[T]) Find(q Query) ([]*T, error) {
	var out []*T
	err := c.withFiles(fio.ReadOnly, func(h *handles) error {
		rows, err := c.s.selectRows(h, q)
		if err != nil {
			return err
		}
		out = make([]*T, 0, len(rows))
		for _, r := range rows {
			e, err := c.mapper.MakeEntity(r.pk.Value, r.fields, !q.OmitKey, q.Fields)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// CountQuery counts the entities q selects without reading them.
func (c *Collection[T]) CountQuery(q Query) (int, error) {
	var n int
	err := c.withFiles(fio.ReadOnly, func(h *handles) error {
		var err error
		n, err = c.s.count(h, q)
		return err
	})
	return n, err
}

// UpdateWhere sets fields on every entity matching expr, nil matching all,
// and returns how many were updated.
func (c *Collection[T]) UpdateWhere(expr query.Expr, set ...model.FieldValue) (int, error) {
	var n int
	err := c.withFiles(fio.ReadWrite, func(h *handles) error {
		var err error
		n, err = c.s.updateWhere(h, expr, set)
		return err
	})
	return n, err
}

// DeleteWhere deletes every entity matching expr, nil matching all, and
// returns how many were deleted.
func (c *Collection[T]) DeleteWhere(expr query.Expr) (int, error) {
	var n int
	err := c.withFiles(fio.ReadWrite, func(h *handles) error {
		var err error
		n, err = c.s.deleteWhere(h, expr)
		return err
	})
	return n, err
}

// EnsureIndex loads the named index, building it when no index file exists.
func (c *Collection[T]) EnsureIndex(name string, field uint8, included ...uint8) error {
	if err := c.s.lock(); err != nil {
		return err
	}
	defer c.s.mu.Unlock()
	return c.s.ensureIndexes([]IndexSpec{{Name: name, Field: field, Included: included}})
}

// DropIndex unloads the named index and removes its file.
func (c *Collection[T]) DropIndex(name string) error {
	if err := c.s.lock(); err != nil {
		return err
	}
	defer c.s.mu.Unlock()
	return c.s.dropIndex(name)
}

// Indexes describes the loaded indexes.
func (c *Collection[T]) Indexes() []index.Meta {
	if err := c.s.lock(); err != nil {
		return nil
	}
	defer c.s.mu.Unlock()
	out := make([]index.Meta, len(c.s.indexes))
	for i, ix := range c.s.indexes {
		out[i] = ix.Meta()
	}
	return out
}

// Flush persists the indexes changed since they were last written.
func (c *Collection[T]) Flush() error {
	if err := c.s.lock(); err != nil {
		return err
	}
	defer c.s.mu.Unlock()
	return c.s.flush()
}
