package cqdb

import (
	"sync"

	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/model"
)

type writeBatchOptions struct {
	// max number of pending writes in one batch
	maxBatchNum int
	// sync the files on commit
	sync bool
}

type WriteBatchOption func(*writeBatchOptions)

func WithMaxBatchNum(n int) WriteBatchOption {
	return func(o *writeBatchOptions) {
		o.maxBatchNum = n
	}
}

func WithBatchSync(enabled bool) WriteBatchOption {
	return func(o *writeBatchOptions) {
		o.sync = enabled
	}
}

type pendingWrite struct {
	key      model.Value
	values   []model.FieldValue
	isDelete bool
}

// WriteBatch collects puts and deletes and applies them with the collection
// files opened once. A later write to a key replaces an earlier pending one.
// Commit is not atomic: a failure leaves the writes before it applied.
type WriteBatch[T any] struct {
	mu *sync.Mutex

	c             *Collection[T]
	options       writeBatchOptions
	pendingWrites []*pendingWrite
}

func (c *Collection[T]) NewBatch(opts ...WriteBatchOption) *WriteBatch[T] {
	o := writeBatchOptions{maxBatchNum: 10000}
	for _, opt := range opts {
		opt(&o)
	}
	return &WriteBatch[T]{
		mu:      new(sync.Mutex),
		c:       c,
		options: o,
	}
}

// Put stores e on commit, replacing the entity with the same key.
func (wb *WriteBatch[T]) Put(e *T) error {
	key, err := wb.c.s.key(wb.c.mapper.PrimaryKey(e))
	if err != nil {
		return err
	}
	values, err := wb.c.mapper.FieldValues(e, nil)
	if err != nil {
		return err
	}
	return wb.add(&pendingWrite{key: key, values: values})
}

// Delete removes the entity stored under key on commit.
func (wb *WriteBatch[T]) Delete(key model.Value) error {
	key, err := wb.c.s.key(key)
	if err != nil {
		return err
	}
	return wb.add(&pendingWrite{key: key, isDelete: true})
}

func (wb *WriteBatch[T]) add(w *pendingWrite) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	for i, p := range wb.pendingWrites {
		if model.Equal(p.key, w.key) {
			wb.pendingWrites[i] = w
			return nil
		}
	}
	if len(wb.pendingWrites) == wb.options.maxBatchNum {
		return ErrExceedMaxBatch
	}
	wb.pendingWrites = append(wb.pendingWrites, w)
	return nil
}

// Len returns the number of pending writes.
func (wb *WriteBatch[T]) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.pendingWrites)
}

// Commit applies the pending writes in the order they were first added.
func (wb *WriteBatch[T]) Commit() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if len(wb.pendingWrites) == 0 {
		return nil
	}

	s := wb.c.s
	err := wb.c.withFiles(fio.ReadWrite, func(h *handles) error {
		for _, w := range wb.pendingWrites {
			pk := s.kd.Get(w.key)
			var err error
			switch {
			case w.isDelete && pk != nil:
				err = s.remove(h, pk, nil)
			case w.isDelete:
			case pk != nil:
				err = s.replace(h, pk, w.values)
			default:
				_, err = s.insert(h, w.key, w.values)
			}
			if err != nil {
				return err
			}
		}
		if wb.options.sync {
			if err := h.data.Sync(); err != nil {
				return err
			}
			return h.keys.Sync()
		}
		return nil
	})
	if err != nil {
		return err
	}
	wb.pendingWrites = nil
	return nil
}
