package keydir

import (
	"sync"

	"github.com/google/btree"

	"github.com/cqkv/cqdb/keyset"
	"github.com/cqkv/cqdb/model"
)

var _ Keydir = (*BTree)(nil)

const defaultDegree = 32

// BTree implement the keydir
type BTree struct {
	tree *btree.BTree

	// slots[i] is the key holding slot i, nil once deleted
	slots []*model.PrimaryKey
	live  *keyset.Set

	// be cautious!!!
	// lock should be caught before concurrent write
	lock *sync.RWMutex
}

// Item implement the btree.Item interface
type Item struct {
	key model.Value
	pk  *model.PrimaryKey
}

func (i *Item) Less(than btree.Item) bool {
	return model.Compare(i.key, than.(*Item).key) < 0
}

func NewBTree(degree int) *BTree {
	if degree <= 0 {
		degree = defaultDegree
	}
	return &BTree{
		tree: btree.New(degree),
		live: keyset.New(),
		lock: &sync.RWMutex{},
	}
}

func (bt *BTree) Put(pk *model.PrimaryKey) bool {
	item := &Item{key: pk.Value, pk: pk}
	bt.lock.Lock()
	defer bt.lock.Unlock()

	if old := bt.tree.Get(item); old != nil {
		pk.Slot = old.(*Item).pk.Slot
		bt.tree.ReplaceOrInsert(item)
		bt.slots[pk.Slot] = pk
		return false
	}
	pk.Slot = uint32(len(bt.slots))
	bt.slots = append(bt.slots, pk)
	bt.live.Add(pk.Slot)
	bt.tree.ReplaceOrInsert(item)
	return true
}

func (bt *BTree) Get(key model.Value) *model.PrimaryKey {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	btItem := bt.tree.Get(&Item{key: key})
	if btItem == nil {
		return nil
	}
	return btItem.(*Item).pk
}

func (bt *BTree) Delete(key model.Value) bool {
	bt.lock.Lock()
	defer bt.lock.Unlock()
	res := bt.tree.Delete(&Item{key: key})
	if res == nil {
		return false
	}
	slot := res.(*Item).pk.Slot
	bt.slots[slot] = nil
	bt.live.Remove(slot)
	return true
}

func (bt *BTree) BySlot(slot uint32) *model.PrimaryKey {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	if int(slot) >= len(bt.slots) {
		return nil
	}
	return bt.slots[slot]
}

func (bt *BTree) Size() int {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	return bt.tree.Len()
}

func (bt *BTree) Slots() *keyset.Set {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	return bt.live.Clone()
}

func (bt *BTree) Less(key model.Value, orEqual bool) *keyset.Set {
	set := keyset.New()
	pivot := &Item{key: key}
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	bt.tree.AscendLessThan(pivot, func(i btree.Item) bool {
		set.Add(i.(*Item).pk.Slot)
		return true
	})
	if orEqual {
		if eq := bt.tree.Get(pivot); eq != nil {
			set.Add(eq.(*Item).pk.Slot)
		}
	}
	return set
}

func (bt *BTree) Greater(key model.Value, orEqual bool) *keyset.Set {
	set := keyset.New()
	pivot := &Item{key: key}
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	bt.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		item := i.(*Item)
		if orEqual || model.Compare(item.key, key) != 0 {
			set.Add(item.pk.Slot)
		}
		return true
	})
	return set
}

func (bt *BTree) Ascend(fn func(pk *model.PrimaryKey) bool) {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	bt.tree.Ascend(func(i btree.Item) bool {
		return fn(i.(*Item).pk)
	})
}

func (bt *BTree) Close() error {
	bt.lock.Lock()
	defer bt.lock.Unlock()
	bt.tree.Clear(false)
	bt.slots = nil
	bt.live = keyset.New()
	return nil
}

func (bt *BTree) Iterator(reverse bool) Iterator {
	return bt.newBtreeIterator(reverse)
}

type btreeIterator struct {
	values []*Item
	curIdx int
}

func (bt *BTree) newBtreeIterator(reverse bool) *btreeIterator {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	iterator := &btreeIterator{
		values: make([]*Item, bt.tree.Len()),
		curIdx: 0,
	}

	var idx int
	getValues := func(item btree.Item) bool {
		iterator.values[idx] = item.(*Item)
		idx++
		return true
	}

	if reverse {
		bt.tree.Descend(getValues)
	} else {
		bt.tree.Ascend(getValues)
	}

	return iterator
}

func (bti *btreeIterator) Rewind() {
	bti.curIdx = 0
}

func (bti *btreeIterator) Next() {
	bti.curIdx++
}

func (bti *btreeIterator) Valid() bool {
	return bti.curIdx < len(bti.values)
}

func (bti *btreeIterator) Key() model.Value {
	return bti.values[bti.curIdx].key
}

func (bti *btreeIterator) Value() *model.PrimaryKey {
	return bti.values[bti.curIdx].pk
}

func (bti *btreeIterator) Close() {
	bti.values = nil
}
