package cqdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/index"
	"github.com/cqkv/cqdb/keydir"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
	"github.com/cqkv/cqdb/storage"
)

// store owns the on-disk files and in-memory state of one collection: the
// primary key map and the loaded indexes.
type store struct {
	mu sync.Mutex

	dirPath string
	options *options
	schema  *model.Schema
	log     *Logger

	dataPath, keyPath, metaPath string

	kd      keydir.Keydir
	indexes []*index.Index
	closed  bool

	// gen counts write sessions; index files saved at another generation
	// are stale. bumped is set once gen was advanced for the writes since
	// the last flush.
	gen    uint64
	bumped bool
}

func openStore(dirPath string, opts *options, schema *model.Schema) (*store, error) {
	s := &store{
		dirPath:  dirPath,
		options:  opts,
		schema:   schema,
		log:      opts.logger.WithCollection(schema.Entity),
		dataPath: model.GetFileName(dirPath, model.DataFileType, schema.Entity),
		keyPath:  model.GetFileName(dirPath, model.PrimaryKeyFileType, schema.Entity),
		metaPath: model.GetFileName(dirPath, model.MetaFileType, schema.Entity),
		kd:       keydir.NewBTree(opts.keydirDegree),
	}
	if err := s.checkMeta(); err != nil {
		return nil, err
	}
	// both files must exist so read-only opens never fail on a new collection
	for _, path := range []string{s.dataPath, s.keyPath} {
		ioManager, err := opts.fs.Open(path, fio.Append)
		if err != nil {
			return nil, err
		}
		if err = ioManager.Close(); err != nil {
			return nil, err
		}
	}
	if err := s.loadKeydir(); err != nil {
		return nil, err
	}
	s.log.Info("collection opened", "records", s.kd.Size())
	return s, nil
}

// checkMeta validates the stored schema, or writes it for a new collection.
func (s *store) checkMeta() error {
	fs := s.options.fs
	if !fs.Exists(s.metaPath) {
		ioManager, err := fs.Open(s.metaPath, fio.ReadWrite)
		if err != nil {
			return err
		}
		defer ioManager.Close()
		return storage.WriteMeta(ioManager, s.schema, s.gen)
	}

	ioManager, err := fs.Open(s.metaPath, fio.ReadOnly)
	if err != nil {
		return err
	}
	defer ioManager.Close()
	stored, gen, err := storage.ReadMeta(ioManager)
	if err != nil {
		return err
	}
	if !stored.Equal(s.schema) {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, s.schema.Entity)
	}
	s.gen = gen
	return nil
}

// touch advances the write generation before the first write since the
// last flush, so index files saved earlier no longer pass as current.
func (s *store) touch() error {
	if s.bumped {
		return nil
	}
	tmp := s.metaPath + model.TempFileSuffix
	fs := s.options.fs
	ioManager, err := fs.Open(tmp, fio.ReadWrite)
	if err != nil {
		return err
	}
	err = errors.Join(storage.WriteMeta(ioManager, s.schema, s.gen+1), ioManager.Close())
	if err != nil {
		return err
	}
	if err = fs.Rename(tmp, s.metaPath); err != nil {
		return err
	}
	s.gen++
	s.bumped = true
	return nil
}

func (s *store) loadKeydir() error {
	ioManager, err := s.options.fs.Open(s.keyPath, fio.ReadOnly)
	if err != nil {
		return err
	}
	keys := storage.OpenPrimaryKeyFile(ioManager, s.schema.KeyType)
	defer keys.Close()

	pks, err := keys.GetAllPrimaryKeys()
	if err != nil {
		return err
	}
	for _, pk := range pks {
		if !pk.Deleted {
			s.kd.Put(pk)
		}
	}
	return nil
}

type handles struct {
	data *storage.DataFile
	keys *storage.PrimaryKeyFile
}

// open opens the data and key files for one operation.
func (s *store) open(mode fio.Mode) (*handles, error) {
	fs := s.options.fs
	dataIO, err := fs.Open(s.dataPath, mode)
	if err != nil {
		return nil, err
	}
	keyIO, err := fs.Open(s.keyPath, mode)
	if err != nil {
		_ = dataIO.Close()
		return nil, err
	}
	return &handles{
		data: storage.OpenDataFile(dataIO, s.schema, s.options.compression),
		keys: storage.OpenPrimaryKeyFile(keyIO, s.schema.KeyType),
	}, nil
}

func (h *handles) Close() error {
	return errors.Join(h.data.Close(), h.keys.Close())
}

func (s *store) sync(h *handles) error {
	if !s.options.syncWrites {
		return nil
	}
	return errors.Join(h.data.Sync(), h.keys.Sync())
}

// view lends the store state to the analyzers for one call.
type view struct {
	s    *store
	data *storage.DataFile
}

var _ query.Source = (*view)(nil)

func (s *store) view(h *handles) *view {
	return &view{s: s, data: h.data}
}

func (v *view) Keydir() keydir.Keydir { return v.s.kd }

func (v *view) Index(field uint8) *index.Index { return v.s.indexFor(field) }

func (v *view) ReadFields(pk *model.PrimaryKey, fields []uint8, out map[uint8]model.Value) error {
	return v.data.ReadFields(pk.StartOffset, pk.EndOffset, fields, out)
}

// key converts a primary key value to the schema key type.
func (s *store) key(v model.Value) (model.Value, error) {
	if v.IsNull() {
		return model.Value{}, ErrNullPrimaryKey
	}
	return model.Convert(v, s.schema.KeyType)
}

// normalize returns the full field map a write of values leaves on disk.
func (s *store) normalize(values []model.FieldValue) (map[uint8]model.Value, error) {
	out := make(map[uint8]model.Value, len(s.schema.Fields))
	for _, f := range s.schema.Fields {
		out[f.Number] = model.Default(f.Type)
	}
	for _, fv := range values {
		f, ok := s.schema.Field(fv.Number)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownField, fv.Number)
		}
		v, err := model.Normalize(fv.Value, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[fv.Number] = v
	}
	return out, nil
}

func (s *store) updater() *index.Updater {
	return index.NewUpdater(s.indexes...)
}

func (s *store) insert(h *handles, key model.Value, values []model.FieldValue) (*model.PrimaryKey, error) {
	key, err := s.key(key)
	if err != nil {
		return nil, err
	}
	if s.kd.Get(key) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	fields, err := s.normalize(values)
	if err != nil {
		return nil, err
	}
	start, end, err := h.data.Insert(values)
	if err != nil {
		return nil, err
	}
	pk, err := h.keys.Insert(key, start, end)
	if err != nil {
		return nil, err
	}
	s.kd.Put(pk)
	s.updater().Insert(pk.Value, pk.Slot, fields)
	return pk, nil
}

// replace rewrites the whole record of pk.
func (s *store) replace(h *handles, pk *model.PrimaryKey, values []model.FieldValue) error {
	fields, err := s.normalize(values)
	if err != nil {
		return err
	}
	u := s.updater()
	old := make(map[uint8]model.Value)
	if needed := u.Fields(nil); len(needed) > 0 {
		if err = h.data.ReadFields(pk.StartOffset, pk.EndOffset, needed, old); err != nil {
			return err
		}
	}
	start, end, err := h.data.Update(pk.StartOffset, pk.EndOffset, values)
	if err != nil {
		return err
	}
	if _, err = s.relocate(h, pk, start, end); err != nil {
		return err
	}
	u.Update(pk.Value, pk.Slot, nil, old, fields)
	return nil
}

// relocate records the new span of pk in the key file: both offsets when the
// record moved, only the end offset when it was rewritten in place.
func (s *store) relocate(h *handles, pk *model.PrimaryKey, start, end int64) (bool, error) {
	switch {
	case start != pk.StartOffset:
		pk.StartOffset, pk.EndOffset = start, end
		return true, h.keys.UpdateStartEndDataFileOffset(pk)
	case end != pk.EndOffset:
		pk.EndOffset = end
		return false, h.keys.UpdateEndDataFileOffset(pk)
	}
	return false, nil
}

// remove tombstones pk and drops it from the key map and every index.
// known may hold field values already read for the record.
func (s *store) remove(h *handles, pk *model.PrimaryKey, known map[uint8]model.Value) error {
	u := s.updater()
	fields := make(map[uint8]model.Value, len(known))
	for number, v := range known {
		fields[number] = v
	}
	var missing []uint8
	for _, number := range u.Fields(nil) {
		if _, ok := fields[number]; !ok {
			missing = append(missing, number)
		}
	}
	if len(missing) > 0 {
		if err := h.data.ReadFields(pk.StartOffset, pk.EndOffset, missing, fields); err != nil {
			return err
		}
	}
	if err := h.keys.Delete(pk); err != nil {
		return err
	}
	s.kd.Delete(pk.Value)
	u.Delete(pk.Value, fields)
	return nil
}

// lock takes the store for one operation.
func (s *store) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *store) close() error {
	err := s.flush()
	s.closed = true
	return errors.Join(err, s.kd.Close())
}
