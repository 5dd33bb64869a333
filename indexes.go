package cqdb

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/index"
	"github.com/cqkv/cqdb/model"
)

// indexFor returns the first index ordered by field.
func (s *store) indexFor(field uint8) *index.Index {
	for _, ix := range s.indexes {
		if ix.Meta().Field == field {
			return ix
		}
	}
	return nil
}

func (s *store) indexByName(name string) (int, *index.Index) {
	for i, ix := range s.indexes {
		if ix.Name() == name {
			return i, ix
		}
	}
	return -1, nil
}

func (s *store) indexMeta(spec IndexSpec) (index.Meta, error) {
	f, ok := s.schema.Field(spec.Field)
	if !ok {
		return index.Meta{}, fmt.Errorf("%w: index %s on field %d", ErrUnknownField, spec.Name, spec.Field)
	}
	for _, number := range spec.Included {
		if _, ok := s.schema.Field(number); !ok {
			return index.Meta{}, fmt.Errorf("%w: index %s includes field %d", ErrUnknownField, spec.Name, number)
		}
	}
	return index.Meta{
		Entity:    s.schema.Entity,
		FieldType: f.Type,
		Name:      spec.Name,
		Field:     spec.Field,
		Included:  slices.Clone(spec.Included),
	}, nil
}

func sameMeta(a, b index.Meta) bool {
	return a.Entity == b.Entity && a.FieldType == b.FieldType && a.Name == b.Name &&
		a.Field == b.Field && slices.Equal(a.Included, b.Included)
}

// ensureIndexes loads or builds the indexes of specs. Each index is loaded
// or built on its own goroutine with its own data file handle.
func (s *store) ensureIndexes(specs []IndexSpec) error {
	var (
		metas   []index.Meta
		results []*index.Index
	)
	for _, spec := range specs {
		meta, err := s.indexMeta(spec)
		if err != nil {
			return err
		}
		if _, ix := s.indexByName(spec.Name); ix != nil {
			if !sameMeta(ix.Meta(), meta) {
				return fmt.Errorf("%w: %s", ErrIndexExists, spec.Name)
			}
			continue
		}
		metas = append(metas, meta)
	}
	results = make([]*index.Index, len(metas))

	var g errgroup.Group
	for i, meta := range metas {
		g.Go(func() error {
			ix, err := s.loadOrBuild(meta)
			results[i] = ix
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.indexes = append(s.indexes, results...)
	return nil
}

func (s *store) loadOrBuild(meta index.Meta) (*index.Index, error) {
	log := s.log.WithIndex(meta.Name)
	path := model.GetIndexFileName(s.dirPath, meta.Entity, meta.Name)
	if s.options.fs.Exists(path) {
		ix, err := s.load(path, meta)
		switch {
		case err == nil:
			log.Debug("index loaded", "records", ix.Len())
			return ix, nil
		case errors.Is(err, index.ErrIndexCorrupted), errors.Is(err, index.ErrIndexMismatch), errors.Is(err, errStaleIndex):
			log.Warn("rebuilding index", "reason", err)
		default:
			return nil, err
		}
	}

	ix, err := s.build(meta)
	if err != nil {
		return nil, err
	}
	if err = s.persist(ix); err != nil {
		return nil, err
	}
	log.Info("index built", "records", ix.Len(), "distinct", ix.Distinct())
	return ix, nil
}

var errStaleIndex = errors.New("index is older than the collection")

func (s *store) load(path string, meta index.Meta) (*index.Index, error) {
	ioManager, err := s.options.fs.Open(path, fio.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer ioManager.Close()
	size, err := ioManager.Size()
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if size > 0 {
		if _, err = ioManager.Read(data, 0); err != nil {
			return nil, err
		}
	}

	ix, err := index.Load(data, s.schema, s.resolve)
	if err != nil {
		return nil, err
	}
	if !sameMeta(ix.Meta(), meta) {
		return nil, fmt.Errorf("%w: definition of %s changed", index.ErrIndexMismatch, meta.Name)
	}
	// the collection was written after the file was saved
	if ix.Generation() != s.gen {
		return nil, fmt.Errorf("%w: saved at generation %d, collection at %d", errStaleIndex, ix.Generation(), s.gen)
	}
	if ix.Len() != s.kd.Size() {
		return nil, fmt.Errorf("%w: %d of %d records", errStaleIndex, ix.Len(), s.kd.Size())
	}
	return ix, nil
}

func (s *store) resolve(key model.Value) (uint32, bool) {
	pk := s.kd.Get(key)
	if pk == nil {
		return 0, false
	}
	return pk.Slot, true
}

// build indexes every live record.
func (s *store) build(meta index.Meta) (*index.Index, error) {
	h, err := s.open(fio.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	ix := index.New(meta)
	u := index.NewUpdater(ix)
	fields := meta.Fields()
	s.kd.Ascend(func(pk *model.PrimaryKey) bool {
		values := make(map[uint8]model.Value, len(fields))
		if err = h.data.ReadFields(pk.StartOffset, pk.EndOffset, fields, values); err != nil {
			return false
		}
		u.Insert(pk.Value, pk.Slot, values)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// persist writes ix to a temp file and renames it over the index file.
func (s *store) persist(ix *index.Index) error {
	data, err := ix.Marshal(s.gen)
	if err != nil {
		return err
	}
	path := model.GetIndexFileName(s.dirPath, s.schema.Entity, ix.Name())
	tmp := path + model.TempFileSuffix

	fs := s.options.fs
	ioManager, err := fs.Open(tmp, fio.ReadWrite)
	if err != nil {
		return err
	}
	if err = ioManager.Truncate(0); err == nil {
		if _, err = ioManager.Write(data, 0); err == nil {
			err = ioManager.Sync()
		}
	}
	if err = errors.Join(err, ioManager.Close()); err != nil {
		return err
	}
	if err = fs.Rename(tmp, path); err != nil {
		return err
	}
	ix.MarkClean(s.gen)
	return nil
}

// flush persists every index that changed or was saved at an older
// generation, one goroutine per file. The next write starts a new
// generation.
func (s *store) flush() error {
	var g errgroup.Group
	for _, ix := range s.indexes {
		if !ix.Dirty() && ix.Generation() == s.gen {
			continue
		}
		g.Go(func() error {
			return s.persist(ix)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.bumped = false
	return nil
}

func (s *store) dropIndex(name string) error {
	i, ix := s.indexByName(name)
	if ix == nil {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	s.indexes = slices.Delete(s.indexes, i, i+1)
	path := model.GetIndexFileName(s.dirPath, s.schema.Entity, name)
	if s.options.fs.Exists(path) {
		if err := s.options.fs.Remove(path); err != nil {
			return err
		}
	}
	s.log.Info("index dropped", "index", name)
	return nil
}
