// Package snapshot opens the immutable match record snapshot the engine
// queries. A snapshot is a directory holding the match details, either as
// a parquet file or as a read-only badger store, and optionally the unit
// born tracker events.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/relation"
)

// Format is the storage format of the match details
type Format string

const (
	FormatParquet Format = "parquet"
	FormatBadger  Format = "badger"
)

// Handle is an opened snapshot. It is immutable and safe for concurrent
// use; every scan reads the backing files independently.
type Handle struct {
	dir    string
	format Format

	details  relation.Source
	unitBorn relation.Source
	// unitBornErr is reported by UnitBorn when the events file is absent
	unitBornErr error

	store *badgerStore

	indexOnce sync.Once
	index     *Index
	indexErr  error
}

func detailsPath(dir string) string { return filepath.Join(dir, DetailsFile) }

func badgerPath(dir string) string { return filepath.Join(dir, DetailsStore) }

func unitBornPath(dir string) string { return filepath.Join(dir, UnitBornFile) }

// Open validates the snapshot in dir. It fails with ErrDatasetUnavailable
// when no details dataset can be read and with ErrSchemaMismatch when a
// dataset does not have the expected columns.
func Open(dir string) (*Handle, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", replay.ErrDatasetUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", replay.ErrDatasetUnavailable, dir)
	}

	h := &Handle{dir: dir}

	switch {
	case exists(detailsPath(dir)):
		src, err := detailsParquetSource(detailsPath(dir))
		if err != nil {
			return nil, err
		}
		h.format, h.details = FormatParquet, src
	case exists(badgerPath(dir)):
		store, err := openBadgerStore(badgerPath(dir))
		if err != nil {
			return nil, err
		}
		h.format, h.details, h.store = FormatBadger, store.source(), store
	default:
		return nil, fmt.Errorf("%w: %s holds neither %s nor %s",
			replay.ErrDatasetUnavailable, dir, DetailsFile, DetailsStore)
	}

	if exists(unitBornPath(dir)) {
		src, err := unitBornParquetSource(unitBornPath(dir))
		if err != nil {
			h.Close()
			return nil, err
		}
		h.unitBorn = src
	} else {
		h.unitBornErr = fmt.Errorf("%w: %s not found in %s", replay.ErrDatasetUnavailable, UnitBornFile, dir)
	}

	return h, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// Dir returns the snapshot directory
func (h *Handle) Dir() string { return h.dir }

// Format returns the storage format of the match details
func (h *Handle) Format() Format { return h.format }

// Scan returns a lazy plan over every match record, in ingestion order
func (h *Handle) Scan() *relation.Lazy {
	return relation.Scan(h.details)
}

// UnitBorn returns a lazy plan over the unit born tracker events
func (h *Handle) UnitBorn() *relation.Lazy {
	if h.unitBornErr != nil {
		return relation.Failed(h.unitBornErr)
	}
	return relation.Scan(h.unitBorn)
}

// Index returns the membership index of the snapshot, building it on
// first use
func (h *Handle) Index() (*Index, error) {
	h.indexOnce.Do(func() {
		h.index, h.indexErr = buildIndex(h.details)
	})
	return h.index, h.indexErr
}

// Close releases the badger store, if any, once running scans finish
func (h *Handle) Close() error {
	if h.store != nil {
		return h.store.Close()
	}
	return nil
}
