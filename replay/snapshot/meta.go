package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/wbrown/janus-replay/replay"
)

// Meta describes the freshness of a snapshot on disk
type Meta struct {
	TotalByteSize  int64     `json:"total_byte_size"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// Stat sums the sizes of the regular files in dir, including the
// contents of a badger store, and reports the modification time of the
// details dataset. It reads metadata only, never the datasets.
func Stat(dir string) (Meta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %v", replay.ErrDatasetUnavailable, err)
	}

	var meta Meta
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if e.Name() != DetailsStore {
				continue
			}
			size, modified, err := walkSize(path)
			if err != nil {
				return Meta{}, err
			}
			meta.TotalByteSize += size
			if !exists(detailsPath(dir)) {
				meta.LastModifiedAt = modified
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			return Meta{}, fmt.Errorf("%w: %v", replay.ErrDatasetUnavailable, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		meta.TotalByteSize += info.Size()
		if e.Name() == DetailsFile {
			meta.LastModifiedAt = info.ModTime().UTC()
		}
	}

	if meta.LastModifiedAt.IsZero() {
		return Meta{}, fmt.Errorf("%w: %s holds neither %s nor %s",
			replay.ErrDatasetUnavailable, dir, DetailsFile, DetailsStore)
	}
	return meta, nil
}

// walkSize returns the total size and latest modification time of the
// regular files below root
func walkSize(root string) (int64, time.Time, error) {
	var size int64
	var latest time.Time
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", replay.ErrDatasetUnavailable, err)
	}
	return size, latest.UTC(), nil
}
