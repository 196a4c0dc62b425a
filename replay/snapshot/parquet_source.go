package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/relation"
)

// readBatch is the number of rows decoded per parquet read
const readBatch = 512

// expectedColumn describes a required parquet column. Groups carry
// their children and no kind.
type expectedColumn struct {
	name     string
	kind     parquet.Kind
	children []expectedColumn
}

var detailsColumns = []expectedColumn{
	{name: "record_id", kind: parquet.ByteArray},
	{name: "file_name", kind: parquet.ByteArray},
	{name: "content_hash", kind: parquet.ByteArray},
	{name: "recorded_at", kind: parquet.Int64},
	{name: "map_title", kind: parquet.ByteArray},
	{name: "participants", children: []expectedColumn{
		{name: "toon_region", kind: parquet.Int32},
		{name: "toon_program_id", kind: parquet.Int64},
		{name: "toon_realm", kind: parquet.Int64},
		{name: "toon_id", kind: parquet.Int64},
		{name: "name", kind: parquet.ByteArray},
		{name: "race", kind: parquet.ByteArray},
		{name: "result", kind: parquet.ByteArray},
	}},
}

var unitBornColumns = []expectedColumn{
	{name: "content_hash", kind: parquet.ByteArray},
	{name: "player_name", kind: parquet.ByteArray},
	{name: "unit_type_name", kind: parquet.ByteArray},
	{name: "x", kind: parquet.Float},
	{name: "y", kind: parquet.Float},
	{name: "game_loop", kind: parquet.Int64},
}

// checkFields verifies that every expected column is present with the
// expected physical type
func checkFields(fields []parquet.Field, want []expectedColumn, path string) error {
	byName := make(map[string]parquet.Field, len(fields))
	for _, f := range fields {
		byName[f.Name()] = f
	}
	for _, w := range want {
		name := path + w.name
		f, ok := byName[w.name]
		if !ok {
			return fmt.Errorf("%w: missing column %q", replay.ErrSchemaMismatch, name)
		}
		if w.children != nil {
			if f.Leaf() {
				return fmt.Errorf("%w: column %q is not a group", replay.ErrSchemaMismatch, name)
			}
			if err := checkFields(f.Fields(), w.children, name+"."); err != nil {
				return err
			}
			continue
		}
		if !f.Leaf() {
			return fmt.Errorf("%w: column %q is a group, want %s", replay.ErrSchemaMismatch, name, w.kind)
		}
		if got := f.Type().Kind(); got != w.kind {
			return fmt.Errorf("%w: column %q is %s, want %s", replay.ErrSchemaMismatch, name, got, w.kind)
		}
	}
	return nil
}

// openParquet opens path and validates its schema. The caller owns the
// returned file.
func openParquet(path string, want []expectedColumn) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", replay.ErrDatasetUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %v", replay.ErrDatasetUnavailable, err)
	}
	pf, err := parquet.OpenFile(f, info.Size(),
		parquet.SkipBloomFilters(true),
		parquet.SkipPageIndex(true),
	)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: failed to open parquet file %s: %v", replay.ErrDatasetUnavailable, path, err)
	}
	if err := checkFields(pf.Schema().Fields(), want, ""); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, pf, nil
}

// parquetSource returns a relation source reading rows of type T from
// path. The file is validated when the source is built and reopened for
// every scan.
func parquetSource[T any](name, path string, schema relation.Schema, want []expectedColumn, tuple func(*T) relation.Tuple) (relation.Source, error) {
	f, _, err := openParquet(path, want)
	if err != nil {
		return relation.Source{}, err
	}
	f.Close()

	return relation.Source{
		Name:   name,
		Schema: schema,
		Open: func() (relation.Iterator, error) {
			f, pf, err := openParquet(path, want)
			if err != nil {
				return nil, err
			}
			return &parquetIterator[T]{
				file:  f,
				r:     parquet.NewGenericReader[T](pf),
				buf:   make([]T, readBatch),
				tuple: tuple,
			}, nil
		},
	}, nil
}

// parquetIterator decodes rows in batches and converts them to tuples
type parquetIterator[T any] struct {
	file  *os.File
	r     *parquet.GenericReader[T]
	buf   []T
	n     int
	pos   int
	eof   bool
	err   error
	cur   relation.Tuple
	tuple func(*T) relation.Tuple
}

func (it *parquetIterator[T]) Next() bool {
	for it.pos >= it.n {
		if it.eof || it.err != nil {
			return false
		}
		n, err := it.r.Read(it.buf)
		it.n, it.pos = n, 0
		if errors.Is(err, io.EOF) {
			it.eof = true
		} else if err != nil {
			it.err = fmt.Errorf("%w: failed to read rows: %v", replay.ErrDatasetUnavailable, err)
			return false
		}
	}
	it.cur = it.tuple(&it.buf[it.pos])
	it.pos++
	return true
}

func (it *parquetIterator[T]) Tuple() relation.Tuple { return it.cur }

func (it *parquetIterator[T]) Err() error { return it.err }

func (it *parquetIterator[T]) Close() error {
	it.r.Close()
	return it.file.Close()
}

func detailsParquetSource(path string) (relation.Source, error) {
	return parquetSource(DetailsFile, path, DetailsSchema, detailsColumns, (*detailsRow).tuple)
}

func unitBornParquetSource(path string) (relation.Source, error) {
	return parquetSource(UnitBornFile, path, UnitBornSchema, unitBornColumns, (*unitBornRow).tuple)
}
