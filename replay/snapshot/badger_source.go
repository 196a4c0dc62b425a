package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/relation"
)

// Key layout of a details.badger store. Records are stored under
// recordPrefix followed by their big-endian ingestion sequence, so a
// prefix scan returns them in ingestion order.
var (
	recordPrefix = []byte("rec/")
	schemaKey    = []byte("meta/schema")
)

// storeSchema is the value of schemaKey for stores this package can read
const storeSchema = "replay.details/v1"

func recordKey(seq uint64) []byte {
	key := make([]byte, 0, len(recordPrefix)+8)
	key = append(key, recordPrefix...)
	return binary.BigEndian.AppendUint64(key, seq)
}

// badgerStore serves scans over a read-only badger snapshot
type badgerStore struct {
	db *badger.DB

	mu     sync.Mutex
	idle   *sync.Cond
	active int
	closed bool
}

func openBadgerStore(path string) (*badgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ReadOnly = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger: %v", replay.ErrDatasetUnavailable, err)
	}

	var schema []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(schemaKey)
		if err != nil {
			return err
		}
		schema, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		db.Close()
		return nil, fmt.Errorf("%w: %s carries no schema marker", replay.ErrSchemaMismatch, path)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to read schema marker: %v", replay.ErrDatasetUnavailable, err)
	}
	if string(schema) != storeSchema {
		db.Close()
		return nil, fmt.Errorf("%w: store schema is %q, want %q", replay.ErrSchemaMismatch, schema, storeSchema)
	}

	s := &badgerStore{db: db}
	s.idle = sync.NewCond(&s.mu)
	return s, nil
}

// source returns the details relation source backed by the store
func (s *badgerStore) source() relation.Source {
	return relation.Source{
		Name:   DetailsStore,
		Schema: DetailsSchema,
		Open:   s.scan,
	}
}

func (s *badgerStore) scan() (relation.Iterator, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: snapshot store is closed", replay.ErrDatasetUnavailable)
	}
	s.active++
	s.mu.Unlock()

	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 1000
	opts.Prefix = recordPrefix
	it := txn.NewIterator(opts)
	it.Seek(recordPrefix)

	return &badgerIterator{store: s, txn: txn, it: it}, nil
}

func (s *badgerStore) release() {
	s.mu.Lock()
	s.active--
	if s.active == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// Close waits for running scans to finish and closes the store
func (s *badgerStore) Close() error {
	s.mu.Lock()
	for s.active > 0 {
		s.idle.Wait()
	}
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// badgerIterator decodes one JSON encoded record per key
type badgerIterator struct {
	store   *badgerStore
	txn     *badger.Txn
	it      *badger.Iterator
	started bool
	cur     relation.Tuple
	err     error
	closed  bool
}

func (bi *badgerIterator) Next() bool {
	if bi.err != nil || bi.closed {
		return false
	}
	if bi.started {
		bi.it.Next()
	}
	bi.started = true

	if !bi.it.ValidForPrefix(recordPrefix) {
		return false
	}

	var rec replay.MatchRecord
	err := bi.it.Item().Value(func(val []byte) error {
		dec := json.NewDecoder(bytes.NewReader(val))
		dec.DisallowUnknownFields()
		return dec.Decode(&rec)
	})
	if err != nil {
		bi.err = fmt.Errorf("%w: record %x: %v", replay.ErrSchemaMismatch, bi.it.Item().Key(), err)
		return false
	}
	bi.cur = recordTuple(rec)
	return true
}

func (bi *badgerIterator) Tuple() relation.Tuple { return bi.cur }

func (bi *badgerIterator) Err() error { return bi.err }

func (bi *badgerIterator) Close() error {
	if bi.closed {
		return nil
	}
	bi.closed = true
	bi.it.Close()
	bi.txn.Discard()
	bi.store.release()
	return nil
}

// WriteBadger writes records into dir/details.badger, keyed by their
// position in records
func WriteBadger(dir string, records []replay.MatchRecord) error {
	opts := badger.DefaultOptions(badgerPath(dir))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger: %w", err)
	}
	defer db.Close()

	const batchSize = 1000
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		err := db.Update(func(txn *badger.Txn) error {
			for i := start; i < end; i++ {
				val, err := json.Marshal(records[i])
				if err != nil {
					return fmt.Errorf("failed to encode record %s: %w", records[i].RecordID, err)
				}
				if err := txn.Set(recordKey(uint64(i)), val); err != nil {
					return fmt.Errorf("failed to write record %s: %w", records[i].RecordID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(schemaKey, []byte(storeSchema))
	})
}
