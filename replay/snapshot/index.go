package snapshot

import (
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/wbrown/janus-replay/replay/relation"
)

// falsePositiveRate of the membership filters
const falsePositiveRate = 0.001

// Index answers "definitely absent" for record ids and content hashes,
// so exact-match lookups for unknown keys skip the scan entirely.
type Index struct {
	records *bloom.BloomFilter
	hashes  *bloom.BloomFilter
	size    int
}

// buildIndex scans the record id and content hash columns of src
func buildIndex(src relation.Source) (*Index, error) {
	rel, err := relation.Scan(src).Select(ColRecordID, ColContentHash).Collect()
	if err != nil {
		return nil, err
	}

	n := uint(rel.Size())
	if n == 0 {
		n = 1
	}
	idx := &Index{
		records: bloom.NewWithEstimates(n, falsePositiveRate),
		hashes:  bloom.NewWithEstimates(n, falsePositiveRate),
		size:    rel.Size(),
	}
	for i := 0; i < rel.Size(); i++ {
		t := rel.Get(i)
		if id, ok := t[0].(string); ok {
			idx.records.AddString(id)
		}
		if hash, ok := t[1].(string); ok {
			idx.hashes.AddString(hash)
		}
	}
	return idx, nil
}

// MayContainRecord is false only when no record has this id
func (x *Index) MayContainRecord(id string) bool {
	return x.records.TestString(id)
}

// MayContainHash is false only when no record has this content hash
func (x *Index) MayContainHash(hash string) bool {
	return x.hashes.TestString(hash)
}

// Size is the number of records indexed
func (x *Index) Size() int { return x.size }
