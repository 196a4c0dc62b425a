package relation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
)

// SortKey orders by one column
type SortKey struct {
	Column     Column
	Descending bool
}

func (k SortKey) String() string {
	if k.Descending {
		return string(k.Column) + " desc"
	}
	return string(k.Column)
}

type sortStage struct {
	keys []SortKey
	idx  []int
}

func (s *sortStage) event() string { return annotations.StageSort }

func (s *sortStage) String() string {
	parts := make([]string, len(s.keys))
	for i, k := range s.keys {
		parts[i] = k.String()
	}
	return "sort " + strings.Join(parts, ", ")
}

func (s *sortStage) run(_ *execution, in Iterator) (Iterator, error) {
	tuples, err := drain(in)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tuples, func(a, b int) bool {
		for i, k := range s.keys {
			c := replay.CompareValues(tuples[a][s.idx[i]], tuples[b][s.idx[i]])
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return &sliceIterator{tuples: tuples, pos: -1}, nil
}

// Sort orders rows by the keys, in priority order. The sort is stable, so
// rows equal on every key keep their input order.
func (l *Lazy) Sort(keys ...SortKey) *Lazy {
	if l.err != nil || len(keys) == 0 {
		return l
	}
	idx := make([]int, len(keys))
	for i, k := range keys {
		j, f, err := l.schema.kindOf(k.Column)
		if err != nil {
			return l.with(nil, nil, err)
		}
		if f.Kind == KindList || f.Kind == KindStructList {
			return l.with(nil, nil, fmt.Errorf("%w: cannot sort by list column %q", replay.ErrQueryExecution, k.Column))
		}
		idx[i] = j
	}
	return l.with(&sortStage{keys: keys, idx: idx}, l.schema, nil)
}

// SortDesc orders by key descending, breaking ties by the tieBreak
// columns ascending
func (l *Lazy) SortDesc(key Column, tieBreak ...Column) *Lazy {
	keys := make([]SortKey, 0, len(tieBreak)+1)
	keys = append(keys, SortKey{Column: key, Descending: true})
	for _, c := range tieBreak {
		keys = append(keys, SortKey{Column: c})
	}
	return l.Sort(keys...)
}

type limitStage struct {
	n int
}

func (s *limitStage) event() string { return annotations.StageLimit }

func (s *limitStage) String() string { return fmt.Sprintf("limit %d", s.n) }

func (s *limitStage) run(_ *execution, in Iterator) (Iterator, error) {
	return &limitIterator{inner: in, left: s.n}, nil
}

type limitIterator struct {
	inner Iterator
	left  int
}

func (it *limitIterator) Next() bool {
	if it.left <= 0 {
		return false
	}
	if !it.inner.Next() {
		return false
	}
	it.left--
	return true
}

func (it *limitIterator) Tuple() Tuple { return it.inner.Tuple() }

func (it *limitIterator) Err() error { return it.inner.Err() }

func (it *limitIterator) Close() error { return it.inner.Close() }

// Limit keeps at most n rows. A negative n keeps everything.
func (l *Lazy) Limit(n int) *Lazy {
	if l.err != nil || n < 0 {
		return l
	}
	return l.with(&limitStage{n: n}, l.schema, nil)
}
