package relation

import (
	"fmt"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
)

// joinInfo is implemented by join iterators so the stage annotation can
// report the input sizes next to the output size
type joinInfo interface {
	annotate(data annotations.Data)
}

// joinStage is a hash join: the right plan is materialized and indexed by
// key, the left side streams through in order
type joinStage struct {
	right    *Lazy
	keys     []Column
	leftIdx  []int
	rightIdx []int
	carry    []int // right columns appended to each left tuple
	semi     bool
}

func (j *joinStage) event() string {
	if j.semi {
		return annotations.JoinSemi
	}
	return annotations.JoinHash
}

func (j *joinStage) String() string {
	op := "join"
	if j.semi {
		op = "semi-join"
	}
	return fmt.Sprintf("%s %v (%s)", op, j.keys, j.right)
}

func (j *joinStage) run(ex *execution, in Iterator) (Iterator, error) {
	right, err := j.right.collect(ex)
	if err != nil {
		in.Close()
		return nil, err
	}

	table := make(map[string][]Tuple, right.Size())
	var kb keyBuilder
	for _, t := range right.tuples {
		if hasNull(t, j.rightIdx) {
			continue
		}
		k := kb.encodeAt(t, j.rightIdx)
		if j.semi {
			table[k] = nil
			continue
		}
		table[k] = append(table[k], t)
	}

	return &joinIterator{
		inner:     in,
		st:        j,
		table:     table,
		rightSize: right.Size(),
	}, nil
}

func hasNull(t Tuple, idx []int) bool {
	for _, i := range idx {
		if t[i] == nil {
			return true
		}
	}
	return false
}

type joinIterator struct {
	inner     Iterator
	st        *joinStage
	table     map[string][]Tuple
	kb        keyBuilder
	rightSize int
	leftSize  int

	left    Tuple
	matches []Tuple
	cur     Tuple
}

func (it *joinIterator) Next() bool {
	for {
		if len(it.matches) > 0 {
			r := it.matches[0]
			it.matches = it.matches[1:]
			out := make(Tuple, len(it.left), len(it.left)+len(it.st.carry))
			copy(out, it.left)
			for _, i := range it.st.carry {
				out = append(out, r[i])
			}
			it.cur = out
			return true
		}
		if !it.inner.Next() {
			return false
		}
		it.leftSize++
		it.left = it.inner.Tuple()
		if hasNull(it.left, it.st.leftIdx) {
			continue
		}
		matches, ok := it.table[it.kb.encodeAt(it.left, it.st.leftIdx)]
		if !ok {
			continue
		}
		if it.st.semi {
			it.cur = it.left
			return true
		}
		it.matches = matches
	}
}

func (it *joinIterator) Tuple() Tuple { return it.cur }

func (it *joinIterator) Err() error { return it.inner.Err() }

func (it *joinIterator) Close() error { return it.inner.Close() }

func (it *joinIterator) annotate(data annotations.Data) {
	data["left.size"] = it.leftSize
	data["right.size"] = it.rightSize
	data["keys"] = it.st.keys
}

func (l *Lazy) bindJoin(right *Lazy, keys []Column, semi bool) *Lazy {
	if l.err != nil {
		return l
	}
	if right.err != nil {
		return l.with(nil, nil, right.err)
	}
	if len(keys) == 0 {
		return l.with(nil, nil, fmt.Errorf("%w: join without key columns", replay.ErrQueryExecution))
	}
	leftIdx, err := l.schema.indices(keys)
	if err != nil {
		return l.with(nil, nil, err)
	}
	rightIdx, err := right.schema.indices(keys)
	if err != nil {
		return l.with(nil, nil, err)
	}
	for i := range keys {
		lk, rk := l.schema[leftIdx[i]].Kind, right.schema[rightIdx[i]].Kind
		if lk != rk {
			return l.with(nil, nil, fmt.Errorf("%w: join key %q is %s on the left and %s on the right",
				replay.ErrQueryExecution, keys[i], lk, rk))
		}
		if lk == KindList || lk == KindStructList {
			return l.with(nil, nil, fmt.Errorf("%w: cannot join on list column %q", replay.ErrQueryExecution, keys[i]))
		}
	}

	st := &joinStage{right: right, keys: keys, leftIdx: leftIdx, rightIdx: rightIdx, semi: semi}
	if semi {
		return l.with(st, l.schema, nil)
	}

	out := append(Schema{}, l.schema...)
	isKey := make(map[int]bool, len(rightIdx))
	for _, i := range rightIdx {
		isKey[i] = true
	}
	for i, f := range right.schema {
		if isKey[i] {
			continue
		}
		if out.Index(f.Name) >= 0 {
			return l.with(nil, nil, fmt.Errorf("relation: join would duplicate column %q", f.Name))
		}
		out = append(out, f)
		st.carry = append(st.carry, i)
	}
	return l.with(st, out, nil)
}

// Join is an inner join on the key columns, which must exist on both
// sides. The output holds the left columns followed by the non-key right
// columns. Left order is preserved; rows without a partner are dropped,
// and null keys never match.
func (l *Lazy) Join(right *Lazy, keys ...Column) *Lazy {
	return l.bindJoin(right, keys, false)
}

// SemiJoin keeps the left rows whose key appears on the right. Each left
// row is emitted at most once.
func (l *Lazy) SemiJoin(right *Lazy, keys ...Column) *Lazy {
	return l.bindJoin(right, keys, true)
}
