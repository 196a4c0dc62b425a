package relation

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
)

// keyBuilder encodes tuples into map keys. Every value is written as a
// type tag followed by a fixed width or length prefixed payload, so keys
// of different shapes can never collide.
type keyBuilder struct {
	buf []byte
}

func (kb *keyBuilder) encode(vals Tuple) string {
	kb.buf = kb.buf[:0]
	for _, v := range vals {
		kb.append(v)
	}
	return string(kb.buf)
}

func (kb *keyBuilder) encodeValue(v interface{}) string {
	kb.buf = kb.buf[:0]
	kb.append(v)
	return string(kb.buf)
}

func (kb *keyBuilder) encodeAt(t Tuple, idx []int) string {
	kb.buf = kb.buf[:0]
	for _, i := range idx {
		kb.append(t[i])
	}
	return string(kb.buf)
}

func (kb *keyBuilder) append(v interface{}) {
	switch x := v.(type) {
	case nil:
		kb.buf = append(kb.buf, 0)
	case string:
		kb.buf = append(kb.buf, 's')
		kb.buf = binary.AppendUvarint(kb.buf, uint64(len(x)))
		kb.buf = append(kb.buf, x...)
	case bool:
		if x {
			kb.buf = append(kb.buf, 'T')
		} else {
			kb.buf = append(kb.buf, 'F')
		}
	case int:
		kb.buf = append(kb.buf, 'i')
		kb.buf = binary.BigEndian.AppendUint64(kb.buf, uint64(x))
	case int64:
		kb.buf = append(kb.buf, 'i')
		kb.buf = binary.BigEndian.AppendUint64(kb.buf, uint64(x))
	case float32:
		kb.buf = append(kb.buf, 'f')
		kb.buf = binary.BigEndian.AppendUint64(kb.buf, math.Float64bits(float64(x)))
	case float64:
		kb.buf = append(kb.buf, 'f')
		kb.buf = binary.BigEndian.AppendUint64(kb.buf, math.Float64bits(x))
	case time.Time:
		kb.buf = append(kb.buf, 't')
		kb.buf = binary.BigEndian.AppendUint64(kb.buf, uint64(x.UnixNano()))
	case replay.Toon:
		kb.buf = append(kb.buf, 'p', x.Region)
		kb.buf = binary.BigEndian.AppendUint32(kb.buf, x.ProgramID)
		kb.buf = binary.BigEndian.AppendUint32(kb.buf, x.Realm)
		kb.buf = binary.BigEndian.AppendUint64(kb.buf, x.ID)
	default:
		s := fmt.Sprint(x)
		kb.buf = append(kb.buf, '?')
		kb.buf = binary.AppendUvarint(kb.buf, uint64(len(s)))
		kb.buf = append(kb.buf, s...)
	}
}

// Grouped is a plan waiting for its aggregates
type Grouped struct {
	lazy *Lazy
	keys []Column
}

// GroupBy starts a grouped aggregation over the key columns
func (l *Lazy) GroupBy(keys ...Column) *Grouped {
	return &Grouped{lazy: l, keys: keys}
}

// Agg computes one row per distinct key: the key columns followed by one
// column per aggregate. Groups come out in order of first appearance.
func (g *Grouped) Agg(aggs ...Aggregate) *Lazy {
	l := g.lazy
	if l.err != nil {
		return l
	}

	keyIdx, err := l.schema.indices(g.keys)
	if err != nil {
		return l.with(nil, nil, err)
	}
	out := make(Schema, 0, len(g.keys)+len(aggs))
	for _, i := range keyIdx {
		f := l.schema[i]
		if f.Kind == KindList || f.Kind == KindStructList {
			return l.with(nil, nil, fmt.Errorf("%w: cannot group by list column %q", replay.ErrQueryExecution, f.Name))
		}
		out = append(out, f)
	}

	factories := make([]func() accumulator, len(aggs))
	for i, a := range aggs {
		f, factory, err := a.bind(l.schema)
		if err != nil {
			return l.with(nil, nil, err)
		}
		if out.Index(f.Name) >= 0 {
			return l.with(nil, nil, fmt.Errorf("relation: duplicate column %q", f.Name))
		}
		out = append(out, f)
		factories[i] = factory
	}

	st := &groupStage{keys: g.keys, keyIdx: keyIdx, aggs: aggs, factories: factories}
	return l.with(st, out, nil)
}

// groupStage is a pipeline breaker: it consumes its whole input before
// emitting the first group
type groupStage struct {
	keys      []Column
	keyIdx    []int
	aggs      []Aggregate
	factories []func() accumulator
}

func (g *groupStage) event() string { return annotations.StageGroup }

func (g *groupStage) String() string {
	parts := make([]string, len(g.aggs))
	for i, a := range g.aggs {
		parts[i] = a.String()
	}
	return fmt.Sprintf("group %v agg %s", g.keys, strings.Join(parts, ", "))
}

type group struct {
	key  Tuple
	accs []accumulator
}

func (g *groupStage) run(_ *execution, in Iterator) (Iterator, error) {
	defer in.Close()

	index := make(map[string]int)
	var groups []*group
	var kb keyBuilder

	for in.Next() {
		t := in.Tuple()
		k := kb.encodeAt(t, g.keyIdx)
		i, ok := index[k]
		if !ok {
			grp := &group{key: make(Tuple, len(g.keyIdx)), accs: make([]accumulator, len(g.factories))}
			for j, idx := range g.keyIdx {
				grp.key[j] = t[idx]
			}
			for j, f := range g.factories {
				grp.accs[j] = f()
			}
			i = len(groups)
			index[k] = i
			groups = append(groups, grp)
		}
		for _, acc := range groups[i].accs {
			acc.add(t)
		}
	}
	if err := in.Err(); err != nil {
		return nil, err
	}

	tuples := make([]Tuple, len(groups))
	for i, grp := range groups {
		row := make(Tuple, 0, len(grp.key)+len(grp.accs))
		row = append(row, grp.key...)
		for _, acc := range grp.accs {
			row = append(row, acc.result())
		}
		tuples[i] = row
	}
	return &sliceIterator{tuples: tuples, pos: -1}, nil
}
