package relation

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-replay/replay/annotations"
)

// Derived describes a column computed from another column of the same row
type Derived struct {
	Name Column
	Kind Kind
	From Column
	Fn   func(v interface{}) interface{}
}

func (d Derived) String() string {
	return fmt.Sprintf("%s=f(%s)", d.Name, d.From)
}

// bindDerived resolves the source columns of derived against s and
// returns the extended schema
func bindDerived(s Schema, derived []Derived) (Schema, []int, error) {
	out := append(Schema{}, s...)
	from := make([]int, len(derived))
	for i, d := range derived {
		if d.Fn == nil {
			return nil, nil, fmt.Errorf("relation: derived column %q has no function", d.Name)
		}
		if out.Index(d.Name) >= 0 {
			return nil, nil, fmt.Errorf("relation: duplicate column %q", d.Name)
		}
		idx, _, err := out.kindOf(d.From)
		if err != nil {
			return nil, nil, err
		}
		from[i] = idx
		out = append(out, Field{Name: d.Name, Kind: d.Kind})
	}
	return out, from, nil
}

// explodeStage flattens a list column into one row per element
type explodeStage struct {
	list    Column
	listIdx int
	field   Field
	width   int // number of columns the list element expands to
	in      int // input tuple width
	derived []Derived
	from    []int
}

func (e *explodeStage) event() string { return annotations.StageExplode }

func (e *explodeStage) String() string {
	if len(e.derived) == 0 {
		return "explode " + string(e.list)
	}
	parts := make([]string, len(e.derived))
	for i, d := range e.derived {
		parts[i] = d.String()
	}
	return fmt.Sprintf("explode %s with %s", e.list, strings.Join(parts, ", "))
}

func (e *explodeStage) run(_ *execution, in Iterator) (Iterator, error) {
	return &explodeIterator{inner: in, st: e}, nil
}

// elements returns the list elements of t expanded to e.width values each
func (e *explodeStage) elements(t Tuple) []Tuple {
	switch e.field.Kind {
	case KindStructList:
		list, _ := t[e.listIdx].([]Tuple)
		if len(list) > 0 {
			return list
		}
		empty := make(Tuple, e.width)
		for i, f := range e.field.Fields {
			empty[i] = zeroValue(f.Kind)
		}
		return []Tuple{empty}
	default:
		list, _ := t[e.listIdx].([]interface{})
		if len(list) == 0 {
			return []Tuple{{zeroValue(e.field.Elem)}}
		}
		out := make([]Tuple, len(list))
		for i, v := range list {
			out[i] = Tuple{v}
		}
		return out
	}
}

func (e *explodeStage) row(t, elem Tuple) Tuple {
	out := make(Tuple, 0, e.in-1+e.width+len(e.derived))
	out = append(out, t[:e.listIdx]...)
	for i := 0; i < e.width; i++ {
		if i < len(elem) {
			out = append(out, elem[i])
		} else {
			out = append(out, nil)
		}
	}
	out = append(out, t[e.listIdx+1:]...)
	for i, d := range e.derived {
		out = append(out, d.Fn(out[e.from[i]]))
	}
	return out
}

type explodeIterator struct {
	inner   Iterator
	st      *explodeStage
	pending []Tuple
	outer   Tuple
	cur     Tuple
}

func (it *explodeIterator) Next() bool {
	for len(it.pending) == 0 {
		if !it.inner.Next() {
			return false
		}
		it.outer = it.inner.Tuple()
		it.pending = it.st.elements(it.outer)
	}
	it.cur = it.st.row(it.outer, it.pending[0])
	it.pending = it.pending[1:]
	return true
}

func (it *explodeIterator) Tuple() Tuple { return it.cur }

func (it *explodeIterator) Err() error { return it.inner.Err() }

func (it *explodeIterator) Close() error { return it.inner.Close() }

// Explode produces one row per element of the list column. Other columns
// are repeated, the nested fields of a struct list replace the list
// column in place, and derived columns are appended. A row whose list is
// empty is kept as a single row holding zero values for the nested fields.
func (l *Lazy) Explode(list Column, derived ...Derived) *Lazy {
	if l.err != nil {
		return l
	}
	idx, f, err := l.schema.kindOf(list, KindList, KindStructList)
	if err != nil {
		return l.with(nil, nil, err)
	}

	var nested Schema
	if f.Kind == KindStructList {
		nested = Schema(f.Fields)
	} else {
		nested = Schema{{Name: f.Name, Kind: f.Elem}}
	}

	out := make(Schema, 0, len(l.schema)-1+len(nested))
	out = append(out, l.schema[:idx]...)
	out = append(out, nested...)
	out = append(out, l.schema[idx+1:]...)
	for _, n := range nested {
		if l.schema.Index(n.Name) >= 0 && n.Name != list {
			return l.with(nil, nil, fmt.Errorf("relation: exploded field %q shadows an existing column", n.Name))
		}
	}

	out, from, err := bindDerived(out, derived)
	if err != nil {
		return l.with(nil, nil, err)
	}

	st := &explodeStage{
		list:    list,
		listIdx: idx,
		field:   f,
		width:   len(nested),
		in:      len(l.schema),
		derived: derived,
		from:    from,
	}
	return l.with(st, out, nil)
}

// deriveStage appends computed columns
type deriveStage struct {
	derived []Derived
	from    []int
}

func (d *deriveStage) event() string { return annotations.StageDerive }

func (d *deriveStage) String() string {
	parts := make([]string, len(d.derived))
	for i, x := range d.derived {
		parts[i] = x.String()
	}
	return "derive " + strings.Join(parts, ", ")
}

// WithColumns appends derived columns to every row
func (l *Lazy) WithColumns(derived ...Derived) *Lazy {
	if l.err != nil || len(derived) == 0 {
		return l
	}
	out, from, err := bindDerived(l.schema, derived)
	return l.with(&deriveStage{derived: derived, from: from}, out, err)
}

func (d *deriveStage) run(_ *execution, in Iterator) (Iterator, error) {
	return &mapIterator{inner: in, fn: func(t Tuple) Tuple {
		out := make(Tuple, len(t), len(t)+len(d.derived))
		copy(out, t)
		for i, x := range d.derived {
			out = append(out, x.Fn(out[d.from[i]]))
		}
		return out
	}}, nil
}

// selectStage projects columns
type selectStage struct {
	cols []Column
	idx  []int
}

func (s *selectStage) event() string { return annotations.StageSelect }

func (s *selectStage) String() string {
	return fmt.Sprintf("select %v", s.cols)
}

func (s *selectStage) run(_ *execution, in Iterator) (Iterator, error) {
	return &mapIterator{inner: in, fn: func(t Tuple) Tuple {
		out := make(Tuple, len(s.idx))
		for i, j := range s.idx {
			out[i] = t[j]
		}
		return out
	}}, nil
}

// Select keeps only the given columns, in the given order
func (l *Lazy) Select(cols ...Column) *Lazy {
	if l.err != nil {
		return l
	}
	idx, err := l.schema.indices(cols)
	if err != nil {
		return l.with(nil, nil, err)
	}
	out := make(Schema, len(idx))
	for i, j := range idx {
		out[i] = l.schema[j]
	}
	return l.with(&selectStage{cols: cols, idx: idx}, out, nil)
}

// Rename changes the name of a column. Only the schema changes; no stage
// is added.
func (l *Lazy) Rename(from, to Column) *Lazy {
	if l.err != nil {
		return l
	}
	i := l.schema.Index(from)
	if i < 0 {
		return l.with(nil, nil, unknownColumn(from, l.schema))
	}
	if from != to && l.schema.Index(to) >= 0 {
		return l.with(nil, nil, fmt.Errorf("relation: duplicate column %q", to))
	}
	out := append(Schema{}, l.schema...)
	out[i].Name = to
	return &Lazy{source: l.source, stages: l.stages, schema: out}
}

// distinctStage drops repeated tuples, keeping the first occurrence
type distinctStage struct{}

func (d *distinctStage) event() string { return annotations.StageDistinct }

func (d *distinctStage) String() string { return "distinct" }

func (d *distinctStage) run(_ *execution, in Iterator) (Iterator, error) {
	seen := make(map[string]struct{})
	var kb keyBuilder
	return &mapIterator{inner: in, fn: func(t Tuple) Tuple {
		key := kb.encode(t)
		if _, ok := seen[key]; ok {
			return nil
		}
		seen[key] = struct{}{}
		return t
	}}, nil
}

// Distinct removes duplicate tuples. List columns cannot take part.
func (l *Lazy) Distinct() *Lazy {
	if l.err != nil {
		return l
	}
	for _, f := range l.schema {
		if f.Kind == KindList || f.Kind == KindStructList {
			return l.with(nil, nil, fmt.Errorf("relation: distinct over list column %q", f.Name))
		}
	}
	return l.with(&distinctStage{}, l.schema, nil)
}
