package relation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wbrown/janus-replay/replay"
)

// Aggregate is one output column of a grouped plan
type Aggregate interface {
	// Alias is the name of the output column
	Alias() Column

	// bind resolves input columns and returns the output field and a
	// constructor for per-group state
	bind(s Schema) (Field, func() accumulator, error)

	String() string
}

// accumulator folds the rows of one group
type accumulator interface {
	add(t Tuple)
	result() interface{}
}

// Count counts the rows of each group
type Count struct {
	As Column
}

func (a Count) Alias() Column { return a.As }

func (a Count) String() string { return fmt.Sprintf("(count) as %s", a.As) }

func (a Count) bind(Schema) (Field, func() accumulator, error) {
	return Field{Name: a.As, Kind: KindInt}, func() accumulator { return &countAcc{} }, nil
}

type countAcc struct{ n int64 }

func (c *countAcc) add(Tuple) { c.n++ }

func (c *countAcc) result() interface{} { return c.n }

// MinTime is the earliest value of a time column, rendered with
// replay.DateTimeLayout. Null when the group holds no time value.
type MinTime struct {
	Column Column
	As     Column
}

func (a MinTime) Alias() Column { return a.As }

func (a MinTime) String() string { return fmt.Sprintf("(min %s) as %s", a.Column, a.As) }

func (a MinTime) bind(s Schema) (Field, func() accumulator, error) {
	idx, _, err := s.kindOf(a.Column, KindTime)
	if err != nil {
		return Field{}, nil, err
	}
	return Field{Name: a.As, Kind: KindString}, func() accumulator {
		return &extremeAcc{idx: idx, keep: func(cand, cur time.Time) bool { return cand.Before(cur) }}
	}, nil
}

// MaxTime is the latest value of a time column, rendered like MinTime
type MaxTime struct {
	Column Column
	As     Column
}

func (a MaxTime) Alias() Column { return a.As }

func (a MaxTime) String() string { return fmt.Sprintf("(max %s) as %s", a.Column, a.As) }

func (a MaxTime) bind(s Schema) (Field, func() accumulator, error) {
	idx, _, err := s.kindOf(a.Column, KindTime)
	if err != nil {
		return Field{}, nil, err
	}
	return Field{Name: a.As, Kind: KindString}, func() accumulator {
		return &extremeAcc{idx: idx, keep: func(cand, cur time.Time) bool { return cand.After(cur) }}
	}, nil
}

type extremeAcc struct {
	idx  int
	keep func(cand, cur time.Time) bool
	set  bool
	cur  time.Time
}

func (e *extremeAcc) add(t Tuple) {
	v, ok := t[e.idx].(time.Time)
	if !ok {
		return
	}
	if !e.set || e.keep(v, e.cur) {
		e.cur = v
		e.set = true
	}
}

func (e *extremeAcc) result() interface{} {
	if !e.set {
		return nil
	}
	return replay.FormatDateTime(e.cur)
}

// Last takes Column from the row with the greatest By value. Rows with an
// equal By value resolve to the one seen later.
type Last struct {
	Column Column
	By     Column
	As     Column
}

func (a Last) Alias() Column { return a.As }

func (a Last) String() string { return fmt.Sprintf("(last %s by %s) as %s", a.Column, a.By, a.As) }

func (a Last) bind(s Schema) (Field, func() accumulator, error) {
	idx, f, err := s.kindOf(a.Column)
	if err != nil {
		return Field{}, nil, err
	}
	by, bf, err := s.kindOf(a.By)
	if err != nil {
		return Field{}, nil, err
	}
	if bf.Kind == KindList || bf.Kind == KindStructList {
		return Field{}, nil, fmt.Errorf("%w: cannot order by list column %q", replay.ErrQueryExecution, a.By)
	}
	f.Name = a.As
	return f, func() accumulator { return &lastAcc{idx: idx, by: by} }, nil
}

type lastAcc struct {
	idx, by int
	set     bool
	key     interface{}
	val     interface{}
}

func (l *lastAcc) add(t Tuple) {
	if !l.set || replay.CompareValues(t[l.by], l.key) >= 0 {
		l.key = t[l.by]
		l.val = t[l.idx]
		l.set = true
	}
}

func (l *lastAcc) result() interface{} { return l.val }

// TopK lists the K most frequent non-null values of Column, most frequent
// first. Equal counts are ordered by ascending value. The list holds
// values, not counts, and is never nil.
type TopK struct {
	Column Column
	K      int
	As     Column
}

func (a TopK) Alias() Column { return a.As }

func (a TopK) String() string { return fmt.Sprintf("(top %d %s) as %s", a.K, a.Column, a.As) }

func (a TopK) bind(s Schema) (Field, func() accumulator, error) {
	idx, f, err := s.kindOf(a.Column)
	if err != nil {
		return Field{}, nil, err
	}
	if f.Kind == KindList || f.Kind == KindStructList {
		return Field{}, nil, fmt.Errorf("%w: cannot rank list column %q", replay.ErrQueryExecution, a.Column)
	}
	if a.K < 0 {
		return Field{}, nil, fmt.Errorf("%w: negative top-k %d", replay.ErrQueryExecution, a.K)
	}
	return Field{Name: a.As, Kind: KindList, Elem: f.Kind}, func() accumulator {
		return &topKAcc{idx: idx, k: a.K, pos: make(map[string]int)}
	}, nil
}

type topKEntry struct {
	val   interface{}
	count int
}

type topKAcc struct {
	idx     int
	k       int
	pos     map[string]int
	entries []topKEntry
	kb      keyBuilder
}

func (a *topKAcc) add(t Tuple) {
	v := t[a.idx]
	if v == nil {
		return
	}
	key := a.kb.encodeValue(v)
	if i, ok := a.pos[key]; ok {
		a.entries[i].count++
		return
	}
	a.pos[key] = len(a.entries)
	a.entries = append(a.entries, topKEntry{val: v, count: 1})
}

func (a *topKAcc) result() interface{} {
	entries := append([]topKEntry(nil), a.entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return replay.CompareValues(entries[i].val, entries[j].val) < 0
	})
	n := a.k
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].val
	}
	return out
}

// CountIf counts the rows whose Column equals Value
type CountIf struct {
	Column Column
	Value  interface{}
	As     Column
}

func (a CountIf) Alias() Column { return a.As }

func (a CountIf) String() string {
	return fmt.Sprintf("(count-if %s %v) as %s", a.Column, a.Value, a.As)
}

func (a CountIf) bind(s Schema) (Field, func() accumulator, error) {
	pred, err := Equal{Column: a.Column, Value: a.Value}.bind(s)
	if err != nil {
		return Field{}, nil, err
	}
	return Field{Name: a.As, Kind: KindInt}, func() accumulator { return &countIfAcc{pred: pred} }, nil
}

type countIfAcc struct {
	pred func(Tuple) bool
	n    int64
}

func (c *countIfAcc) add(t Tuple) {
	if c.pred(t) {
		c.n++
	}
}

func (c *countIfAcc) result() interface{} { return c.n }

// CountDistinct counts the distinct non-null values of Column
type CountDistinct struct {
	Column Column
	As     Column
}

func (a CountDistinct) Alias() Column { return a.As }

func (a CountDistinct) String() string {
	return fmt.Sprintf("(count-distinct %s) as %s", a.Column, a.As)
}

func (a CountDistinct) bind(s Schema) (Field, func() accumulator, error) {
	idx, f, err := s.kindOf(a.Column)
	if err != nil {
		return Field{}, nil, err
	}
	if f.Kind == KindList || f.Kind == KindStructList {
		return Field{}, nil, fmt.Errorf("%w: cannot count list column %q", replay.ErrQueryExecution, a.Column)
	}
	return Field{Name: a.As, Kind: KindInt}, func() accumulator {
		return &distinctAcc{idx: idx, seen: make(map[string]struct{})}
	}, nil
}

type distinctAcc struct {
	idx  int
	seen map[string]struct{}
	kb   keyBuilder
}

func (d *distinctAcc) add(t Tuple) {
	if t[d.idx] == nil {
		return
	}
	d.seen[d.kb.encodeValue(t[d.idx])] = struct{}{}
}

func (d *distinctAcc) result() interface{} { return int64(len(d.seen)) }

// Collect gathers the listed columns of every row of the group into a
// nested list, in input order
type Collect struct {
	Columns []Column
	As      Column
}

func (a Collect) Alias() Column { return a.As }

func (a Collect) String() string {
	parts := make([]string, len(a.Columns))
	for i, c := range a.Columns {
		parts[i] = string(c)
	}
	return fmt.Sprintf("(collect %s) as %s", strings.Join(parts, " "), a.As)
}

func (a Collect) bind(s Schema) (Field, func() accumulator, error) {
	idx, err := s.indices(a.Columns)
	if err != nil {
		return Field{}, nil, err
	}
	fields := make([]Field, len(idx))
	for i, j := range idx {
		fields[i] = s[j]
	}
	return Field{Name: a.As, Kind: KindStructList, Fields: fields}, func() accumulator {
		return &collectAcc{idx: idx, rows: []Tuple{}}
	}, nil
}

type collectAcc struct {
	idx  []int
	rows []Tuple
}

func (c *collectAcc) add(t Tuple) {
	row := make(Tuple, len(c.idx))
	for i, j := range c.idx {
		row[i] = t[j]
	}
	c.rows = append(c.rows, row)
}

func (c *collectAcc) result() interface{} { return c.rows }
