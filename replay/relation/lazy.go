package relation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wbrown/janus-replay/replay/annotations"
)

// Source is where a plan reads its tuples from. Open is called once per
// Collect, so a source must be able to hand out independent iterators.
type Source struct {
	Name   string
	Schema Schema
	Open   func() (Iterator, error)
}

// stage is one bound step of a plan. Stages are created against the
// schema of their input and hold no per-run state.
type stage interface {
	// event is the annotation name emitted for this stage
	event() string
	run(ex *execution, in Iterator) (Iterator, error)
	String() string
}

// execution carries per-Collect state shared by all stages of a run
type execution struct {
	collector *annotations.Collector
	start     time.Time
}

// Lazy is a deferred, unmaterialized plan over a source. Nothing is
// read until Collect is called. Builder methods return a new Lazy and
// leave the receiver unchanged; a plan error is carried along and
// reported by Collect.
type Lazy struct {
	source Source
	stages []stage
	schema Schema
	err    error
}

// Scan starts a new plan over src
func Scan(src Source) *Lazy {
	return &Lazy{source: src, schema: src.Schema}
}

// Failed returns a plan that reports err when collected
func Failed(err error) *Lazy {
	return &Lazy{err: err, source: Source{Name: "failed"}}
}

// Schema returns the output schema of the plan
func (l *Lazy) Schema() Schema { return l.schema }

// Err returns the first error found while building the plan
func (l *Lazy) Err() error { return l.err }

// with appends a stage. The stage slice is always copied so plans that
// share a prefix never share a backing array.
func (l *Lazy) with(st stage, out Schema, err error) *Lazy {
	if l.err != nil {
		return l
	}
	if err != nil {
		return &Lazy{source: l.source, stages: l.stages, schema: l.schema, err: err}
	}
	stages := make([]stage, len(l.stages), len(l.stages)+1)
	copy(stages, l.stages)
	stages = append(stages, st)
	return &Lazy{source: l.source, stages: stages, schema: out}
}

// Collect executes the plan and materializes the result
func (l *Lazy) Collect() (*Relation, error) {
	return l.CollectWith(nil)
}

// CollectWith executes the plan emitting one annotation per stage into c
func (l *Lazy) CollectWith(c *annotations.Collector) (*Relation, error) {
	ex := &execution{collector: c, start: time.Now()}
	return l.collect(ex)
}

func (l *Lazy) collect(ex *execution) (*Relation, error) {
	it, err := l.open(ex)
	if err != nil {
		return nil, err
	}
	tuples, err := drain(it)
	if err != nil {
		return nil, err
	}
	return New(l.schema, tuples), nil
}

// open builds the iterator chain for one run
func (l *Lazy) open(ex *execution) (Iterator, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.source.Open == nil {
		return nil, fmt.Errorf("relation: source %q cannot be opened", l.source.Name)
	}

	it, err := l.source.Open()
	if err != nil {
		return nil, err
	}
	if ex.collector != nil {
		ex.collector.Record(annotations.ScanOpened, ex.start, annotations.Data{"source": l.source.Name})
	}

	for _, st := range l.stages {
		next, err := st.run(ex, it)
		if err != nil {
			it.Close()
			return nil, err
		}
		if ex.collector != nil {
			next = &countingIterator{inner: next, ex: ex, st: st}
		}
		it = next
	}
	return it, nil
}

// String returns the plan as a readable chain of stages
func (l *Lazy) String() string {
	var b strings.Builder
	b.WriteString("scan ")
	b.WriteString(l.source.Name)
	for _, st := range l.stages {
		b.WriteString(" -> ")
		b.WriteString(st.String())
	}
	if l.err != nil {
		b.WriteString(" !! ")
		b.WriteString(l.err.Error())
	}
	return b.String()
}

// countingIterator reports a stage's output size once it is exhausted
type countingIterator struct {
	inner Iterator
	ex    *execution
	st    stage
	count int
	done  bool
}

func (c *countingIterator) Next() bool {
	if c.inner.Next() {
		c.count++
		return true
	}
	if !c.done {
		c.done = true
		data := annotations.Data{"stage": c.st.String(), "rows.out": c.count}
		if j, ok := c.inner.(joinInfo); ok {
			j.annotate(data)
		}
		c.ex.collector.Record(c.st.event(), c.ex.start, data)
	}
	return false
}

func (c *countingIterator) Tuple() Tuple { return c.inner.Tuple() }

func (c *countingIterator) Err() error { return c.inner.Err() }

func (c *countingIterator) Close() error { return c.inner.Close() }

// mapIterator applies fn to every input tuple, dropping it when fn returns nil
type mapIterator struct {
	inner Iterator
	fn    func(Tuple) Tuple
	cur   Tuple
}

func (m *mapIterator) Next() bool {
	for m.inner.Next() {
		if out := m.fn(m.inner.Tuple()); out != nil {
			m.cur = out
			return true
		}
	}
	return false
}

func (m *mapIterator) Tuple() Tuple { return m.cur }

func (m *mapIterator) Err() error { return m.inner.Err() }

func (m *mapIterator) Close() error { return m.inner.Close() }
