// Package relation implements the typed pipeline the statistics engine
// runs on: a lazily planned chain of scan, filter, explode, group,
// aggregate, join, sort and limit stages over immutable relations.
//
// Relations are IMMUTABLE. Every builder method returns a NEW value and
// never touches its receiver, so one base plan can be shared by several
// derived plans (and goroutines) without any cross-query state.
package relation

import (
	"fmt"
)

// Iterator provides streaming access to tuples
type Iterator interface {
	// Next advances to the next tuple
	Next() bool

	// Tuple returns the current tuple. Callers must not modify it.
	Tuple() Tuple

	// Err reports the first error hit while iterating
	Err() error

	// Close releases any resources
	Close() error
}

// Relation is a materialized set of tuples with a schema.
type Relation struct {
	schema Schema
	tuples []Tuple
}

// New creates a materialized relation. The tuples are owned by the relation afterwards.
func New(schema Schema, tuples []Tuple) *Relation {
	if tuples == nil {
		tuples = []Tuple{}
	}
	return &Relation{schema: schema, tuples: tuples}
}

// Schema returns the relation's fields
func (r *Relation) Schema() Schema { return r.schema }

// Columns returns the column names in order
func (r *Relation) Columns() []Column { return r.schema.Columns() }

// Size returns the number of tuples
func (r *Relation) Size() int { return len(r.tuples) }

// IsEmpty returns true if the relation has no tuples
func (r *Relation) IsEmpty() bool { return len(r.tuples) == 0 }

// Get returns the i-th tuple
func (r *Relation) Get(i int) Tuple { return r.tuples[i] }

// Value returns the value of column c in the i-th tuple, nil when the column is unknown
func (r *Relation) Value(i int, c Column) interface{} {
	idx := r.schema.Index(c)
	if idx < 0 {
		return nil
	}
	return r.tuples[i][idx]
}

// Iterator returns an independent iterator over the tuples
func (r *Relation) Iterator() Iterator {
	return &sliceIterator{tuples: r.tuples, pos: -1}
}

// Lazy wraps the relation as the source of a new plan
func (r *Relation) Lazy() *Lazy {
	return Scan(Source{
		Name:   fmt.Sprintf("relation[%d]", len(r.tuples)),
		Schema: r.schema,
		Open: func() (Iterator, error) {
			return r.Iterator(), nil
		},
	})
}

// String returns a compact representation for annotations/logging
func (r *Relation) String() string {
	return fmt.Sprintf("Relation%s[%d tuples]", r.schema, len(r.tuples))
}

// Table returns a formatted markdown table representation
func (r *Relation) Table() string {
	return NewTableFormatter().FormatRelation(r)
}

// sliceIterator walks a tuple slice
type sliceIterator struct {
	tuples []Tuple
	pos    int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.tuples) {
		it.pos = len(it.tuples)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Tuple() Tuple { return it.tuples[it.pos] }

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() error { return nil }

// drain materializes what is left of an iterator and closes it
func drain(it Iterator) ([]Tuple, error) {
	defer it.Close()
	var out []Tuple
	for it.Next() {
		out = append(out, it.Tuple())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
