package relation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
)

// Predicate is a row filter expression. Predicates are bound to a schema
// when they are added to a plan, so unknown columns fail at build time.
type Predicate interface {
	// RequiredColumns returns the columns this predicate reads
	RequiredColumns() []Column

	// bind resolves columns against the input schema
	bind(s Schema) (func(Tuple) bool, error)

	// String returns a string representation of the predicate
	String() string
}

// ContainsFold matches string values containing Substring, ignoring case.
// Null values never match.
type ContainsFold struct {
	Column    Column
	Substring string
}

func (p ContainsFold) RequiredColumns() []Column { return []Column{p.Column} }

func (p ContainsFold) bind(s Schema) (func(Tuple) bool, error) {
	idx, _, err := s.kindOf(p.Column, KindString)
	if err != nil {
		return nil, err
	}
	sub := strings.ToLower(p.Substring)
	return func(t Tuple) bool {
		v, ok := t[idx].(string)
		return ok && strings.Contains(strings.ToLower(v), sub)
	}, nil
}

func (p ContainsFold) String() string {
	return fmt.Sprintf("(contains-ci %s %q)", p.Column, p.Substring)
}

// Contains matches string values containing Substring, case-sensitive.
type Contains struct {
	Column    Column
	Substring string
}

func (p Contains) RequiredColumns() []Column { return []Column{p.Column} }

func (p Contains) bind(s Schema) (func(Tuple) bool, error) {
	idx, _, err := s.kindOf(p.Column, KindString)
	if err != nil {
		return nil, err
	}
	return func(t Tuple) bool {
		v, ok := t[idx].(string)
		return ok && strings.Contains(v, p.Substring)
	}, nil
}

func (p Contains) String() string {
	return fmt.Sprintf("(contains %s %q)", p.Column, p.Substring)
}

// EqualFold matches string values equal to Value under Unicode case folding
type EqualFold struct {
	Column Column
	Value  string
}

func (p EqualFold) RequiredColumns() []Column { return []Column{p.Column} }

func (p EqualFold) bind(s Schema) (func(Tuple) bool, error) {
	idx, _, err := s.kindOf(p.Column, KindString)
	if err != nil {
		return nil, err
	}
	return func(t Tuple) bool {
		v, ok := t[idx].(string)
		return ok && strings.EqualFold(v, p.Value)
	}, nil
}

func (p EqualFold) String() string {
	return fmt.Sprintf("(=-ci %s %q)", p.Column, p.Value)
}

// Equal matches values equal to Value
type Equal struct {
	Column Column
	Value  interface{}
}

func (p Equal) RequiredColumns() []Column { return []Column{p.Column} }

func (p Equal) bind(s Schema) (func(Tuple) bool, error) {
	idx, f, err := s.kindOf(p.Column)
	if err != nil {
		return nil, err
	}
	if f.Kind == KindList || f.Kind == KindStructList {
		return nil, fmt.Errorf("%w: cannot compare list column %q", replay.ErrQueryExecution, p.Column)
	}
	return func(t Tuple) bool {
		return t[idx] != nil && replay.ValuesEqual(t[idx], p.Value)
	}, nil
}

func (p Equal) String() string {
	return fmt.Sprintf("(= %s %v)", p.Column, p.Value)
}

// Range matches time values with Min <= v < Max. When Min is after Max
// nothing matches.
type Range struct {
	Column Column
	Min    time.Time
	Max    time.Time
}

func (p Range) RequiredColumns() []Column { return []Column{p.Column} }

func (p Range) bind(s Schema) (func(Tuple) bool, error) {
	idx, _, err := s.kindOf(p.Column, KindTime)
	if err != nil {
		return nil, err
	}
	if p.Min.After(p.Max) {
		return func(Tuple) bool { return false }, nil
	}
	return func(t Tuple) bool {
		v, ok := t[idx].(time.Time)
		return ok && !v.Before(p.Min) && v.Before(p.Max)
	}, nil
}

func (p Range) String() string {
	return fmt.Sprintf("(range %s [%s, %s))", p.Column,
		p.Min.UTC().Format(time.RFC3339), p.Max.UTC().Format(time.RFC3339))
}

// SameValue matches rows whose two columns hold equal non-null values
type SameValue struct {
	Left  Column
	Right Column
}

func (p SameValue) RequiredColumns() []Column { return []Column{p.Left, p.Right} }

func (p SameValue) bind(s Schema) (func(Tuple) bool, error) {
	li, lf, err := s.kindOf(p.Left)
	if err != nil {
		return nil, err
	}
	ri, rf, err := s.kindOf(p.Right)
	if err != nil {
		return nil, err
	}
	if lf.Kind != rf.Kind {
		return nil, fmt.Errorf("%w: cannot compare %s column %q with %s column %q",
			replay.ErrQueryExecution, lf.Kind, p.Left, rf.Kind, p.Right)
	}
	return func(t Tuple) bool {
		return t[li] != nil && replay.ValuesEqual(t[li], t[ri])
	}, nil
}

func (p SameValue) String() string {
	return fmt.Sprintf("(= %s %s)", p.Left, p.Right)
}

// NotNull matches rows whose column holds a value
type NotNull struct {
	Column Column
}

func (p NotNull) RequiredColumns() []Column { return []Column{p.Column} }

func (p NotNull) bind(s Schema) (func(Tuple) bool, error) {
	idx, _, err := s.kindOf(p.Column)
	if err != nil {
		return nil, err
	}
	return func(t Tuple) bool { return t[idx] != nil }, nil
}

func (p NotNull) String() string {
	return fmt.Sprintf("(not-null %s)", p.Column)
}

// Not negates a predicate. Rows rejected because of a null value are
// accepted by the negation.
type Not struct {
	Pred Predicate
}

func (p Not) RequiredColumns() []Column { return p.Pred.RequiredColumns() }

func (p Not) bind(s Schema) (func(Tuple) bool, error) {
	fn, err := p.Pred.bind(s)
	if err != nil {
		return nil, err
	}
	return func(t Tuple) bool { return !fn(t) }, nil
}

func (p Not) String() string {
	return fmt.Sprintf("(not %s)", p.Pred)
}

// And matches rows accepted by every predicate
type And []Predicate

func (p And) RequiredColumns() []Column {
	var cols []Column
	for _, q := range p {
		cols = append(cols, q.RequiredColumns()...)
	}
	return cols
}

func (p And) bind(s Schema) (func(Tuple) bool, error) {
	fns := make([]func(Tuple) bool, len(p))
	for i, q := range p {
		fn, err := q.bind(s)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return func(t Tuple) bool {
		for _, fn := range fns {
			if !fn(t) {
				return false
			}
		}
		return true
	}, nil
}

func (p And) String() string {
	parts := make([]string, len(p))
	for i, q := range p {
		parts[i] = q.String()
	}
	return "(and " + strings.Join(parts, " ") + ")"
}

// filterStage keeps the tuples accepted by a bound predicate
type filterStage struct {
	pred Predicate
	fn   func(Tuple) bool
}

func (f *filterStage) event() string { return annotations.StageFilter }

func (f *filterStage) run(_ *execution, in Iterator) (Iterator, error) {
	return &mapIterator{inner: in, fn: func(t Tuple) Tuple {
		if f.fn(t) {
			return t
		}
		return nil
	}}, nil
}

func (f *filterStage) String() string { return "filter " + f.pred.String() }

// Filter returns a plan keeping only tuples accepted by pred
func (l *Lazy) Filter(pred Predicate) *Lazy {
	if l.err != nil {
		return l
	}
	fn, err := pred.bind(l.schema)
	return l.with(&filterStage{pred: pred, fn: fn}, l.schema, err)
}

// FilterContainsFold keeps rows whose column contains sub, ignoring case.
// An empty sub adds no stage at all.
func (l *Lazy) FilterContainsFold(c Column, sub string) *Lazy {
	if sub == "" {
		return l
	}
	return l.Filter(ContainsFold{Column: c, Substring: sub})
}

// FilterEq keeps rows whose column equals v
func (l *Lazy) FilterEq(c Column, v interface{}) *Lazy {
	return l.Filter(Equal{Column: c, Value: v})
}

// FilterRange keeps rows whose time column is in [min, max)
func (l *Lazy) FilterRange(c Column, min, max time.Time) *Lazy {
	return l.Filter(Range{Column: c, Min: min, Max: max})
}
