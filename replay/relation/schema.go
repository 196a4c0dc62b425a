package relation

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-replay/replay"
)

// Column names a field of a relation
type Column string

// Kind is the logical type of a column
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindTime
	KindToon
	// KindList holds []interface{} whose elements are of Field.Elem
	KindList
	// KindStructList holds []Tuple whose layout is Field.Fields
	KindStructList
)

var kindNames = map[Kind]string{
	KindString:     "string",
	KindInt:        "int",
	KindFloat:      "float",
	KindBool:       "bool",
	KindTime:       "time",
	KindToon:       "toon",
	KindList:       "list",
	KindStructList: "struct-list",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Field describes one column of a relation.
type Field struct {
	Name   Column
	Kind   Kind
	Elem   Kind    // element kind of a KindList column
	Fields []Field // element layout of a KindStructList column
}

func (f Field) String() string {
	switch f.Kind {
	case KindList:
		return fmt.Sprintf("%s:list<%s>", f.Name, f.Elem)
	case KindStructList:
		return fmt.Sprintf("%s:list<%s>", f.Name, Schema(f.Fields))
	}
	return fmt.Sprintf("%s:%s", f.Name, f.Kind)
}

// Schema is the ordered list of fields of a relation
type Schema []Field

// Index returns the position of the column, or -1 when absent
func (s Schema) Index(c Column) int {
	for i, f := range s {
		if f.Name == c {
			return i
		}
	}
	return -1
}

// Field returns the field named c
func (s Schema) Field(c Column) (Field, bool) {
	if i := s.Index(c); i >= 0 {
		return s[i], true
	}
	return Field{}, false
}

// Columns returns the column names in order
func (s Schema) Columns() []Column {
	cols := make([]Column, len(s))
	for i, f := range s {
		cols[i] = f.Name
	}
	return cols
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// indices resolves columns to positions; unknown columns are a plan error.
func (s Schema) indices(cols []Column) ([]int, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = s.Index(c)
		if idx[i] < 0 {
			return nil, unknownColumn(c, s)
		}
	}
	return idx, nil
}

// kindOf resolves a column and checks it has one of the allowed kinds
func (s Schema) kindOf(c Column, allowed ...Kind) (int, Field, error) {
	i := s.Index(c)
	if i < 0 {
		return -1, Field{}, unknownColumn(c, s)
	}
	f := s[i]
	if len(allowed) == 0 {
		return i, f, nil
	}
	for _, k := range allowed {
		if f.Kind == k {
			return i, f, nil
		}
	}
	return -1, Field{}, fmt.Errorf("%w: column %q is %s, want %v", replay.ErrQueryExecution, c, f.Kind, allowed)
}

func unknownColumn(c Column, s Schema) error {
	return fmt.Errorf("%w: unknown column %q in %s", replay.ErrQueryExecution, c, s)
}

// Tuple is one row; values are positional and follow the schema
type Tuple []interface{}

// zeroValue is the sentinel placed in exploded rows whose list was empty
func zeroValue(k Kind) interface{} {
	if k == KindToon {
		return replay.Toon{}
	}
	return nil
}
