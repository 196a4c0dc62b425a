package relation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
)

var (
	day0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	playerFields = []Field{
		{Name: "toon", Kind: KindToon},
		{Name: "name", Kind: KindString},
	}

	matchSchema = Schema{
		{Name: "id", Kind: KindString},
		{Name: "at", Kind: KindTime},
		{Name: "map", Kind: KindString},
		{Name: "players", Kind: KindStructList, Fields: playerFields},
	}
)

func toon(id uint64) replay.Toon {
	return replay.Toon{Region: 2, ProgramID: 1, Realm: 1, ID: id}
}

func players(names ...string) []Tuple {
	out := make([]Tuple, len(names))
	for i, n := range names {
		out[i] = Tuple{toon(uint64(len(n))), n}
	}
	return out
}

func matches() *Relation {
	return New(matchSchema, []Tuple{
		{"r1", day0, "Alpha", players("ann", "bobby")},
		{"r2", day0.Add(24 * time.Hour), "Beta", players("ann")},
		{"r3", day0.Add(48 * time.Hour), "Alpha", []Tuple{}},
		{"r4", day0.Add(72 * time.Hour), "alpha", players("carla", "ann")},
	})
}

func collect(t *testing.T, l *Lazy) *Relation {
	t.Helper()
	rel, err := l.Collect()
	require.NoError(t, err)
	return rel
}

func column(rel *Relation, c Column) []interface{} {
	out := make([]interface{}, rel.Size())
	for i := range out {
		out[i] = rel.Value(i, c)
	}
	return out
}

func TestFilters(t *testing.T) {
	base := matches().Lazy()

	t.Run("ContainsFold", func(t *testing.T) {
		rel := collect(t, base.FilterContainsFold("map", "ALP"))
		assert.Equal(t, []interface{}{"r1", "r3", "r4"}, column(rel, "id"))
	})

	t.Run("EmptySubstringAddsNoStage", func(t *testing.T) {
		assert.Same(t, base, base.FilterContainsFold("map", ""))
	})

	t.Run("Equal", func(t *testing.T) {
		rel := collect(t, base.FilterEq("map", "Alpha"))
		assert.Equal(t, []interface{}{"r1", "r3"}, column(rel, "id"))
	})

	t.Run("RangeIsHalfOpen", func(t *testing.T) {
		rel := collect(t, base.FilterRange("at", day0.Add(24*time.Hour), day0.Add(72*time.Hour)))
		assert.Equal(t, []interface{}{"r2", "r3"}, column(rel, "id"))
	})

	t.Run("InvertedRangeIsEmpty", func(t *testing.T) {
		rel := collect(t, base.FilterRange("at", day0.Add(72*time.Hour), day0))
		assert.True(t, rel.IsEmpty())
	})

	t.Run("Not", func(t *testing.T) {
		rel := collect(t, base.Filter(Not{Pred: Contains{Column: "map", Substring: "Alpha"}}))
		assert.Equal(t, []interface{}{"r2", "r4"}, column(rel, "id"))
	})

	t.Run("UnknownColumn", func(t *testing.T) {
		_, err := base.FilterEq("nope", "x").Collect()
		require.Error(t, err)
		assert.True(t, errors.Is(err, replay.ErrQueryExecution))
	})

	t.Run("WrongKind", func(t *testing.T) {
		_, err := base.FilterRange("map", day0, day0).Collect()
		assert.ErrorIs(t, err, replay.ErrQueryExecution)
	})
}

func TestPlansAreImmutable(t *testing.T) {
	base := matches().Lazy().FilterContainsFold("map", "alpha")
	a := base.FilterEq("id", "r1")
	b := base.FilterEq("id", "r4")

	assert.Equal(t, []interface{}{"r1"}, column(collect(t, a), "id"))
	assert.Equal(t, []interface{}{"r4"}, column(collect(t, b), "id"))
	assert.Equal(t, 3, collect(t, base).Size())
}

func TestExplode(t *testing.T) {
	upper := Derived{Name: "upper", Kind: KindString, From: "name", Fn: func(v interface{}) interface{} {
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return nil
	}}
	rel := collect(t, matches().Lazy().Explode("players", upper))

	assert.Equal(t, []Column{"id", "at", "map", "toon", "name", "upper"}, rel.Columns())
	assert.Equal(t, []interface{}{"r1", "r1", "r2", "r3", "r4", "r4"}, column(rel, "id"))
	assert.Equal(t, []interface{}{"ANN", "BOBBY", "ANN", nil, "CARLA", "ANN"}, column(rel, "upper"))

	derived := collect(t, matches().Lazy().FilterEq("id", "r2").WithColumns(Derived{
		Name: "map_len", Kind: KindInt, From: "map",
		Fn:   func(v interface{}) interface{} { return int64(len(v.(string))) },
	}))
	assert.Equal(t, []Column{"id", "at", "map", "players", "map_len"}, derived.Columns())
	assert.Equal(t, int64(4), derived.Value(0, "map_len"))

	// The empty participant list survives as one neutral row
	assert.Equal(t, replay.Toon{}, rel.Value(3, "toon"))
	assert.Nil(t, rel.Value(3, "name"))
	assert.Equal(t, day0.Add(48*time.Hour), rel.Value(3, "at"))
}

func TestExplodeScalarList(t *testing.T) {
	s := Schema{
		{Name: "id", Kind: KindString},
		{Name: "tag", Kind: KindList, Elem: KindString},
	}
	rel := collect(t, New(s, []Tuple{
		{"a", []interface{}{"x", "y"}},
		{"b", []interface{}{}},
	}).Lazy().Explode("tag"))

	assert.Equal(t, []Column{"id", "tag"}, rel.Columns())
	assert.Equal(t, []interface{}{"x", "y", nil}, column(rel, "tag"))
}

func TestGroupAggregates(t *testing.T) {
	exploded := matches().Lazy().Explode("players")

	rel := collect(t, exploded.Filter(NotNull{Column: "name"}).GroupBy("name").Agg(
		Count{As: "count"},
		MinTime{Column: "at", As: "first"},
		MaxTime{Column: "at", As: "last"},
		Last{Column: "id", By: "at", As: "latest"},
		TopK{Column: "map", K: 1, As: "maps"},
		CountDistinct{Column: "map", As: "num_maps"},
		CountIf{Column: "map", Value: "Alpha", As: "alphas"},
	))

	assert.Equal(t, []interface{}{"ann", "bobby", "carla"}, column(rel, "name"), "first appearance order")
	assert.Equal(t, []interface{}{int64(3), int64(1), int64(1)}, column(rel, "count"))
	assert.Equal(t, "2023-01-01T00:00:00", rel.Value(0, "first"))
	assert.Equal(t, "2023-01-04T00:00:00", rel.Value(0, "last"))
	assert.Equal(t, "r4", rel.Value(0, "latest"))
	// Alpha, Beta and alpha each once: ties resolve to the smallest value
	assert.Equal(t, []interface{}{"Alpha"}, rel.Value(0, "maps"))
	assert.Equal(t, int64(3), rel.Value(0, "num_maps"))
	assert.Equal(t, int64(1), rel.Value(0, "alphas"))
}

func TestTopK(t *testing.T) {
	s := Schema{{Name: "g", Kind: KindString}, {Name: "v", Kind: KindString}}
	rows := []Tuple{
		{"a", "x"}, {"a", "y"}, {"a", "y"}, {"a", nil}, {"a", nil}, {"a", nil},
		{"a", "w"}, {"a", "z"}, {"a", "z"},
	}
	rel := collect(t, New(s, rows).Lazy().GroupBy("g").Agg(
		TopK{Column: "v", K: 3, As: "top3"},
		TopK{Column: "v", K: 10, As: "all"},
		TopK{Column: "v", K: 0, As: "none"},
	))

	assert.Equal(t, []interface{}{"y", "z", "w"}, rel.Value(0, "top3"))
	assert.Equal(t, []interface{}{"y", "z", "w", "x"}, rel.Value(0, "all"))
	assert.Equal(t, []interface{}{}, rel.Value(0, "none"))
}

func TestLastTieGoesToLaterRow(t *testing.T) {
	s := Schema{{Name: "g", Kind: KindString}, {Name: "at", Kind: KindTime}, {Name: "id", Kind: KindString}}
	rel := collect(t, New(s, []Tuple{
		{"a", day0, "first"},
		{"a", day0, "second"},
		{"a", day0.Add(-time.Hour), "older"},
	}).Lazy().GroupBy("g").Agg(Last{Column: "id", By: "at", As: "latest"}))

	assert.Equal(t, "second", rel.Value(0, "latest"))
}

func TestCollectAggregate(t *testing.T) {
	rel := collect(t, matches().Lazy().GroupBy("map").Agg(Collect{Columns: []Column{"id"}, As: "ids"}))

	f, ok := rel.Schema().Field("ids")
	require.True(t, ok)
	assert.Equal(t, KindStructList, f.Kind)
	assert.Equal(t, []Tuple{{"r1"}, {"r3"}}, rel.Value(0, "ids"))
}

func TestGroupKeysDoNotCollide(t *testing.T) {
	s := Schema{{Name: "a", Kind: KindString}, {Name: "b", Kind: KindString}}
	rel := collect(t, New(s, []Tuple{
		{"x|", "y"},
		{"x", "|y"},
		{"x", nil},
		{"x", ""},
	}).Lazy().GroupBy("a", "b").Agg(Count{As: "n"}))

	assert.Equal(t, 4, rel.Size())
}

func TestJoin(t *testing.T) {
	left := New(Schema{{Name: "k", Kind: KindString}, {Name: "l", Kind: KindInt}}, []Tuple{
		{"c", int64(1)}, {"a", int64(2)}, {"b", int64(3)}, {nil, int64(4)},
	}).Lazy()
	right := New(Schema{{Name: "k", Kind: KindString}, {Name: "r", Kind: KindString}}, []Tuple{
		{"a", "ra"}, {"c", "rc"}, {"c", "rc2"}, {nil, "rnil"},
	}).Lazy()

	t.Run("Inner", func(t *testing.T) {
		rel := collect(t, left.Join(right, "k"))
		assert.Equal(t, []Column{"k", "l", "r"}, rel.Columns())
		assert.Equal(t, []interface{}{"c", "c", "a"}, column(rel, "k"))
		assert.Equal(t, []interface{}{"rc", "rc2", "ra"}, column(rel, "r"))
	})

	t.Run("Semi", func(t *testing.T) {
		rel := collect(t, left.SemiJoin(right, "k"))
		assert.Equal(t, []Column{"k", "l"}, rel.Columns())
		assert.Equal(t, []interface{}{int64(1), int64(2)}, column(rel, "l"))
	})

	t.Run("DuplicateColumn", func(t *testing.T) {
		_, err := left.Join(left.Select("k"), "k").Collect()
		require.NoError(t, err, "only the key is shared")

		_, err = left.Join(left, "k").Collect()
		assert.Error(t, err)

		_, err = left.Join(left.Rename("k", "k2"), "k").Collect()
		assert.ErrorIs(t, err, replay.ErrQueryExecution, "right side lacks the key")
	})

	t.Run("SelfJoinWithRename", func(t *testing.T) {
		exploded := matches().Lazy().Explode("players").Select("id", "toon", "name")
		p1 := exploded.Filter(EqualFold{Column: "name", Value: "ANN"}).Select("id", "toon")
		p2 := exploded.Filter(EqualFold{Column: "name", Value: "Carla"}).
			Select("id", "toon").Rename("toon", "toon2")
		pairs := p1.Join(p2, "id").Filter(Not{Pred: SameValue{Left: "toon", Right: "toon2"}})

		ids := collect(t, pairs.Select("id").Distinct())
		assert.Equal(t, []interface{}{"r4"}, column(ids, "id"))
	})
}

func TestSortAndLimit(t *testing.T) {
	s := Schema{{Name: "name", Kind: KindString}, {Name: "n", Kind: KindInt}}
	rel := New(s, []Tuple{
		{"d", int64(1)}, {"b", int64(3)}, {"c", int64(3)}, {"a", int64(1)}, {"e", int64(2)},
	})

	sorted := collect(t, rel.Lazy().SortDesc("n", "name"))
	assert.Equal(t, []interface{}{"b", "c", "e", "a", "d"}, column(sorted, "name"))

	limited := collect(t, rel.Lazy().SortDesc("n", "name").Limit(2))
	assert.Equal(t, []interface{}{"b", "c"}, column(limited, "name"))

	assert.Equal(t, 5, collect(t, rel.Lazy().Limit(-1)).Size())
	assert.True(t, collect(t, rel.Lazy().Limit(0)).IsEmpty())
}

func TestDistinct(t *testing.T) {
	rel := collect(t, matches().Lazy().Select("map").Distinct())
	assert.Equal(t, []interface{}{"Alpha", "Beta", "alpha"}, column(rel, "map"))

	_, err := matches().Lazy().Distinct().Collect()
	assert.Error(t, err, "list columns cannot be compared")
}

func TestFailedPlan(t *testing.T) {
	boom := errors.New("boom")
	l := Failed(boom).FilterEq("x", 1).Limit(3)
	_, err := l.Collect()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, l.String(), "boom")
}

func TestSourceErrorsPropagate(t *testing.T) {
	boom := errors.New("read failed")
	l := Scan(Source{Name: "broken", Schema: matchSchema, Open: func() (Iterator, error) {
		return nil, boom
	}})
	_, err := l.FilterEq("id", "r1").Collect()
	assert.ErrorIs(t, err, boom)
}

func TestCollectWithAnnotations(t *testing.T) {
	c := annotations.NewCollector(nil)
	base := matches().Lazy()
	ids := base.FilterEq("map", "Beta").Select("id")

	rel, err := base.FilterContainsFold("map", "a").
		SemiJoin(ids, "id").
		GroupBy("map").Agg(Count{As: "n"}).
		CollectWith(c)
	require.NoError(t, err)
	assert.Equal(t, 1, rel.Size())

	// the semi join's right side is collected with the same collector
	assert.Equal(t, 2, c.Count(annotations.ScanOpened))
	assert.Equal(t, 2, c.Count(annotations.StageFilter))
	assert.Equal(t, 1, c.Count(annotations.JoinSemi))
	assert.Equal(t, 1, c.Count(annotations.StageGroup))

	for _, ev := range c.Events() {
		if ev.Name == annotations.JoinSemi {
			assert.Equal(t, 1, ev.Data["right.size"])
			assert.Equal(t, 4, ev.Data["left.size"])
			assert.Equal(t, 1, ev.Data["rows.out"])
		}
	}
}

func TestPlanString(t *testing.T) {
	l := matches().Lazy().FilterEq("map", "Alpha").Explode("players").SortDesc("at", "id").Limit(5)
	s := l.String()
	assert.True(t, strings.HasPrefix(s, "scan relation[4]"))
	assert.Contains(t, s, "filter (= map Alpha)")
	assert.Contains(t, s, "explode players")
	assert.Contains(t, s, "sort at desc, id")
	assert.Contains(t, s, "limit 5")
}

func TestTableFormatter(t *testing.T) {
	formatter := NewTableFormatter()

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "_Empty relation_", formatter.FormatRelation(New(nil, nil)))
		assert.Contains(t, formatter.FormatRelation(New(matchSchema, nil)), "_No rows_")
	})

	t.Run("Rows", func(t *testing.T) {
		out := matches().Table()
		assert.Contains(t, out, "map")
		assert.Contains(t, out, "Alpha")
		assert.Contains(t, out, "2023-01-02 00:00:00")
		assert.Contains(t, out, "2-1-1-3 ann")
		assert.Contains(t, out, "4 rows")
	})

	t.Run("Truncate", func(t *testing.T) {
		f := &TableFormatter{MaxWidth: 8, TruncateString: "..."}
		assert.Equal(t, "abcde...", f.FormatValue("abcdefghijkl"))
		assert.Equal(t, "short", f.FormatValue("short"))
	})
}
