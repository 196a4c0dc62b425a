package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		display string
		name    string
		clan    string
	}{
		{"Serral", "Serral", ""},
		{"BNet<sp/>Serral", "Serral", "BNet"},
		{"A<sp/>B<sp/>Clem", "Clem", "A"},
		{"<sp/>Maru", "Maru", ""},
		{"", "", ""},
		{"A.I 1 (Very Hard)", "A.I 1 (Very Hard)", ""},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			assert.Equal(t, tt.name, CanonicalName(tt.display))
			assert.Equal(t, tt.clan, ClanTag(tt.display))
		})
	}
}

func TestCanonicalNameIdempotent(t *testing.T) {
	inputs := []string{"Serral", "TAG<sp/>Serral", "x<sp/>y<sp/>z", "<sp/>", "<sp/><sp/>a", "a<sp/"}
	for _, in := range inputs {
		once := CanonicalName(in)
		assert.Equal(t, once, CanonicalName(once), "input %q", in)
	}
}

func TestCompareValues(t *testing.T) {
	now := time.Date(2023, 9, 1, 15, 1, 38, 0, time.UTC)

	assert.Equal(t, 0, CompareValues(nil, nil))
	assert.Equal(t, -1, CompareValues(nil, "a"))
	assert.Equal(t, 1, CompareValues("a", nil))
	assert.Equal(t, -1, CompareValues("Alpha", "Beta"))
	assert.Equal(t, 1, CompareValues(int64(3), 2))
	assert.Equal(t, 0, CompareValues(float32(1.5), 1.5))
	assert.Equal(t, -1, CompareValues(now, now.Add(time.Second)))
	assert.Equal(t, -1, CompareValues(Toon{Region: 1, ID: 9}, Toon{Region: 2, ID: 1}))
	assert.Equal(t, 1, CompareValues(Toon{Region: 1, ID: 9}, Toon{Region: 1, ID: 1}))

	// mixed types are ordered by rank, in both directions consistently
	assert.Equal(t, -CompareValues("x", int64(1)), CompareValues(int64(1), "x"))
}

func TestRaceAndResultText(t *testing.T) {
	assert.Equal(t, Zerg, ParseRace("Zerg"))
	assert.Equal(t, RaceUnknown, ParseRace("martian"))
	assert.Equal(t, Win, ParseResult("WIN"))
	assert.Equal(t, Undecided, ParseResult(""))

	b, err := Protoss.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "protoss", string(b))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, ErrSchemaMismatch, Classify(wrap(ErrSchemaMismatch)))
	assert.Equal(t, ErrQueryExecution, Classify(assert.AnError))
	assert.Equal(t, "dataset_unavailable", KindName(wrap(ErrDatasetUnavailable)))
}

func wrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
