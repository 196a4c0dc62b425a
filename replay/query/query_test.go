package query

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-replay/replay"
)

func TestDateRangeResolve(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

	min, max := DateRange{}.Resolve(start)
	assert.Equal(t, DefaultMinDate, min)
	assert.Equal(t, start, max)

	lo := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	min, max = DateRange{Min: lo, Max: hi}.Resolve(start)
	assert.Equal(t, lo, min)
	assert.Equal(t, hi, max, "an inverted range is kept, it simply matches nothing")
}

func TestMapRequestFromValues(t *testing.T) {
	v, err := url.ParseQuery("title=Alpha%20LE&player=serral&player_1=Serral&player_2=Clem" +
		"&file_name=.SC2Replay&file_hash=abc&record_id=r1&file_min_date=2023-01-01&file_max_date=2023-01-31")
	require.NoError(t, err)

	req, err := MapRequestFromValues(v)
	require.NoError(t, err)
	assert.Equal(t, MapRequest{
		Title:    "Alpha LE",
		Player:   "serral",
		Player1:  "Serral",
		Player2:  "Clem",
		FileName: ".SC2Replay",
		FileHash: "abc",
		RecordID: "r1",
		Dates: DateRange{
			Min: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			Max: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}, req)
}

func TestDoubleEscapedValues(t *testing.T) {
	v, err := url.ParseQuery("title=Crimson%2520Court&name=TAG%253Csp%252F%253EPlayer")
	require.NoError(t, err)

	mreq, err := MapRequestFromValues(v)
	require.NoError(t, err)
	assert.Equal(t, "Crimson Court", mreq.Title)

	preq, err := PlayerRequestFromValues(v)
	require.NoError(t, err)
	assert.Equal(t, "TAG<sp/>Player", preq.Name)
}

func TestRFC3339Dates(t *testing.T) {
	v := url.Values{ParamMinDate: {"2023-01-01T10:00:00+02:00"}, ParamMaxDate: {"2023-01-02T00:00:00Z"}}
	req, err := PlayerRequestFromValues(v)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC), req.Dates.Min)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), req.Dates.Max)
}

func TestInvalidParameters(t *testing.T) {
	cases := []url.Values{
		{ParamMinDate: {"yesterday"}},
		{ParamMaxDate: {"2023-13-45"}},
	}
	for _, v := range cases {
		_, err := MapRequestFromValues(v)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		assert.ErrorIs(t, err, replay.ErrQueryExecution)
	}

	_, err := PlayerRequestFromValues(url.Values{ParamExactName: {"maybe"}})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = UnitBornRequestFromValues(url.Values{ParamGameLoop: {"12.5"}})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPlayerRequestFromValues(t *testing.T) {
	req, err := PlayerRequestFromValues(url.Values{ParamName: {" A.I "}, ParamExactName: {"true"}})
	require.NoError(t, err)
	assert.Equal(t, "A.I", req.Name)
	assert.True(t, req.ExactName)
	assert.True(t, req.Dates.Min.IsZero())
}

func TestUnitBornRequestFromValues(t *testing.T) {
	t.Run("NoPlayer", func(t *testing.T) {
		req, err := UnitBornRequestFromValues(url.Values{ParamFileHash: {"ab12"}})
		require.NoError(t, err)
		assert.Nil(t, req.Player)
		assert.Nil(t, req.GameLoop)
		assert.Equal(t, "ab12", req.FileHash)
	})

	t.Run("NeutralPlayer", func(t *testing.T) {
		req, err := UnitBornRequestFromValues(url.Values{ParamPlayer: {""}, ParamGameLoop: {"448"}})
		require.NoError(t, err)
		require.NotNil(t, req.Player)
		assert.Equal(t, "", *req.Player)
		require.NotNil(t, req.GameLoop)
		assert.Equal(t, int64(448), *req.GameLoop)
	})
}

func TestMapFrequencyRequestFromValues(t *testing.T) {
	req := MapFrequencyRequestFromValues(url.Values{ParamTitle: {"reef"}, ParamPlayer: {"clem"}})
	assert.Equal(t, MapFrequencyRequest{Title: "reef", Player: "clem"}, req)
}
