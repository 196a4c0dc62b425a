package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/engine"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	at := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	serral := replay.Participant{
		Toon:        replay.Toon{Region: 2, ProgramID: 1, Realm: 1, ID: 1},
		DisplayName: "ENCE<sp/>Serral",
		Race:        replay.Zerg,
		Result:      replay.Win,
	}
	clem := replay.Participant{
		Toon:        replay.Toon{Region: 2, ProgramID: 1, Realm: 1, ID: 2},
		DisplayName: "Clem",
		Race:        replay.Terran,
		Result:      replay.Loss,
	}
	require.NoError(t, snapshot.WriteParquet(dir, []replay.MatchRecord{
		{RecordID: "r1", FileName: "a.SC2Replay", ContentHash: "h1", RecordedAt: at, MapTitle: "Crimson Court LE",
			Participants: []replay.Participant{serral, clem}},
		{RecordID: "r2", FileName: "b.SC2Replay", ContentHash: "h2", RecordedAt: at.Add(time.Hour), MapTitle: "Alcyone LE",
			Participants: []replay.Participant{clem}},
	}))
	require.NoError(t, snapshot.WriteUnitBorn(dir, []replay.UnitBornEvent{
		{ContentHash: "h1", PlayerName: "Serral", UnitTypeName: "Drone", X: 1, Y: 2, GameLoop: 0},
	}))

	reg := prometheus.NewRegistry()
	env := engine.NewEnv(engine.Options{SourceDir: dir, Registerer: reg})
	t.Cleanup(func() { env.Close() })

	srv := httptest.NewServer(New(env, nil, reg))
	t.Cleanup(srv.Close)
	return srv
}

type response struct {
	Meta engine.Meta       `json:"meta"`
	Data []json.RawMessage `json:"data"`
}

func get(t *testing.T, srv *httptest.Server, path string) (int, response) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, len(out.Data), out.Meta.Total)
	return resp.StatusCode, out
}

func TestMaps(t *testing.T) {
	srv := testServer(t)

	status, res := get(t, srv, PathMaps)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, engine.StatusOK, res.Meta.Status)
	require.Len(t, res.Data, 2)

	var first engine.MapStats
	require.NoError(t, json.Unmarshal(res.Data[0], &first))
	assert.Equal(t, "Alcyone LE", first.Title)

	status, res = get(t, srv, PathMaps+"?title=Crimson%2520Court&player_1=serral&player_2=clem")
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, res.Data, 1)
}

func TestPlayers(t *testing.T) {
	srv := testServer(t)

	status, res := get(t, srv, PathPlayers+"?name=ENCE%3Csp%2F%3ESerral")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, res.Data, "names are matched without their clan tag")

	status, res = get(t, srv, PathPlayers+"?name=serral&exact_name=true")
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, res.Data, 1)

	var stats engine.PlayerStats
	require.NoError(t, json.Unmarshal(res.Data[0], &stats))
	assert.Equal(t, "ENCE", stats.Clan)
	assert.Equal(t, "Serral", stats.Name)
	assert.Equal(t, []string{"Crimson Court LE"}, stats.TopMaps)
}

func TestMapFrequency(t *testing.T) {
	srv := testServer(t)
	status, res := get(t, srv, PathMapFrequency+"?player=clem")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, res.Data, 2)
}

func TestUnitBorn(t *testing.T) {
	srv := testServer(t)
	status, res := get(t, srv, PathUnitBorn+"?file_hash=h1&player=Serral")
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, res.Data, 1)
	assert.JSONEq(t, `{"unit_type_name":"Drone","x":1,"y":2,"game_loop":0}`, string(res.Data[0]))
}

func TestSnapshotEndpoints(t *testing.T) {
	srv := testServer(t)

	status, res := get(t, srv, PathSnapshotStats)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, res.Data, 1)
	assert.Contains(t, string(res.Data[0]), "total_byte_size")

	status, res = get(t, srv, PathSnapshotMeta)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, res.Data, 1)
	var summary engine.SnapshotSummary
	require.NoError(t, json.Unmarshal(res.Data[0], &summary))
	assert.Equal(t, int64(2), summary.NumFiles)
	assert.Equal(t, int64(2), summary.NumPlayers)
}

func TestInvalidParameter(t *testing.T) {
	srv := testServer(t)
	status, res := get(t, srv, PathMaps+"?file_min_date=last-week")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, engine.StatusError, res.Meta.Status)
	assert.Contains(t, res.Meta.Message, "file_min_date")
	assert.NotNil(t, res.Data)
}

func TestUnavailableSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("empty"), 0644))
	env := engine.NewEnv(engine.Options{SourceDir: dir})
	srv := httptest.NewServer(New(env, nil, nil))
	defer srv.Close()

	status, res := get(t, srv, PathMaps)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, engine.StatusError, res.Meta.Status)
	assert.Empty(t, res.Data)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	get(t, srv, PathMaps)

	resp, err := http.Get(srv.URL + PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `replay_queries_total{kind="maps",status="ok"} 1`))
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Post(srv.URL+PathMaps, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
