package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/relation"
)

func sampleRecords() []replay.MatchRecord {
	at := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	serral := replay.Participant{
		Toon:        replay.Toon{Region: 2, ProgramID: 1, Realm: 1, ID: 315071},
		DisplayName: "ENCE<sp/>Serral",
		Race:        replay.Zerg,
		Result:      replay.Win,
	}
	clem := replay.Participant{
		Toon:        replay.Toon{Region: 2, ProgramID: 1, Realm: 1, ID: 2048},
		DisplayName: "Clem",
		Race:        replay.Terran,
		Result:      replay.Loss,
	}
	return []replay.MatchRecord{
		{RecordID: "a1", FileName: "one.SC2Replay", ContentHash: "h1", RecordedAt: at, MapTitle: "Alpha", Participants: []replay.Participant{serral, clem}},
		{RecordID: "b2", FileName: "two.SC2Replay", ContentHash: "h2", RecordedAt: at.Add(time.Hour), MapTitle: "Beta", Participants: []replay.Participant{clem}},
		{RecordID: "c3", FileName: "three.SC2Replay", ContentHash: "h3", RecordedAt: at.Add(-time.Hour), MapTitle: "Alpha", Participants: nil},
	}
}

func expectedTuples(records []replay.MatchRecord) []relation.Tuple {
	out := make([]relation.Tuple, len(records))
	for i, r := range records {
		out[i] = recordTuple(r)
	}
	return out
}

func collectAll(t *testing.T, l *relation.Lazy) []relation.Tuple {
	t.Helper()
	rel, err := l.Collect()
	require.NoError(t, err)
	out := make([]relation.Tuple, rel.Size())
	for i := range out {
		out[i] = rel.Get(i)
	}
	return out
}

func TestOpenUnavailable(t *testing.T) {
	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, replay.ErrDatasetUnavailable)
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		_, err := Open(t.TempDir())
		assert.ErrorIs(t, err, replay.ErrDatasetUnavailable)
	})

	t.Run("NotParquet", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DetailsFile), []byte("not a parquet file"), 0644))
		_, err := Open(dir)
		assert.ErrorIs(t, err, replay.ErrDatasetUnavailable)
	})
}

func TestParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords()
	require.NoError(t, WriteParquet(dir, records))

	h, err := Open(dir)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, FormatParquet, h.Format())
	assert.Equal(t, DetailsSchema, h.Scan().Schema())
	assert.Equal(t, expectedTuples(records), collectAll(t, h.Scan()))

	// Scans are independent
	assert.Len(t, collectAll(t, h.Scan().FilterEq(ColMapTitle, "Alpha")), 2)
	assert.Len(t, collectAll(t, h.Scan()), 3)
}

func TestBadgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords()
	require.NoError(t, WriteBadger(dir, records))

	h, err := Open(dir)
	require.NoError(t, err)

	assert.Equal(t, FormatBadger, h.Format())
	assert.Equal(t, expectedTuples(records), collectAll(t, h.Scan()))

	require.NoError(t, h.Close())
	_, err = h.Scan().Collect()
	assert.ErrorIs(t, err, replay.ErrDatasetUnavailable)
}

func TestSchemaMismatch(t *testing.T) {
	t.Run("MissingColumn", func(t *testing.T) {
		type row struct {
			RecordID   string `parquet:"record_id"`
			RecordedAt int64  `parquet:"recorded_at"`
		}
		dir := t.TempDir()
		require.NoError(t, parquet.WriteFile(filepath.Join(dir, DetailsFile), []row{{"a", 1}}))
		_, err := Open(dir)
		assert.ErrorIs(t, err, replay.ErrSchemaMismatch)
	})

	t.Run("WrongType", func(t *testing.T) {
		row := toDetailsRow(sampleRecords()[0])
		type wrong struct {
			RecordID     string           `parquet:"record_id"`
			FileName     string           `parquet:"file_name"`
			ContentHash  string           `parquet:"content_hash"`
			RecordedAt   string           `parquet:"recorded_at"`
			MapTitle     string           `parquet:"map_title"`
			Participants []participantRow `parquet:"participants"`
		}
		dir := t.TempDir()
		require.NoError(t, parquet.WriteFile(filepath.Join(dir, DetailsFile), []wrong{{
			RecordID: row.RecordID, FileName: row.FileName, ContentHash: row.ContentHash,
			RecordedAt: "yesterday", MapTitle: row.MapTitle, Participants: row.Participants,
		}}))
		_, err := Open(dir)
		assert.ErrorIs(t, err, replay.ErrSchemaMismatch)
	})

	t.Run("ParticipantsNotNested", func(t *testing.T) {
		type flat struct {
			RecordID     string `parquet:"record_id"`
			FileName     string `parquet:"file_name"`
			ContentHash  string `parquet:"content_hash"`
			RecordedAt   int64  `parquet:"recorded_at"`
			MapTitle     string `parquet:"map_title"`
			Participants string `parquet:"participants"`
		}
		dir := t.TempDir()
		require.NoError(t, parquet.WriteFile(filepath.Join(dir, DetailsFile), []flat{{RecordID: "a"}}))
		_, err := Open(dir)
		assert.ErrorIs(t, err, replay.ErrSchemaMismatch)
	})

	t.Run("BadgerWithoutMarker", func(t *testing.T) {
		dir := t.TempDir()
		opts := badger.DefaultOptions(badgerPath(dir))
		opts.Logger = nil
		db, err := badger.Open(opts)
		require.NoError(t, err)
		require.NoError(t, db.Update(func(txn *badger.Txn) error {
			return txn.Set(recordKey(0), []byte(`{"record_id":"x"}`))
		}))
		require.NoError(t, db.Close())

		_, err = Open(dir)
		assert.ErrorIs(t, err, replay.ErrSchemaMismatch)
	})
}

func TestUnitBorn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteParquet(dir, sampleRecords()))

	h, err := Open(dir)
	require.NoError(t, err)
	_, err = h.UnitBorn().Collect()
	assert.ErrorIs(t, err, replay.ErrDatasetUnavailable, "events are optional until queried")

	events := []replay.UnitBornEvent{
		{ContentHash: "h1", PlayerName: "Serral", UnitTypeName: "Drone", X: 10.5, Y: 20.5, GameLoop: 0},
		{ContentHash: "h1", PlayerName: "", UnitTypeName: "MineralField", X: 1, Y: 2, GameLoop: 0},
	}
	require.NoError(t, WriteUnitBorn(dir, events))

	h, err = Open(dir)
	require.NoError(t, err)
	rows := collectAll(t, h.UnitBorn())
	assert.Equal(t, []relation.Tuple{
		{"h1", "Serral", "Drone", 10.5, 20.5, int64(0)},
		{"h1", "", "MineralField", 1.0, 2.0, int64(0)},
	}, rows)
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteParquet(dir, sampleRecords()))
	h, err := Open(dir)
	require.NoError(t, err)

	idx, err := h.Index()
	require.NoError(t, err)
	again, err := h.Index()
	require.NoError(t, err)
	assert.Same(t, idx, again, "index is built once")

	assert.Equal(t, 3, idx.Size())
	for _, id := range []string{"a1", "b2", "c3"} {
		assert.True(t, idx.MayContainRecord(id))
	}
	assert.True(t, idx.MayContainHash("h2"))
	assert.False(t, idx.MayContainRecord("does-not-exist"))
	assert.False(t, idx.MayContainHash("does-not-exist"))
}

func TestStat(t *testing.T) {
	t.Run("SingleFile", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DetailsFile), make([]byte, 1024), 0644))
		modified := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
		require.NoError(t, os.Chtimes(filepath.Join(dir, DetailsFile), modified, modified))

		meta, err := Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, int64(1024), meta.TotalByteSize)
		assert.True(t, modified.Equal(meta.LastModifiedAt))
	})

	t.Run("CountsEveryFile", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DetailsFile), make([]byte, 1000), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, UnitBornFile), make([]byte, 24), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "unrelated"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated", "x"), make([]byte, 99), 0644))

		meta, err := Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, int64(1024), meta.TotalByteSize)
	})

	t.Run("Badger", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteBadger(dir, sampleRecords()))
		meta, err := Stat(dir)
		require.NoError(t, err)
		assert.Greater(t, meta.TotalByteSize, int64(0))
		assert.False(t, meta.LastModifiedAt.IsZero())
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := Stat(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, replay.ErrDatasetUnavailable)

		_, err = Stat(t.TempDir())
		assert.ErrorIs(t, err, replay.ErrDatasetUnavailable)
	})
}

func TestBuildSyntheticSnapshot(t *testing.T) {
	for _, format := range []Format{FormatParquet, FormatBadger} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultSyntheticConfig()
			config.NumRecords = 150
			config.NumPlayers = 60
			config.UnitsPerRecord = 3
			config.Format = format
			config.OutputDir = filepath.Join(t.TempDir(), "snap")

			stats, err := BuildSyntheticSnapshot(config)
			require.NoError(t, err)
			assert.Equal(t, 150, stats.Records)
			assert.Equal(t, 450, stats.UnitEvents)
			assert.Greater(t, stats.Meta.TotalByteSize, int64(0))

			h, err := Open(config.OutputDir)
			require.NoError(t, err)
			defer h.Close()
			assert.Equal(t, format, h.Format())
			assert.Len(t, collectAll(t, h.Scan()), 150)
			assert.Len(t, collectAll(t, h.UnitBorn()), 450)
		})
	}
}

func TestGenerateRecordsIsDeterministic(t *testing.T) {
	config := DefaultSyntheticConfig()
	config.NumRecords = 50
	a := GenerateRecords(config)
	b := GenerateRecords(config)
	assert.Equal(t, a, b)

	ids := make(map[string]bool)
	for _, r := range a {
		assert.False(t, ids[r.RecordID], "record ids are unique")
		ids[r.RecordID] = true
		assert.Len(t, r.Participants, 2)
	}
}
