package engine

import (
	"context"
	"time"

	"github.com/wbrown/janus-replay/replay/annotations"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// SnapshotMeta reports the size and age of the snapshot files. It reads
// file metadata only, never waits for a worker and never opens the
// dataset, so it answers even while every worker is busy.
func SnapshotMeta(ctx context.Context, env *Env) Envelope[snapshot.Meta] {
	return execute(ctx, env, KindSnapshotMeta, false, func(q *queryContext) ([]snapshot.Meta, error) {
		start := time.Now()
		meta, err := snapshot.Stat(env.dir)
		if err != nil {
			return nil, err
		}
		q.collector.Record(annotations.SnapshotStated, start,
			annotations.Data{"dir": env.dir, "bytes": meta.TotalByteSize})
		return []snapshot.Meta{meta}, nil
	})
}

// SnapshotSummary describes the whole analyzed collection
type SnapshotSummary struct {
	MinDate  string `json:"min_date"`
	MaxDate  string `json:"max_date"`
	NumFiles int64  `json:"num_files"`
	NumMaps  int64  `json:"num_maps"`
	// NumPlayers counts distinct (toon, canonical name) pairs
	NumPlayers int64 `json:"num_players"`
}

// Summary computes the SnapshotSummary of the current snapshot
func Summary(ctx context.Context, env *Env) Envelope[SnapshotSummary] {
	return execute(ctx, env, KindSnapshotSummary, true, func(q *queryContext) ([]SnapshotSummary, error) {
		h, err := q.snapshot()
		if err != nil {
			return nil, err
		}
		records, err := q.collect(h.Scan())
		if err != nil {
			return nil, err
		}

		base := records.Lazy()
		tables, err := q.parallel(
			base.GroupBy().Agg(
				relation.Count{As: colCount},
				relation.MinTime{Column: snapshot.ColRecordedAt, As: colFirstSeen},
				relation.MaxTime{Column: snapshot.ColRecordedAt, As: colLastSeen},
				relation.CountDistinct{Column: snapshot.ColMapTitle, As: colNumMaps},
			),
			base.Explode(snapshot.ColParticipants, playerName).
				Filter(relation.NotNull{Column: colPlayerName}).
				Select(snapshot.ColToon, colPlayerName).
				Distinct(),
		)
		if err != nil {
			return nil, err
		}

		summary := SnapshotSummary{NumPlayers: int64(tables[1].Size())}
		if totals := tables[0]; !totals.IsEmpty() {
			summary.NumFiles = intValue(totals.Value(0, colCount))
			summary.MinDate = stringValue(totals.Value(0, colFirstSeen))
			summary.MaxDate = stringValue(totals.Value(0, colLastSeen))
			summary.NumMaps = intValue(totals.Value(0, colNumMaps))
		}
		return []SnapshotSummary{summary}, nil
	})
}
