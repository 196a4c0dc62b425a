package engine

import (
	"context"

	"github.com/wbrown/janus-replay/replay/query"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// MapStats is the activity on one map title
type MapStats struct {
	Title          string `json:"title"`
	Count          int64  `json:"count"`
	FirstSeen      string `json:"first_seen"`
	LastSeen       string `json:"last_seen"`
	LatestRecordID string `json:"latest_record_id"`
	// TopParticipants are the most frequent canonical player names
	TopParticipants []string `json:"top_participants"`
}

// Maps returns per map statistics for the records accepted by req, most
// played first
func Maps(ctx context.Context, env *Env, req query.MapRequest) Envelope[MapStats] {
	return execute(ctx, env, KindMaps, true, func(q *queryContext) ([]MapStats, error) {
		return mapStats(q, req)
	})
}

func mapStats(q *queryContext, req query.MapRequest) ([]MapStats, error) {
	h, err := q.snapshot()
	if err != nil {
		return nil, err
	}
	min, max := req.Dates.Resolve(q.start)
	plan, err := recordPlan(h, recordFilter{
		FileName: req.FileName,
		FileHash: req.FileHash,
		RecordID: req.RecordID,
		Min:      min,
		Max:      max,
	})
	if err != nil {
		return nil, err
	}
	plan = plan.FilterContainsFold(snapshot.ColMapTitle, req.Title)

	records, err := q.scoped(plan, participantScope{
		Player:  req.Player,
		Player1: req.Player1,
		Player2: req.Player2,
	})
	if err != nil {
		return nil, err
	}

	base := records.Lazy()
	tables, err := q.parallel(
		base.GroupBy(snapshot.ColMapTitle).Agg(
			relation.Count{As: colCount},
			relation.MinTime{Column: snapshot.ColRecordedAt, As: colFirstSeen},
			relation.MaxTime{Column: snapshot.ColRecordedAt, As: colLastSeen},
		),
		base.GroupBy(snapshot.ColMapTitle).Agg(
			relation.Last{Column: snapshot.ColRecordID, By: snapshot.ColRecordedAt, As: colLatestRecordID},
		),
		base.Explode(snapshot.ColParticipants, playerName).
			GroupBy(snapshot.ColMapTitle).
			Agg(relation.TopK{Column: colPlayerName, K: query.TopK, As: colTopParticipants}),
	)
	if err != nil {
		return nil, err
	}

	stats, err := q.collect(tables[0].Lazy().
		Join(tables[1].Lazy(), snapshot.ColMapTitle).
		Join(tables[2].Lazy(), snapshot.ColMapTitle).
		SortDesc(colCount, snapshot.ColMapTitle).
		Limit(query.MapLimit))
	if err != nil {
		return nil, err
	}

	out := make([]MapStats, stats.Size())
	for i := range out {
		out[i] = MapStats{
			Title:           stringValue(stats.Value(i, snapshot.ColMapTitle)),
			Count:           intValue(stats.Value(i, colCount)),
			FirstSeen:       stringValue(stats.Value(i, colFirstSeen)),
			LastSeen:        stringValue(stats.Value(i, colLastSeen)),
			LatestRecordID:  stringValue(stats.Value(i, colLatestRecordID)),
			TopParticipants: stringList(stats.Value(i, colTopParticipants)),
		}
	}
	return out, nil
}

// MapFrequency is how often a map title was played
type MapFrequency struct {
	Title string `json:"title"`
	Count int64  `json:"count"`
}

// MapFrequencies counts the records per map title, without date limits
// or enrichment
func MapFrequencies(ctx context.Context, env *Env, req query.MapFrequencyRequest) Envelope[MapFrequency] {
	return execute(ctx, env, KindMapFrequency, true, func(q *queryContext) ([]MapFrequency, error) {
		h, err := q.snapshot()
		if err != nil {
			return nil, err
		}
		records, err := q.scoped(
			h.Scan().FilterContainsFold(snapshot.ColMapTitle, req.Title),
			participantScope{Player: req.Player},
		)
		if err != nil {
			return nil, err
		}
		counts, err := q.collect(records.Lazy().
			GroupBy(snapshot.ColMapTitle).
			Agg(relation.Count{As: colCount}).
			SortDesc(colCount, snapshot.ColMapTitle).
			Limit(query.FrequencyLimit))
		if err != nil {
			return nil, err
		}
		out := make([]MapFrequency, counts.Size())
		for i := range out {
			out[i] = MapFrequency{
				Title: stringValue(counts.Value(i, snapshot.ColMapTitle)),
				Count: intValue(counts.Value(i, colCount)),
			}
		}
		return out, nil
	})
}
