package engine

import (
	"context"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/query"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// PlayerStats is the activity of one player account under one canonical
// name
type PlayerStats struct {
	Toon replay.Toon `json:"toon"`
	// Clan is the clan tag of the latest match, "" when it had none
	Clan           string      `json:"clan"`
	Name           string      `json:"player_name"`
	Count          int64       `json:"count"`
	FirstSeen      string      `json:"first_seen"`
	LastSeen       string      `json:"last_seen"`
	LatestRecordID string      `json:"latest_record_id"`
	TopMaps        []string    `json:"top_maps"`
	RaceStats      []RaceStats `json:"race_stats"`
}

// RaceStats are the results of one player with one race
type RaceStats struct {
	Race      string `json:"race"`
	Count     int64  `json:"count"`
	Wins      int64  `json:"wins"`
	Losses    int64  `json:"losses"`
	Undecided int64  `json:"undecided"`
	Ties      int64  `json:"ties"`
}

var playerKey = []relation.Column{snapshot.ColToon, colPlayerName}

// Players returns per player statistics for the records accepted by req,
// most active first
func Players(ctx context.Context, env *Env, req query.PlayerRequest) Envelope[PlayerStats] {
	return execute(ctx, env, KindPlayers, true, func(q *queryContext) ([]PlayerStats, error) {
		return playerStats(q, req)
	})
}

// nameFilter selects the participant rows a player query aggregates.
// Without a name, computer players and neutral rows are left out.
func nameFilter(req query.PlayerRequest) relation.Predicate {
	switch {
	case req.Name == "":
		return relation.And{
			relation.NotNull{Column: colPlayerName},
			relation.Not{Pred: relation.Contains{Column: colPlayerName, Substring: replay.AutomatedMarker}},
		}
	case req.ExactName:
		return relation.EqualFold{Column: colPlayerName, Value: req.Name}
	default:
		return relation.ContainsFold{Column: colPlayerName, Substring: req.Name}
	}
}

func playerStats(q *queryContext, req query.PlayerRequest) ([]PlayerStats, error) {
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

	rows, err := q.collect(plan.
		Explode(snapshot.ColParticipants, playerName).
		Filter(nameFilter(req)).
		WithColumns(clanTag))
	if err != nil {
		return nil, err
	}

	base := rows.Lazy()
	tables, err := q.parallel(
		base.GroupBy(playerKey...).Agg(
			relation.Count{As: colCount},
			relation.MinTime{Column: snapshot.ColRecordedAt, As: colFirstSeen},
			relation.MaxTime{Column: snapshot.ColRecordedAt, As: colLastSeen},
		),
		base.GroupBy(playerKey...).Agg(
			relation.Last{Column: snapshot.ColRecordID, By: snapshot.ColRecordedAt, As: colLatestRecordID},
			relation.Last{Column: colClan, By: snapshot.ColRecordedAt, As: colClan},
		),
		base.GroupBy(playerKey...).Agg(
			relation.TopK{Column: snapshot.ColMapTitle, K: query.TopK, As: colTopMaps},
		),
		raceStatsPlan(base),
	)
	if err != nil {
		return nil, err
	}

	stats, err := q.collect(tables[0].Lazy().
		Join(tables[1].Lazy(), playerKey...).
		Join(tables[2].Lazy(), playerKey...).
		Join(tables[3].Lazy(), playerKey...).
		SortDesc(colCount, colPlayerName, snapshot.ColToon).
		Limit(query.PlayerLimit))
	if err != nil {
		return nil, err
	}

	out := make([]PlayerStats, stats.Size())
	for i := range out {
		toon, _ := stats.Value(i, snapshot.ColToon).(replay.Toon)
		out[i] = PlayerStats{
			Toon:           toon,
			Clan:           stringValue(stats.Value(i, colClan)),
			Name:           stringValue(stats.Value(i, colPlayerName)),
			Count:          intValue(stats.Value(i, colCount)),
			FirstSeen:      stringValue(stats.Value(i, colFirstSeen)),
			LastSeen:       stringValue(stats.Value(i, colLastSeen)),
			LatestRecordID: stringValue(stats.Value(i, colLatestRecordID)),
			TopMaps:        stringList(stats.Value(i, colTopMaps)),
			RaceStats:      raceStats(stats.Value(i, colRaceStats)),
		}
	}
	return out, nil
}

// raceStatsPlan counts results per player and race, then nests the race
// rows under the player, most played race first
func raceStatsPlan(base *relation.Lazy) *relation.Lazy {
	result := func(r replay.Result, as relation.Column) relation.Aggregate {
		return relation.CountIf{Column: snapshot.ColResult, Value: r.String(), As: as}
	}
	return base.
		GroupBy(snapshot.ColToon, colPlayerName, snapshot.ColRace).
		Agg(
			relation.Count{As: colCount},
			result(replay.Win, colWins),
			result(replay.Loss, colLosses),
			result(replay.Undecided, colUndecided),
			result(replay.Tie, colTies),
		).
		SortDesc(colCount, snapshot.ColRace).
		GroupBy(playerKey...).
		Agg(relation.Collect{
			Columns: []relation.Column{snapshot.ColRace, colCount, colWins, colLosses, colUndecided, colTies},
			As:      colRaceStats,
		})
}

func raceStats(v interface{}) []RaceStats {
	rows, _ := v.([]relation.Tuple)
	out := make([]RaceStats, len(rows))
	for i, r := range rows {
		out[i] = RaceStats{
			Race:      stringValue(r[0]),
			Count:     intValue(r[1]),
			Wins:      intValue(r[2]),
			Losses:    intValue(r[3]),
			Undecided: intValue(r[4]),
			Ties:      intValue(r[5]),
		}
	}
	return out
}
