package engine

import (
	"time"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// Columns computed by the pipelines
const (
	colPlayerName relation.Column = "player_name"
	colClan       relation.Column = "clan"
	colOtherToon  relation.Column = "other_toon"

	colCount           relation.Column = "count"
	colFirstSeen       relation.Column = "first_seen"
	colLastSeen        relation.Column = "last_seen"
	colLatestRecordID  relation.Column = "latest_record_id"
	colTopParticipants relation.Column = "top_participants"
	colTopMaps         relation.Column = "top_maps"
	colRaceStats       relation.Column = "race_stats"
	colWins            relation.Column = "wins"
	colLosses          relation.Column = "losses"
	colUndecided       relation.Column = "undecided"
	colTies            relation.Column = "ties"
	colNumMaps         relation.Column = "num_maps"
)

var (
	// playerName is the canonical name of an exploded participant; null
	// for the neutral row of a record without participants
	playerName = relation.Derived{
		Name: colPlayerName,
		Kind: relation.KindString,
		From: snapshot.ColDisplayName,
		Fn: func(v interface{}) interface{} {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			return replay.CanonicalName(s)
		},
	}

	clanTag = relation.Derived{
		Name: colClan,
		Kind: relation.KindString,
		From: snapshot.ColDisplayName,
		Fn: func(v interface{}) interface{} {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			return replay.ClanTag(s)
		},
	}
)

// recordFilter holds the record level filters shared by the map and
// player queries
type recordFilter struct {
	FileName string
	FileHash string
	RecordID string
	Min, Max time.Time
}

// recordPlan scans the records of h accepted by f. An identifier the
// membership index has never seen yields an empty plan without touching
// the dataset.
func recordPlan(h *snapshot.Handle, f recordFilter) (*relation.Lazy, error) {
	if f.FileHash != "" || f.RecordID != "" {
		idx, err := h.Index()
		if err != nil {
			return nil, err
		}
		if (f.FileHash != "" && !idx.MayContainHash(f.FileHash)) ||
			(f.RecordID != "" && !idx.MayContainRecord(f.RecordID)) {
			return relation.New(snapshot.DetailsSchema, nil).Lazy(), nil
		}
	}

	plan := h.Scan().FilterRange(snapshot.ColRecordedAt, f.Min, f.Max)
	if f.RecordID != "" {
		plan = plan.FilterEq(snapshot.ColRecordID, f.RecordID)
	}
	if f.FileHash != "" {
		plan = plan.FilterEq(snapshot.ColContentHash, f.FileHash)
	}
	return plan.FilterContainsFold(snapshot.ColFileName, f.FileName), nil
}

// participantScope restricts records to the matches some participant
// filter accepts
type participantScope struct {
	// Player is a substring of any participant name
	Player string
	// Player1 and Player2 are exact names. With both set a match needs
	// two distinct participants, one matching each name.
	Player1 string
	Player2 string
}

func (s participantScope) empty() bool {
	return s.Player == "" && s.Player1 == "" && s.Player2 == ""
}

// restrict semi joins records with the record ids accepted by s
func (s participantScope) restrict(records *relation.Lazy) *relation.Lazy {
	exploded := records.Explode(snapshot.ColParticipants, playerName)
	out := records
	if s.Player != "" {
		ids := exploded.FilterContainsFold(colPlayerName, s.Player).Select(snapshot.ColRecordID).Distinct()
		out = out.SemiJoin(ids, snapshot.ColRecordID)
	}
	switch {
	case s.Player1 != "" && s.Player2 != "":
		out = out.SemiJoin(headToHead(exploded, s.Player1, s.Player2), snapshot.ColRecordID)
	case s.Player1 != "" || s.Player2 != "":
		name := s.Player1 + s.Player2
		ids := exploded.Filter(relation.EqualFold{Column: colPlayerName, Value: name}).
			Select(snapshot.ColRecordID).Distinct()
		out = out.SemiJoin(ids, snapshot.ColRecordID)
	}
	return out
}

// headToHead returns the distinct ids of the records where one
// participant is named p1 and a different participant is named p2
func headToHead(exploded *relation.Lazy, p1, p2 string) *relation.Lazy {
	left := exploded.
		Filter(relation.EqualFold{Column: colPlayerName, Value: p1}).
		Select(snapshot.ColRecordID, snapshot.ColToon)
	right := exploded.
		Filter(relation.EqualFold{Column: colPlayerName, Value: p2}).
		Select(snapshot.ColRecordID, snapshot.ColToon).
		Rename(snapshot.ColToon, colOtherToon)
	return left.Join(right, snapshot.ColRecordID).
		Filter(relation.Not{Pred: relation.SameValue{Left: snapshot.ColToon, Right: colOtherToon}}).
		Select(snapshot.ColRecordID).
		Distinct()
}

// scoped materializes the records accepted by the record plan and the
// participant scope
func (q *queryContext) scoped(plan *relation.Lazy, scope participantScope) (*relation.Relation, error) {
	records, err := q.collect(plan)
	if err != nil {
		return nil, err
	}
	if scope.empty() {
		return records, nil
	}
	return q.collect(scope.restrict(records.Lazy()))
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func intValue(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}

func floatValue(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// stringList converts a TopK result; nulls never occur there
func stringList(v interface{}) []string {
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
