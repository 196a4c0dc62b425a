package engine

import (
	"context"

	"github.com/wbrown/janus-replay/replay/query"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// UnitSpawnEvent is where and when a unit was born
type UnitSpawnEvent struct {
	UnitTypeName string  `json:"unit_type_name"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	GameLoop     int64   `json:"game_loop"`
}

// UnitBorn lists the unit born events accepted by req, latest game loop
// first. Events of one game loop keep their recorded order.
func UnitBorn(ctx context.Context, env *Env, req query.UnitBornRequest) Envelope[UnitSpawnEvent] {
	return execute(ctx, env, KindUnitBorn, true, func(q *queryContext) ([]UnitSpawnEvent, error) {
		h, err := q.snapshot()
		if err != nil {
			return nil, err
		}

		plan := h.UnitBorn().
			FilterContainsFold(snapshot.ColContentHash, req.FileHash).
			FilterContainsFold(snapshot.ColUnitTypeName, req.UnitTypeName)
		if req.Player != nil {
			if *req.Player == "" {
				plan = plan.FilterEq(snapshot.ColPlayerName, "")
			} else {
				plan = plan.Filter(relation.EqualFold{Column: snapshot.ColPlayerName, Value: *req.Player})
			}
		}
		if req.GameLoop != nil {
			plan = plan.FilterEq(snapshot.ColGameLoop, *req.GameLoop)
		}

		events, err := q.collect(plan.
			SortDesc(snapshot.ColGameLoop).
			Limit(query.UnitBornLimit).
			Select(snapshot.ColUnitTypeName, snapshot.ColX, snapshot.ColY, snapshot.ColGameLoop))
		if err != nil {
			return nil, err
		}

		out := make([]UnitSpawnEvent, events.Size())
		for i := range out {
			t := events.Get(i)
			out[i] = UnitSpawnEvent{
				UnitTypeName: stringValue(t[0]),
				X:            floatValue(t[1]),
				Y:            floatValue(t[2]),
				GameLoop:     intValue(t[3]),
			}
		}
		return out, nil
	})
}
