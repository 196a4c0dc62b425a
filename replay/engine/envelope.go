package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// QueryKind names a query for logs, metrics and annotations
type QueryKind string

const (
	KindMaps            QueryKind = "maps"
	KindPlayers         QueryKind = "players"
	KindUnitBorn        QueryKind = "unit_born"
	KindMapFrequency    QueryKind = "map_frequency"
	KindSnapshotMeta    QueryKind = "snapshot_meta"
	KindSnapshotSummary QueryKind = "snapshot_summary"
)

// Envelope statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Meta describes how a query went
type Meta struct {
	Status string `json:"status"`
	// Total is always len(Data)
	Total int `json:"total"`
	// SnapshotEpoch is the wall clock at query start, in unix milliseconds
	SnapshotEpoch int64  `json:"snapshot_epoch"`
	DurationMs    int64  `json:"duration_ms"`
	QueryID       string `json:"query_id"`
	Message       string `json:"message"`
}

// Envelope is the response of every query. A failed query carries an
// empty, non-nil Data and the error text in Meta.Message.
type Envelope[T any] struct {
	Meta Meta `json:"meta"`
	Data []T  `json:"data"`

	err error
}

// Err returns the failure of the query, nil when Meta.Status is ok
func (e Envelope[T]) Err() error { return e.err }

// queryContext is the per-query state handed to a pipeline
type queryContext struct {
	env       *Env
	kind      QueryKind
	id        string
	start     time.Time
	collector *annotations.Collector
	ref       *handleRef
}

// snapshot pins the current handle for the rest of the query
func (q *queryContext) snapshot() (*snapshot.Handle, error) {
	if q.ref == nil {
		ref, err := q.env.acquire()
		if err != nil {
			return nil, err
		}
		q.ref = ref
	}
	return q.ref.handle, nil
}

func (q *queryContext) release() {
	if q.ref != nil {
		q.ref.release()
		q.ref = nil
	}
}

func (q *queryContext) collect(plan *relation.Lazy) (*relation.Relation, error) {
	return plan.CollectWith(q.collector)
}

// parallel collects independent plans concurrently. The plans usually
// share one materialized input, which is never written to.
func (q *queryContext) parallel(plans ...*relation.Lazy) ([]*relation.Relation, error) {
	out := make([]*relation.Relation, len(plans))
	var g errgroup.Group
	for i, plan := range plans {
		g.Go(func() (err error) {
			defer recoverInto(&err, q.kind)
			out[i], err = q.collect(plan)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func recoverInto(err *error, kind QueryKind) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: panic in %s query: %v", replay.ErrQueryExecution, kind, r)
	}
}

// execute runs one pipeline and wraps its result. Pooled pipelines wait
// for a worker first.
func execute[T any](ctx context.Context, env *Env, kind QueryKind, pooled bool,
	pipeline func(q *queryContext) ([]T, error)) Envelope[T] {

	q := &queryContext{env: env, kind: kind, id: uuid.NewString(), start: env.now()}
	if env.handler != nil {
		q.collector = annotations.NewCollector(env.handler)
	}
	q.collector.Record(annotations.QueryInvoked, q.start, annotations.Data{"kind": string(kind), "query_id": q.id})

	rows, err := run(ctx, q, pooled, pipeline)

	elapsed := env.now().Sub(q.start)
	meta := Meta{
		Status:        StatusOK,
		Total:         len(rows),
		SnapshotEpoch: q.start.UnixMilli(),
		DurationMs:    elapsed.Milliseconds(),
		QueryID:       q.id,
	}

	if err != nil {
		meta.Status = StatusError
		meta.Total = 0
		meta.Message = err.Error()
		env.metrics.observe(kind, StatusError, elapsed)
		level.Error(env.logger).Log("msg", "query failed", "kind", kind, "query_id", q.id,
			"error_kind", replay.KindName(err), "elapsed", elapsed, "err", err)
		q.collector.Record(annotations.ErrorQuery, q.start, annotations.Data{"error": err.Error()})
		return Envelope[T]{Meta: meta, Data: []T{}, err: err}
	}

	if rows == nil {
		rows = []T{}
	}
	env.metrics.observe(kind, StatusOK, elapsed)
	level.Debug(env.logger).Log("msg", "query completed", "kind", kind, "query_id", q.id,
		"rows", len(rows), "elapsed", elapsed)
	q.collector.Record(annotations.QueryComplete, q.start, annotations.Data{"rows": len(rows)})
	return Envelope[T]{Meta: meta, Data: rows}
}

func run[T any](ctx context.Context, q *queryContext, pooled bool,
	pipeline func(q *queryContext) ([]T, error)) (rows []T, err error) {

	if pooled {
		release, err := q.env.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
		q.env.metrics.InFlight.Inc()
		defer q.env.metrics.InFlight.Dec()
		q.collector.Record(annotations.PoolAcquired, q.start, annotations.Data{"in_flight": q.env.pool.InFlight()})
	}
	defer q.release()
	defer recoverInto(&err, q.kind)

	return pipeline(q)
}

// Reject answers a request that could not be turned into a query, so it
// is logged, counted and packaged like any other failure
func Reject[T any](ctx context.Context, env *Env, kind QueryKind, err error) Envelope[T] {
	return execute(ctx, env, kind, false, func(*queryContext) ([]T, error) {
		return nil, err
	})
}
