// Package engine runs the statistics queries over an opened snapshot and
// packages their results in response envelopes.
//
// Every query function takes the explicit Env holding the shared
// resources of a process: the cached snapshot handle, the bounded worker
// pool, the logger, the metrics and an optional annotation handler.
package engine

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/annotations"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

// Options configures an Env
type Options struct {
	// SourceDir is the snapshot directory
	SourceDir string
	// Workers bounds the number of aggregation queries running at once.
	// Zero means runtime.NumCPU().
	Workers int
	// Logger receives query logs; nil discards them
	Logger log.Logger
	// Registerer receives the engine metrics; nil uses a private registry
	Registerer prometheus.Registerer
	// Handler, when set, receives the annotation events of every query
	Handler annotations.Handler
	// Now overrides the clock used for query start times
	Now func() time.Time
}

// Env holds the resources shared by all queries of a process
type Env struct {
	dir     string
	pool    *Pool
	logger  log.Logger
	metrics *Metrics
	handler annotations.Handler
	now     func() time.Time

	// mu serializes loads of the snapshot handle
	mu      sync.Mutex
	current atomic.Pointer[handleRef]
}

// NewEnv creates an Env. The snapshot is opened on first use, so an Env
// can be created before its snapshot exists.
func NewEnv(opts Options) *Env {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Env{
		dir:     opts.SourceDir,
		pool:    NewPool(workers),
		logger:  logger,
		metrics: NewMetrics(reg),
		handler: opts.Handler,
		now:     now,
	}
}

// Dir returns the snapshot directory
func (e *Env) Dir() string { return e.dir }

// Pool returns the worker pool
func (e *Env) Pool() *Pool { return e.pool }

// Metrics returns the engine metrics
func (e *Env) Metrics() *Metrics { return e.metrics }

// Refresh reopens the snapshot and swaps it in for queries started
// afterwards. Running queries keep the handle they started with; the old
// handle is closed once the last of them finishes. On failure the current
// handle stays in place.
func (e *Env) Refresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load()
}

// load opens the snapshot; e.mu must be held
func (e *Env) load() error {
	h, err := snapshot.Open(e.dir)
	if err != nil {
		level.Warn(e.logger).Log("msg", "failed to open snapshot", "dir", e.dir, "err", err)
		return err
	}
	old := e.current.Swap(&handleRef{handle: h})
	if old != nil {
		old.retire()
	}
	level.Info(e.logger).Log("msg", "snapshot opened", "dir", e.dir, "format", h.Format())
	return nil
}

// acquire pins the current handle for the duration of one query
func (e *Env) acquire() (*handleRef, error) {
	for {
		ref := e.current.Load()
		if ref == nil {
			e.mu.Lock()
			var err error
			if e.current.Load() == nil {
				err = e.load()
			}
			e.mu.Unlock()
			if err != nil {
				return nil, err
			}
			continue
		}
		if ref.acquire() {
			return ref, nil
		}
	}
}

// Close retires the current handle. Queries started afterwards reopen
// the snapshot.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old := e.current.Swap(nil); old != nil {
		return old.retire()
	}
	return nil
}

// handleRef counts the queries using a handle so a retired handle is
// closed only after its last reader is done
type handleRef struct {
	handle *snapshot.Handle

	mu      sync.Mutex
	refs    int
	retired bool
}

func (r *handleRef) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	r.refs++
	return true
}

func (r *handleRef) release() {
	r.mu.Lock()
	r.refs--
	done := r.retired && r.refs == 0
	r.mu.Unlock()
	if done {
		r.handle.Close()
	}
}

func (r *handleRef) retire() error {
	r.mu.Lock()
	r.retired = true
	done := r.refs == 0
	r.mu.Unlock()
	if done {
		if err := r.handle.Close(); err != nil {
			return fmt.Errorf("%w: failed to close snapshot: %v", replay.ErrDatasetUnavailable, err)
		}
	}
	return nil
}
