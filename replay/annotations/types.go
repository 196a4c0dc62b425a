// Package annotations records timing events while a query runs: when it
// was invoked, how long it waited for a worker, how many rows each stage
// produced. Events go to an optional Handler as they happen and are kept
// for later inspection.
package annotations

import (
	"sync"
	"time"
)

// Event names, grouped by prefix
const (
	QueryInvoked   = "query/invoked"
	QueryComplete  = "query/completed"
	PoolAcquired   = "pool/acquired"
	SnapshotStated = "snapshot/stated"

	// Stage events fire when the stage's output is exhausted
	ScanOpened    = "scan/opened"
	StageFilter   = "stage/filter"
	StageExplode  = "stage/explode"
	StageDerive   = "stage/derive"
	StageSelect   = "stage/select"
	StageDistinct = "stage/distinct"
	StageGroup    = "stage/group"
	StageSort     = "stage/sort"
	StageLimit    = "stage/limit"

	JoinHash = "join/hash"
	JoinSemi = "join/semi"

	ErrorQuery = "error/query"
)

// Data carries the event specific attributes
type Data map[string]interface{}

// Event is one timed step of a query. Latency is measured from the
// start of the query, not from the previous event.
type Event struct {
	Name    string
	Start   time.Time
	Latency time.Duration
	Data    Data
}

// Handler receives events as they are recorded. It may be called from
// several goroutines at once.
type Handler func(event Event)

// Collector keeps the events of one query. A nil *Collector is valid and
// records nothing.
type Collector struct {
	handler Handler

	mu     sync.Mutex
	events []Event
}

// NewCollector returns a collector forwarding to handler, which may be nil
func NewCollector(handler Handler) *Collector {
	return &Collector{handler: handler, events: make([]Event, 0, 32)}
}

// Record adds an event that began at start and ends now
func (c *Collector) Record(name string, start time.Time, data Data) {
	if c == nil {
		return
	}
	ev := Event{Name: name, Start: start, Latency: time.Since(start), Data: data}

	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()

	if c.handler != nil {
		c.handler(ev)
	}
}

// Events returns a copy of the recorded events in recording order
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Count returns how many events named name were recorded
func (c *Collector) Count(name string) int {
	n := 0
	for _, ev := range c.Events() {
		if ev.Name == name {
			n++
		}
	}
	return n
}
