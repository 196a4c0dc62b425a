package annotations

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	c := NewCollector(func(e Event) {
		mu.Lock()
		handled = append(handled, e.Name)
		mu.Unlock()
	})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(StageFilter, start, Data{"rows.out": i})
		}()
	}
	wg.Wait()
	c.Record(QueryComplete, start, Data{"rows": 3})

	assert.Equal(t, 10, c.Count(StageFilter))
	assert.Equal(t, 1, c.Count(QueryComplete))
	assert.Len(t, handled, 11)

	events := c.Events()
	require.Len(t, events, 11)
	assert.Equal(t, QueryComplete, events[10].Name)
	assert.GreaterOrEqual(t, events[10].Latency, time.Duration(0))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Record(QueryInvoked, time.Now(), nil)
	assert.Nil(t, c.Events())
	assert.Zero(t, c.Count(QueryInvoked))
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)

	tests := []struct {
		event Event
		want  string
	}{
		{Event{Name: QueryInvoked, Latency: 5 * time.Microsecond, Data: Data{"kind": "maps", "query_id": "q1"}},
			"[5µs] ▶ maps query q1"},
		{Event{Name: QueryComplete, Latency: 1500 * time.Microsecond, Data: Data{"rows": 4}},
			"[1.5ms] ■ 4 rows"},
		{Event{Name: JoinSemi, Latency: 2 * time.Millisecond,
			Data: Data{"left.size": 10, "right.size": 2, "keys": []string{"record_id"}, "rows.out": 3}},
			"[2.0ms] join 10 ⋉ 2 on [record_id] = 3 rows"},
		{Event{Name: StageGroup, Data: Data{"stage": "group [map_title]", "rows.out": int64(7)}},
			"[0µs] group group [map_title] = 7 rows"},
		{Event{Name: ErrorQuery, Data: Data{"error": "boom"}},
			"[0µs] ✗ boom"},
		{Event{Name: "unknown/event"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Format(tt.event), tt.event.Name)
	}

	f.Handle(tests[0].event)
	f.Handle(tests[5].event)
	assert.Equal(t, "[5µs] ▶ maps query q1\n", buf.String())
}
