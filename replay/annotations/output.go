package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter writes one line per event, colored when the writer is
// a terminal
type OutputFormatter struct {
	w        io.Writer
	useColor bool
	mu       sync.Mutex
}

// NewOutputFormatter returns a formatter writing to w, or to stderr when
// w is nil
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stderr
	}
	f, ok := w.(*os.File)
	return &OutputFormatter{w: w, useColor: ok && isatty.IsTerminal(f.Fd())}
}

// Handle is a Handler printing each event as it arrives
func (f *OutputFormatter) Handle(event Event) {
	line := f.Format(event)
	if line == "" {
		return
	}
	f.mu.Lock()
	fmt.Fprintln(f.w, line)
	f.mu.Unlock()
}

// Format renders event as a single line, "" for events it does not know
func (f *OutputFormatter) Format(event Event) string {
	at := f.latency(event.Latency)
	d := event.Data

	switch event.Name {
	case QueryInvoked:
		return fmt.Sprintf("%s %s %v query %v", at, f.paint("▶", color.FgYellow), d["kind"], d["query_id"])

	case QueryComplete:
		return fmt.Sprintf("%s %s %s", at, f.paint("■", color.FgGreen), f.rows(d["rows"]))

	case ErrorQuery:
		return fmt.Sprintf("%s %s %v", at, f.paint("✗", color.FgRed), d["error"])

	case PoolAcquired:
		return fmt.Sprintf("%s worker acquired, %v in flight", at, d["in_flight"])

	case SnapshotStated:
		return fmt.Sprintf("%s stat %v: %v bytes", at, d["dir"], d["bytes"])

	case ScanOpened:
		return fmt.Sprintf("%s scan %v", at, d["source"])

	case JoinHash, JoinSemi:
		op := "⋈"
		if event.Name == JoinSemi {
			op = "⋉"
		}
		return fmt.Sprintf("%s %s %d %s %d on %v = %s", at, f.paint("join", color.FgCyan),
			toInt(d["left.size"]), op, toInt(d["right.size"]), d["keys"], f.rows(d["rows.out"]))

	case StageFilter, StageExplode, StageDerive, StageSelect, StageDistinct,
		StageGroup, StageSort, StageLimit:
		stage := fmt.Sprint(d["stage"])
		if len(stage) > 100 {
			stage = stage[:97] + "..."
		}
		return fmt.Sprintf("%s %s %s = %s", at,
			f.paint(strings.TrimPrefix(event.Name, "stage/"), color.FgBlue), stage, f.rows(d["rows.out"]))
	}
	return ""
}

// latency is green under 50ms, yellow under 200ms and red above
func (f *OutputFormatter) latency(d time.Duration) string {
	var s string
	if d < time.Millisecond {
		s = fmt.Sprintf("[%dµs]", d.Microseconds())
	} else {
		s = fmt.Sprintf("[%.1fms]", float64(d.Microseconds())/1000)
	}

	attr := color.FgGreen
	switch {
	case d >= 200*time.Millisecond:
		attr = color.FgRed
	case d >= 50*time.Millisecond:
		attr = color.FgYellow
	}
	return f.paint(s, attr)
}

func (f *OutputFormatter) rows(v interface{}) string {
	return f.paint(fmt.Sprintf("%d rows", toInt(v)), color.FgMagenta)
}

func (f *OutputFormatter) paint(s string, attr color.Attribute) string {
	if !f.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
