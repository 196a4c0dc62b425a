// Package query defines the typed requests the engine answers and their
// decoding from URL query strings. Requests are plain values; defaults
// are resolved by the engine when the query starts.
package query

import (
	"errors"
	"time"
)

// Server side row limits. They bound response cost regardless of what a
// client asks for.
const (
	MapLimit       = 1000
	PlayerLimit    = 10000
	UnitBornLimit  = 1000
	FrequencyLimit = 1000

	// TopK is the length of top_participants and top_maps
	TopK = 5
)

// DefaultMinDate is the lower bound applied when a request has no minimum
// date. Every query kind uses the same floor.
var DefaultMinDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrInvalidParameter is wrapped by decoding failures
var ErrInvalidParameter = errors.New("invalid parameter")

// DateRange bounds recorded_at as Min <= t < Max. Zero values are unset.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// Resolve applies the defaults: DefaultMinDate for an unset minimum and
// the query start time for an unset maximum. A minimum after the maximum
// is returned as is and matches nothing.
func (r DateRange) Resolve(start time.Time) (min, max time.Time) {
	min, max = r.Min, r.Max
	if min.IsZero() {
		min = DefaultMinDate
	}
	if max.IsZero() {
		max = start
	}
	return min.UTC(), max.UTC()
}

// MapRequest filters the map statistics query
type MapRequest struct {
	// Title is a case-insensitive substring of the map title
	Title string
	// Player is a case-insensitive substring of any participant name
	Player string
	// Player1 and Player2, when both set, restrict the statistics to
	// matches where both players took part (head-to-head). Names match
	// the canonical player name exactly, ignoring case.
	Player1 string
	Player2 string
	// FileName is a case-insensitive substring of the replay file name
	FileName string
	// FileHash and RecordID match exactly
	FileHash string
	RecordID string
	Dates    DateRange
}

// PlayerRequest filters the player statistics query
type PlayerRequest struct {
	// Name filters on the canonical player name: a case-insensitive
	// substring, or a case-insensitive exact match when ExactName is set.
	// Without a name, computer players are left out.
	Name      string
	ExactName bool
	FileName  string
	FileHash  string
	RecordID  string
	Dates     DateRange
}

// UnitBornRequest filters the unit born events query
type UnitBornRequest struct {
	// FileHash is a case-insensitive substring of the content hash
	FileHash string
	// Player selects events of one player by exact name, ignoring case.
	// An empty name selects the neutral events that belong to no player;
	// nil does not filter.
	Player *string
	// UnitTypeName is a case-insensitive substring of the unit type
	UnitTypeName string
	// GameLoop, when set, selects a single game loop
	GameLoop *int64
}

// MapFrequencyRequest filters the lightweight map frequency query
type MapFrequencyRequest struct {
	Title  string
	Player string
}
