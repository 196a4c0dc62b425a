// Package replay holds the domain model shared by every layer of the
// replay statistics engine: match records, their participants, the
// toon identity of a player account and the tracker events emitted
// while a match is played.
package replay

import (
	"fmt"
	"strings"
	"time"
)

// Toon is the account identity of a player. The zero value is the
// neutral sentinel used for entities that are not owned by a player.
type Toon struct {
	Region    uint8  `json:"region"`
	ProgramID uint32 `json:"program_id"`
	Realm     uint32 `json:"realm"`
	ID        uint64 `json:"id"`
}

// String returns the region/program/realm/id path of the toon
func (t Toon) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", t.Region, t.ProgramID, t.Realm, t.ID)
}

// Race played by a participant
type Race uint8

const (
	RaceUnknown Race = iota
	Terran
	Zerg
	Protoss
	Random
)

var raceNames = map[Race]string{
	RaceUnknown: "unknown",
	Terran:      "terran",
	Zerg:        "zerg",
	Protoss:     "protoss",
	Random:      "random",
}

func (r Race) String() string {
	if name, ok := raceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("race(%d)", uint8(r))
}

// ParseRace maps a race name (any case) to a Race. Unknown names map to RaceUnknown.
func ParseRace(s string) Race {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range raceNames {
		if name == s {
			return r
		}
	}
	return RaceUnknown
}

// MarshalText renders the race name on the wire
func (r Race) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts the race name
func (r *Race) UnmarshalText(b []byte) error {
	*r = ParseRace(string(b))
	return nil
}

// Result of a match from the point of view of one participant
type Result uint8

const (
	Undecided Result = iota
	Win
	Loss
	Tie
)

var resultNames = map[Result]string{
	Undecided: "undecided",
	Win:       "win",
	Loss:      "loss",
	Tie:       "tie",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("result(%d)", uint8(r))
}

// ParseResult maps a result name (any case) to a Result, defaulting to Undecided.
func ParseResult(s string) Result {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range resultNames {
		if name == s {
			return r
		}
	}
	return Undecided
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Result) UnmarshalText(b []byte) error {
	*r = ParseResult(string(b))
	return nil
}

// Participant is one player slot of a match.
type Participant struct {
	Toon        Toon   `json:"toon"`
	DisplayName string `json:"name"`
	Race        Race   `json:"race"`
	Result      Result `json:"result"`
}

// Name returns the canonical player name (clan tag stripped)
func (p Participant) Name() string {
	return CanonicalName(p.DisplayName)
}

// MatchRecord is the analyzed metadata of one replay file. Records are
// produced by the replay decoder and are never mutated by the engine.
type MatchRecord struct {
	RecordID     string        `json:"record_id"`
	FileName     string        `json:"file_name"`
	ContentHash  string        `json:"content_hash"`
	RecordedAt   time.Time     `json:"recorded_at"`
	MapTitle     string        `json:"map_title"`
	Participants []Participant `json:"participants"`
}

// UnitBornEvent is a tracker event recording where and when a unit
// was spawned. Neutral units carry an empty PlayerName.
type UnitBornEvent struct {
	ContentHash  string  `json:"content_hash"`
	PlayerName   string  `json:"player_name"`
	UnitTypeName string  `json:"unit_type_name"`
	X            float32 `json:"x"`
	Y            float32 `json:"y"`
	GameLoop     int64   `json:"game_loop"`
}
