package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/wbrown/janus-replay/replay"
)

// SyntheticConfig specifies what kind of synthetic snapshot to build
type SyntheticConfig struct {
	NumRecords      int       // Number of match records
	NumPlayers      int       // Size of the player pool
	NumMaps         int       // Number of distinct map titles
	PlayersPerMatch int       // Participants per match (2 = 1v1)
	UnitsPerRecord  int       // Unit born events per record, 0 skips unit_born.parquet
	Format          Format    // Storage format of the details dataset
	OutputDir       string    // Snapshot directory
	StartDate       time.Time // Timestamp of the first record
	Seed            int64     // Random seed, equal seeds build equal snapshots
}

// DefaultSyntheticConfig returns a small snapshot for demos and tests
// Size: 2,000 1v1 matches over 200 players and 12 maps
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumRecords:      2000,
		NumPlayers:      200,
		NumMaps:         12,
		PlayersPerMatch: 2,
		UnitsPerRecord:  20,
		Format:          FormatParquet,
		OutputDir:       "testdata/snapshot_small",
		StartDate:       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:            1,
	}
}

// LargeSyntheticConfig returns a snapshot sized for profiling the engine
// Size: 300,000 matches, mixed team sizes, ~1.2M exploded participant rows
func LargeSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumRecords:      300000,
		NumPlayers:      20000,
		NumMaps:         15,
		PlayersPerMatch: 4,
		UnitsPerRecord:  0,
		Format:          FormatParquet,
		OutputDir:       "testdata/snapshot_large",
		StartDate:       time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:            1,
	}
}

// BuildStats summarizes a built snapshot
type BuildStats struct {
	Records    int
	UnitEvents int
	Meta       Meta
}

// BuildSyntheticSnapshot generates records for config and writes them to
// config.OutputDir, replacing any previous snapshot there
func BuildSyntheticSnapshot(config SyntheticConfig) (BuildStats, error) {
	if err := os.RemoveAll(config.OutputDir); err != nil && !os.IsNotExist(err) {
		return BuildStats{}, fmt.Errorf("failed to remove existing snapshot: %w", err)
	}
	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return BuildStats{}, fmt.Errorf("failed to create directory: %w", err)
	}

	records := GenerateRecords(config)
	switch config.Format {
	case FormatBadger:
		if err := WriteBadger(config.OutputDir, records); err != nil {
			return BuildStats{}, err
		}
	default:
		if err := WriteParquet(config.OutputDir, records); err != nil {
			return BuildStats{}, err
		}
	}

	stats := BuildStats{Records: len(records)}
	if config.UnitsPerRecord > 0 {
		events := GenerateUnitBorn(config, records)
		if err := WriteUnitBorn(config.OutputDir, events); err != nil {
			return BuildStats{}, err
		}
		stats.UnitEvents = len(events)
	}

	meta, err := Stat(config.OutputDir)
	if err != nil {
		return BuildStats{}, err
	}
	stats.Meta = meta
	return stats, nil
}

var (
	mapNames = []string{
		"Alcyone", "Amphion", "Crimson Court", "Dynasty", "Ghost River",
		"Goldenaura", "Oceanborn", "Post-Youth", "Site Delta", "Solaris",
		"Abyssal Reef", "Equilibrium", "Ley Lines", "Pylon", "Hard Lead",
	}
	clanTags = []string{"", "", "", "TL", "ROOT", "DPG", "ONSYDE"}
	races    = []replay.Race{replay.Terran, replay.Zerg, replay.Protoss, replay.Random}
	units    = []string{"SCV", "Probe", "Drone", "Marine", "Zergling", "Stalker", "Overlord", "Larva"}
)

type syntheticPlayer struct {
	toon    replay.Toon
	display string
	race    replay.Race
}

func syntheticPlayers(config SyntheticConfig, rng *rand.Rand) []syntheticPlayer {
	players := make([]syntheticPlayer, config.NumPlayers)
	for i := range players {
		name := fmt.Sprintf("Player%04d", i)
		// every 50th account is a computer opponent
		if i%50 == 49 {
			name = fmt.Sprintf("A.I %d (Harder)", i/50+1)
		} else if tag := clanTags[rng.Intn(len(clanTags))]; tag != "" {
			name = tag + replay.ClanDelimiter + name
		}
		players[i] = syntheticPlayer{
			toon: replay.Toon{
				Region:    uint8(1 + i%3),
				ProgramID: 1,
				Realm:     1,
				ID:        uint64(100000 + i),
			},
			display: name,
			race:    races[rng.Intn(len(races))],
		}
	}
	return players
}

// GenerateRecords creates config.NumRecords match records. Records are
// spaced roughly half an hour apart with jitter, so recorded_at is
// mostly but not strictly increasing.
func GenerateRecords(config SyntheticConfig) []replay.MatchRecord {
	rng := rand.New(rand.NewSource(config.Seed))
	players := syntheticPlayers(config, rng)
	numMaps := config.NumMaps
	if numMaps > len(mapNames) {
		numMaps = len(mapNames)
	}
	if numMaps < 1 {
		numMaps = 1
	}

	records := make([]replay.MatchRecord, config.NumRecords)
	for i := range records {
		hash := sha256.Sum256([]byte(fmt.Sprintf("%d/%d", config.Seed, i)))
		id := hex.EncodeToString(hash[:])
		at := config.StartDate.Add(time.Duration(i)*30*time.Minute +
			time.Duration(rng.Intn(120)-60)*time.Minute)

		size := config.PlayersPerMatch
		if size > 2 && rng.Intn(3) == 0 {
			size = 2
		}
		seen := make(map[int]bool, size)
		participants := make([]replay.Participant, 0, size)
		winner := rng.Intn(2)
		for len(participants) < size && len(seen) < len(players) {
			p := rng.Intn(len(players))
			if seen[p] {
				continue
			}
			seen[p] = true
			result := replay.Loss
			if len(participants)%2 == winner {
				result = replay.Win
			}
			if rng.Intn(40) == 0 {
				result = replay.Undecided
			}
			participants = append(participants, replay.Participant{
				Toon:        players[p].toon,
				DisplayName: players[p].display,
				Race:        players[p].race,
				Result:      result,
			})
		}

		records[i] = replay.MatchRecord{
			RecordID:     id,
			FileName:     fmt.Sprintf("replays/%s/%06d.SC2Replay", at.Format("2006-01"), i),
			ContentHash:  id,
			RecordedAt:   at,
			MapTitle:     mapNames[rng.Intn(numMaps)] + " LE",
			Participants: participants,
		}
	}
	return records
}

// GenerateUnitBorn creates config.UnitsPerRecord unit born events per
// record. One in ten events belongs to no player.
func GenerateUnitBorn(config SyntheticConfig, records []replay.MatchRecord) []replay.UnitBornEvent {
	rng := rand.New(rand.NewSource(config.Seed + 1))
	events := make([]replay.UnitBornEvent, 0, len(records)*config.UnitsPerRecord)
	for _, r := range records {
		for j := 0; j < config.UnitsPerRecord; j++ {
			player := ""
			if len(r.Participants) > 0 && rng.Intn(10) != 0 {
				player = r.Participants[rng.Intn(len(r.Participants))].Name()
			}
			events = append(events, replay.UnitBornEvent{
				ContentHash:  r.ContentHash,
				PlayerName:   player,
				UnitTypeName: units[rng.Intn(len(units))],
				X:            float32(rng.Intn(200)) + 0.5,
				Y:            float32(rng.Intn(200)) + 0.5,
				GameLoop:     int64(j * 224),
			})
		}
	}
	return events
}
