package snapshot

import (
	"time"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/relation"
)

// File names inside a snapshot directory
const (
	DetailsFile  = "details.parquet"
	DetailsStore = "details.badger"
	UnitBornFile = "unit_born.parquet"
)

// Columns of the match details relation returned by Handle.Scan
const (
	ColRecordID     relation.Column = "record_id"
	ColFileName     relation.Column = "file_name"
	ColContentHash  relation.Column = "content_hash"
	ColRecordedAt   relation.Column = "recorded_at"
	ColMapTitle     relation.Column = "map_title"
	ColParticipants relation.Column = "participants"

	// Nested participant fields, top level once participants are exploded
	ColToon        relation.Column = "toon"
	ColDisplayName relation.Column = "display_name"
	ColRace        relation.Column = "race"
	ColResult      relation.Column = "result"
)

// Columns of the unit born relation returned by Handle.UnitBorn
const (
	ColPlayerName   relation.Column = "player_name"
	ColUnitTypeName relation.Column = "unit_type_name"
	ColX            relation.Column = "x"
	ColY            relation.Column = "y"
	ColGameLoop     relation.Column = "game_loop"
)

// ParticipantFields is the element layout of the participants column
var ParticipantFields = []relation.Field{
	{Name: ColToon, Kind: relation.KindToon},
	{Name: ColDisplayName, Kind: relation.KindString},
	{Name: ColRace, Kind: relation.KindString},
	{Name: ColResult, Kind: relation.KindString},
}

// DetailsSchema is the schema of Handle.Scan
var DetailsSchema = relation.Schema{
	{Name: ColRecordID, Kind: relation.KindString},
	{Name: ColFileName, Kind: relation.KindString},
	{Name: ColContentHash, Kind: relation.KindString},
	{Name: ColRecordedAt, Kind: relation.KindTime},
	{Name: ColMapTitle, Kind: relation.KindString},
	{Name: ColParticipants, Kind: relation.KindStructList, Fields: ParticipantFields},
}

// UnitBornSchema is the schema of Handle.UnitBorn
var UnitBornSchema = relation.Schema{
	{Name: ColContentHash, Kind: relation.KindString},
	{Name: ColPlayerName, Kind: relation.KindString},
	{Name: ColUnitTypeName, Kind: relation.KindString},
	{Name: ColX, Kind: relation.KindFloat},
	{Name: ColY, Kind: relation.KindFloat},
	{Name: ColGameLoop, Kind: relation.KindInt},
}

// detailsRow is the on-disk layout of one match record.
// recorded_at holds unix milliseconds.
type detailsRow struct {
	RecordID     string           `parquet:"record_id"`
	FileName     string           `parquet:"file_name"`
	ContentHash  string           `parquet:"content_hash"`
	RecordedAt   int64            `parquet:"recorded_at"`
	MapTitle     string           `parquet:"map_title"`
	Participants []participantRow `parquet:"participants"`
}

type participantRow struct {
	ToonRegion    int32  `parquet:"toon_region"`
	ToonProgramID int64  `parquet:"toon_program_id"`
	ToonRealm     int64  `parquet:"toon_realm"`
	ToonID        int64  `parquet:"toon_id"`
	Name          string `parquet:"name"`
	Race          string `parquet:"race"`
	Result        string `parquet:"result"`
}

type unitBornRow struct {
	ContentHash  string  `parquet:"content_hash"`
	PlayerName   string  `parquet:"player_name"`
	UnitTypeName string  `parquet:"unit_type_name"`
	X            float32 `parquet:"x"`
	Y            float32 `parquet:"y"`
	GameLoop     int64   `parquet:"game_loop"`
}

func toDetailsRow(r replay.MatchRecord) detailsRow {
	row := detailsRow{
		RecordID:     r.RecordID,
		FileName:     r.FileName,
		ContentHash:  r.ContentHash,
		RecordedAt:   r.RecordedAt.UnixMilli(),
		MapTitle:     r.MapTitle,
		Participants: make([]participantRow, len(r.Participants)),
	}
	for i, p := range r.Participants {
		row.Participants[i] = participantRow{
			ToonRegion:    int32(p.Toon.Region),
			ToonProgramID: int64(p.Toon.ProgramID),
			ToonRealm:     int64(p.Toon.Realm),
			ToonID:        int64(p.Toon.ID),
			Name:          p.DisplayName,
			Race:          p.Race.String(),
			Result:        p.Result.String(),
		}
	}
	return row
}

// recordTuple lays a record out in DetailsSchema order
func recordTuple(r replay.MatchRecord) relation.Tuple {
	participants := make([]relation.Tuple, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = relation.Tuple{p.Toon, p.DisplayName, p.Race.String(), p.Result.String()}
	}
	return relation.Tuple{
		r.RecordID,
		r.FileName,
		r.ContentHash,
		r.RecordedAt.UTC(),
		r.MapTitle,
		participants,
	}
}

func (row *detailsRow) tuple() relation.Tuple {
	participants := make([]relation.Tuple, len(row.Participants))
	for i, p := range row.Participants {
		toon := replay.Toon{
			Region:    uint8(p.ToonRegion),
			ProgramID: uint32(p.ToonProgramID),
			Realm:     uint32(p.ToonRealm),
			ID:        uint64(p.ToonID),
		}
		participants[i] = relation.Tuple{toon, p.Name, p.Race, p.Result}
	}
	return relation.Tuple{
		row.RecordID,
		row.FileName,
		row.ContentHash,
		time.UnixMilli(row.RecordedAt).UTC(),
		row.MapTitle,
		participants,
	}
}

func toUnitBornRow(e replay.UnitBornEvent) unitBornRow {
	return unitBornRow(e)
}

func (row *unitBornRow) tuple() relation.Tuple {
	return relation.Tuple{
		row.ContentHash,
		row.PlayerName,
		row.UnitTypeName,
		float64(row.X),
		float64(row.Y),
		row.GameLoop,
	}
}
