package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wbrown/janus-replay/replay"
)

// Query string parameter names
const (
	ParamTitle        = "title"
	ParamPlayer       = "player"
	ParamPlayer1      = "player_1"
	ParamPlayer2      = "player_2"
	ParamName         = "name"
	ParamExactName    = "exact_name"
	ParamFileName     = "file_name"
	ParamFileHash     = "file_hash"
	ParamRecordID     = "record_id"
	ParamMinDate      = "file_min_date"
	ParamMaxDate      = "file_max_date"
	ParamUnitTypeName = "unit_type_name"
	ParamGameLoop     = "game_loop"
)

const dateLayout = "2006-01-02"

func invalid(param, value string, err error) error {
	return fmt.Errorf("%w: %w: %s=%q: %v", replay.ErrQueryExecution, ErrInvalidParameter, param, value, err)
}

// text returns the trimmed value of param. url.Values are already
// unescaped once; a value that still carries escapes from a client that
// encoded it twice is unescaped again.
func text(v url.Values, param string) string {
	s := strings.TrimSpace(v.Get(param))
	if strings.Contains(s, "%") {
		if u, err := url.QueryUnescape(s); err == nil {
			s = u
		}
	}
	return s
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare date used as a maximum
// covers the whole day.
func parseDate(v url.Values, param string, endOfDay bool) (time.Time, error) {
	s := text(v, param)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalid(param, s, err)
	}
	return t.UTC(), nil
}

func parseDates(v url.Values) (DateRange, error) {
	min, err := parseDate(v, ParamMinDate, false)
	if err != nil {
		return DateRange{}, err
	}
	max, err := parseDate(v, ParamMaxDate, true)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Min: min, Max: max}, nil
}

// MapRequestFromValues decodes a map statistics request
func MapRequestFromValues(v url.Values) (MapRequest, error) {
	dates, err := parseDates(v)
	if err != nil {
		return MapRequest{}, err
	}
	return MapRequest{
		Title:    text(v, ParamTitle),
		Player:   text(v, ParamPlayer),
		Player1:  text(v, ParamPlayer1),
		Player2:  text(v, ParamPlayer2),
		FileName: text(v, ParamFileName),
		FileHash: text(v, ParamFileHash),
		RecordID: text(v, ParamRecordID),
		Dates:    dates,
	}, nil
}

// PlayerRequestFromValues decodes a player statistics request
func PlayerRequestFromValues(v url.Values) (PlayerRequest, error) {
	dates, err := parseDates(v)
	if err != nil {
		return PlayerRequest{}, err
	}
	exact := false
	if s := text(v, ParamExactName); s != "" {
		exact, err = strconv.ParseBool(s)
		if err != nil {
			return PlayerRequest{}, invalid(ParamExactName, s, err)
		}
	}
	return PlayerRequest{
		Name:      text(v, ParamName),
		ExactName: exact,
		FileName:  text(v, ParamFileName),
		FileHash:  text(v, ParamFileHash),
		RecordID:  text(v, ParamRecordID),
		Dates:     dates,
	}, nil
}

// UnitBornRequestFromValues decodes a unit born request. A player
// parameter that is present but empty selects neutral events.
func UnitBornRequestFromValues(v url.Values) (UnitBornRequest, error) {
	req := UnitBornRequest{
		FileHash:     text(v, ParamFileHash),
		UnitTypeName: text(v, ParamUnitTypeName),
	}
	if v.Has(ParamPlayer) {
		p := text(v, ParamPlayer)
		req.Player = &p
	}
	if s := text(v, ParamGameLoop); s != "" {
		loop, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return UnitBornRequest{}, invalid(ParamGameLoop, s, err)
		}
		req.GameLoop = &loop
	}
	return req, nil
}

// MapFrequencyRequestFromValues decodes a map frequency request
func MapFrequencyRequestFromValues(v url.Values) MapFrequencyRequest {
	return MapFrequencyRequest{
		Title:  text(v, ParamTitle),
		Player: text(v, ParamPlayer),
	}
}
