package replay

import "strings"

// ClanDelimiter separates the clan tag from the player name in the
// display name stored by the replay decoder, e.g. "TAG<sp/>Player".
const ClanDelimiter = "<sp/>"

// AutomatedMarker is contained in the canonical name of computer players.
const AutomatedMarker = "A.I"

// CanonicalName strips any clan tag segment from a display name. The
// canonical name is the text after the last delimiter, so applying it
// twice gives the same result as applying it once.
func CanonicalName(display string) string {
	if i := strings.LastIndex(display, ClanDelimiter); i >= 0 {
		return display[i+len(ClanDelimiter):]
	}
	return display
}

// ClanTag returns the clan tag segment of a display name, or "" when
// the name carries no tag.
func ClanTag(display string) string {
	if i := strings.Index(display, ClanDelimiter); i >= 0 {
		return display[:i]
	}
	return ""
}
