package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// roomIDLength keeps ids short enough to read over a call while staying well
// inside the 3-64 char contract.
const roomIDLength = 12

// NewRoomID generates a short opaque room id.
func NewRoomID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:roomIDLength]
}

// titleIDPattern matches the watchable id embedded in common player URLs,
// e.g. /watch/81234567, ?v=dQw4w9WgXcQ, /title/tt0111161.
var titleIDPattern = regexp.MustCompile(`(?:watch|title|video|v)[/=]([A-Za-z0-9_-]{1,64})`)

// ExtractTitleID pulls a title id out of a video URL by pattern match.
// Absence is not an error; the empty string means no recognizable id.
func ExtractTitleID(videoURL string) string {
	if videoURL == "" {
		return ""
	}
	m := titleIDPattern.FindStringSubmatch(videoURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
