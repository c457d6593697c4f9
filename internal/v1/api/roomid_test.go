package api

import (
	"testing"

	"github.com/khanmassab/flixers/internal/v1/hub"
	"github.com/stretchr/testify/assert"
)

func TestNewRoomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		assert.Len(t, id, roomIDLength)
		assert.True(t, hub.ValidRoomID(id))
		assert.False(t, seen[id], "room id collision: %s", id)
		seen[id] = true
	}
}

func TestExtractTitleID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.netflix.com/watch/81234567", "81234567"},
		{"https://www.netflix.com/watch/81234567?trackId=1", "81234567"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.imdb.com/title/tt0111161", "tt0111161"},
		{"https://example.com/video/abc_def-123", "abc_def-123"},
		{"https://example.com/browse", ""},
		{"", ""},
		{"not a url at all", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractTitleID(tc.url), "url %q", tc.url)
	}
}
