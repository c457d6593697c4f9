package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAllowedOrigins(t *testing.T) {
	t.Run("splits and trims", func(t *testing.T) {
		origins := ParseAllowedOrigins("https://app.example.com, https://other.example.com ,", false)
		assert.Equal(t, []string{"https://app.example.com", "https://other.example.com"}, origins)
	})

	t.Run("empty in production denies all", func(t *testing.T) {
		assert.Nil(t, ParseAllowedOrigins("", false))
	})

	t.Run("empty in development falls back to localhost", func(t *testing.T) {
		origins := ParseAllowedOrigins("", true)
		assert.Contains(t, origins, "http://localhost:3000")
		assert.Contains(t, origins, "http://localhost:8080")
	})
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"https://app.example.com"}

	t.Run("matching origin accepted", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://app.example.com")
		assert.NoError(t, ValidateOrigin(r, allowed))
	})

	t.Run("scheme mismatch rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "http://app.example.com")
		assert.Error(t, ValidateOrigin(r, allowed))
	})

	t.Run("unlisted host rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		assert.Error(t, ValidateOrigin(r, allowed))
	})

	t.Run("no origin header allowed", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		assert.NoError(t, ValidateOrigin(r, allowed))
	})

	t.Run("wildcard accepts anything", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://anywhere.example.com")
		assert.NoError(t, ValidateOrigin(r, []string{"*"}))
	})

	t.Run("empty list rejects browsers", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://app.example.com")
		assert.Error(t, ValidateOrigin(r, nil))
	})
}
