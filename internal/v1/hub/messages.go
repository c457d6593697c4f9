package hub

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Message types accepted from clients. Unknown types are dropped.
const (
	TypePing           = "ping"
	TypePong           = "pong"
	TypeKeyExchange    = "key-exchange"
	TypeEncrypted      = "encrypted"
	TypeSystem         = "system"
	TypeEpisodeChanged = "episode-changed"
	TypeSyncRequest    = "sync-request"
	TypeSyncState      = "sync-state"
	TypeState          = "state"
	TypeChat           = "chat"
	TypeTyping         = "typing"
	TypePresence       = "presence"
)

// frame is the decoded inbound message. Frames are heterogeneous, so every
// field any type may carry is optional here; the router decides which fields
// a given type requires.
type frame struct {
	Type        string          `json:"type"`
	Text        string          `json:"text"`
	TS          json.RawMessage `json:"ts"`
	PublicKey   string          `json:"publicKey"`
	Curve       string          `json:"curve"`
	Ciphertext  string          `json:"ciphertext"`
	IV          string          `json:"iv"`
	Tag         string          `json:"tag"`
	Salt        string          `json:"salt"`
	Alg         string          `json:"alg"`
	RecipientID string          `json:"recipientId"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Seq         *int64          `json:"seq"`
	Time        float64         `json:"time"`
	Paused      bool            `json:"paused"`
	Active      bool            `json:"active"`
	Payload     json.RawMessage `json:"payload"`
}

// timestamp returns the client-supplied ts when it is a JSON number,
// otherwise the server wall time passed in.
func (f *frame) timestamp(serverNow int64) int64 {
	raw := strings.TrimSpace(string(f.TS))
	if raw == "" || raw == "null" {
		return serverNow
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(v)
	}
	return serverNow
}

// isBlank reports whether a required string field is empty or whitespace-only.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// --- Outbound envelopes ---
//
// Sender attribution (from/fromId) always comes from the verified token
// claims, never from the inbound frame.

type pingEvent struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type pongEvent struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type keyExchangeEvent struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey"`
	Curve     string `json:"curve,omitempty"`
	From      string `json:"from"`
	FromID    string `json:"fromId"`
}

type encryptedEvent struct {
	Type        string `json:"type"`
	Ciphertext  string `json:"ciphertext"`
	IV          string `json:"iv"`
	Tag         string `json:"tag,omitempty"`
	Salt        string `json:"salt,omitempty"`
	Alg         string `json:"alg,omitempty"`
	From        string `json:"from"`
	FromID      string `json:"fromId"`
	TS          int64  `json:"ts"`
	RecipientID string `json:"recipientId,omitempty"`
}

type systemEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
	URL  string `json:"url,omitempty"`
}

type episodeChangedEvent struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	TS     int64  `json:"ts"`
	Seq    *int64 `json:"seq,omitempty"`
	Title  string `json:"title,omitempty"`
	From   string `json:"from"`
	FromID string `json:"fromId"`
}

type syncRequestEvent struct {
	Type   string `json:"type"`
	From   string `json:"from"`
	FromID string `json:"fromId"`
	TS     int64  `json:"ts"`
}

type syncStateEvent struct {
	Type   string  `json:"type"`
	Time   float64 `json:"time"`
	Paused bool    `json:"paused"`
	URL    string  `json:"url"`
	From   string  `json:"from"`
	FromID string  `json:"fromId"`
	TS     int64   `json:"ts"`
}

type stateEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type chatEvent struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	From   string `json:"from"`
	FromID string `json:"fromId"`
	Avatar string `json:"avatar,omitempty"`
	TS     int64  `json:"ts"`
}

type typingEvent struct {
	Type   string `json:"type"`
	From   string `json:"from"`
	FromID string `json:"fromId"`
	Active bool   `json:"active"`
	TS     int64  `json:"ts"`
}

// participantInfo identifies one live connection in a presence envelope.
// A user with several connections appears once per connection.
type participantInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// presenceEvent is the authoritative membership snapshot, emitted after
// every join and leave. It carries no sender attribution.
type presenceEvent struct {
	Type               string            `json:"type"`
	Participants       []participantInfo `json:"participants"`
	Users              []string          `json:"users"`
	Avatars            map[string]string `json:"avatars"`
	EncryptionRequired bool              `json:"encryptionRequired"`
}
