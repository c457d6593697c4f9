package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/khanmassab/flixers/internal/v1/auth"
	"github.com/khanmassab/flixers/internal/v1/mirror"
)

// MockValidator implements auth.TokenValidator
type MockValidator struct {
	shouldFail bool
}

func (m *MockValidator) ValidateToken(tokenString string) (*auth.SessionClaims, error) {
	if m.shouldFail {
		return nil, auth.ErrInvalidToken
	}
	return &auth.SessionClaims{
		Name: "Test User",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "test-user-123",
		},
	}, nil
}

// MockMirror implements MetadataMirror and records calls.
type MockMirror struct {
	mu           sync.Mutex
	saved        map[string]mirror.RoomMeta
	videoUpdates int
	deletes      []string
}

func NewMockMirror() *MockMirror {
	return &MockMirror{saved: make(map[string]mirror.RoomMeta)}
}

func (m *MockMirror) SaveRoom(_ context.Context, meta mirror.RoomMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[meta.RoomID] = meta
	return nil
}

func (m *MockMirror) LoadRoom(_ context.Context, roomID string) (*mirror.RoomMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.saved[roomID]
	if !ok {
		return nil, mirror.ErrNotFound
	}
	return &meta, nil
}

func (m *MockMirror) UpdateVideoState(_ context.Context, roomID, videoURL, titleID string, videoTime float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoUpdates++
	if meta, ok := m.saved[roomID]; ok {
		if videoURL != "" {
			meta.VideoURL = videoURL
		}
		meta.InitialTime = videoTime
		m.saved[roomID] = meta
	}
	return nil
}

func (m *MockMirror) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, roomID)
	delete(m.saved, roomID)
	return nil
}

func (m *MockMirror) VideoUpdates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoUpdates
}

func (m *MockMirror) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

type readResult struct {
	messageType int
	data        []byte
	err         error
}

// MockConn implements wsConnection. Tests push inbound frames through the
// inbound channel and inspect what the hub wrote.
type MockConn struct {
	mu          sync.Mutex
	inbound     chan readResult
	written     [][]byte // text frames, in write order
	pings       int      // protocol-level pings written
	pongHandler func(string) error
	closeCh     chan struct{}
	closeOnce   sync.Once
}

func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan readResult, 32),
		closeCh: make(chan struct{}),
	}
}

func (m *MockConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-m.inbound:
		return r.messageType, r.data, r.err
	case <-m.closeCh:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *MockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch messageType {
	case websocket.TextMessage:
		cp := append([]byte(nil), data...)
		m.written = append(m.written, cp)
	case websocket.PingMessage:
		m.pings++
	}
	return nil
}

func (m *MockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *MockConn) SetWriteDeadline(_ time.Time) error { return nil }

func (m *MockConn) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	m.pongHandler = h
	m.mu.Unlock()
}

// TriggerPong simulates the peer answering a protocol-level ping.
func (m *MockConn) TriggerPong() {
	m.mu.Lock()
	h := m.pongHandler
	m.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

// PushText delivers one inbound text frame to the read loop.
func (m *MockConn) PushText(data string) {
	m.inbound <- readResult{messageType: websocket.TextMessage, data: []byte(data)}
}

// PushBinary delivers one inbound binary frame.
func (m *MockConn) PushBinary(data []byte) {
	m.inbound <- readResult{messageType: websocket.BinaryMessage, data: data}
}

// PushError makes the next read fail, simulating a client disconnect.
func (m *MockConn) PushError() {
	m.inbound <- readResult{err: errors.New("client went away")}
}

// IsClosed reports whether the hub closed the connection.
func (m *MockConn) IsClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

// ProtocolPings returns the number of protocol-level pings written.
func (m *MockConn) ProtocolPings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// Frames decodes every written text frame into a generic map.
func (m *MockConn) Frames() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.written))
	for _, data := range m.written {
		var f map[string]any
		if json.Unmarshal(data, &f) == nil {
			out = append(out, f)
		}
	}
	return out
}

// FramesOfType filters decoded frames by their type field.
func (m *MockConn) FramesOfType(msgType string) []map[string]any {
	var out []map[string]any
	for _, f := range m.Frames() {
		if f["type"] == msgType {
			out = append(out, f)
		}
	}
	return out
}

// claimsFor builds verified claims the way the token verifier would.
func claimsFor(sub, name, picture string) *auth.SessionClaims {
	return &auth.SessionClaims{
		Name:    name,
		Picture: picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: sub,
		},
	}
}
