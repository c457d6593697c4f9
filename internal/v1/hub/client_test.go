package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeat_EmitsProtocolAndJSONPings(t *testing.T) {
	h := NewHub(&MockValidator{}, nil, Options{
		PingInterval:    25 * time.Millisecond,
		ActivityTimeout: 10 * time.Second,
	})
	_, conn := connectMember(t, h, "movie-night", "user-a", "Alice", "")

	require.Eventually(t, func() bool {
		return conn.ProtocolPings() >= 1 && len(conn.FramesOfType("ping")) >= 1
	}, time.Second, 5*time.Millisecond)

	ping := conn.FramesOfType("ping")[0]
	assert.Greater(t, ping["ts"].(float64), float64(0))
}

func TestHeartbeat_UnansweredPingTerminatesConnection(t *testing.T) {
	h := NewHub(&MockValidator{}, nil, Options{
		PingInterval:    25 * time.Millisecond,
		ActivityTimeout: 10 * time.Second,
	})
	_, conn := connectMember(t, h, "movie-night", "user-a", "Alice", "")

	// Never answer: the tick after the first ping must terminate.
	require.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)
}

func TestHeartbeat_JSONTrafficSatisfiesLiveness(t *testing.T) {
	h := NewHub(&MockValidator{}, nil, Options{
		PingInterval:    25 * time.Millisecond,
		ActivityTimeout: 10 * time.Second,
	})
	_, conn := connectMember(t, h, "movie-night", "user-a", "Alice", "")

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		conn.PushText(`{"type":"pong"}`)
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, conn.IsClosed(), "responsive connection must stay open")

	// Going quiet lets the double-miss rule fire.
	require.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)
}

func TestHeartbeat_ProtocolPongSatisfiesLiveness(t *testing.T) {
	h := NewHub(&MockValidator{}, nil, Options{
		PingInterval:    25 * time.Millisecond,
		ActivityTimeout: 10 * time.Second,
	})
	_, conn := connectMember(t, h, "movie-night", "user-a", "Alice", "")

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		conn.TriggerPong()
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, conn.IsClosed(), "protocol pongs must count as liveness")
}

func TestHeartbeat_IdleConnectionHitsActivityTimeout(t *testing.T) {
	h := NewHub(&MockValidator{}, nil, Options{
		PingInterval:    20 * time.Millisecond,
		ActivityTimeout: 30 * time.Millisecond,
	})
	_, conn := connectMember(t, h, "movie-night", "user-a", "Alice", "")

	require.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)

	// Detach follows: the room empties and goes into its grace period.
	require.Eventually(t, func() bool {
		r := h.LookupRoom("movie-night")
		return r == nil || r.MemberCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTouch_ClearsAwaitingPong(t *testing.T) {
	c := newMemberClient("user-a", "Alice", "")
	c.mu.Lock()
	c.awaitingPong = true
	c.mu.Unlock()

	c.touch()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.False(t, c.awaitingPong)
	assert.WithinDuration(t, time.Now(), c.lastActivity, 100*time.Millisecond)
}

func TestTerminate_Idempotent(t *testing.T) {
	c := newMemberClient("user-a", "Alice", "")
	c.terminate()
	c.terminate()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.closed)
}

func TestSendRaw_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	c := newMemberClient("user-a", "Alice", "")
	for i := 0; i < sendBufferSize; i++ {
		c.sendRaw([]byte(`{"type":"chat"}`))
	}

	done := make(chan struct{})
	go func() {
		c.sendRaw([]byte(`{"type":"chat","text":"overflow"}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sendRaw blocked on a full queue")
	}
	assert.Len(t, c.send, sendBufferSize)
}

func TestSendRaw_NoOpAfterTerminate(t *testing.T) {
	c := newMemberClient("user-a", "Alice", "")
	c.terminate()
	c.sendRaw([]byte(`{"type":"chat","text":"late"}`))
	assert.Empty(t, c.send)
}
