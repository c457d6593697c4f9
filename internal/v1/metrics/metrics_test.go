package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)
	IncConnection()
	IncConnection()
	DecConnection()
	assert.Equal(t, before+1, testutil.ToFloat64(ActiveConnections))
	DecConnection()
}

func TestRoomMembersGaugePerRoom(t *testing.T) {
	RoomMembers.WithLabelValues("metrics-test-room").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(RoomMembers.WithLabelValues("metrics-test-room")))

	RoomMembers.DeleteLabelValues("metrics-test-room")
	assert.Equal(t, float64(0), testutil.ToFloat64(RoomMembers.WithLabelValues("metrics-test-room")))
}

func TestRelayAndDropCounters(t *testing.T) {
	relayed := testutil.ToFloat64(RelayedFrames.WithLabelValues("chat"))
	RelayedFrames.WithLabelValues("chat").Inc()
	assert.Equal(t, relayed+1, testutil.ToFloat64(RelayedFrames.WithLabelValues("chat")))

	dropped := testutil.ToFloat64(DroppedFrames.WithLabelValues("policy"))
	DroppedFrames.WithLabelValues("policy").Inc()
	assert.Equal(t, dropped+1, testutil.ToFloat64(DroppedFrames.WithLabelValues("policy")))
}

func TestLivenessTerminationCauses(t *testing.T) {
	for _, cause := range []string{"pong_timeout", "activity_timeout"} {
		before := testutil.ToFloat64(LivenessTerminations.WithLabelValues(cause))
		LivenessTerminations.WithLabelValues(cause).Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(LivenessTerminations.WithLabelValues(cause)))
	}
}
