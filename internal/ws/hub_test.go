package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(hub *Hub, id uint, name string) *Client {
	return NewClient(Identity{ID: id, DisplayName: name}, nil, hub, nil, 64, testLogger())
}

// recvFrame waits for the next frame queued on a session
func recvFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case data := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestHubRegisterAnnouncesJoinAndSnapshots(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	alice := newHubClient(hub, 1, "alice")
	hub.register <- alice

	// The joining connection gets both the room-wide announcement and
	// its private snapshot
	var snapshot *PresenceSnapshotPayload
	var joined *ParticipantPayload
	for i := 0; i < 2; i++ {
		f := recvFrame(t, alice)
		switch f.Event {
		case EventPresenceSnapshot:
			var p PresenceSnapshotPayload
			require.NoError(t, json.Unmarshal(f.Data, &p))
			snapshot = &p
		case EventParticipantJoined:
			var p ParticipantPayload
			require.NoError(t, json.Unmarshal(f.Data, &p))
			joined = &p
		}
	}
	require.NotNil(t, snapshot)
	require.NotNil(t, joined)
	assert.Equal(t, 1, snapshot.OnlineCount)
	assert.Len(t, snapshot.Participants, 1)
	assert.Equal(t, uint(1), joined.ParticipantID)

	bob := newHubClient(hub, 2, "bob")
	hub.register <- bob

	// Alice sees bob's join but never a second snapshot
	f := recvFrame(t, alice)
	assert.Equal(t, EventParticipantJoined, f.Event)
	var p ParticipantPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, uint(2), p.ParticipantID)
	assert.Equal(t, 2, p.OnlineCount)
}

func TestHubUnregisterAnnouncesLeave(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	alice := newHubClient(hub, 1, "alice")
	bob := newHubClient(hub, 2, "bob")
	hub.register <- alice
	hub.register <- bob

	// Drain join/snapshot traffic
	recvFrame(t, alice)
	recvFrame(t, alice)
	recvFrame(t, alice)
	recvFrame(t, bob)
	recvFrame(t, bob)

	hub.unregister <- bob

	f := recvFrame(t, alice)
	assert.Equal(t, EventParticipantLeft, f.Event)
	var p ParticipantPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, uint(2), p.ParticipantID)
	assert.Equal(t, 1, p.OnlineCount)
	assert.Equal(t, StateDisconnected, bob.State())
}

func TestHubReconnectKeepsPresence(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	first := newHubClient(hub, 1, "alice")
	second := newHubClient(hub, 1, "alice")
	hub.register <- first
	hub.register <- second

	// Dropping the stale connection must not remove the participant
	// while the replacement connection remains
	hub.unregister <- first

	observer := newHubClient(hub, 2, "observer")
	hub.register <- observer

	var snapshot PresenceSnapshotPayload
	for i := 0; i < 2; i++ {
		f := recvFrame(t, observer)
		if f.Event == EventPresenceSnapshot {
			require.NoError(t, json.Unmarshal(f.Data, &snapshot))
		}
	}
	assert.Equal(t, 2, snapshot.OnlineCount)
}

func TestHubPublishPreservesOrder(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	alice := newHubClient(hub, 1, "alice")
	hub.register <- alice
	recvFrame(t, alice)
	recvFrame(t, alice)

	hub.Publish(EventMessageCreated, MessageCreatedPayload{ID: 1, Content: "first"})
	hub.Publish(EventAIStreamChunk, StreamChunkPayload{PersonaID: 1, Delta: "second"})

	f := recvFrame(t, alice)
	assert.Equal(t, EventMessageCreated, f.Event)
	f = recvFrame(t, alice)
	assert.Equal(t, EventAIStreamChunk, f.Event)
}
