package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceRegisterAndCount(t *testing.T) {
	p := NewPresenceRegistry()

	count := p.Register(PresenceEntry{ParticipantID: 1, DisplayName: "alice"})
	assert.Equal(t, 1, count)

	count = p.Register(PresenceEntry{ParticipantID: 2, DisplayName: "bob"})
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, p.Count())
}

func TestPresenceReconnectReplacesEntry(t *testing.T) {
	p := NewPresenceRegistry()

	p.Register(PresenceEntry{ParticipantID: 1, DisplayName: "alice"})
	count := p.Register(PresenceEntry{ParticipantID: 1, DisplayName: "alice-updated"})

	// Same participant reconnecting must not inflate the count
	assert.Equal(t, 1, count)

	list := p.List()
	assert.Len(t, list, 1)
	assert.Equal(t, "alice-updated", list[0].DisplayName)
}

func TestPresenceUnregister(t *testing.T) {
	p := NewPresenceRegistry()

	p.Register(PresenceEntry{ParticipantID: 1, DisplayName: "alice"})
	p.Register(PresenceEntry{ParticipantID: 2, DisplayName: "bob"})

	count := p.Unregister(1)
	assert.Equal(t, 1, count)

	// Unregistering an unknown participant is a no-op
	count = p.Unregister(99)
	assert.Equal(t, 1, count)
}

func TestPresenceListSortedByParticipant(t *testing.T) {
	p := NewPresenceRegistry()

	p.Register(PresenceEntry{ParticipantID: 3, DisplayName: "carol"})
	p.Register(PresenceEntry{ParticipantID: 1, DisplayName: "alice"})
	p.Register(PresenceEntry{ParticipantID: 2, DisplayName: "bob"})

	list := p.List()
	assert.Len(t, list, 3)
	assert.Equal(t, uint(1), list[0].ParticipantID)
	assert.Equal(t, uint(2), list[1].ParticipantID)
	assert.Equal(t, uint(3), list[2].ParticipantID)
}
