package ws

import (
	"sort"
	"sync"
)

// PresenceEntry is the display metadata of one connected participant
type PresenceEntry struct {
	ParticipantID uint   `json:"participantId"`
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
}

// PresenceRegistry tracks who is currently in the room. It is the one
// shared mutable resource every connection touches, so all mutations
// are serialized behind a mutex. Presence is never persisted; a restart
// starts from an empty room.
type PresenceRegistry struct {
	mu      sync.Mutex
	entries map[uint]PresenceEntry
}

// NewPresenceRegistry creates an empty registry
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[uint]PresenceEntry),
	}
}

// Register adds or replaces the entry for a participant and returns the
// resulting online count. Re-registering the same participant id never
// increases the count.
func (r *PresenceRegistry) Register(entry PresenceEntry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ParticipantID] = entry
	return len(r.entries)
}

// Unregister removes a participant's entry and returns the resulting
// online count. Removing an absent id is a no-op.
func (r *PresenceRegistry) Unregister(participantID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, participantID)
	return len(r.entries)
}

// List returns a snapshot of current entries ordered by participant id
func (r *PresenceRegistry) List() []PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]PresenceEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	return entries
}

// Count returns the current online count
func (r *PresenceRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
