package ws

import (
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/shared/observability"
)

// Hub is the room-scoped broadcast channel. Every state-changing event
// (join/leave/new-message/stream-chunk) passes through here and is
// fanned out to all current members. A slow or disconnecting recipient
// is dropped rather than allowed to block delivery to others.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	presence *PresenceRegistry
	log      *logger.Logger
}

// NewHub creates a hub with an empty presence registry
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		presence:   NewPresenceRegistry(),
		log:        log.WithComponent("hub"),
	}
}

// Presence exposes the registry for read-side consumers
func (h *Hub) Presence() *PresenceRegistry {
	return h.presence
}

// Publish broadcasts an event to every current room member. Safe to
// call concurrently from the human-message path and any number of
// AI-stream goroutines.
func (h *Hub) Publish(event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.LogError(err, "failed to encode broadcast frame", "event", event)
		return
	}
	observability.BroadcastEvents.WithLabelValues(event).Inc()
	h.broadcast <- data
}

// Run processes register/unregister/broadcast events until the process
// exits. Must run in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			count := h.presence.Register(client.identity.presenceEntry())
			observability.ActiveConnections.Set(float64(h.presence.Count()))
			client.setState(StateJoined)

			h.log.Info("participant joined",
				"participant_id", client.identity.ID,
				"display_name", client.identity.DisplayName,
				"online_count", count,
			)

			h.broadcastFrame(EventParticipantJoined, ParticipantPayload{
				ParticipantID: client.identity.ID,
				DisplayName:   client.identity.DisplayName,
				OnlineCount:   count,
			})

			// Snapshot goes to the joining connection only
			client.sendEvent(EventPresenceSnapshot, PresenceSnapshotPayload{
				Participants: h.presence.List(),
				OnlineCount:  count,
			})

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			client.close()

			// A reconnecting participant replaces its presence entry;
			// only drop presence when no other connection remains for
			// the same participant.
			if h.hasParticipant(client.identity.ID) {
				continue
			}

			count := h.presence.Unregister(client.identity.ID)
			observability.ActiveConnections.Set(float64(h.presence.Count()))

			h.log.Info("participant left",
				"participant_id", client.identity.ID,
				"online_count", count,
			)

			h.broadcastFrame(EventParticipantLeft, ParticipantPayload{
				ParticipantID: client.identity.ID,
				DisplayName:   client.identity.DisplayName,
				OnlineCount:   count,
			})

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver writes one frame to every member, dropping members whose
// send buffer is full
func (h *Hub) deliver(message []byte) {
	for client := range h.clients {
		if !client.trySend(message) {
			h.log.Warn("dropping client with blocked send buffer",
				"participant_id", client.identity.ID,
			)
			delete(h.clients, client)
			client.close()
			if !h.hasParticipant(client.identity.ID) {
				count := h.presence.Unregister(client.identity.ID)
				observability.ActiveConnections.Set(float64(h.presence.Count()))
				h.broadcastFrame(EventParticipantLeft, ParticipantPayload{
					ParticipantID: client.identity.ID,
					DisplayName:   client.identity.DisplayName,
					OnlineCount:   count,
				})
			}
		}
	}
}

// broadcastFrame encodes and delivers a frame from inside the Run loop
func (h *Hub) broadcastFrame(event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.LogError(err, "failed to encode frame", "event", event)
		return
	}
	observability.BroadcastEvents.WithLabelValues(event).Inc()
	h.deliver(data)
}

// hasParticipant reports whether any registered connection belongs to
// the participant. Only called from the Run goroutine.
func (h *Hub) hasParticipant(participantID uint) bool {
	for client := range h.clients {
		if client.identity.ID == participantID {
			return true
		}
	}
	return false
}
