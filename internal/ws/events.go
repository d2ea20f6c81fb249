package ws

import (
	"encoding/json"
	"time"
)

// Inbound event names
const (
	EventMessageSend = "message:send"
	EventAIRequest   = "ai:request"
)

// Outbound event names
const (
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventPresenceSnapshot  = "presence-snapshot"
	EventMessageCreated    = "message-created"
	EventAIStreamChunk     = "ai-stream-chunk"
	EventAIStreamError     = "ai-stream-error"
)

// Error codes carried by ai-stream-error payloads
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodePersistenceError    = "PERSISTENCE_ERROR"
	CodeOwnershipError      = "OWNERSHIP_ERROR"
	CodeMissingCredential   = "MISSING_CREDENTIAL"
	CodeProviderStreamError = "PROVIDER_STREAM_ERROR"
)

// Frame is the wire envelope for every websocket message
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeFrame marshals an outbound event with its payload
func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// SendMessagePayload is the inbound message:send payload
type SendMessagePayload struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// Mention names one persona to invoke, with its request-scoped
// provider configuration
type Mention struct {
	PersonaID uint   `json:"personaId"`
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl"`
	Model     string `json:"model"`
}

// AIRequestPayload is the inbound ai:request payload
type AIRequestPayload struct {
	Content  string    `json:"content"`
	ImageURL string    `json:"imageUrl"`
	Mentions []Mention `json:"mentionedPersonas"`
}

// ParticipantPayload announces a join or leave together with the
// resulting online count
type ParticipantPayload struct {
	ParticipantID uint   `json:"participantId"`
	DisplayName   string `json:"displayName"`
	OnlineCount   int    `json:"onlineCount"`
}

// PresenceSnapshotPayload is delivered to a newly joined connection only
type PresenceSnapshotPayload struct {
	Participants []PresenceEntry `json:"participants"`
	OnlineCount  int             `json:"onlineCount"`
}

// MessageCreatedPayload mirrors the persisted message broadcast room-wide
type MessageCreatedPayload struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	AuthorID  uint      `json:"authorId"`
	PersonaID *uint     `json:"personaId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StreamChunkPayload carries one content delta of a persona's reply
type StreamChunkPayload struct {
	PersonaID     uint   `json:"personaId"`
	PersonaName   string `json:"personaName"`
	CorrelationID string `json:"correlationId"`
	Delta         string `json:"delta"`
	Done          bool   `json:"done"`
}

// StreamErrorPayload is delivered to the requesting connection only
type StreamErrorPayload struct {
	PersonaID     *uint  `json:"personaId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Code          string `json:"code"`
	Reason        string `json:"reason"`
}
