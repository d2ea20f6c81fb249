package ws

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/libohan-ha/BaiHe-sub001/ai"
	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/pkg/secrets"
	"github.com/libohan-ha/BaiHe-sub001/shared/observability"
)

// MessageGateway is the narrow contract to the message store. It
// assigns ids and timestamps; the orchestrator never trusts
// client-supplied ordering.
type MessageGateway interface {
	Append(ctx context.Context, content, imageURL string, authorID uint) (*models.Message, error)
	AppendAIReply(ctx context.Context, content string, personaID uint) (*models.Message, error)
	Recent(ctx context.Context, limit int) ([]models.Message, error)
}

// PersonaDirectory resolves persona definitions for ownership checks
type PersonaDirectory interface {
	GetPersona(id uint) (*models.Persona, error)
}

// Options tunes orchestrator behavior
type Options struct {
	// ContextWindow bounds the recent-history fetch shared across all
	// personas of one request
	ContextWindow int
	// PersistReplies persists a completed AI reply as a room message
	PersistReplies bool
	// AllowServerCredential permits falling back to a server-held
	// provider key when a mention carries none
	AllowServerCredential bool
	// MaxMessageSize bounds inbound websocket frames
	MaxMessageSize int64
}

// OptionsFromConfig loads orchestrator options from app configuration
func OptionsFromConfig() Options {
	cfg := config.Get()
	return Options{
		ContextWindow:         cfg.Chat.ContextWindow,
		PersistReplies:        cfg.AI.PersistReplies,
		AllowServerCredential: cfg.AI.AllowServerCredential,
		MaxMessageSize:        cfg.Chat.MaxMessageSize,
	}
}

// serverCredentialKey is the secrets-manager key for the fallback
// provider credential
const serverCredentialKey = "ai_api_key"

// Orchestrator drives the chat flows: plain sends, and the fan-out of
// one concurrent streaming completion per mentioned persona. Failures
// are always scoped to the failing persona task and reported to the
// requester only.
type Orchestrator struct {
	hub      *Hub
	gateway  MessageGateway
	personas PersonaDirectory
	provider ai.Provider
	opts     Options

	maxMessageSize int64
	log            *logger.Logger
}

// NewOrchestrator creates an orchestrator bound to one hub
func NewOrchestrator(hub *Hub, gateway MessageGateway, personas PersonaDirectory, provider ai.Provider, opts Options, log *logger.Logger) *Orchestrator {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 100
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 512 * 1024
	}
	return &Orchestrator{
		hub:            hub,
		gateway:        gateway,
		personas:       personas,
		provider:       provider,
		opts:           opts,
		maxMessageSize: opts.MaxMessageSize,
		log:            log.WithComponent("orchestrator"),
	}
}

// HandleSend persists and broadcasts a plain human message
func (o *Orchestrator) HandleSend(c *Client, payload SendMessagePayload) {
	if !validContent(payload.Content, payload.ImageURL) {
		o.streamError(c, nil, "", CodeValidationError, "message requires content or an image")
		return
	}

	msg, err := o.gateway.Append(context.Background(), strings.TrimSpace(payload.Content), payload.ImageURL, c.identity.ID)
	if err != nil {
		o.log.LogError(err, "failed to persist message", "author_id", c.identity.ID)
		o.streamError(c, nil, "", CodePersistenceError, "failed to persist message")
		return
	}

	o.hub.Publish(EventMessageCreated, messageCreatedPayload(msg))
}

// HandleAIRequest runs the full orchestration flow: persist, broadcast,
// fetch one shared context window, then one independent streaming task
// per mentioned persona. The request settles only after every persona
// task has succeeded, failed, or been skipped.
func (o *Orchestrator) HandleAIRequest(c *Client, payload AIRequestPayload) {
	if !validContent(payload.Content, payload.ImageURL) {
		o.streamError(c, nil, "", CodeValidationError, "request requires content or an image")
		return
	}
	if len(payload.Mentions) == 0 {
		o.streamError(c, nil, "", CodeValidationError, "request mentions no personas")
		return
	}

	// Streams keep running after the requester disconnects, so none of
	// this work is tied to the connection's lifetime.
	ctx := context.Background()
	content := strings.TrimSpace(payload.Content)

	msg, err := o.gateway.Append(ctx, content, payload.ImageURL, c.identity.ID)
	if err != nil {
		o.log.LogError(err, "failed to persist message", "author_id", c.identity.ID)
		o.streamError(c, nil, "", CodePersistenceError, "failed to persist message")
		return
	}

	// The human message is always broadcast before any stream chunk.
	// Both go through the hub's broadcast channel, which preserves
	// publish order.
	o.hub.Publish(EventMessageCreated, messageCreatedPayload(msg))

	// One shared read-only context window for every persona in this
	// request: cheaper than per-persona fetches and guarantees all
	// personas see the same conversation. The message just appended is
	// excluded; it becomes the final user turn of the prompt instead.
	history := o.contextWindow(ctx, msg.ID)

	var wg sync.WaitGroup
	for _, mention := range payload.Mentions {
		wg.Add(1)
		go func(m Mention) {
			defer wg.Done()
			o.runPersonaStream(ctx, c, m, content, history)
		}(mention)
	}
	wg.Wait()

	o.log.Debug("ai request settled",
		"author_id", c.identity.ID,
		"mentions", len(payload.Mentions),
	)
}

// runPersonaStream handles one persona task end to end. Every failure
// path reports to the requester only and leaves sibling tasks alone.
func (o *Orchestrator) runPersonaStream(ctx context.Context, c *Client, mention Mention, content string, history []ai.HistoryMessage) {
	personaID := mention.PersonaID

	persona, err := o.personas.GetPersona(personaID)
	if err != nil || persona.OwnerID != c.identity.ID {
		o.streamError(c, &personaID, "", CodeOwnershipError, "persona not found or not owned by you")
		return
	}

	apiKey := mention.APIKey
	if apiKey == "" && o.opts.AllowServerCredential {
		apiKey = secrets.GetSecretWithDefault(ctx, serverCredentialKey, "")
	}
	if apiKey == "" {
		o.streamError(c, &personaID, "", CodeMissingCredential, "no provider credential supplied for this persona")
		return
	}

	correlationID := uuid.New().String()
	aiPersona := &ai.Persona{
		ID:          persona.ID,
		Name:        persona.Name,
		Description: persona.Description,
		Personality: persona.Personality,
		ModelName:   persona.ModelName,
	}
	cfg := ai.ProviderConfig{
		APIKey:  apiKey,
		BaseURL: mention.BaseURL,
		Model:   mention.Model,
	}

	onDelta := func(delta string) error {
		observability.StreamChunks.Inc()
		o.hub.Publish(EventAIStreamChunk, StreamChunkPayload{
			PersonaID:     persona.ID,
			PersonaName:   persona.Name,
			CorrelationID: correlationID,
			Delta:         delta,
		})
		return nil
	}

	full, err := o.provider.StreamCompletion(ctx, aiPersona, cfg, history, content, c.identity.DisplayName, onDelta)
	if err != nil {
		o.log.Warn("persona stream failed",
			"persona_id", persona.ID,
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		o.streamError(c, &personaID, correlationID, CodeProviderStreamError, err.Error())
		return
	}

	// Completion marker so members can close out the streamed bubble
	o.hub.Publish(EventAIStreamChunk, StreamChunkPayload{
		PersonaID:     persona.ID,
		PersonaName:   persona.Name,
		CorrelationID: correlationID,
		Done:          true,
	})

	if o.opts.PersistReplies && full != "" {
		if _, err := o.gateway.AppendAIReply(ctx, full, persona.ID); err != nil {
			// The room already saw the stream; losing the persisted
			// copy is not worth failing the task over.
			o.log.LogError(err, "failed to persist ai reply", "persona_id", persona.ID)
		}
	}
}

// contextWindow fetches the bounded recent history, skipping excludeID
// so the requesting message never appears twice in a prompt. A fetch
// failure degrades to an empty context rather than failing the request.
func (o *Orchestrator) contextWindow(ctx context.Context, excludeID uint) []ai.HistoryMessage {
	recent, err := o.gateway.Recent(ctx, o.opts.ContextWindow)
	if err != nil {
		o.log.LogError(err, "failed to fetch recent context")
		return nil
	}

	history := make([]ai.HistoryMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID == excludeID {
			continue
		}
		role := "user"
		if m.IsAIReply() {
			role = "assistant"
		}
		history = append(history, ai.HistoryMessage{Role: role, Content: m.Content})
	}
	return history
}

// streamError delivers a failure to the requesting connection only
func (o *Orchestrator) streamError(c *Client, personaID *uint, correlationID, code, reason string) {
	observability.StreamErrors.WithLabelValues(code).Inc()
	c.sendEvent(EventAIStreamError, StreamErrorPayload{
		PersonaID:     personaID,
		CorrelationID: correlationID,
		Code:          code,
		Reason:        reason,
	})
}

func validContent(content, imageURL string) bool {
	return strings.TrimSpace(content) != "" || imageURL != ""
}

func messageCreatedPayload(m *models.Message) MessageCreatedPayload {
	return MessageCreatedPayload{
		ID:        m.ID,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		AuthorID:  m.AuthorID,
		PersonaID: m.PersonaID,
		CreatedAt: m.CreatedAt,
	}
}
