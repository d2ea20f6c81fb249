package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libohan-ha/BaiHe-sub001/ai"
	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

type fakeGateway struct {
	mu        sync.Mutex
	nextID    uint
	appended  []models.Message
	aiReplies []models.Message
	recent    []models.Message

	appendErr error
	recentErr error
	replyErr  error
}

func (g *fakeGateway) Append(_ context.Context, content, imageURL string, authorID uint) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.appendErr != nil {
		return nil, g.appendErr
	}
	g.nextID++
	msg := models.Message{
		ID:        g.nextID,
		Content:   content,
		ImageURL:  imageURL,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}
	g.appended = append(g.appended, msg)
	return &msg, nil
}

func (g *fakeGateway) AppendAIReply(_ context.Context, content string, personaID uint) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replyErr != nil {
		return nil, g.replyErr
	}
	g.nextID++
	msg := models.Message{
		ID:        g.nextID,
		Content:   content,
		PersonaID: &personaID,
		CreatedAt: time.Now(),
	}
	g.aiReplies = append(g.aiReplies, msg)
	return &msg, nil
}

func (g *fakeGateway) Recent(_ context.Context, _ int) ([]models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.recentErr != nil {
		return nil, g.recentErr
	}
	return g.recent, nil
}

func (g *fakeGateway) replies() []models.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Message(nil), g.aiReplies...)
}

type fakePersonas struct {
	personas map[uint]*models.Persona
}

func (f *fakePersonas) GetPersona(id uint) (*models.Persona, error) {
	p, ok := f.personas[id]
	if !ok {
		return nil, errors.New("persona not found")
	}
	return p, nil
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int

	stream func(persona *ai.Persona, history []ai.HistoryMessage, onDelta ai.StreamHandler) (string, error)
}

func (f *fakeProvider) StreamCompletion(_ context.Context, persona *ai.Persona, _ ai.ProviderConfig, history []ai.HistoryMessage, _ string, _ string, onDelta ai.StreamHandler) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.stream(persona, history, onDelta)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func newTestOrchestrator(gateway MessageGateway, personas PersonaDirectory, provider ai.Provider, opts Options) (*Orchestrator, *Client) {
	log := testLogger()
	hub := NewHub(log)
	orch := NewOrchestrator(hub, gateway, personas, provider, opts, log)
	client := NewClient(Identity{ID: 7, DisplayName: "alice"}, nil, hub, orch, 64, log)
	client.setState(StateJoined)
	return orch, client
}

// drainBroadcasts reads every frame currently queued on the hub
func drainBroadcasts(hub *Hub) []Frame {
	var frames []Frame
	for {
		select {
		case data := <-hub.broadcast:
			var f Frame
			if err := json.Unmarshal(data, &f); err == nil {
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

// drainClient reads every requester-scoped frame queued on the session
func drainClient(c *Client) []Frame {
	var frames []Frame
	for {
		select {
		case data := <-c.send:
			var f Frame
			if err := json.Unmarshal(data, &f); err == nil {
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

func streamErrors(t *testing.T, frames []Frame) []StreamErrorPayload {
	t.Helper()
	var out []StreamErrorPayload
	for _, f := range frames {
		if f.Event != EventAIStreamError {
			continue
		}
		var p StreamErrorPayload
		require.NoError(t, json.Unmarshal(f.Data, &p))
		out = append(out, p)
	}
	return out
}

func TestHandleSendBroadcastsPersistedMessage(t *testing.T) {
	gateway := &fakeGateway{}
	orch, client := newTestOrchestrator(gateway, &fakePersonas{}, &fakeProvider{}, Options{})

	orch.HandleSend(client, SendMessagePayload{Content: "  hello room  "})

	frames := drainBroadcasts(orch.hub)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMessageCreated, frames[0].Event)

	var payload MessageCreatedPayload
	require.NoError(t, json.Unmarshal(frames[0].Data, &payload))
	assert.Equal(t, "hello room", payload.Content)
	assert.Equal(t, uint(7), payload.AuthorID)

	// No requester-scoped errors on success
	assert.Empty(t, drainClient(client))
}

func TestHandleSendRejectsEmptyContent(t *testing.T) {
	gateway := &fakeGateway{}
	orch, client := newTestOrchestrator(gateway, &fakePersonas{}, &fakeProvider{}, Options{})

	orch.HandleSend(client, SendMessagePayload{Content: "   "})

	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeValidationError, errs[0].Code)
	assert.Empty(t, gateway.appended)
	assert.Empty(t, drainBroadcasts(orch.hub))
}

func TestHandleSendImageOnlyIsValid(t *testing.T) {
	gateway := &fakeGateway{}
	orch, client := newTestOrchestrator(gateway, &fakePersonas{}, &fakeProvider{}, Options{})

	orch.HandleSend(client, SendMessagePayload{ImageURL: "https://cdn.example/cat.png"})

	frames := drainBroadcasts(orch.hub)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMessageCreated, frames[0].Event)
}

func TestHandleSendPersistFailure(t *testing.T) {
	gateway := &fakeGateway{appendErr: errors.New("db down")}
	orch, client := newTestOrchestrator(gateway, &fakePersonas{}, &fakeProvider{}, Options{})

	orch.HandleSend(client, SendMessagePayload{Content: "hello"})

	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodePersistenceError, errs[0].Code)
	assert.Empty(t, drainBroadcasts(orch.hub))
}

func TestAIRequestFanOutSettlesIndependently(t *testing.T) {
	gateway := &fakeGateway{}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 7, Name: "sage"},
		2: {ID: 2, OwnerID: 7, Name: "jester"},
		3: {ID: 3, OwnerID: 7, Name: "broken"},
	}}
	provider := &fakeProvider{
		stream: func(persona *ai.Persona, _ []ai.HistoryMessage, onDelta ai.StreamHandler) (string, error) {
			if persona.Name == "broken" {
				return "", errors.New("upstream 500")
			}
			onDelta("hel")
			onDelta("lo")
			return "hello", nil
		},
	}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{PersistReplies: true})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content: "speak",
		Mentions: []Mention{
			{PersonaID: 1, APIKey: "k"},
			{PersonaID: 2, APIKey: "k"},
			{PersonaID: 3, APIKey: "k"},
		},
	})

	frames := drainBroadcasts(orch.hub)
	require.NotEmpty(t, frames)

	// The human message always lands before any stream chunk
	assert.Equal(t, EventMessageCreated, frames[0].Event)

	var deltas, dones int
	for _, f := range frames[1:] {
		require.Equal(t, EventAIStreamChunk, f.Event)
		var chunk StreamChunkPayload
		require.NoError(t, json.Unmarshal(f.Data, &chunk))
		if chunk.Done {
			dones++
		} else {
			deltas++
			assert.NotEmpty(t, chunk.CorrelationID)
		}
	}
	assert.Equal(t, 4, deltas)
	assert.Equal(t, 2, dones)

	// One failure, reported to the requester only
	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeProviderStreamError, errs[0].Code)
	require.NotNil(t, errs[0].PersonaID)
	assert.Equal(t, uint(3), *errs[0].PersonaID)

	// Both successful replies were persisted
	assert.Len(t, gateway.replies(), 2)
	assert.Equal(t, 3, provider.callCount())
}

func TestAIRequestMixedOwnershipBatch(t *testing.T) {
	gateway := &fakeGateway{}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 7, Name: "sage"},
		2: {ID: 2, OwnerID: 99, Name: "not-yours"},
	}}
	provider := &fakeProvider{
		stream: func(_ *ai.Persona, _ []ai.HistoryMessage, onDelta ai.StreamHandler) (string, error) {
			onDelta("hi")
			return "hi", nil
		},
	}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content: "speak",
		Mentions: []Mention{
			{PersonaID: 1, APIKey: "k"},
			{PersonaID: 2, APIKey: "k"},
		},
	})

	frames := drainBroadcasts(orch.hub)
	require.NotEmpty(t, frames)
	assert.Equal(t, EventMessageCreated, frames[0].Event)

	// Only the owned persona ever reaches the room
	for _, f := range frames[1:] {
		require.Equal(t, EventAIStreamChunk, f.Event)
		var chunk StreamChunkPayload
		require.NoError(t, json.Unmarshal(f.Data, &chunk))
		assert.Equal(t, uint(1), chunk.PersonaID)
	}

	// The unowned persona fails requester-side only, leaving its
	// sibling untouched
	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeOwnershipError, errs[0].Code)
	require.NotNil(t, errs[0].PersonaID)
	assert.Equal(t, uint(2), *errs[0].PersonaID)
	assert.Equal(t, 1, provider.callCount())
}

func TestAIRequestRequiresMentions(t *testing.T) {
	gateway := &fakeGateway{}
	orch, client := newTestOrchestrator(gateway, &fakePersonas{}, &fakeProvider{}, Options{})

	orch.HandleAIRequest(client, AIRequestPayload{Content: "hello"})

	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeValidationError, errs[0].Code)
	assert.Empty(t, gateway.appended)
}

func TestAIRequestUnownedPersona(t *testing.T) {
	gateway := &fakeGateway{}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 99, Name: "someone-elses"},
	}}
	provider := &fakeProvider{}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content:  "speak",
		Mentions: []Mention{{PersonaID: 1, APIKey: "k"}},
	})

	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeOwnershipError, errs[0].Code)
	assert.Equal(t, 0, provider.callCount())

	// The human message itself still went out
	frames := drainBroadcasts(orch.hub)
	require.Len(t, frames, 1)
	assert.Equal(t, EventMessageCreated, frames[0].Event)
}

func TestAIRequestMissingCredential(t *testing.T) {
	gateway := &fakeGateway{}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 7, Name: "sage"},
	}}
	provider := &fakeProvider{}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{AllowServerCredential: false})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content:  "speak",
		Mentions: []Mention{{PersonaID: 1}},
	})

	errs := streamErrors(t, drainClient(client))
	require.Len(t, errs, 1)
	assert.Equal(t, CodeMissingCredential, errs[0].Code)
	assert.Equal(t, 0, provider.callCount())
}

func TestAIRequestContextFetchFailureDegrades(t *testing.T) {
	gateway := &fakeGateway{recentErr: errors.New("cache and db down")}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 7, Name: "sage"},
	}}
	var gotHistory []ai.HistoryMessage
	provider := &fakeProvider{
		stream: func(_ *ai.Persona, history []ai.HistoryMessage, onDelta ai.StreamHandler) (string, error) {
			gotHistory = history
			onDelta("ok")
			return "ok", nil
		},
	}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content:  "speak",
		Mentions: []Mention{{PersonaID: 1, APIKey: "k"}},
	})

	// The stream still ran, with an empty context window
	assert.Equal(t, 1, provider.callCount())
	assert.Empty(t, gotHistory)
	assert.Empty(t, streamErrors(t, drainClient(client)))
}

func TestAIRequestSharesContextWindow(t *testing.T) {
	gateway := &fakeGateway{recent: []models.Message{
		{ID: 11, Content: "earlier human", AuthorID: 7},
		{ID: 12, Content: "earlier reply", PersonaID: uintPtr(1)},
	}}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 7, Name: "sage"},
		2: {ID: 2, OwnerID: 7, Name: "jester"},
	}}

	var mu sync.Mutex
	histories := make([][]ai.HistoryMessage, 0, 2)
	provider := &fakeProvider{
		stream: func(_ *ai.Persona, history []ai.HistoryMessage, _ ai.StreamHandler) (string, error) {
			mu.Lock()
			histories = append(histories, history)
			mu.Unlock()
			return "done", nil
		},
	}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content: "speak",
		Mentions: []Mention{
			{PersonaID: 1, APIKey: "k"},
			{PersonaID: 2, APIKey: "k"},
		},
	})

	require.Len(t, histories, 2)
	for _, history := range histories {
		require.Len(t, history, 2)
		assert.Equal(t, "user", history[0].Role)
		assert.Equal(t, "assistant", history[1].Role)
	}
}

func TestAIRequestContextExcludesOwnMessage(t *testing.T) {
	// The fake gateway assigns id 1 to the appended request message;
	// a Recent window that already contains it must not feed it back
	// as history.
	gateway := &fakeGateway{recent: []models.Message{
		{ID: 9, Content: "earlier human", AuthorID: 7},
		{ID: 1, Content: "speak", AuthorID: 7},
	}}
	personas := &fakePersonas{personas: map[uint]*models.Persona{
		1: {ID: 1, OwnerID: 7, Name: "sage"},
	}}
	var gotHistory []ai.HistoryMessage
	provider := &fakeProvider{
		stream: func(_ *ai.Persona, history []ai.HistoryMessage, _ ai.StreamHandler) (string, error) {
			gotHistory = history
			return "done", nil
		},
	}
	orch, client := newTestOrchestrator(gateway, personas, provider, Options{})

	orch.HandleAIRequest(client, AIRequestPayload{
		Content:  "speak",
		Mentions: []Mention{{PersonaID: 1, APIKey: "k"}},
	})

	require.Len(t, gotHistory, 1)
	assert.Equal(t, "earlier human", gotHistory[0].Content)
}

func uintPtr(v uint) *uint { return &v }
