package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/pkg/resilience"
)

// ErrNoCredential is returned when no API key is available for a request
var ErrNoCredential = errors.New("no provider credential available")

// Provider is the streaming completion generator the orchestrator
// invokes once per mentioned persona
type Provider interface {
	StreamCompletion(ctx context.Context, persona *Persona, cfg ProviderConfig, history []HistoryMessage, userMessage, userName string, onDelta StreamHandler) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint with
// streaming enabled. Endpoint and model default from configuration and
// may be overridden per request.
type Client struct {
	httpClient   *http.Client
	defaultBase  string
	defaultModel string

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker

	log *logger.Logger
}

// NewClient creates a provider client from application configuration
func NewClient() *Client {
	cfg := config.Get()
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.AI.RequestTimeout},
		defaultBase:  cfg.AI.BaseURL,
		defaultModel: cfg.AI.DefaultModel,
		breakers:     make(map[string]*resilience.CircuitBreaker),
		log:          logger.GetGlobal().WithComponent("ai_provider"),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StreamCompletion generates a reply for the persona, invoking onDelta
// for every content delta as it arrives, and returns the full text.
func (c *Client) StreamCompletion(ctx context.Context, persona *Persona, cfg ProviderConfig, history []HistoryMessage, userMessage, userName string, onDelta StreamHandler) (string, error) {
	if cfg.APIKey == "" {
		return "", ErrNoCredential
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = c.defaultBase
	}
	model := cfg.Model
	if model == "" {
		model = persona.ModelName
	}
	if model == "" {
		model = c.defaultModel
	}

	var full string
	breaker := c.breakerFor(baseURL, model)
	err := breaker.Execute(func() error {
		var streamErr error
		full, streamErr = c.doStream(ctx, persona, baseURL, model, cfg.APIKey, history, userMessage, userName, onDelta)
		return streamErr
	})
	if err != nil {
		return "", err
	}
	return full, nil
}

func (c *Client) doStream(ctx context.Context, persona *Persona, baseURL, model, apiKey string, history []HistoryMessage, userMessage, userName string, onDelta StreamHandler) (string, error) {
	systemPrompt := fmt.Sprintf(
		"You are %s. %s Your personality traits are: %s. You are chatting in a public room; messages are prefixed with the sender's name. Respond in character, being concise and engaging.",
		persona.Name,
		persona.Description,
		persona.Personality,
	)

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	messages = append(messages, toChatMessages(history)...)
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: fmt.Sprintf("%s: %s", userName, userMessage),
	})

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Warn("skipping malformed stream chunk", "error", err.Error())
			continue
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("provider error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			full.WriteString(delta)
			if err := onDelta(delta); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read completion stream: %w", err)
	}

	c.log.Debug("completion stream finished",
		"persona_id", persona.ID,
		"model", model,
		"chars", full.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return full.String(), nil
}

// breakerFor returns the circuit breaker guarding one endpoint+model pair
func (c *Client) breakerFor(baseURL, model string) *resilience.CircuitBreaker {
	key := baseURL + "|" + model
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	if breaker, ok := c.breakers[key]; ok {
		return breaker
	}
	breaker := resilience.NewCircuitBreaker(resilience.DefaultConfig("ai:"+key), c.log)
	c.breakers[key] = breaker
	return breaker
}

func toChatMessages(history []HistoryMessage) []chatMessage {
	out := make([]chatMessage, 0, len(history))
	for _, h := range history {
		out = append(out, chatMessage{Role: h.Role, Content: h.Content})
	}
	return out
}
