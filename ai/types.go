package ai

// Persona carries the character definition a completion is generated for
type Persona struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	ModelName   string `json:"model_name"`
}

// ProviderConfig is the per-request provider credential and model
// selection. It is never persisted and is scoped to a single request.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
}

// HistoryMessage is one turn of conversational context
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamHandler receives content deltas as they arrive. Returning an
// error aborts the stream.
type StreamHandler func(delta string) error
