package chatbot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sharpie78/nova/api"
)

// ChatRequest is the request body for the streaming chat endpoint
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []api.Message `json:"messages"`
}

// AgentRequest is the request body for the agent endpoint
type AgentRequest struct {
	Model    string        `json:"model"`
	Message  string        `json:"message"`
	ToolHint api.AgentHint `json:"tool_hint,omitempty"` // omitted for auto
	ChatID   string        `json:"chat_id,omitempty"`
	Username string        `json:"username,omitempty"` // only sent when there is no chat id
}

// AgentResponse is the consolidated answer from the agent endpoint
type AgentResponse struct {
	Answer    string    `json:"answer"`
	Error     string    `json:"error,omitempty"`
	Steps     int       `json:"steps,omitempty"`
	ToolsUsed []ToolUse `json:"tools_used,omitempty"`
	Sources   []Source  `json:"sources,omitempty"`
}

// ToolUse records one tool invocation made by the agent
type ToolUse struct {
	Kind string `json:"kind"` // Memory, RAG, Web, Time, Editor, Clipboard
}

// Source is provenance for an agent answer
type Source struct {
	Kind       string `json:"kind"` // "file" or "url"
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// CoreMemoryResponse lists the pinned core-memory messages
type CoreMemoryResponse struct {
	ChatID   string            `json:"chat_id,omitempty"`
	Messages []api.CoreMessage `json:"messages"`
}

// NewChatResponse is returned when the backend allocates a chat
type NewChatResponse struct {
	ChatID   string            `json:"chat_id"`
	Messages []api.CoreMessage `json:"messages,omitempty"`
}

// CreateChatRequest names a saved chat
type CreateChatRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

// ChatSummary is one entry of the saved chat list
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
	Model     string    `json:"model,omitempty"`
}

// isoLayout is the backend's timestamp format: ISO 8601 in UTC without an offset
const isoLayout = "2006-01-02T15:04:05.999999"

// Timestamp is a time the backend writes without a zone offset. Offset-less values are
// read as UTC; RFC 3339 values are also accepted.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	v, err := time.ParseInLocation(isoLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("could not parse timestamp %q: %w", s, err)
	}
	t.Time = v
	return nil
}

// MarshalJSON implements json.Marshaler, writing the backend's format
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(isoLayout))
}

// ChatResponse holds the messages of one saved chat
type ChatResponse struct {
	ChatID   string        `json:"chat_id,omitempty"`
	Messages []api.Message `json:"messages"`
}

// SaveMessageResponse acknowledges a persisted message
type SaveMessageResponse struct {
	Status    string `json:"status"`
	MessageID int64  `json:"message_id,omitempty"`
}

// StatusResponse is the generic {"status": ...} acknowledgement
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TagRequest tags a persisted message
type TagRequest struct {
	Tag string `json:"tag"`
}

// MemoryMatch is one similarity search result
type MemoryMatch struct {
	Role    api.Role `json:"role"`
	Content string   `json:"content"`
	Score   float64  `json:"score"`
}

// MemoryQueryResponse holds similarity search results
type MemoryQueryResponse struct {
	Matches []MemoryMatch `json:"matches"`
}

// MessagesResponse is a plain message list
type MessagesResponse struct {
	Messages []api.Message `json:"messages"`
}

// ModelsResponse lists the models the backend can run
type ModelsResponse struct {
	Models []string `json:"models"`
}

// Status values
const (
	StatusOK      = "ok"
	StatusDeleted = "deleted"
)
