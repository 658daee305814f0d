package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sharpie78/nova/api"
)

// DefaultBackend is the address the desktop backend listens on
const DefaultBackend = "http://127.0.0.1:56969"

const streamReadSize = 4096

// StreamChunk is a piece of a streaming chat response
type StreamChunk struct {
	Data []byte
	Err  error
}

// Client talks to the Nova backend over HTTP
type Client struct {
	endpoint   string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx
	streamClient *http.Client
	log          *zap.Logger
}

// NewClient creates a new backend client. timeout bounds every non-streaming request.
func NewClient(endpoint string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		log:          log,
	}
}

// Endpoint returns the backend base address
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &api.Error{Description: "Could not marshal request", Type: api.ErrorTypePayload, Err: err}
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, r)
	if err != nil {
		return nil, &api.Error{Description: "Could not create request", Type: api.ErrorTypeTransport, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends a JSON request and decodes the JSON response into out (if non-nil)
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &api.Error{Description: fmt.Sprintf("%s %s failed", method, path), Type: api.ErrorTypeTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &api.Error{
			Description: fmt.Sprintf("%s %s", method, path),
			Type:        api.ErrorTypeStatus,
			Status:      resp.StatusCode,
			Err:         errors.New(strings.TrimSpace(string(respBody))),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &api.Error{Description: fmt.Sprintf("Could not decode %s %s response", method, path), Type: api.ErrorTypePayload, Err: err}
	}
	return nil
}

// CoreMemory returns the pinned core-memory messages
func (c *Client) CoreMemory(ctx context.Context) ([]api.CoreMessage, error) {
	var resp CoreMemoryResponse
	if err := c.do(ctx, http.MethodGet, "/chat-memory/core", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// AddCoreMemory pins msg to core memory and returns its message id
func (c *Client) AddCoreMemory(ctx context.Context, msg api.Message) (int64, error) {
	var resp SaveMessageResponse
	if err := c.do(ctx, http.MethodPost, "/chat-memory/core", msg, &resp); err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// DeleteCoreMemory unpins the core-memory message with the given id
func (c *Client) DeleteCoreMemory(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/chat-memory/core/"+strconv.FormatInt(id, 10), nil, nil)
}

// NewChat allocates a fresh chat. temp marks it as not recorded in history.
func (c *Client) NewChat(ctx context.Context, username string, temp bool) (*NewChatResponse, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("temp", strconv.FormatBool(temp))

	var resp NewChatResponse
	if err := c.do(ctx, http.MethodGet, "/chat-memory/new?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.ChatID == "" {
		return nil, &api.Error{Description: "New chat response", Type: api.ErrorTypePayload, Err: errors.New("chat_id missing")}
	}
	return &resp, nil
}

// SaveMessage appends msg to the chat and returns the backend message id (0 if none was returned)
func (c *Client) SaveMessage(ctx context.Context, chatID string, msg api.Message) (int64, error) {
	var resp SaveMessageResponse
	if err := c.do(ctx, http.MethodPost, "/chat-memory/"+url.PathEscape(chatID), msg, &resp); err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// Embed asks the backend to embed every message of the chat into memory
func (c *Client) Embed(ctx context.Context, chatID string) error {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/chat-memory/embed/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return &api.Error{Description: "Embedding failed", Type: api.ErrorTypePayload, Err: fmt.Errorf("status %q", resp.Status)}
	}
	return nil
}

// Tag attaches tag to a persisted message
func (c *Client) Tag(ctx context.Context, messageID int64, tag string) error {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/chat-memory/tag/"+strconv.FormatInt(messageID, 10), TagRequest{Tag: tag}, &resp); err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return &api.Error{Description: "Tagging failed", Type: api.ErrorTypePayload, Err: fmt.Errorf("status %q", resp.Status)}
	}
	return nil
}

// MessagesByTag returns every persisted message carrying tag
func (c *Client) MessagesByTag(ctx context.Context, tag string) ([]api.Message, error) {
	var resp MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/chat-memory/tag/"+url.PathEscape(tag), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// QueryMemory runs a similarity search over embedded messages
func (c *Client) QueryMemory(ctx context.Context, q string) ([]MemoryMatch, error) {
	var resp MemoryQueryResponse
	if err := c.do(ctx, http.MethodGet, "/chat-memory/query?q="+url.QueryEscape(q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// CreateChat creates a named saved chat and returns its id
func (c *Client) CreateChat(ctx context.Context, title, model string) (string, error) {
	var resp NewChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat-memory", CreateChatRequest{Title: title, Model: model}, &resp); err != nil {
		return "", err
	}
	if resp.ChatID == "" {
		return "", &api.Error{Description: "Create chat response", Type: api.ErrorTypePayload, Err: errors.New("chat_id missing")}
	}
	return resp.ChatID, nil
}

// ListChats returns the saved chats, newest first
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var resp []ChatSummary
	if err := c.do(ctx, http.MethodGet, "/chat-memory", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Chat returns the messages of a saved chat
func (c *Client) Chat(ctx context.Context, chatID string) ([]api.Message, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodGet, "/chat-memory/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteChat deletes a saved chat
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodDelete, "/chat-memory/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return err
	}
	if resp.Status != StatusDeleted {
		return &api.Error{Description: "Delete chat", Type: api.ErrorTypePayload, Err: fmt.Errorf("status %q", resp.Status)}
	}
	return nil
}

// Models lists the models the backend can run
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var resp ModelsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Agent makes a single tool-augmented request. A response without a usable answer is an error.
func (c *Client) Agent(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	if req.ToolHint == api.HintAuto {
		req.ToolHint = ""
	}
	if req.ChatID != "" {
		req.Username = ""
	}

	var resp AgentResponse
	if err := c.do(ctx, http.MethodPost, "/agent", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &api.Error{Description: "Agent returned an error", Type: api.ErrorTypePayload, Err: errors.New(resp.Error)}
	}
	resp.Answer = strings.TrimSpace(resp.Answer)
	if resp.Answer == "" {
		return nil, &api.Error{Description: "Agent answer", Type: api.ErrorTypeEmpty, Err: errors.New("empty answer")}
	}
	return &resp, nil
}

// ChatStream makes a streaming chat request. The returned channel yields raw body
// chunks in arrival order and is closed at end of stream; a read failure is
// delivered as a final chunk with Err set.
func (c *Client) ChatStream(ctx context.Context, model string, messages []api.Message) (<-chan StreamChunk, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", ChatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, &api.Error{Description: "POST /api/chat failed", Type: api.ErrorTypeTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &api.Error{
			Description: "POST /api/chat",
			Type:        api.ErrorTypeStatus,
			Status:      resp.StatusCode,
			Err:         errors.New(strings.TrimSpace(string(respBody))),
		}
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		buf := make([]byte, streamReadSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case ch <- StreamChunk{Data: data}:
				case <-ctx.Done():
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case ch <- StreamChunk{Err: &api.Error{Description: "Could not read stream", Type: api.ErrorTypeTransport, Err: err}}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return ch, nil
}
