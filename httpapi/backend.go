package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/bridge"
	"github.com/sharpie78/nova/chatbot"
)

//maxMatches is how many memory matches a query returns
const maxMatches = 10

type storedMessage struct {
	ID      int64
	Role    api.Role
	Content string
	Tags    []string
}

type chat struct {
	ID        string
	Title     string
	Model     string
	Username  string
	Temp      bool
	Embedded  bool
	CreatedAt time.Time
	Messages  []*storedMessage
}

//Backend is an in-memory stand-in for the Nova desktop backend. Its hooks must be set
//before it serves requests.
type Backend struct {
	//ChatReply returns the body chunks streamed for a chat request
	ChatReply func(req *chatbot.ChatRequest) []string
	//AgentReply answers an agent request with a status code and body
	AgentReply func(req *chatbot.AgentRequest) (int, *chatbot.AgentResponse)
	//Query scores stored messages against a memory search
	Query func(q string) []chatbot.MemoryMatch

	//SnapshotTimeout bounds how long a snapshot request waits for the editor
	SnapshotTimeout time.Duration

	mu       sync.Mutex
	nextID   int64
	core     []api.CoreMessage
	chats    map[string]*chat
	messages map[int64]*storedMessage
	settings map[string]json.RawMessage
	models   []string
	requests []string

	upgrader websocket.Upgrader
	editors  map[string]*editorClient
	pending  map[string]chan bridge.SnapshotReply
}

//NewBackend returns an empty Backend offering models
func NewBackend(models ...string) *Backend {
	b := &Backend{
		SnapshotTimeout: 3 * time.Second,
		chats:           make(map[string]*chat),
		messages:        make(map[int64]*storedMessage),
		settings:        make(map[string]json.RawMessage),
		models:          models,
		editors:         make(map[string]*editorClient),
		pending:         make(map[string]chan bridge.SnapshotReply),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	b.ChatReply = echoReply
	b.AgentReply = echoAgent
	b.Query = b.wordOverlap
	return b
}

//echoReply streams the last user message back word by word
func echoReply(req *chatbot.ChatRequest) []string {
	var last string
	for _, m := range req.Messages {
		if m.Role == api.RoleUser {
			last = m.Content
		}
	}
	var chunks []string
	for i, w := range strings.Fields("You said: " + last) {
		if i > 0 {
			w = " " + w
		}
		chunks = append(chunks, w)
	}
	return chunks
}

func echoAgent(req *chatbot.AgentRequest) (int, *chatbot.AgentResponse) {
	return http.StatusOK, &chatbot.AgentResponse{Answer: "Agent heard: " + req.Message, Steps: 1}
}

func (b *Backend) record(req string) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
}

//Requests returns every routed request as "METHOD /path", oldest first
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

//Count returns how many routed requests match "METHOD /path" exactly
func (b *Backend) Count(req string) int {
	n := 0
	for _, r := range b.Requests() {
		if r == req {
			n++
		}
	}
	return n
}

//SetCore replaces core memory
func (b *Backend) SetCore(msgs ...api.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.core = nil
	for _, m := range msgs {
		b.nextID++
		b.core = append(b.core, api.CoreMessage{ID: b.nextID, Role: m.Role, Content: m.Content})
	}
}

func (b *Backend) addCore(m api.Message) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.core = append(b.core, api.CoreMessage{ID: b.nextID, Role: m.Role, Content: m.Content})
	return b.nextID
}

func (b *Backend) deleteCore(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.core {
		if m.ID == id {
			b.core = append(b.core[:i], b.core[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Backend) coreMessages() []api.CoreMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.CoreMessage{}, b.core...)
}

func (b *Backend) createChat(title, model, username string, temp bool) *chat {
	c := &chat{
		ID:        uuid.NewString(),
		Title:     title,
		Model:     model,
		Username:  username,
		Temp:      temp,
		CreatedAt: time.Now(),
	}
	b.mu.Lock()
	b.chats[c.ID] = c
	b.mu.Unlock()
	return c
}

//Messages returns the messages stored for a chat
func (b *Backend) Messages(chatID string) ([]api.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[chatID]
	if !ok {
		return nil, false
	}
	msgs := make([]api.Message, len(c.Messages))
	for i, m := range c.Messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return msgs, true
}

func (b *Backend) saveMessage(chatID string, m api.Message) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[chatID]
	if !ok {
		return 0, false
	}
	b.nextID++
	sm := &storedMessage{ID: b.nextID, Role: m.Role, Content: m.Content}
	c.Messages = append(c.Messages, sm)
	b.messages[sm.ID] = sm
	return sm.ID, true
}

func (b *Backend) embed(chatID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[chatID]
	if ok {
		c.Embedded = true
	}
	return ok
}

func (b *Backend) tag(messageID int64, tag string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.messages[messageID]
	if !ok {
		return false
	}
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	m.Tags = append(m.Tags, tag)
	return true
}

func (b *Backend) tagged(tag string) []api.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, 0)
	for id, m := range b.messages {
		for _, t := range m.Tags {
			if t == tag {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	msgs := make([]api.Message, 0, len(ids))
	for _, id := range ids {
		m := b.messages[id]
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

//savedChats returns titled, non-temporary chats, newest first
func (b *Backend) savedChats() []chatbot.ChatSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]chatbot.ChatSummary, 0, len(b.chats))
	for _, c := range b.chats {
		if c.Temp || c.Title == "" {
			continue
		}
		list = append(list, chatbot.ChatSummary{ID: c.ID, Title: c.Title, CreatedAt: chatbot.Timestamp{Time: c.CreatedAt}, Model: c.Model})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt.Time) })
	return list
}

func (b *Backend) deleteChat(chatID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[chatID]
	if !ok {
		return false
	}
	for _, m := range c.Messages {
		delete(b.messages, m.ID)
	}
	delete(b.chats, chatID)
	return true
}

//wordOverlap scores messages of embedded, non-temporary chats by the share of query
//words they contain
func (b *Backend) wordOverlap(q string) []chatbot.MemoryMatch {
	words := strings.Fields(strings.ToLower(q))
	if len(words) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var matches []chatbot.MemoryMatch
	for _, c := range b.chats {
		if c.Temp || !c.Embedded {
			continue
		}
		for _, m := range c.Messages {
			content := strings.ToLower(m.Content)
			hits := 0
			for _, w := range words {
				if strings.Contains(content, w) {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			matches = append(matches, chatbot.MemoryMatch{
				Role:    m.Role,
				Content: m.Content,
				Score:   float64(hits) / float64(len(words)),
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

//Settings returns the settings document stored for username
func (b *Backend) Settings(username string) (json.RawMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.settings[username]
	return s, ok
}

//SetSettings stores the settings document for username
func (b *Backend) SetSettings(username string, doc json.RawMessage) {
	b.mu.Lock()
	b.settings[username] = append(json.RawMessage(nil), doc...)
	b.mu.Unlock()
}
