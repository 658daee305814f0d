package chatbot_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/chatbot"
	"github.com/sharpie78/nova/httpapi"
	"github.com/sharpie78/nova/store"
)

const testModel = "llama3"

type fixture struct {
	backend *httpapi.Backend
	server  *httptest.Server
	client  *chatbot.Client
	store   *store.MemoryStore
	session *chatbot.Session
	sink    *recordingSink
	disp    *chatbot.Dispatcher
}

// newFixture starts a stand-in backend. wrap, if given, can intercept requests before
// they reach it.
func newFixture(t *testing.T, wrap func(http.Handler) http.Handler) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	f := &fixture{backend: httpapi.NewBackend(testModel), store: store.NewMemoryStore(), sink: &recordingSink{}}

	var h http.Handler = httpapi.NewRouter(io.Discard, f.backend)
	if wrap != nil {
		h = wrap(h)
	}
	f.server = httptest.NewServer(h)
	t.Cleanup(f.server.Close)

	f.client = chatbot.NewClient(f.server.URL, 5*time.Second, log)
	f.session = chatbot.NewSession(f.client, f.store, chatbot.NewChatCache(1<<20), log)
	f.disp = chatbot.NewDispatcher(f.session, f.sink, log)
	t.Cleanup(f.disp.Wait)

	require.NoError(t, f.session.SetModel(context.Background(), testModel))
	return f
}

func (f *fixture) chunks(chunks ...string) {
	f.backend.ChatReply = func(*chatbot.ChatRequest) []string { return chunks }
}

type recordingSink struct {
	mu        sync.Mutex
	appended  []api.Message
	metas     []*chatbot.AgentMeta
	thinking  int
	streamed  []string
	ended     int
	rationale []string
	notices   []string
	errors    []string
}

func (s *recordingSink) AppendMessage(msg api.Message, meta *chatbot.AgentMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, msg)
	s.metas = append(s.metas, meta)
}

func (s *recordingSink) ShowThinking() {
	s.mu.Lock()
	s.thinking++
	s.mu.Unlock()
}

func (s *recordingSink) UpdateStream(visible string) {
	s.mu.Lock()
	s.streamed = append(s.streamed, visible)
	s.mu.Unlock()
}

func (s *recordingSink) EndStream() {
	s.mu.Lock()
	s.ended++
	s.mu.Unlock()
}

func (s *recordingSink) ShowRationale(thinking string) {
	s.mu.Lock()
	s.rationale = append(s.rationale, thinking)
	s.mu.Unlock()
}

func (s *recordingSink) ShowNotice(text string) {
	s.mu.Lock()
	s.notices = append(s.notices, text)
	s.mu.Unlock()
}

func (s *recordingSink) ShowError(text string) {
	s.mu.Lock()
	s.errors = append(s.errors, text)
	s.mu.Unlock()
}

func (s *recordingSink) lastStream() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streamed) == 0 {
		return ""
	}
	return s.streamed[len(s.streamed)-1]
}

func user(c string) api.Message      { return api.Message{Role: api.RoleUser, Content: c} }
func assistant(c string) api.Message { return api.Message{Role: api.RoleAssistant, Content: c} }
func system(c string) api.Message    { return api.Message{Role: api.RoleSystem, Content: c} }
