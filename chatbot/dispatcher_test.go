package chatbot_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/chatbot"
)

func TestSendStreamsAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.chunks("Hi ", "there")

	require.NoError(t, f.disp.Send(context.Background(), "Hello"))

	assert.Equal(t, []api.Message{user("Hello"), assistant("Hi there")}, f.session.Transcript().Messages())
	assert.Equal(t, "Hi there", f.sink.lastStream())
	assert.Equal(t, 1, f.sink.thinking)
	assert.Equal(t, 1, f.sink.ended)
	assert.Empty(t, f.sink.errors)
	assert.Empty(t, f.sink.rationale)
}

func TestSendSeparatesThinking(t *testing.T) {
	f := newFixture(t, nil)
	f.chunks("<thi", "nk>reason", "ing</th", "ink>Final answer")

	require.NoError(t, f.disp.Send(context.Background(), "Hello"))

	assert.Equal(t, []api.Message{user("Hello"), assistant("Final answer")}, f.session.Transcript().Messages())
	assert.Equal(t, "Final answer", f.sink.lastStream())
	assert.Equal(t, []string{"reasoning"}, f.sink.rationale)
	for _, s := range f.sink.streamed {
		assert.NotContains(t, s, "<")
	}
}

func TestSendThinkingOnlyAddsNoAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.chunks("<think>just pondering")

	require.NoError(t, f.disp.Send(context.Background(), "Hello"))

	assert.Equal(t, []api.Message{user("Hello")}, f.session.Transcript().Messages())
	assert.Equal(t, []string{"just pondering"}, f.sink.rationale)
}

func TestSendAgentEmptyAnswerFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.session.SetAgent(ctx, true, api.HintAuto))

	f.backend.AgentReply = func(*chatbot.AgentRequest) (int, *chatbot.AgentResponse) {
		return http.StatusOK, &chatbot.AgentResponse{Answer: "   "}
	}
	f.chunks("from ", "the stream")

	require.NoError(t, f.disp.Send(ctx, "What time is it?"))

	msgs := f.session.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, assistant("from the stream"), msgs[1])
	assert.Equal(t, 1, f.backend.Count("POST /agent"))
	assert.Equal(t, 1, f.backend.Count("POST /api/chat"))
	assert.Equal(t, []string{chatbot.AgentFallbackNotice}, f.sink.notices)
}

func TestSendAgentFailuresFallBack(t *testing.T) {
	replies := map[string]func(*chatbot.AgentRequest) (int, *chatbot.AgentResponse){
		"status": func(*chatbot.AgentRequest) (int, *chatbot.AgentResponse) {
			return http.StatusBadGateway, &chatbot.AgentResponse{}
		},
		"error field": func(*chatbot.AgentRequest) (int, *chatbot.AgentResponse) {
			return http.StatusOK, &chatbot.AgentResponse{Answer: "half an answer", Error: "tool crashed"}
		},
	}

	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			require.NoError(t, f.session.SetAgent(ctx, true, api.HintWeb))
			f.backend.AgentReply = reply
			f.chunks("streamed")

			require.NoError(t, f.disp.Send(ctx, "look it up"))

			assert.Equal(t, []api.Message{user("look it up"), assistant("streamed")}, f.session.Transcript().Messages())
			assert.Equal(t, []string{chatbot.AgentFallbackNotice}, f.sink.notices)
		})
	}
}

func TestSendAgentAddsExactlyTwoMessages(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Restore(ctx))
	require.NoError(t, f.session.SetAgent(ctx, true, api.HintRAG))

	f.session.Transcript().Append(user("earlier"))
	f.session.Transcript().Append(assistant("earlier reply"))
	before := f.session.Transcript().Len()

	var got *chatbot.AgentRequest
	f.backend.AgentReply = func(req *chatbot.AgentRequest) (int, *chatbot.AgentResponse) {
		got = req
		return http.StatusOK, &chatbot.AgentResponse{
			Answer:    "  The file says hello.  ",
			ToolsUsed: []chatbot.ToolUse{{Kind: "RAG"}, {Kind: "Time"}, {Kind: "RAG"}},
			Sources:   []chatbot.Source{{Kind: "file", Path: "/notes/hello.txt"}},
		}
	}

	require.NoError(t, f.disp.Send(ctx, "what is in hello.txt?"))
	f.disp.Wait()

	msgs := f.session.Transcript().Messages()
	require.Len(t, msgs, before+2)
	assert.Equal(t, user("what is in hello.txt?"), msgs[before])
	assert.Equal(t, assistant("The file says hello."), msgs[before+1])
	assert.Zero(t, f.backend.Count("POST /api/chat"))

	require.NotNil(t, got)
	assert.Equal(t, testModel, got.Model)
	assert.Equal(t, api.HintRAG, got.ToolHint)
	assert.Equal(t, f.session.CurrentChatID(), got.ChatID)
	assert.Empty(t, got.Username)

	require.Len(t, f.sink.metas, 2)
	assert.Nil(t, f.sink.metas[0])
	meta := f.sink.metas[1]
	require.NotNil(t, meta)
	assert.Equal(t, "RAG, Time", meta.Badge)
	assert.Equal(t, "/notes/hello.txt", meta.Sources[0].Path)

	stored, ok := f.backend.Messages(f.session.CurrentChatID())
	require.True(t, ok)
	assert.Equal(t, []api.Message{user("what is in hello.txt?"), assistant("The file says hello.")}, stored)
}

func TestSendPersistsAndTags(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Restore(ctx))
	f.chunks("Noted.")

	require.NoError(t, f.disp.Send(ctx, "my cat is called Pixel"))
	f.disp.Wait()

	assert.Equal(t, 2, f.backend.Count("POST /chat-memory/"+f.session.CurrentChatID()))
	assert.Equal(t, 2, f.backend.Count("POST /chat-memory/embed/"+f.session.CurrentChatID()))

	tagged, err := f.client.MessagesByTag(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, []api.Message{user("my cat is called Pixel")}, tagged)

	tagged, err = f.client.MessagesByTag(ctx, "assistant")
	require.NoError(t, err)
	assert.Equal(t, []api.Message{assistant("Noted.")}, tagged)
}

func TestSendWithoutChatIDDoesNotPersist(t *testing.T) {
	f := newFixture(t, nil)
	f.chunks("ok")

	require.NoError(t, f.disp.Send(context.Background(), "Hello"))
	f.disp.Wait()

	for _, r := range f.backend.Requests() {
		assert.False(t, strings.HasPrefix(r, "POST /chat-memory/"), r)
	}
}

func TestSendPreconditions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	rev := f.session.Transcript().Revision()

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, f.disp.Send(ctx, text), chatbot.ErrEmptyMessage)
	}

	require.NoError(t, f.session.SetModel(ctx, ""))
	assert.ErrorIs(t, f.disp.Send(ctx, "Hello"), chatbot.ErrNoModel)

	assert.Empty(t, f.backend.Requests())
	assert.Equal(t, rev, f.session.Transcript().Revision())
	assert.Zero(t, f.session.Transcript().Len())
	assert.Zero(t, f.sink.thinking)
}

func TestSendStreamErrorShownOnce(t *testing.T) {
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/chat" {
				http.Error(w, "model exploded", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	err := f.disp.Send(context.Background(), "Hello")
	require.Error(t, err)
	assert.True(t, api.IsType(err, api.ErrorTypeStatus))

	var e *api.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusInternalServerError, e.Status)

	assert.Equal(t, []api.Message{user("Hello")}, f.session.Transcript().Messages())
	assert.Len(t, f.sink.errors, 1)
}

func TestSendRejectsOverlappingTurn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	release := make(chan struct{})
	f.backend.ChatReply = func(*chatbot.ChatRequest) []string {
		<-release
		return []string{"done"}
	}

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = f.disp.Send(ctx, "first")
	}()

	require.Eventually(t, func() bool {
		return f.backend.Count("POST /api/chat") == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, f.disp.Send(ctx, "second"), chatbot.ErrTurnInFlight)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)

	assert.Equal(t, []api.Message{user("first"), assistant("done")}, f.session.Transcript().Messages())
}

func TestSendInjectsRecalledMemory(t *testing.T) {
	f := newFixture(t, nil)

	var queried string
	f.backend.Query = func(q string) []chatbot.MemoryMatch {
		queried = q
		return []chatbot.MemoryMatch{
			{Role: api.RoleUser, Content: "the budget is 5k", Score: 0.92},
			{Role: api.RoleAssistant, Content: "weather is nice", Score: 0.5},
		}
	}

	var sent []api.Message
	f.backend.ChatReply = func(req *chatbot.ChatRequest) []string {
		sent = req.Messages
		return []string{"You said 5k."}
	}

	require.NoError(t, f.disp.Send(context.Background(), "did i say anything about budget?"))

	assert.Equal(t, "did i say anything about budget?", queried)

	memory := system(chatbot.MemoryPreamble + `You previously said: "the budget is 5k"`)
	assert.Equal(t, []api.Message{user("did i say anything about budget?"), memory}, sent)
	assert.Equal(t, []api.Message{
		user("did i say anything about budget?"),
		memory,
		assistant("You said 5k."),
	}, f.session.Transcript().Messages())
}

func TestSendSkipsMemoryWithoutChatHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetChatHistory(false)
	f.backend.SetCore(system("pinned"))
	f.chunks("sure")

	require.NoError(t, f.disp.Send(context.Background(), "remember the milk"))

	assert.Zero(t, f.backend.Count("GET /chat-memory/query"))
	assert.Zero(t, f.backend.Count("GET /chat-memory/core"))
	assert.Equal(t, []api.Message{user("remember the milk"), assistant("sure")}, f.session.Transcript().Messages())
}

func TestSendReinjectsCoreMemory(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.SetCore(system("You are Nova."), system(" Be brief. "))

	var sent []api.Message
	f.backend.ChatReply = func(req *chatbot.ChatRequest) []string {
		sent = req.Messages
		return []string{"Hi"}
	}

	require.NoError(t, f.disp.Send(context.Background(), "Hello"))

	prefix := system("You are Nova.\n\nBe brief.")
	assert.Equal(t, []api.Message{prefix, user("Hello")}, sent)
	assert.Equal(t, []api.Message{prefix, user("Hello"), assistant("Hi")}, f.session.Transcript().Messages())
}

func TestSendMergesCoreMemoryOfNewChat(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.backend.SetCore(system("You are Nova."), system("Be brief."))

	require.NoError(t, f.session.Restore(ctx))
	prefix := system("You are Nova.\n\nBe brief.")
	assert.Equal(t, []api.Message{prefix}, f.session.Transcript().Messages())

	var sent []api.Message
	f.backend.ChatReply = func(req *chatbot.ChatRequest) []string {
		sent = req.Messages
		return []string{"Hi"}
	}

	require.NoError(t, f.disp.Send(ctx, "Hello"))

	assert.Equal(t, []api.Message{prefix, user("Hello")}, sent)
	assert.Equal(t, []api.Message{prefix, user("Hello"), assistant("Hi")}, f.session.Transcript().Messages())
}

func failChat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/chat" {
			http.Error(w, "model exploded", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func TestSendAgentAndChatFailShowOneError(t *testing.T) {
	f := newFixture(t, failChat)
	ctx := context.Background()
	require.NoError(t, f.session.SetAgent(ctx, true, api.HintAuto))
	f.backend.AgentReply = func(*chatbot.AgentRequest) (int, *chatbot.AgentResponse) {
		return http.StatusBadGateway, &chatbot.AgentResponse{}
	}

	err := f.disp.Send(ctx, "Hello")
	assert.True(t, api.IsType(err, api.ErrorTypeStatus))

	assert.Equal(t, []api.Message{user("Hello")}, f.session.Transcript().Messages())
	assert.Len(t, f.sink.errors, 1)
	assert.Equal(t, []string{chatbot.AgentFallbackNotice}, f.sink.notices)
	assert.Equal(t, 1, f.backend.Count("POST /agent"))
}

func TestSendStreamBrokenMidway(t *testing.T) {
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/chat" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Hal"))
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		})
	})

	err := f.disp.Send(context.Background(), "Hello")
	require.Error(t, err)
	assert.True(t, api.IsType(err, api.ErrorTypeTransport))

	assert.Equal(t, []api.Message{user("Hello")}, f.session.Transcript().Messages())
	assert.Len(t, f.sink.errors, 1)
	assert.Zero(t, f.sink.ended)
}

func TestSendPersistsInOrder(t *testing.T) {
	var saves atomic.Int32
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/chat-memory/")
			isSave := r.Method == http.MethodPost && rest != r.URL.Path && rest != "core" && !strings.Contains(rest, "/")
			if isSave && saves.Add(1) == 1 {
				time.Sleep(200 * time.Millisecond)
			}
			next.ServeHTTP(w, r)
		})
	})
	ctx := context.Background()
	require.NoError(t, f.session.Restore(ctx))
	f.chunks("Noted.")

	require.NoError(t, f.disp.Send(ctx, "my cat is called Pixel"))
	f.disp.Wait()

	stored, ok := f.backend.Messages(f.session.CurrentChatID())
	require.True(t, ok)
	assert.Equal(t, []api.Message{user("my cat is called Pixel"), assistant("Noted.")}, stored)
	assert.EqualValues(t, 2, saves.Load())
}
