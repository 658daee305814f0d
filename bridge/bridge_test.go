package bridge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/sharpie78/nova/bridge"
	"github.com/sharpie78/nova/httpapi"
	"github.com/sharpie78/nova/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var httpClient = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

func TestClientIDStable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	id, err := bridge.ClientID(ctx, s)
	require.NoError(t, err)
	require.Len(t, id, 36)

	again, err := bridge.ClientID(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	stored, ok, err := s.Get(ctx, store.KeyClientID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, stored)

	require.NoError(t, s.Set(ctx, store.KeyClientID, "1700000000000"))
	id, err = bridge.ClientID(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", id)
}

func TestBackoffSequence(t *testing.T) {
	var b bridge.Backoff
	want := []time.Duration{
		500 * time.Millisecond,
		750 * time.Millisecond,
		1125 * time.Millisecond,
		1687500 * time.Microsecond,
		2531250 * time.Microsecond,
		3796875 * time.Microsecond,
		5 * time.Second,
		5 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i)
	}

	b.Reset()
	assert.Equal(t, 500*time.Millisecond, b.Next())
	assert.Equal(t, 750*time.Millisecond, b.Next())
}

func TestWSURL(t *testing.T) {
	u, err := bridge.WSURL("http://127.0.0.1:56969", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:56969/editor/ws?client_id=abc", u)

	u, err = bridge.WSURL("https://nova.example/base/", "a b")
	require.NoError(t, err)
	assert.Equal(t, "wss://nova.example/base/editor/ws?client_id=a+b", u)
}

func TestParseInject(t *testing.T) {
	assert.Equal(t, bridge.ModeReplace, bridge.ParseInjectMode("Replace"))
	assert.Equal(t, bridge.ModeInsert, bridge.ParseInjectMode("overwrite"))
	assert.Equal(t, bridge.PositionEnd, bridge.ParseInjectPosition("end"))
	assert.Equal(t, bridge.PositionCursor, bridge.ParseInjectPosition(""))
}

func TestBufferInject(t *testing.T) {
	b := bridge.NewBuffer("", "hello world")
	b.SetCursor(5)

	b.Inject(",", bridge.ModeInsert, bridge.PositionCursor)
	assert.Equal(t, "hello, world", b.Text())
	assert.Equal(t, 6, b.Cursor())

	b.Inject(">> ", bridge.ModeInsert, bridge.PositionStart)
	assert.Equal(t, ">> hello, world", b.Text())
	assert.Equal(t, 9, b.Cursor())

	b.Inject("!", bridge.ModeInsert, bridge.PositionEnd)
	assert.Equal(t, ">> hello, world!", b.Text())

	b.Inject("\n-- ✓", bridge.ModeAppend, bridge.PositionStart)
	assert.Equal(t, ">> hello, world!\n-- ✓", b.Text())

	b.Inject("fresh", bridge.ModeReplace, bridge.PositionEnd)
	assert.Equal(t, "fresh", b.Text())
	assert.Zero(t, b.Cursor())
}

func TestBufferSnapshot(t *testing.T) {
	b := bridge.NewBuffer("", "one two three")
	b.Select(4, 7)

	s := b.Snapshot(false)
	assert.Nil(t, s.Path)
	assert.Nil(t, s.Selection)
	assert.Equal(t, "one two three", s.Content)

	b.SetPath("/tmp/notes.txt")
	s = b.Snapshot(true)
	require.NotNil(t, s.Path)
	require.NotNil(t, s.Selection)
	assert.Equal(t, "/tmp/notes.txt", *s.Path)
	assert.Equal(t, "two", *s.Selection)
}

func startConn(t *testing.T, url, clientID string, editor bridge.Editor, base time.Duration) *bridge.Conn {
	t.Helper()
	c, err := bridge.NewConn(url, clientID, editor, zaptest.NewLogger(t))
	require.NoError(t, err)
	c.Backoff = bridge.Backoff{Base: base, Max: 4 * base}

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, c.Close())
		require.NoError(t, <-errc)
	})
	return c
}

func TestConnInjectAndSnapshot(t *testing.T) {
	backend := httpapi.NewBackend()
	srv := httptest.NewServer(httpapi.NewRouter(io.Discard, backend))
	t.Cleanup(srv.Close)

	buf := bridge.NewBuffer("/home/sam/todo.md", "- milk\n")
	c := startConn(t, srv.URL, "editor-1", buf, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(backend.EditorClients()) == 1 && c.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	body, _ := json.Marshal(httpapi.InjectRequest{Content: "- eggs\n", Position: "end"})
	resp, err := httpClient.Post(srv.URL+"/editor/agent/inject", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var injected httpapi.InjectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&injected))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "editor-1", injected.ClientID)

	require.Eventually(t, func() bool {
		return buf.Text() == "- milk\n- eggs\n"
	}, 5*time.Second, 10*time.Millisecond)

	buf.Select(2, 6)
	resp, err = httpClient.Get(srv.URL + "/editor/agent/snapshot?client_id=editor-1&selection=true")
	require.NoError(t, err)
	var snap httpapi.SnapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, snap.Path)
	require.NotNil(t, snap.Selection)
	assert.Equal(t, "/home/sam/todo.md", *snap.Path)
	assert.Equal(t, "- milk\n- eggs\n", snap.Content)
	assert.Equal(t, "milk", *snap.Selection)
}

// frameServer accepts editor sockets, sends frames on each, and counts connections.
// The first drop connections are closed right after the frames are sent.
func frameServer(t *testing.T, drop int32, frames ...string) (*httptest.Server, *atomic.Int32) {
	var count atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := count.Add(1)

		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if n <= drop {
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &count
}

func TestConnIgnoresMalformedFrames(t *testing.T) {
	srv, _ := frameServer(t, 0,
		"not json",
		`{"type":"mystery","content":"x"}`,
		`{"type":"inject","content":42}`,
		`{"type":"inject","content":"ok","mode":"sideways"}`,
	)

	buf := bridge.NewBuffer("", "")
	c := startConn(t, srv.URL, "editor-2", buf, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return buf.Text() == "ok"
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, c.Connected())
}

func TestConnReconnects(t *testing.T) {
	srv, count := frameServer(t, 2, `{"type":"inject","content":"x"}`)

	buf := bridge.NewBuffer("", "")
	c := startConn(t, srv.URL, "editor-3", buf, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return count.Load() == 3 && c.Connected() && buf.Text() == "xxx"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConnCloseCancelsRetry(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := bridge.NewConn(url, "editor-4", bridge.NewBuffer("", ""), nil)
	require.NoError(t, err)
	c.Backoff = bridge.Backoff{Base: time.Hour}

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Connected())

	start := time.Now()
	require.NoError(t, c.Close())
	require.NoError(t, <-errc)
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, c.Run(context.Background()), bridge.ErrClosed)
}

func TestConnContextCancel(t *testing.T) {
	srv, _ := frameServer(t, 0)

	c, err := bridge.NewConn(srv.URL, "editor-5", bridge.NewBuffer("", ""), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.Eventually(t, c.Connected, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
	assert.False(t, c.Connected())
	require.NoError(t, c.Close())
}

func TestCloseBeforeRun(t *testing.T) {
	c, err := bridge.NewConn("http://127.0.0.1:1", "editor-6", bridge.NewBuffer("", ""), nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Run(context.Background()), bridge.ErrClosed)
}
