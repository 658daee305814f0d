package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSPath is where the backend accepts editor connections
const WSPath = "/editor/ws"

// ErrClosed is returned by Run after Close
var ErrClosed = errors.New("bridge closed")

const writeWait = 10 * time.Second

// Conn keeps a websocket to the backend open for as long as it runs, reconnecting
// with Backoff after every failed dial or dropped connection
type Conn struct {
	url    string
	editor Editor
	log    *zap.Logger
	dialer *websocket.Dialer

	// Backoff is copied when Run starts
	Backoff Backoff

	mu        sync.Mutex
	closed    bool
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// WSURL returns the editor socket address for a backend HTTP address
func WSURL(backend, clientID string) (string, error) {
	u, err := url.Parse(backend)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + WSPath
	u.RawQuery = url.Values{"client_id": {clientID}}.Encode()
	return u.String(), nil
}

// NewConn creates a connection for clientID to the backend at the given HTTP address.
// Frames from the backend are applied to editor.
func NewConn(backend, clientID string, editor Editor, log *zap.Logger) (*Conn, error) {
	u, err := WSURL(backend, clientID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		url:    u,
		editor: editor,
		log:    log.With(zap.String("client_id", clientID)),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// URL returns the socket address
func (c *Conn) URL() string {
	return c.url
}

// Connected reports whether the socket is currently open
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run connects and reconnects until ctx is done or Close is called. It returns nil
// when stopped that way, and ErrClosed if Close was called before Run.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed || c.done != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	b := c.Backoff
	c.mu.Unlock()
	defer close(done)

	b.Reset()
	for {
		err := c.serve(ctx, &b)
		if ctx.Err() != nil {
			return nil
		}

		delay := b.Next()
		c.log.Debug("editor bridge disconnected", zap.Duration("retry_in", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Close stops Run, cancelling any pending reconnect, and waits for it to return
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Conn) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// serve dials once and reads frames until the socket fails or ctx is done
func (c *Conn) serve(ctx context.Context, b *Backoff) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	b.Reset()
	c.setConnected(true)
	defer c.setConnected(false)
	c.log.Info("editor bridge connected", zap.String("url", c.url))

	stop := context.AfterFunc(ctx, func() {
		ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		ws.Close()
	})
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		c.handle(ws, data)
	}
}

func (c *Conn) handle(ws *websocket.Conn, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug("ignoring malformed frame", zap.Error(err))
		return
	}

	switch msg.Type {
	case TypeInject:
		c.editor.Inject(msg.Content, ParseInjectMode(msg.Mode), ParseInjectPosition(msg.Position))
	case TypeSnapshotRequest:
		snap := c.editor.Snapshot(msg.Selection)
		reply := SnapshotReply{
			Type:      TypeSnapshot,
			ID:        msg.ID,
			Path:      snap.Path,
			Content:   snap.Content,
			Selection: snap.Selection,
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(reply); err != nil {
			c.log.Debug("could not send snapshot", zap.String("id", msg.ID), zap.Error(err))
		}
	default:
		c.log.Debug("ignoring frame", zap.String("type", msg.Type))
	}
}
