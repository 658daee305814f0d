package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sharpie78/nova/bridge"
)

const editorWriteWait = 5 * time.Second

type editorClient struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (e *editorClient) send(v interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ws.SetWriteDeadline(time.Now().Add(editorWriteWait))
	return e.ws.WriteJSON(v)
}

//EditorClients returns the ids of the connected editors
func (b *Backend) EditorClients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.editors))
	for id := range b.editors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

//pickEditor resolves the editor a request is for. With no id given, the only connected
//editor is used.
func (b *Backend) pickEditor(requested string) (*editorClient, *handlerResponse) {
	requested = strings.TrimSpace(requested)
	switch strings.ToLower(requested) {
	case "null", "none", "undefined":
		requested = ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if requested != "" {
		if c, ok := b.editors[requested]; ok {
			return c, nil
		}
		return nil, handleDetailError(http.StatusNotFound, fmt.Errorf("Editor client %s not connected", requested))
	}

	switch len(b.editors) {
	case 0:
		return nil, handleDetailError(http.StatusNotFound, errors.New("No editor clients connected"))
	case 1:
		for _, c := range b.editors {
			return c, nil
		}
	}

	ids := make([]string, 0, len(b.editors))
	for id := range b.editors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return nil, &handlerResponse{
		Code: http.StatusConflict,
		Body: &MultipleClientsResponse{Error: "multiple_clients", Clients: ids},
		Err:  errors.New("multiple editor clients connected"),
	}
}

//GET /editor/ws?client_id=
func (b *Backend) handleEditorSocket(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id := r.URL.Query().Get("client_id")
	if id == "" {
		return writeError(w, handleDetailError(http.StatusBadRequest, errors.New("client_id is required")))
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return &handlerResponse{Code: http.StatusBadRequest, Err: err}
	}

	c := &editorClient{id: id, ws: ws}
	b.mu.Lock()
	b.editors[id] = c
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.editors[id] == c {
			delete(b.editors, id)
		}
		b.mu.Unlock()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return &handlerResponse{Code: http.StatusSwitchingProtocols}
		}

		var reply bridge.SnapshotReply
		if err := json.Unmarshal(data, &reply); err != nil || reply.Type != bridge.TypeSnapshot {
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[reply.ID]
		delete(b.pending, reply.ID)
		b.mu.Unlock()
		if ok {
			ch <- reply
		}
	}
}

//POST /editor/agent/inject
func (b *Backend) handleInject(w http.ResponseWriter, r *http.Request) *handlerResponse {
	var req InjectRequest
	if resp := decodeBody(r, &req); resp != nil {
		return resp
	}

	c, resp := b.pickEditor(req.ClientID)
	if resp != nil {
		return resp
	}

	msg := bridge.InjectMessage{
		Type:     bridge.TypeInject,
		Content:  req.Content,
		Mode:     string(bridge.ParseInjectMode(req.Mode)),
		Position: string(bridge.ParseInjectPosition(req.Position)),
	}
	if err := c.send(msg); err != nil {
		return handleDetailError(http.StatusGone, fmt.Errorf("Editor socket closed: %v", err))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &InjectResponse{OK: true, ClientID: c.id}}
}

//GET /editor/agent/snapshot?client_id=&selection=&timeout=
func (b *Backend) handleSnapshot(w http.ResponseWriter, r *http.Request) *handlerResponse {
	q := r.URL.Query()
	c, resp := b.pickEditor(q.Get("client_id"))
	if resp != nil {
		return resp
	}

	selection, _ := strconv.ParseBool(q.Get("selection"))
	timeout := b.SnapshotTimeout
	if v := q.Get("timeout"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0.5 || secs > 30 {
			return handleDetailError(http.StatusBadRequest, errors.New("timeout must be between 0.5 and 30 seconds"))
		}
		timeout = time.Duration(secs * float64(time.Second))
	}

	reqID := uuid.NewString()
	ch := make(chan bridge.SnapshotReply, 1)
	b.mu.Lock()
	b.pending[reqID] = ch
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.pending, reqID)
		b.mu.Unlock()
	}

	if err := c.send(bridge.SnapshotRequest{Type: bridge.TypeSnapshotRequest, ID: reqID, Selection: selection}); err != nil {
		cleanup()
		return handleDetailError(http.StatusGone, fmt.Errorf("Editor socket closed: %v", err))
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	select {
	case reply := <-ch:
		return &handlerResponse{Code: http.StatusOK, Body: &SnapshotResponse{
			ClientID:  c.id,
			Path:      reply.Path,
			Content:   reply.Content,
			Selection: reply.Selection,
		}}
	case <-ctx.Done():
		cleanup()
		return handleDetailError(http.StatusGatewayTimeout, errors.New("Editor snapshot timeout"))
	}
}
