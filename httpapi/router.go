package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

//NewRouter returns an HTTP router serving b. Access logs are written to w.
func NewRouter(w io.Writer, b *Backend) http.Handler {

	//construct middleware
	var m = func(h returnHandler) http.Handler {
		return logMiddleware(jsonMiddleware(h), w)
	}
	//for handlers that write their own body
	var raw = func(h returnHandler) http.Handler {
		return logMiddleware(h, w)
	}

	r := mux.NewRouter()
	r.Use(b.recordMiddleware)

	r.Path("/chat-memory/core").Methods("GET").Handler(m(b.handleReadCore))
	r.Path("/chat-memory/core").Methods("POST").Handler(m(b.handleCreateCore))
	r.Path("/chat-memory/core/{id:[0-9]+}").Methods("DELETE").Handler(m(b.handleDeleteCore))

	r.Path("/chat-memory/new").Methods("GET").Handler(m(b.handleNewChat))
	r.Path("/chat-memory/query").Methods("GET").Handler(m(b.handleQueryMemory))
	r.Path("/chat-memory/embed/{id}").Methods("POST").Handler(m(b.handleEmbed))
	r.Path("/chat-memory/tag/{id:[0-9]+}").Methods("POST").Handler(m(b.handleTagMessage))
	r.Path("/chat-memory/tag/{tag}").Methods("GET").Handler(m(b.handleReadTag))

	r.Path("/chat-memory").Methods("GET").Handler(m(b.handleListChats))
	r.Path("/chat-memory").Methods("POST").Handler(m(b.handleCreateChat))
	r.Path("/chat-memory/{id}").Methods("GET").Handler(m(b.handleReadChat))
	r.Path("/chat-memory/{id}").Methods("POST").Handler(m(b.handleSaveMessage))
	r.Path("/chat-memory/{id}").Methods("DELETE").Handler(m(b.handleDeleteChat))

	r.Path("/api/chat").Methods("POST").Handler(raw(b.handleChat))
	r.Path("/api/tags").Methods("GET").Handler(m(b.handleReadModels))
	r.Path("/agent").Methods("POST").Handler(m(b.handleAgent))

	r.Path("/settings/{username}").Methods("GET").Handler(m(b.handleReadSettings))
	r.Path("/settings/{username}").Methods("POST").Handler(m(b.handleUpdateSettings))

	r.Path("/editor/ws").Handler(raw(b.handleEditorSocket))
	r.Path("/editor/agent/inject").Methods("POST").Handler(m(b.handleInject))
	r.Path("/editor/agent/snapshot").Methods("GET").Handler(m(b.handleSnapshot))

	r.NotFoundHandler = m(notFoundHandler)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r)
}
