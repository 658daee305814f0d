package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

//GET /settings/:username
func (b *Backend) handleReadSettings(w http.ResponseWriter, r *http.Request) *handlerResponse {
	doc, ok := b.Settings(mux.Vars(r)["username"])
	if !ok {
		doc = json.RawMessage(`{}`)
	}
	return &handlerResponse{Code: http.StatusOK, Body: doc}
}

//POST /settings/:username
func (b *Backend) handleUpdateSettings(w http.ResponseWriter, r *http.Request) *handlerResponse {
	var doc json.RawMessage
	if resp := decodeBody(r, &doc); resp != nil {
		return resp
	}
	b.SetSettings(mux.Vars(r)["username"], doc)
	return &handlerResponse{Code: http.StatusOK, Body: map[string]string{"status": "ok"}}
}
