package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sharpie78/nova/chatbot"
)

//writeError writes resp as a JSON error for handlers outside jsonMiddleware
func writeError(w http.ResponseWriter, resp *handlerResponse) *handlerResponse {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	json.NewEncoder(w).Encode(resp.Body)
	return resp
}

//POST /api/chat
func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) *handlerResponse {
	var req chatbot.ChatRequest
	if err := jsonDecode(r, &req); err != nil {
		return writeError(w, handleError(http.StatusBadRequest, err))
	}
	if req.Model == "" {
		return writeError(w, handleDetailError(http.StatusBadRequest, errors.New("model must not be empty")))
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	for _, chunk := range b.ChatReply(&req) {
		if _, err := io.WriteString(w, chunk); err != nil {
			return &handlerResponse{Code: http.StatusOK, Err: err}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return &handlerResponse{Code: http.StatusOK}
}

//GET /api/tags
func (b *Backend) handleReadModels(w http.ResponseWriter, r *http.Request) *handlerResponse {
	b.mu.Lock()
	models := append([]string{}, b.models...)
	b.mu.Unlock()
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.ModelsResponse{Models: models}}
}

//POST /agent
func (b *Backend) handleAgent(w http.ResponseWriter, r *http.Request) *handlerResponse {
	var req chatbot.AgentRequest
	if resp := decodeBody(r, &req); resp != nil {
		return resp
	}
	if req.ChatID == "" && req.Username == "" {
		return handleDetailError(http.StatusBadRequest, errors.New("chat_id or username is required"))
	}

	code, body := b.AgentReply(&req)
	if code == 0 {
		code = http.StatusOK
	}
	return &handlerResponse{Code: code, Body: body}
}
