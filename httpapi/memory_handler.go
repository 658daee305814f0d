package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/chatbot"
)

func parseID(r *http.Request, name string) (int64, *handlerResponse) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, handleError(http.StatusBadRequest, fmt.Errorf("Could not decode %s: %v", name, err))
	}
	return id, nil
}

func decodeMessage(r *http.Request) (api.Message, *handlerResponse) {
	var msg api.Message
	if resp := decodeBody(r, &msg); resp != nil {
		return msg, resp
	}
	if err := api.ValidateString("content", msg.Content, 1<<20); err != nil {
		return msg, handleDetailError(http.StatusBadRequest, err)
	}
	return msg, nil
}

//GET /chat-memory/core
func (b *Backend) handleReadCore(w http.ResponseWriter, r *http.Request) *handlerResponse {
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.CoreMemoryResponse{Messages: b.coreMessages()}}
}

//POST /chat-memory/core
func (b *Backend) handleCreateCore(w http.ResponseWriter, r *http.Request) *handlerResponse {
	msg, resp := decodeMessage(r)
	if resp != nil {
		return resp
	}
	id := b.addCore(msg)
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.SaveMessageResponse{Status: chatbot.StatusOK, MessageID: id}}
}

//DELETE /chat-memory/core/:id
func (b *Backend) handleDeleteCore(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id, resp := parseID(r, "id")
	if resp != nil {
		return resp
	}
	if !b.deleteCore(id) {
		return handleError(http.StatusNotFound, fmt.Errorf("Could not find core message %d", id))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.StatusResponse{Status: chatbot.StatusDeleted}}
}

//GET /chat-memory/new?username=&temp=
func (b *Backend) handleNewChat(w http.ResponseWriter, r *http.Request) *handlerResponse {
	q := r.URL.Query()
	temp, _ := strconv.ParseBool(q.Get("temp"))

	c := b.createChat("", "", q.Get("username"), temp)
	resp := &chatbot.NewChatResponse{ChatID: c.ID}
	if !temp {
		resp.Messages = b.coreMessages()
	}
	return &handlerResponse{Code: http.StatusOK, Body: resp}
}

//GET /chat-memory/query?q=
func (b *Backend) handleQueryMemory(w http.ResponseWriter, r *http.Request) *handlerResponse {
	q := r.URL.Query().Get("q")
	if q == "" {
		return handleError(http.StatusBadRequest, errors.New("q is empty"))
	}
	matches := b.Query(q)
	if matches == nil {
		matches = []chatbot.MemoryMatch{}
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.MemoryQueryResponse{Matches: matches}}
}

//POST /chat-memory/embed/:id
func (b *Backend) handleEmbed(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id := mux.Vars(r)["id"]
	if !b.embed(id) {
		return handleError(http.StatusNotFound, fmt.Errorf("Could not find chat %s", id))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.StatusResponse{Status: chatbot.StatusOK}}
}

//POST /chat-memory/tag/:id
func (b *Backend) handleTagMessage(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id, resp := parseID(r, "id")
	if resp != nil {
		return resp
	}
	var req chatbot.TagRequest
	if resp := decodeBody(r, &req); resp != nil {
		return resp
	}
	if err := api.ValidateString("tag", req.Tag, 255); err != nil {
		return handleDetailError(http.StatusBadRequest, err)
	}
	if !b.tag(id, req.Tag) {
		return handleError(http.StatusNotFound, fmt.Errorf("Could not find message %d", id))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.StatusResponse{Status: chatbot.StatusOK}}
}

//GET /chat-memory/tag/:tag
func (b *Backend) handleReadTag(w http.ResponseWriter, r *http.Request) *handlerResponse {
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.MessagesResponse{Messages: b.tagged(mux.Vars(r)["tag"])}}
}

//GET /chat-memory
func (b *Backend) handleListChats(w http.ResponseWriter, r *http.Request) *handlerResponse {
	return &handlerResponse{Code: http.StatusOK, Body: b.savedChats()}
}

//POST /chat-memory
func (b *Backend) handleCreateChat(w http.ResponseWriter, r *http.Request) *handlerResponse {
	var req chatbot.CreateChatRequest
	if resp := decodeBody(r, &req); resp != nil {
		return resp
	}
	if err := api.ValidateString("title", req.Title, 255); err != nil {
		return handleDetailError(http.StatusBadRequest, err)
	}
	c := b.createChat(req.Title, req.Model, "", false)
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.NewChatResponse{ChatID: c.ID}}
}

//GET /chat-memory/:id
func (b *Backend) handleReadChat(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id := mux.Vars(r)["id"]
	msgs, ok := b.Messages(id)
	if !ok {
		return handleError(http.StatusNotFound, fmt.Errorf("Could not find chat %s", id))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.ChatResponse{ChatID: id, Messages: msgs}}
}

//POST /chat-memory/:id
func (b *Backend) handleSaveMessage(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id := mux.Vars(r)["id"]
	msg, resp := decodeMessage(r)
	if resp != nil {
		return resp
	}
	messageID, ok := b.saveMessage(id, msg)
	if !ok {
		return handleError(http.StatusNotFound, fmt.Errorf("Could not find chat %s", id))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.SaveMessageResponse{Status: chatbot.StatusOK, MessageID: messageID}}
}

//DELETE /chat-memory/:id
func (b *Backend) handleDeleteChat(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id := mux.Vars(r)["id"]
	if !b.deleteChat(id) {
		return handleError(http.StatusNotFound, fmt.Errorf("Could not find chat %s", id))
	}
	return &handlerResponse{Code: http.StatusOK, Body: &chatbot.StatusResponse{Status: chatbot.StatusDeleted}}
}
