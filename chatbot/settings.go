package chatbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/sharpie78/nova/api"
)

// Settings is the subset of the per-user settings document the client reads.
// Raw keeps the whole document so it can be written back unchanged.
type Settings struct {
	ChatHistory    *bool
	PreferredModel string
	Raw            json.RawMessage
}

type settingsDoc struct {
	Chat struct {
		ChatHistory struct {
			Default *bool `json:"default"`
		} `json:"chat_history"`
	} `json:"chat"`
	AIModel struct {
		SelectPreferredModelIndex struct {
			PreferredModel string `json:"preferred_model"`
		} `json:"select_preferred_model_index"`
	} `json:"ai_model"`
}

// ParseSettings extracts the fields the client uses from a settings document
func ParseSettings(raw []byte) (*Settings, error) {
	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &api.Error{Description: "Could not decode settings", Type: api.ErrorTypePayload, Err: err}
	}
	return &Settings{
		ChatHistory:    doc.Chat.ChatHistory.Default,
		PreferredModel: doc.AIModel.SelectPreferredModelIndex.PreferredModel,
		Raw:            append(json.RawMessage(nil), raw...),
	}, nil
}

// Settings fetches the settings document for username
func (c *Client) Settings(ctx context.Context, username string) (*Settings, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/settings/"+url.PathEscape(username), nil, &raw); err != nil {
		return nil, err
	}
	return ParseSettings(raw)
}

// SavePreferredModel records model as the user's preferred model, keeping the rest of
// the settings document intact.
func (c *Client) SavePreferredModel(ctx context.Context, username string, s *Settings, model string) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(s.Raw, &doc); err != nil || doc == nil {
		doc = map[string]interface{}{}
	}

	aiModel, _ := doc["ai_model"].(map[string]interface{})
	if aiModel == nil {
		aiModel = map[string]interface{}{}
		doc["ai_model"] = aiModel
	}
	idx, _ := aiModel["select_preferred_model_index"].(map[string]interface{})
	if idx == nil {
		idx = map[string]interface{}{}
		aiModel["select_preferred_model_index"] = idx
	}
	idx["preferred_model"] = model

	if err := c.do(ctx, http.MethodPost, "/settings/"+url.PathEscape(username), doc, nil); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return &api.Error{Description: "Could not encode settings", Type: api.ErrorTypePayload, Err: err}
	}
	s.PreferredModel = model
	s.Raw = raw
	return nil
}
