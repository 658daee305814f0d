package chatbot

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/store"
)

// DefaultUsername is used when no user has logged in
const DefaultUsername = "default"

// Prefs are the per-device chat preferences
type Prefs struct {
	Model        string
	AgentEnabled bool
	AgentHint    api.AgentHint
	Username     string
	// ChatHistory enables core memory and memory search. It comes from the user's
	// settings and is not stored per device.
	ChatHistory bool
}

// Session is the single owner of the active chat id and the transcript
type Session struct {
	mu         sync.Mutex
	client     *Client
	store      store.Store
	cache      *ChatCache
	log        *zap.Logger
	transcript *api.Transcript
	chatID     string
	prefs      Prefs
	settings   *Settings
}

// NewSession creates a session with an empty transcript
func NewSession(client *Client, st store.Store, cache *ChatCache, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		client:     client,
		store:      st,
		cache:      cache,
		log:        log,
		transcript: api.NewTranscript(),
		prefs: Prefs{
			AgentHint:   api.HintAuto,
			Username:    DefaultUsername,
			ChatHistory: true,
		},
	}
}

// Transcript returns the transcript. The pointer is stable for the session's life.
func (s *Session) Transcript() *api.Transcript {
	return s.transcript
}

// Client returns the backend client
func (s *Session) Client() *Client {
	return s.client
}

// Prefs returns a copy of the current preferences
func (s *Session) Prefs() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// LoadPrefs reads the persisted preferences
func (s *Session) LoadPrefs(ctx context.Context) error {
	model, _, err := s.store.Get(ctx, store.KeyModel)
	if err != nil {
		return fmt.Errorf("could not load model: %w", err)
	}
	enabled, err := store.GetBool(ctx, s.store, store.KeyAgentEnabled, false)
	if err != nil {
		return fmt.Errorf("could not load agent flag: %w", err)
	}
	hint, _, err := s.store.Get(ctx, store.KeyAgentHint)
	if err != nil {
		return fmt.Errorf("could not load agent hint: %w", err)
	}
	username, ok, err := s.store.Get(ctx, store.KeyUsername)
	if err != nil {
		return fmt.Errorf("could not load username: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.Model = model
	s.prefs.AgentEnabled = enabled
	s.prefs.AgentHint = api.ParseAgentHint(hint)
	if ok && username != "" {
		s.prefs.Username = username
	}
	return nil
}

// SetModel selects and persists the model
func (s *Session) SetModel(ctx context.Context, model string) error {
	if err := s.store.Set(ctx, store.KeyModel, model); err != nil {
		return fmt.Errorf("could not save model: %w", err)
	}
	s.mu.Lock()
	s.prefs.Model = model
	s.mu.Unlock()
	return nil
}

// SetAgent persists the agent mode flag and routing hint
func (s *Session) SetAgent(ctx context.Context, enabled bool, hint api.AgentHint) error {
	if err := store.SetBool(ctx, s.store, store.KeyAgentEnabled, enabled); err != nil {
		return fmt.Errorf("could not save agent flag: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyAgentHint, string(hint)); err != nil {
		return fmt.Errorf("could not save agent hint: %w", err)
	}
	s.mu.Lock()
	s.prefs.AgentEnabled = enabled
	s.prefs.AgentHint = hint
	s.mu.Unlock()
	return nil
}

// SetUsername persists the user the backend knows this device by
func (s *Session) SetUsername(ctx context.Context, username string) error {
	if username == "" {
		username = DefaultUsername
	}
	if err := s.store.Set(ctx, store.KeyUsername, username); err != nil {
		return fmt.Errorf("could not save username: %w", err)
	}
	s.mu.Lock()
	s.prefs.Username = username
	s.mu.Unlock()
	return nil
}

// SetChatHistory enables or disables core memory and memory search
func (s *Session) SetChatHistory(enabled bool) {
	s.mu.Lock()
	s.prefs.ChatHistory = enabled
	s.mu.Unlock()
}

// SyncSettings fetches the user's settings, caches them locally, and applies the chat
// history default and preferred model. When the backend is unreachable the cached copy
// is used.
func (s *Session) SyncSettings(ctx context.Context) (*Settings, error) {
	username := s.Prefs().Username

	settings, err := s.client.Settings(ctx, username)
	if err != nil {
		s.log.Warn("could not fetch settings, using cached copy", zap.String("username", username), zap.Error(err))
		raw, ok, serr := s.store.Get(ctx, store.KeySettings)
		if serr != nil || !ok {
			return nil, err
		}
		if settings, serr = ParseSettings([]byte(raw)); serr != nil {
			return nil, err
		}
	} else if err := s.store.Set(ctx, store.KeySettings, string(settings.Raw)); err != nil {
		s.log.Warn("could not cache settings", zap.Error(err))
	}

	s.mu.Lock()
	s.settings = settings
	if settings.ChatHistory != nil {
		s.prefs.ChatHistory = *settings.ChatHistory
	}
	model := s.prefs.Model
	s.mu.Unlock()

	if model == "" && settings.PreferredModel != "" && s.offered(ctx, settings.PreferredModel) {
		if err := s.SetModel(ctx, settings.PreferredModel); err != nil {
			return settings, err
		}
	}
	return settings, nil
}

// offered reports whether the backend currently offers model
func (s *Session) offered(ctx context.Context, model string) bool {
	models, err := s.client.Models(ctx)
	if err != nil {
		s.log.Warn("could not list models", zap.Error(err))
		return false
	}
	for _, m := range models {
		if m == model {
			return true
		}
	}
	s.log.Info("preferred model not offered", zap.String("model", model))
	return false
}

// SelectModel selects model and records it as the user's preferred model. Failing to
// update the backend settings is logged; the local selection still applies.
func (s *Session) SelectModel(ctx context.Context, model string) error {
	if err := s.SetModel(ctx, model); err != nil {
		return err
	}

	s.mu.Lock()
	settings := s.settings
	username := s.prefs.Username
	s.mu.Unlock()

	if settings == nil {
		var err error
		if settings, err = s.client.Settings(ctx, username); err != nil {
			s.log.Warn("could not load settings", zap.String("username", username), zap.Error(err))
			return nil
		}
	}

	if err := s.client.SavePreferredModel(ctx, username, settings, model); err != nil {
		s.log.Warn("could not save preferred model", zap.String("model", model), zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	if err := s.store.Set(ctx, store.KeySettings, string(settings.Raw)); err != nil {
		s.log.Warn("could not cache settings", zap.Error(err))
	}
	return nil
}

// CurrentChatID returns the active chat id, or "" if none has been created
func (s *Session) CurrentChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// SetCurrentChatID makes id the active chat and persists it. An empty id clears it.
func (s *Session) SetCurrentChatID(ctx context.Context, id string) error {
	s.mu.Lock()
	s.chatID = id
	s.mu.Unlock()

	if id == "" {
		if err := s.store.Delete(ctx, store.KeyChatID); err != nil {
			return fmt.Errorf("could not clear chat id: %w", err)
		}
		return nil
	}
	if err := s.store.Set(ctx, store.KeyChatID, id); err != nil {
		return fmt.Errorf("could not save chat id: %w", err)
	}
	return nil
}

// Restore resumes the stored chat when nothing has been said yet, and otherwise
// allocates a new one. Reloading never creates a duplicate server-side chat.
func (s *Session) Restore(ctx context.Context) error {
	if s.CurrentChatID() != "" {
		return nil
	}

	stored, ok, err := s.store.Get(ctx, store.KeyChatID)
	if err != nil {
		return fmt.Errorf("could not read stored chat id: %w", err)
	}

	if ok && stored != "" && s.transcript.Len() == 0 {
		s.mu.Lock()
		s.chatID = stored
		s.mu.Unlock()
		s.log.Info("restored chat", zap.String("chat_id", stored))
		return nil
	}

	return s.startChat(ctx)
}

// NewChat discards the current conversation and starts a new server-side chat
func (s *Session) NewChat(ctx context.Context) error {
	s.transcript.Clear()
	if err := s.SetCurrentChatID(ctx, ""); err != nil {
		return err
	}
	return s.startChat(ctx)
}

func (s *Session) startChat(ctx context.Context) error {
	p := s.Prefs()

	resp, err := s.client.NewChat(ctx, p.Username, !p.ChatHistory)
	if err != nil {
		return fmt.Errorf("could not create chat: %w", err)
	}
	if err := s.SetCurrentChatID(ctx, resp.ChatID); err != nil {
		return err
	}

	if p.ChatHistory && len(resp.Messages) > 0 {
		msgs := make([]api.Message, len(resp.Messages))
		for i, m := range resp.Messages {
			msgs[i] = m.Message()
		}
		s.transcript.Reset(MergeSystemMessages(msgs))
		s.log.Info("core memory injected", zap.Int("messages", len(msgs)))
	}

	s.log.Info("started chat", zap.String("chat_id", resp.ChatID))
	return nil
}

// PersistMessage saves msg to the active chat, re-embeds the chat, and tags the stored
// message with its role. Without an active chat it does nothing.
func (s *Session) PersistMessage(ctx context.Context, msg api.Message) error {
	id := s.CurrentChatID()
	if id == "" {
		return nil
	}

	messageID, err := s.client.SaveMessage(ctx, id, msg)
	if err != nil {
		return fmt.Errorf("could not save message: %w", err)
	}
	if err := s.client.Embed(ctx, id); err != nil {
		s.log.Warn("could not embed chat", zap.String("chat_id", id), zap.Error(err))
	}
	if messageID == 0 {
		return nil
	}
	if err := s.client.Tag(ctx, messageID, string(msg.Role)); err != nil {
		return fmt.Errorf("could not tag message %d: %w", messageID, err)
	}
	return nil
}

// Save stores the transcript as a named chat and embeds it. An empty title is derived
// from the conversation.
func (s *Session) Save(ctx context.Context, title string) (string, error) {
	msgs := s.transcript.Messages()
	if title == "" {
		title = TitleFor(msgs)
	}
	if err := api.ValidateString("title", title, 255); err != nil {
		return "", err
	}

	model := s.Prefs().Model
	if model == "" {
		model = "unknown"
	}

	id, err := s.client.CreateChat(ctx, title, model)
	if err != nil {
		return "", fmt.Errorf("could not create saved chat: %w", err)
	}

	for _, m := range msgs {
		if _, err := s.client.SaveMessage(ctx, id, m); err != nil {
			return id, fmt.Errorf("could not save message: %w", err)
		}
	}

	if err := s.client.Embed(ctx, id); err != nil {
		return id, fmt.Errorf("could not embed saved chat: %w", err)
	}

	s.cache.Put(id, msgs)
	return id, nil
}

// Load replaces the transcript with a saved chat
func (s *Session) Load(ctx context.Context, id string) error {
	msgs, ok := s.cache.Get(id)
	if !ok {
		var err error
		if msgs, err = s.client.Chat(ctx, id); err != nil {
			return fmt.Errorf("could not load chat %s: %w", id, err)
		}
		s.cache.Put(id, msgs)
	}
	s.transcript.Reset(msgs)
	return nil
}

// Delete removes a saved chat. Deleting the active chat clears the active id.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.client.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("could not delete chat %s: %w", id, err)
	}
	s.cache.Remove(id)

	if s.CurrentChatID() == id {
		return s.SetCurrentChatID(ctx, "")
	}
	return nil
}
