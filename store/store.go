// Package store persists small client-side values across restarts, the way a browser
// front end uses local storage.
package store

import (
	"context"
	"strconv"
)

// Keys used by the client.
const (
	KeyClientID     = "nova.editor.client_id"
	KeyChatID       = "nova.current_chat_id"
	KeyModel        = "novaSelectedModel"
	KeyAgentEnabled = "novaAgentEnabled"
	KeyAgentHint    = "novaAgentHint"
	KeyUsername     = "username"
	KeySettings     = "nova.settings"
)

// Store is an interface to an arbitrary key/value backend.
type Store interface {
	// Get returns the value stored under key. ok is false if the key is not set.
	// If the backend malfunctions, err will be non-nil.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// GetBool returns the boolean stored under key, or def if it is unset or unparsable.
func GetBool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// SetBool stores b under key.
func SetBool(ctx context.Context, s Store, key string, b bool) error {
	return s.Set(ctx, key, strconv.FormatBool(b))
}
