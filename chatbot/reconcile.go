package chatbot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sharpie78/nova/api"
)

// MergeSystemMessages coalesces every system message into one leading system message
// (trimmed, empty ones dropped, joined by a blank line) followed by the remaining
// messages in their original order.
func MergeSystemMessages(msgs []api.Message) []api.Message {
	var systems []string
	var rest []api.Message
	for _, m := range msgs {
		if m.Role != api.RoleSystem {
			rest = append(rest, m)
			continue
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			systems = append(systems, c)
		}
	}

	merged := make([]api.Message, 0, len(rest)+1)
	if len(systems) > 0 {
		merged = append(merged, api.Message{Role: api.RoleSystem, Content: strings.Join(systems, "\n\n")})
	}
	return append(merged, rest...)
}

// MessagesToSend is prefix followed by the part of history not already covered by it.
// If history does not begin with prefix, all of history follows it.
func MessagesToSend(prefix, history []api.Message) []api.Message {
	offset := 0
	if api.StartsWith(history, prefix) {
		offset = len(prefix)
	}
	out := make([]api.Message, 0, len(prefix)+len(history)-offset)
	out = append(out, prefix...)
	return append(out, history[offset:]...)
}

// Reconciler keeps the leading core-memory messages of a transcript in step with the
// backend
type Reconciler struct {
	client *Client
	log    *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(client *Client, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{client: client, log: log}
}

// Reconcile fetches core memory and, if the transcript's leading messages differ from
// the merged prefix, overwrites them in place. Messages after the prefix are never
// touched. It returns the merged prefix. On fetch failure the transcript is unchanged
// and the error is returned.
func (r *Reconciler) Reconcile(ctx context.Context, t *api.Transcript) ([]api.Message, error) {
	core, err := r.client.CoreMemory(ctx)
	if err != nil {
		return nil, err
	}

	raw := make([]api.Message, len(core))
	for i, m := range core {
		raw[i] = m.Message()
	}
	prefix := MergeSystemMessages(raw)

	if t.HasPrefix(prefix) {
		r.log.Debug("core memory up to date", zap.Int("messages", len(prefix)))
		return prefix, nil
	}

	r.log.Info("core memory changed, reinjecting", zap.Int("messages", len(prefix)))
	t.ReplacePrefix(len(prefix), prefix)
	return prefix, nil
}
