package chatbot

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sharpie78/nova/api"
)

// Memory recall limits
const (
	MemoryMinScore   = 0.80
	MemoryMaxMatches = 3
)

var memoryTriggers = []string{"remember", "did i say", "what did i"}

var searchPrefix = regexp.MustCompile(`(?i)search memory for`)

// MemoryQuery reports whether text asks about something said earlier, and the query
// to search for
func MemoryQuery(text string) (string, bool) {
	lower := strings.ToLower(text)

	triggered := strings.HasPrefix(lower, "search memory for")
	for _, t := range memoryTriggers {
		if strings.Contains(lower, t) {
			triggered = true
			break
		}
	}
	if !triggered {
		return "", false
	}

	q := strings.TrimSpace(searchPrefix.ReplaceAllLiteralString(text, ""))
	if q == "" {
		q = text
	}
	return q, true
}

// FilterMatches keeps at most MemoryMaxMatches results scoring at least MemoryMinScore,
// in the order the backend returned them
func FilterMatches(matches []MemoryMatch) []MemoryMatch {
	var out []MemoryMatch
	for _, m := range matches {
		if m.Score < MemoryMinScore {
			continue
		}
		out = append(out, m)
		if len(out) == MemoryMaxMatches {
			break
		}
	}
	return out
}

// MemorySearch recalls earlier conversation when the user asks about it
type MemorySearch struct {
	client *Client
	log    *zap.Logger
}

// NewMemorySearch creates a new MemorySearch
func NewMemorySearch(client *Client, log *zap.Logger) *MemorySearch {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemorySearch{client: client, log: log}
}

// Inject searches memory if text is a recall request and appends a system message
// summarizing the good matches to t. It reports whether a message was appended.
// Failures are logged and leave t unchanged.
func (m *MemorySearch) Inject(ctx context.Context, t *api.Transcript, text string) bool {
	q, ok := MemoryQuery(text)
	if !ok {
		return false
	}

	matches, err := m.client.QueryMemory(ctx, q)
	if err != nil {
		m.log.Warn("memory search failed", zap.String("query", q), zap.Error(err))
		return false
	}

	top := FilterMatches(matches)
	m.log.Debug("memory search", zap.String("query", q), zap.Int("matches", len(matches)), zap.Int("kept", len(top)))
	if len(top) == 0 {
		return false
	}

	t.Append(api.Message{Role: api.RoleSystem, Content: MemoryPrompt(top)})
	return true
}
