package chatbot

import (
	"strings"

	"github.com/sharpie78/nova/api"
)

const (
	titleMessages = 2
	titleWords    = 6
	titleMaxLen   = 100
)

// TitleFor derives a saved-chat title from the first user messages
func TitleFor(msgs []api.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role != api.RoleUser {
			continue
		}
		words := strings.Fields(m.Content)
		if len(words) == 0 {
			continue
		}
		if len(words) > titleWords {
			words = words[:titleWords]
		}
		parts = append(parts, strings.Join(words, " "))
		if len(parts) == titleMessages {
			break
		}
	}

	if len(parts) == 0 {
		return "Untitled"
	}

	title := strings.Join(parts, " | ")
	if r := []rune(title); len(r) > titleMaxLen {
		title = string(r[:titleMaxLen]) + "..."
	}
	return title
}

// AgentBadge names the tools an agent answer used, or "Agent" if none were reported
func AgentBadge(tools []ToolUse) string {
	kinds := make([]string, 0, len(tools))
	for _, t := range tools {
		if k := strings.TrimSpace(t.Kind); k != "" {
			kinds = append(kinds, k)
		}
	}
	kinds = uniqueStrings(kinds)
	if len(kinds) == 0 {
		return "Agent"
	}
	return strings.Join(kinds, ", ")
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
