package chatbot

import (
	"strings"

	"github.com/sharpie78/nova/api"
)

// MemoryPreamble introduces recalled memories to the model
const MemoryPreamble = "These may help answer the user's question. Use them only if relevant.\n\n"

// MemoryPrompt returns the system message content summarizing recalled memories
func MemoryPrompt(matches []MemoryMatch) string {
	var sb strings.Builder
	sb.WriteString(MemoryPreamble)
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n")
		}
		if m.Role == api.RoleUser {
			sb.WriteString("You previously said: ")
		} else {
			sb.WriteString("I previously replied: ")
		}
		sb.WriteString(`"`)
		sb.WriteString(m.Content)
		sb.WriteString(`"`)
	}
	return sb.String()
}
