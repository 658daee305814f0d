package api

import (
	"encoding/json"
	"strings"
)

//Role is the author of a Message
type Role string

//Roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

//roleNames maps every spelling the backend is known to send to a Role.
//Anything missing from the table is treated as RoleSystem.
var roleNames = map[string]Role{
	"user":      RoleUser,
	"assistant": RoleAssistant,
	"ai":        RoleAssistant,
	"system":    RoleSystem,
	"ui":        RoleSystem,
}

//ParseRole returns the Role for the given name
func ParseRole(name string) Role {
	if r, ok := roleNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return r
	}
	return RoleSystem
}

//UnmarshalJSON implements json.Unmarshaler, normalizing through ParseRole
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*r = RoleSystem
		return nil
	}
	*r = ParseRole(s)
	return nil
}

//AgentHint routes an agent request toward a tool family
type AgentHint string

//AgentHints
const (
	HintAuto   AgentHint = "auto"
	HintMemory AgentHint = "memory"
	HintRAG    AgentHint = "rag"
	HintWeb    AgentHint = "web"
)

var hintNames = map[string]AgentHint{
	"auto":   HintAuto,
	"memory": HintMemory,
	"rag":    HintRAG,
	"web":    HintWeb,
}

//ParseAgentHint returns the AgentHint for the given name, defaulting to HintAuto
func ParseAgentHint(name string) AgentHint {
	if h, ok := hintNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return h
	}
	return HintAuto
}
