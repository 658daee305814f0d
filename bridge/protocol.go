package bridge

import "strings"

// Message types exchanged over the editor socket
const (
	TypeInject          = "inject"
	TypeSnapshotRequest = "snapshot_request"
	TypeSnapshot        = "snapshot"
)

// InjectMode is how injected content is combined with the buffer
type InjectMode string

// InjectModes
const (
	ModeInsert  InjectMode = "insert"
	ModeReplace InjectMode = "replace"
	ModeAppend  InjectMode = "append"
)

// ParseInjectMode returns the InjectMode for name, defaulting to ModeInsert
func ParseInjectMode(name string) InjectMode {
	switch m := InjectMode(strings.ToLower(strings.TrimSpace(name))); m {
	case ModeReplace, ModeAppend:
		return m
	}
	return ModeInsert
}

// InjectPosition is where inserted content goes
type InjectPosition string

// InjectPositions
const (
	PositionCursor InjectPosition = "cursor"
	PositionStart  InjectPosition = "start"
	PositionEnd    InjectPosition = "end"
)

// ParseInjectPosition returns the InjectPosition for name, defaulting to PositionCursor
func ParseInjectPosition(name string) InjectPosition {
	switch p := InjectPosition(strings.ToLower(strings.TrimSpace(name))); p {
	case PositionStart, PositionEnd:
		return p
	}
	return PositionCursor
}

// InjectMessage asks the editor to write content into its buffer
type InjectMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Mode     string `json:"mode,omitempty"`
	Position string `json:"position,omitempty"`
}

// SnapshotRequest asks the editor for its buffer
type SnapshotRequest struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Selection bool   `json:"selection"`
}

// SnapshotReply answers a SnapshotRequest. Selection is nil unless it was requested.
type SnapshotReply struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Path      *string `json:"path"`
	Content   string  `json:"content"`
	Selection *string `json:"selection"`
}

// inbound is any frame the backend sends
type inbound struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Content   string `json:"content"`
	Mode      string `json:"mode"`
	Position  string `json:"position"`
	Selection bool   `json:"selection"`
}
