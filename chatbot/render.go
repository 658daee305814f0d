package chatbot

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sharpie78/nova/api"
)

// AgentMeta is provenance shown alongside an agent answer
type AgentMeta struct {
	Badge   string
	Sources []Source
}

// RenderSink displays a turn as it happens. Implementations must not block for long;
// they are called on the goroutine running the turn.
type RenderSink interface {
	// AppendMessage shows a complete message. meta is non-nil for agent answers.
	// Streamed answers are shown through UpdateStream and are not appended again.
	AppendMessage(msg api.Message, meta *AgentMeta)
	// ShowThinking shows the pending-response placeholder
	ShowThinking()
	// UpdateStream replaces the in-progress answer with visible
	UpdateStream(visible string)
	// EndStream finalizes the in-progress answer
	EndStream()
	// ShowRationale attaches hidden reasoning to the last answer
	ShowRationale(thinking string)
	// ShowNotice replaces the placeholder with a status line
	ShowNotice(text string)
	// ShowError replaces the placeholder with an error marker
	ShowError(text string)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) AppendMessage(api.Message, *AgentMeta) {}
func (NopSink) ShowThinking()                         {}
func (NopSink) UpdateStream(string)                   {}
func (NopSink) EndStream()                            {}
func (NopSink) ShowRationale(string)                  {}
func (NopSink) ShowNotice(string)                     {}
func (NopSink) ShowError(string)                      {}

// WriterSink renders a turn as plain text lines. Streaming output is written
// incrementally as new visible text arrives.
type WriterSink struct {
	mu       sync.Mutex
	w        io.Writer
	streamed int
	// ShowRationales prints thinking text after the answer
	ShowRationales bool
}

// NewWriterSink returns a WriterSink writing to w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, streamed: -1}
}

func (s *WriterSink) label(r api.Role) string {
	switch r {
	case api.RoleUser:
		return "You"
	case api.RoleAssistant:
		return "Nova"
	}
	return "System"
}

// AppendMessage implements RenderSink
func (s *WriterSink) AppendMessage(msg api.Message, meta *AgentMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Role == api.RoleUser {
		// the user already sees what they typed
		return
	}

	fmt.Fprintf(s.w, "%s: %s\n", s.label(msg.Role), msg.Content)
	if meta == nil {
		return
	}
	fmt.Fprintf(s.w, "  [%s]\n", meta.Badge)
	for _, src := range meta.Sources {
		ref := src.URL
		if ref == "" {
			ref = src.Path
		}
		fmt.Fprintf(s.w, "  - %s %s\n", src.Kind, ref)
	}
}

// Replay prints a stored conversation with every message labelled, the user's included
func (s *WriterSink) Replay(msgs []api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		fmt.Fprintf(s.w, "%s: %s\n", s.label(m.Role), m.Content)
	}
}

// ShowThinking implements RenderSink
func (s *WriterSink) ShowThinking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamed = -1
	fmt.Fprint(s.w, "Nova is thinking...\n")
}

// UpdateStream implements RenderSink
func (s *WriterSink) UpdateStream(visible string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamed < 0 {
		fmt.Fprint(s.w, "Nova: ")
		s.streamed = 0
	}
	if len(visible) > s.streamed {
		fmt.Fprint(s.w, visible[s.streamed:])
		s.streamed = len(visible)
	}
}

// EndStream implements RenderSink
func (s *WriterSink) EndStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamed >= 0 {
		fmt.Fprintln(s.w)
	}
	s.streamed = -1
}

// ShowRationale implements RenderSink
func (s *WriterSink) ShowRationale(thinking string) {
	if !s.ShowRationales {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range strings.Split(strings.TrimSpace(thinking), "\n") {
		fmt.Fprintf(s.w, "  | %s\n", line)
	}
}

// ShowNotice implements RenderSink
func (s *WriterSink) ShowNotice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, text)
}

// ShowError implements RenderSink
func (s *WriterSink) ShowError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamed >= 0 {
		fmt.Fprintln(s.w)
	}
	s.streamed = -1
	fmt.Fprintln(s.w, text)
}
