package api

import "sync"

//Message is a single chat message
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

//CoreMessage is a Message pinned to core memory. ID is backend metadata and is not part of equality.
type CoreMessage struct {
	ID      int64  `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

//Message returns m without its metadata
func (m CoreMessage) Message() Message {
	return Message{Role: m.Role, Content: m.Content}
}

//Equal reports whether m and o have the same role and content
func (m Message) Equal(o Message) bool {
	return m.Role == o.Role && m.Content == o.Content
}

//Transcript is the ordered conversation. It is mutated in place; holders of a
//*Transcript always observe the latest contents.
type Transcript struct {
	mu   sync.RWMutex
	msgs []Message
	rev  uint64
}

//NewTranscript returns a Transcript holding copies of msgs
func NewTranscript(msgs ...Message) *Transcript {
	t := &Transcript{}
	t.msgs = append(t.msgs, msgs...)
	return t
}

//Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

//Revision increments on every mutation
func (t *Transcript) Revision() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rev
}

//Messages returns a copy of the messages
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

//Append adds msg to the end
func (t *Transcript) Append(msg Message) {
	t.mu.Lock()
	t.msgs = append(t.msgs, msg)
	t.rev++
	t.mu.Unlock()
}

//Clear removes all messages
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.msgs = t.msgs[:0]
	t.rev++
	t.mu.Unlock()
}

//Reset replaces the contents with msgs
func (t *Transcript) Reset(msgs []Message) {
	t.mu.Lock()
	t.msgs = append(t.msgs[:0], msgs...)
	t.rev++
	t.mu.Unlock()
}

//ReplacePrefix overwrites the first n positions with msgs[:n]. Positions past the
//current length are appended; everything after n is left untouched.
func (t *Transcript) ReplacePrefix(n int, msgs []Message) {
	if n > len(msgs) {
		n = len(msgs)
	}
	t.mu.Lock()
	for i := 0; i < n; i++ {
		if i < len(t.msgs) {
			t.msgs[i] = msgs[i]
		} else {
			t.msgs = append(t.msgs, msgs[i])
		}
	}
	t.rev++
	t.mu.Unlock()
}

//HasPrefix reports whether the leading len(prefix) messages equal prefix
func (t *Transcript) HasPrefix(prefix []Message) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return StartsWith(t.msgs, prefix)
}

//StartsWith reports whether msgs begins with prefix, comparing role and content
func StartsWith(msgs, prefix []Message) bool {
	if len(msgs) < len(prefix) {
		return false
	}
	for i := range prefix {
		if !msgs[i].Equal(prefix[i]) {
			return false
		}
	}
	return true
}
