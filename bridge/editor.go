package bridge

import "sync"

// Snapshot is the state of an editor buffer
type Snapshot struct {
	// Path is nil for an unsaved buffer
	Path    *string
	Content string
	// Selection is nil unless it was requested
	Selection *string
}

// Editor is the buffer the backend reads and writes through the bridge
type Editor interface {
	Inject(content string, mode InjectMode, position InjectPosition)
	Snapshot(selection bool) Snapshot
}

// Buffer is an in-memory Editor. Positions are in runes.
type Buffer struct {
	mu       sync.Mutex
	path     string
	text     []rune
	cursor   int
	selStart int
	selEnd   int
}

// NewBuffer returns a Buffer holding text with the cursor at the end
func NewBuffer(path, text string) *Buffer {
	r := []rune(text)
	return &Buffer{path: path, text: r, cursor: len(r), selStart: len(r), selEnd: len(r)}
}

func (b *Buffer) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i > len(b.text) {
		return len(b.text)
	}
	return i
}

// SetPath sets the file the buffer belongs to; "" marks it unsaved
func (b *Buffer) SetPath(path string) {
	b.mu.Lock()
	b.path = path
	b.mu.Unlock()
}

// SetCursor moves the cursor and collapses the selection onto it
func (b *Buffer) SetCursor(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = b.clamp(i)
	b.selStart, b.selEnd = b.cursor, b.cursor
}

// Select selects [start, end) and puts the cursor at end
func (b *Buffer) Select(start, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, end = b.clamp(start), b.clamp(end)
	if start > end {
		start, end = end, start
	}
	b.selStart, b.selEnd, b.cursor = start, end, end
}

// Cursor returns the cursor position
func (b *Buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Text returns the buffer contents
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// Inject implements Editor
func (b *Buffer) Inject(content string, mode InjectMode, position InjectPosition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ins := []rune(content)
	if mode == ModeReplace {
		b.text = ins
		b.cursor, b.selStart, b.selEnd = 0, 0, 0
		return
	}

	at := b.cursor
	switch {
	case mode == ModeAppend, position == PositionEnd:
		at = len(b.text)
	case position == PositionStart:
		at = 0
	}

	text := make([]rune, 0, len(b.text)+len(ins))
	text = append(text, b.text[:at]...)
	text = append(text, ins...)
	b.text = append(text, b.text[at:]...)

	if at <= b.cursor {
		b.cursor += len(ins)
	}
	b.selStart, b.selEnd = b.cursor, b.cursor
}

// Snapshot implements Editor
func (b *Buffer) Snapshot(selection bool) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{Content: string(b.text)}
	if b.path != "" {
		p := b.path
		s.Path = &p
	}
	if selection {
		sel := string(b.text[b.selStart:b.selEnd])
		s.Selection = &sel
	}
	return s
}
