package chatbot

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Thinking block delimiters in the streamed text
const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

// StreamDecoder splits a streamed response into visible text and an inline
// <think>...</think> rationale. Markers may be split across any chunk boundary,
// including inside a multi-byte character. A decoder is used for one response.
type StreamDecoder struct {
	full    strings.Builder
	visible strings.Builder
	think   strings.Builder
	inThink bool

	// hold is visible text that could still turn out to be the opening marker
	hold string
	// partial is an incomplete UTF-8 sequence waiting for its next byte
	partial []byte
}

// Write feeds the next chunk of the body. It never returns an error.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	n := len(p)
	if len(d.partial) > 0 {
		p = append(d.partial, p...)
		d.partial = nil
	}

	for len(p) > 0 {
		if !utf8.FullRune(p) {
			d.partial = append([]byte(nil), p...)
			break
		}
		r, size := utf8.DecodeRune(p)
		p = p[size:]
		d.feed(r)
	}
	return n, nil
}

func (d *StreamDecoder) feed(r rune) {
	d.full.WriteRune(r)

	if d.inThink {
		d.think.WriteRune(r)
		if s := d.think.String(); strings.HasSuffix(s, ThinkClose) {
			s = strings.TrimSuffix(s, ThinkClose)
			d.think.Reset()
			d.think.WriteString(s)
			d.inThink = false
		}
		return
	}

	d.hold += string(r)
	if d.hold == ThinkOpen {
		d.hold = ""
		d.inThink = true
		d.think.Reset()
		return
	}

	// release held text that can no longer start the marker
	for d.hold != "" && !strings.HasPrefix(ThinkOpen, d.hold) {
		_, size := utf8.DecodeRuneInString(d.hold)
		d.visible.WriteString(d.hold[:size])
		d.hold = d.hold[size:]
	}
}

// Finish marks the end of the stream. Held text that never became a marker is
// released to the visible channel, and an unterminated thinking block is kept.
func (d *StreamDecoder) Finish() {
	if len(d.partial) > 0 {
		d.partial = nil
		d.feed(utf8.RuneError)
	}
	if !d.inThink && d.hold != "" {
		d.visible.WriteString(d.hold)
		d.hold = ""
	}
}

// Visible returns the answer text decoded so far
func (d *StreamDecoder) Visible() string {
	return d.visible.String()
}

// Thinking returns the rationale text decoded so far
func (d *StreamDecoder) Thinking() string {
	return d.think.String()
}

// Full returns everything decoded so far, markers included
func (d *StreamDecoder) Full() string {
	return d.full.String()
}

// InThink reports whether the decoder is inside a thinking block
func (d *StreamDecoder) InThink() bool {
	return d.inThink
}

// Decode drains chunks through a new StreamDecoder, calling onVisible with the whole
// visible text each time it grows. The decoder is finished before Decode returns, also
// when a chunk carries an error or ctx is done.
func Decode(ctx context.Context, chunks <-chan StreamChunk, onVisible func(string)) (*StreamDecoder, error) {
	d := &StreamDecoder{}
	last := 0
	notify := func() {
		if onVisible != nil && d.visible.Len() != last {
			last = d.visible.Len()
			onVisible(d.visible.String())
		}
	}

	for {
		select {
		case <-ctx.Done():
			d.Finish()
			return d, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				d.Finish()
				notify()
				return d, nil
			}
			if chunk.Err != nil {
				d.Finish()
				return d, chunk.Err
			}
			d.Write(chunk.Data)
			notify()
		}
	}
}
