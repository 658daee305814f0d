package bridge

import "time"

// Default reconnect delays
const (
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
	DefaultFactor    = 1.5
)

// Backoff produces reconnect delays. The first delay after a successful open is Base;
// each consecutive failure multiplies it by Factor up to Max.
// The zero value uses the defaults.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64

	next time.Duration
}

func (b *Backoff) defaults() {
	if b.Base <= 0 {
		b.Base = DefaultBaseDelay
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxDelay
	}
	if b.Factor < 1 {
		b.Factor = DefaultFactor
	}
}

// Next returns the delay before the next attempt and advances the sequence
func (b *Backoff) Next() time.Duration {
	b.defaults()
	if b.next <= 0 {
		b.next = b.Base
	}
	d := b.next
	b.next = time.Duration(float64(b.next) * b.Factor)
	if b.next > b.Max {
		b.next = b.Max
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Reset restarts the sequence at Base
func (b *Backoff) Reset() {
	b.next = 0
}
