package helpers

import "time"

// Limited exponential backoff for retry delays.
// First delay is always 0, Failure() moves to Min, then multiplies by K up to Max.
// Not safe for concurrent use.
type Backoff struct {
	Min time.Duration
	Max time.Duration
	K   float32

	next time.Duration
}

// Use scenario:
// for {
//   if since(last) >= backoff.Delay() { ok := op(); backoff.Update(ok) }
// }
func (b *Backoff) Delay() time.Duration { return b.next }

// Increase next Delay()
func (b *Backoff) Failure() {
	if b.next == 0 {
		b.next = b.Min
	} else {
		b.next = time.Duration(float32(b.next) * b.K)
	}
	if b.Max != 0 && b.next > b.Max {
		b.next = b.Max
	}
}

func (b *Backoff) Reset() { b.next = 0 }

func (b *Backoff) Update(success bool) {
	if success {
		b.Reset()
	} else {
		b.Failure()
	}
}
