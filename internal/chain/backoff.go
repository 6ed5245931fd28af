package chain

import "time"

// Backoff doubles a delay on every failure up to a cap.
// It is never reset after a successful resubscribe.
type Backoff struct {
	next time.Duration
	max  time.Duration
}

// NewBackoff returns a backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{next: initial, max: max}
}

// Next returns the delay for the current failure and advances the schedule.
func (b *Backoff) Next() time.Duration {
	wait := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return wait
}
