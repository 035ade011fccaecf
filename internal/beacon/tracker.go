package beacon

import "time"

// Tracker decides when the own position is worth sending: on the first
// fix, after moving more than the minimum distance, or when the interval
// elapsed since the last send.
type Tracker struct {
	distanceMin float64
	interval    time.Duration
	last        *Fix
	lastSent    time.Time
}

// NewTracker returns a Tracker. distanceMin is in metres.
func NewTracker(distanceMin int, interval time.Duration) *Tracker {
	return &Tracker{distanceMin: float64(distanceMin), interval: interval}
}

// Offer reports whether f should be sent at now, and records it as sent
// when it should.
func (t *Tracker) Offer(f Fix, now time.Time) bool {
	send := t.last == nil ||
		distanceKm(*t.last, f)*1000 > t.distanceMin ||
		(t.interval > 0 && now.Sub(t.lastSent) >= t.interval)
	if send {
		t.last = &f
		t.lastSent = now
	}
	return send
}
