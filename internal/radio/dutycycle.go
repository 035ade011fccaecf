package radio

import (
	"sync"
	"time"
)

// DefaultDutyCycleWindow is the observation period regional rules apply
// the duty-cycle limit to.
const DefaultDutyCycleWindow = time.Hour

type airtime struct {
	at time.Time
	d  time.Duration
}

// DutyCycle accounts transmit airtime over a sliding window. It is
// advisory: it reports when the budget is exceeded but never blocks.
type DutyCycle struct {
	mu      sync.Mutex
	window  time.Duration
	percent float64
	entries []airtime
}

// NewDutyCycle tracks a budget of percent of window. A non-positive
// percent disables the limit.
func NewDutyCycle(percent float64, window time.Duration) *DutyCycle {
	if window <= 0 {
		window = DefaultDutyCycleWindow
	}
	return &DutyCycle{window: window, percent: percent}
}

// Budget is the airtime allowed per window, zero when unlimited.
func (d *DutyCycle) Budget() time.Duration {
	if d.percent <= 0 {
		return 0
	}
	return time.Duration(float64(d.window) * d.percent / 100)
}

// Add records a transmission of toa at time at. It returns the airtime used
// in the window ending at at and whether that exceeds the budget.
func (d *DutyCycle) Add(at time.Time, toa time.Duration) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, airtime{at: at, d: toa})
	used := d.usedLocked(at)
	budget := d.Budget()
	return used, budget > 0 && used > budget
}

// Used returns the airtime spent in the window ending at now.
func (d *DutyCycle) Used(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usedLocked(now)
}

// Utilization is Used as a percentage of the window.
func (d *DutyCycle) Utilization(now time.Time) float64 {
	return 100 * float64(d.Used(now)) / float64(d.window)
}

func (d *DutyCycle) usedLocked(now time.Time) time.Duration {
	cutoff := now.Add(-d.window)
	i := 0
	for i < len(d.entries) && !d.entries[i].at.After(cutoff) {
		i++
	}
	d.entries = d.entries[i:]
	var used time.Duration
	for _, e := range d.entries {
		used += e.d
	}
	return used
}
