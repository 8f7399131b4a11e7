package webhook

import "time"

// backoffPolicy computes the delay before a retry attempt. Delays grow
// exponentially from Initial and are capped at Max, so a persistently failing
// endpoint costs a bounded amount of waiting per delivery.
type backoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// nextDelay returns the wait before the given attempt (attempt 1 is the
// first retry).
func (p backoffPolicy) nextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}
