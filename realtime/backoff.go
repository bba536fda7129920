package realtime

import (
	"math/rand"
	"time"
)

// backoff yields exponentially growing reconnect delays with full jitter:
// attempt n waits a uniform random duration in [0, min(max, base*2^n)).
type backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
	rand    func() float64
}

func newBackoff(base, max time.Duration) *backoff {
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, rand: rand.Float64}
}

func (b *backoff) ceiling() time.Duration {
	c := b.base
	for i := 0; i < b.attempt && c < b.max; i++ {
		c *= 2
	}
	if c > b.max {
		c = b.max
	}
	return c
}

func (b *backoff) next() time.Duration {
	c := b.ceiling()
	b.attempt++
	return time.Duration(b.rand() * float64(c))
}

func (b *backoff) reset() {
	b.attempt = 0
}
