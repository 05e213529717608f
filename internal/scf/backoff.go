package scf

import (
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
)

// ReconnectPolicy is the exponential-backoff-with-jitter reconnect policy
// (spec §4.1): base 1s, factor 2, cap 60s, jitter ±25%, reset after 60s of
// healthy uptime. The exponential progression is delegated to
// github.com/jpillora/backoff (a reference-fleet dependency, promoted here
// from indirect to direct); the ±25% jitter band is applied on top since the
// library's own Jitter flag does not match the spec's symmetric-percentage
// semantics.
type ReconnectPolicy struct {
	b            *backoff.Backoff
	healthySince time.Duration
	rng          *rand.Rand
}

// NewReconnectPolicy builds the default policy described above.
func NewReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{
		b: &backoff.Backoff{
			Min:    1 * time.Second,
			Max:    60 * time.Second,
			Factor: 2,
		},
		healthySince: 60 * time.Second,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next reconnect attempt and advances the
// internal attempt counter.
func (p *ReconnectPolicy) Next() time.Duration {
	base := p.b.Duration()
	jitter := 1 + (p.rng.Float64()*0.5 - 0.25) // uniform in [0.75, 1.25]
	d := time.Duration(float64(base) * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// NoteHealthyUptime resets the backoff attempt counter once the connection
// has stayed Open for at least healthySince (spec: "Backoff resets after 60s
// of healthy uptime").
func (p *ReconnectPolicy) NoteHealthyUptime(uptime time.Duration) {
	if uptime >= p.healthySince {
		p.b.Reset()
	}
}

// Reset forces the attempt counter back to zero, e.g. after an operator
// clears an AuthStalled handle.
func (p *ReconnectPolicy) Reset() {
	p.b.Reset()
}
