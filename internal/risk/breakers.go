package risk

import (
	"sync"
	"time"
)

const (
	consecutiveLossWindow = 2 * time.Hour
	hourlyLossWindow      = time.Hour
	rapidLossWindow       = 15 * time.Minute
)

// closeSample is one realized-PnL observation (spec §4.4 circuit breakers),
// expressed as a percent of NAV at close time.
type closeSample struct {
	at  time.Time
	pct float64
}

// Breakers tracks the four circuit breakers (spec §4.4), each a lazily
// swept rolling-window accumulator modeled on liquidation_monitor.go's
// cleanup() technique, generalized from a single liquidation-volume window
// to four independent windows over realized close PnL.
type Breakers struct {
	mu sync.Mutex

	hourly      []closeSample
	rapid       []closeSample
	consecutive []closeSample // losses only; cleared on a winning close

	dailyDate    string
	dailyLossPct float64
}

// NewBreakers constructs an empty Breakers.
func NewBreakers() *Breakers { return &Breakers{} }

// RecordClose folds a realized close into every window. nav must be the
// portfolio NAV at close time; if nav <= 0 the sample is ignored.
func (b *Breakers) RecordClose(realizedPnLQuote, nav float64, now time.Time) {
	if nav <= 0 {
		return
	}
	pct := realizedPnLQuote / nav * 100

	b.mu.Lock()
	defer b.mu.Unlock()

	b.hourly = append(trim(b.hourly, now, hourlyLossWindow), closeSample{now, pct})
	b.rapid = append(trim(b.rapid, now, rapidLossWindow), closeSample{now, pct})

	if pct < 0 {
		b.consecutive = append(trim(b.consecutive, now, consecutiveLossWindow), closeSample{now, pct})
	} else {
		b.consecutive = nil
	}

	date := now.UTC().Format("2006-01-02")
	if date != b.dailyDate {
		b.dailyDate = date
		b.dailyLossPct = 0
	}
	if pct < 0 {
		b.dailyLossPct += pct
	}
}

func trim(samples []closeSample, now time.Time, window time.Duration) []closeSample {
	cutoff := now.Add(-window)
	kept := samples[:0]
	for _, s := range samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

func sum(samples []closeSample) float64 {
	var total float64
	for _, s := range samples {
		total += s.pct
	}
	return total
}

// Active returns the reasons for every circuit breaker currently tripped
// (spec §4.4). An empty slice means no breaker is active.
func (b *Breakers) Active(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var reasons []string

	hourly := trim(b.hourly, now, hourlyLossWindow)
	if sum(hourly) <= -2 {
		reasons = append(reasons, "hourly_loss_breaker")
	}

	rapid := trim(b.rapid, now, rapidLossWindow)
	if sum(rapid) <= -3 {
		reasons = append(reasons, "rapid_loss_breaker")
	}

	consecutive := trim(b.consecutive, now, consecutiveLossWindow)
	if len(consecutive) >= 3 {
		reasons = append(reasons, "consecutive_loss_breaker")
	}

	date := now.UTC().Format("2006-01-02")
	dailyLoss := b.dailyLossPct
	if date != b.dailyDate {
		dailyLoss = 0
	}
	if dailyLoss <= -8 {
		reasons = append(reasons, "daily_shutdown_breaker")
	}

	return reasons
}
