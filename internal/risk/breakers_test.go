package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHourlyLossBreakerTriggersAtExactThreshold(t *testing.T) {
	b := NewBreakers()
	now := time.Unix(100_000, 0)
	b.RecordClose(-2, 100, now) // -2% of NAV, exactly at threshold

	require.Contains(t, b.Active(now), "hourly_loss_breaker")
}

func TestHourlyLossBreakerExpiresAfterWindow(t *testing.T) {
	b := NewBreakers()
	now := time.Unix(100_000, 0)
	b.RecordClose(-2, 100, now)

	later := now.Add(61 * time.Minute)
	require.NotContains(t, b.Active(later), "hourly_loss_breaker")
}

func TestRapidLossBreakerAfterThirdClose(t *testing.T) {
	b := NewBreakers()
	now := time.Unix(200_000, 0)
	b.RecordClose(-1, 100, now)
	b.RecordClose(-1, 100, now.Add(time.Minute))
	require.NotContains(t, b.Active(now.Add(time.Minute)), "rapid_loss_breaker")

	b.RecordClose(-1, 100, now.Add(2*time.Minute))
	require.Contains(t, b.Active(now.Add(2*time.Minute)), "rapid_loss_breaker")
}

func TestConsecutiveLossBreakerClearsOnWin(t *testing.T) {
	b := NewBreakers()
	now := time.Unix(300_000, 0)
	b.RecordClose(-1, 100, now)
	b.RecordClose(-1, 100, now.Add(time.Minute))
	b.RecordClose(5, 100, now.Add(2*time.Minute)) // a winning close resets the streak
	b.RecordClose(-1, 100, now.Add(3*time.Minute))

	require.NotContains(t, b.Active(now.Add(3*time.Minute)), "consecutive_loss_breaker")
}

func TestDailyShutdownBreakerResetsOnNewUTCDay(t *testing.T) {
	b := NewBreakers()
	day1 := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	b.RecordClose(-9, 100, day1)
	require.Contains(t, b.Active(day1), "daily_shutdown_breaker")

	day2 := time.Date(2026, 1, 2, 0, 5, 0, 0, time.UTC)
	require.NotContains(t, b.Active(day2), "daily_shutdown_breaker")
}
