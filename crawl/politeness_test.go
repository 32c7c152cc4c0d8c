package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/sitecrawl/config"
)

func newTestPoliteness(clock Clock) *Politeness {
	p := NewPoliteness(config.PolitenessConfig{
		MinDelay:      time.Second,
		MaxDelay:      3 * time.Second,
		BackoffFactor: 2,
		MaxBackoff:    10 * time.Second,
	}, clock)
	p.random = func() float64 { return 0.5 }
	return p
}

func TestPoliteness_DelayWithinRange(t *testing.T) {
	clock := newManualClock()
	p := newTestPoliteness(clock)

	for _, r := range []float64{0, 0.25, 0.999} {
		p.random = func() float64 { return r }
		d := p.Record("example.com", OutcomeSuccess)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
	assert.Equal(t, time.Duration(0), p.Remaining("unseen.example"))
}

func TestPoliteness_BackoffGrowsAndResets(t *testing.T) {
	clock := newManualClock()
	p := newTestPoliteness(clock)
	const domain = "example.com"

	assert.Equal(t, 2*time.Second, p.Record(domain, OutcomeSuccess))
	assert.Equal(t, 2*time.Second, p.Remaining(domain))

	assert.Equal(t, 4*time.Second, p.Record(domain, OutcomeRateLimited))
	assert.Equal(t, 8*time.Second, p.Record(domain, OutcomeRateLimited))
	assert.Equal(t, 10*time.Second, p.Record(domain, OutcomeRateLimited), "capped")
	assert.Equal(t, 10*time.Second, p.Backoff(domain))

	assert.Equal(t, 10*time.Second, p.Record(domain, OutcomeFailure), "failures keep the backoff")

	assert.Equal(t, 2*time.Second, p.Record(domain, OutcomeSuccess))
	assert.Equal(t, time.Duration(0), p.Backoff(domain))
}

func TestPoliteness_WaitUsesClock(t *testing.T) {
	clock := newManualClock()
	p := newTestPoliteness(clock)
	p.Record("example.com", OutcomeSuccess)

	done := make(chan error, 1)
	go func() { done <- p.Wait(context.Background(), "example.com") }()

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("wait returned before the delay elapsed")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the delay")
	}

	assert.NoError(t, p.Wait(context.Background(), "other.example"))
}

func TestPoliteness_WaitCancelled(t *testing.T) {
	clock := newManualClock()
	p := newTestPoliteness(clock)
	p.Record("example.com", OutcomeRateLimited)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx, "example.com"), context.Canceled)
}
