package crawl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/sitecrawl/config"
	"github.com/use-agent/sitecrawl/models"
)

func admissionConfig(maxConcurrency int) config.AdmissionConfig {
	return config.AdmissionConfig{
		MaxConcurrency:         maxConcurrency,
		MemoryThresholdPercent: 80,
		PollInterval:           5 * time.Millisecond,
		MaxWait:                time.Second,
	}
}

func TestAdmission_ConcurrencyCeiling(t *testing.T) {
	a := NewAdmission(admissionConfig(2), nil, memoryAt(10), nil)

	assert.True(t, a.TryAcquire())
	assert.True(t, a.TryAcquire())
	assert.False(t, a.TryAcquire())
	assert.Equal(t, 2, a.InFlight())

	a.Release("example.com", OutcomeSuccess)
	assert.True(t, a.TryAcquire())
	assert.Equal(t, 2, a.Stats().InFlight)
}

func TestAdmission_MemoryGate(t *testing.T) {
	mem := memoryAt(90)
	a := NewAdmission(admissionConfig(5), nil, mem, nil)

	assert.False(t, a.TryAcquire(), "memory above threshold")
	assert.Equal(t, 0, a.InFlight())

	mem.percent.Store(40)
	assert.True(t, a.TryAcquire())
	assert.InDelta(t, 40.0, a.Stats().MemoryPercent, 0.01)
}

func TestAdmission_ResourceExhausted(t *testing.T) {
	cfg := admissionConfig(5)
	cfg.MaxWait = 30 * time.Millisecond
	a := NewAdmission(cfg, nil, memoryAt(95), nil)

	err := a.Acquire(context.Background(), "example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrResourceExhausted))
	assert.Equal(t, 0, a.InFlight())
}

func TestAdmission_WaitsForPressureToSubside(t *testing.T) {
	mem := memoryAt(95)
	a := NewAdmission(admissionConfig(5), nil, mem, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		mem.percent.Store(50)
	}()
	require.NoError(t, a.Acquire(context.Background(), "example.com"))
	assert.Equal(t, 1, a.InFlight())
}

func TestAdmission_FullSlotsDoNotCountAsPressure(t *testing.T) {
	cfg := admissionConfig(1)
	cfg.MaxWait = 10 * time.Millisecond
	a := NewAdmission(cfg, nil, memoryAt(10), nil)
	require.True(t, a.TryAcquire())

	go func() {
		time.Sleep(50 * time.Millisecond)
		a.Release("example.com", OutcomeSuccess)
	}()
	require.NoError(t, a.Acquire(context.Background(), "example.com"))
}

func TestAdmission_AcquireCancelled(t *testing.T) {
	a := NewAdmission(admissionConfig(1), nil, memoryAt(10), nil)
	require.True(t, a.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Acquire(ctx, "example.com"), context.DeadlineExceeded)
}

func TestAdmission_NeverExceedsCeilingUnderLoad(t *testing.T) {
	const ceiling = 3
	a := NewAdmission(admissionConfig(ceiling), nil, memoryAt(10), nil)

	var (
		wg      sync.WaitGroup
		peak    atomic.Int64
		current atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, a.Acquire(context.Background(), "example.com")) {
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			assert.LessOrEqual(t, a.InFlight(), ceiling)
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			a.Release("example.com", OutcomeSuccess)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(ceiling))
	assert.Equal(t, 0, a.InFlight())
}

func TestAdmission_AppliesPoliteness(t *testing.T) {
	clock := newManualClock()
	pol := newTestPoliteness(clock)
	a := NewAdmission(admissionConfig(5), pol, memoryAt(10), clock)

	require.NoError(t, a.Acquire(context.Background(), "example.com"))
	a.Release("example.com", OutcomeSuccess)

	done := make(chan error, 1)
	go func() { done <- a.Acquire(context.Background(), "example.com") }()
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, a.InFlight())

	clock.Advance(2 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed after the politeness delay")
	}
	assert.Equal(t, 1, a.InFlight())
}

// stepClock advances clock by d once exactly one goroutine is parked on it.
func stepClock(t *testing.T, clock *manualClock, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	clock.Advance(d)
}

func TestAdmission_PolitenessAppliesToSlotWaiters(t *testing.T) {
	clock := newManualClock()
	pol := NewPoliteness(config.PolitenessConfig{MinDelay: 2 * time.Second, MaxDelay: 2 * time.Second}, clock)
	cfg := admissionConfig(1)
	cfg.PollInterval = 100 * time.Millisecond
	a := NewAdmission(cfg, pol, memoryAt(10), clock)

	require.NoError(t, a.Acquire(context.Background(), "example.com"))

	done := make(chan error, 1)
	go func() { done <- a.Acquire(context.Background(), "example.com") }()
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)

	a.Release("example.com", OutcomeSuccess)
	stepClock(t, clock, 100*time.Millisecond)

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("slot granted before the politeness delay elapsed")
	default:
	}
	assert.Equal(t, 0, a.InFlight())
	assert.Equal(t, 1900*time.Millisecond, pol.Remaining("example.com"))

	clock.Advance(1900 * time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed after the politeness delay")
	}
	assert.Equal(t, 1, a.InFlight())
}

func TestAdmission_PressureWindowResetsWhenMemoryRecovers(t *testing.T) {
	clock := newManualClock()
	mem := memoryAt(10)
	cfg := admissionConfig(1)
	cfg.PollInterval = 100 * time.Millisecond
	cfg.MaxWait = 500 * time.Millisecond
	a := NewAdmission(cfg, nil, mem, clock)
	require.True(t, a.TryAcquire())

	mem.percent.Store(95)
	done := make(chan error, 1)
	go func() { done <- a.Acquire(context.Background(), "example.com") }()

	// 400ms under pressure, one healthy sample with the slot still busy,
	// then another 400ms under pressure.
	for i := 0; i < 4; i++ {
		stepClock(t, clock, 100*time.Millisecond)
	}
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	mem.percent.Store(10)
	stepClock(t, clock, 100*time.Millisecond)
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	mem.percent.Store(95)
	for i := 0; i < 5; i++ {
		stepClock(t, clock, 100*time.Millisecond)
	}

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("acquire ended early: %v", err)
	default:
	}

	mem.percent.Store(10)
	a.Release("example.com", OutcomeSuccess)
	stepClock(t, clock, 100*time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed once memory recovered")
	}
}

func TestAdmission_SustainedPressureMeasuredOnClock(t *testing.T) {
	clock := newManualClock()
	cfg := admissionConfig(1)
	cfg.PollInterval = 100 * time.Millisecond
	cfg.MaxWait = 250 * time.Millisecond
	a := NewAdmission(cfg, nil, memoryAt(95), clock)

	done := make(chan error, 1)
	go func() { done <- a.Acquire(context.Background(), "example.com") }()
	for i := 0; i < 3; i++ {
		stepClock(t, clock, 100*time.Millisecond)
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, models.ErrResourceExhausted)
	case <-time.After(time.Second):
		t.Fatal("acquire did not give up after MaxWait")
	}
}
