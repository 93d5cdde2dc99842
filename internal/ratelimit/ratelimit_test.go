package ratelimit

import (
	"math/rand"
	"testing"
	"time"

	"ultrareader/internal/clock"
)

func TestJitteredDelayBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := 1000 * time.Millisecond
	for i := 0; i < 200; i++ {
		f := 0.3
		got := jitteredDelay(base, f, rng)
		lower := time.Duration(float64(base) * (1 - f))
		upper := time.Duration(float64(base) * (1 + f))
		if got < lower || got > upper {
			t.Fatalf("jitteredDelay out of bounds: %v not in [%v, %v]", got, lower, upper)
		}
	}
}

func TestCrawlDelayOverridesRPS(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	delay := int64(2000)
	l := New(Config{RequestsPerSecond: 10, CrawlDelayMs: &delay, JitterFactor: 0}, WithClock(fc), WithRand(rand.New(rand.NewSource(1))))

	l.WaitForNextSlot() // first call never waits
	start := fc.Now()
	l.WaitForNextSlot()
	elapsed := fc.Now().Sub(start)
	if elapsed < 1500*time.Millisecond {
		t.Fatalf("expected >= ~1500ms gap between slots, got %v", elapsed)
	}
}

func TestSetCrawlDelayClearsOverride(t *testing.T) {
	delay := int64(5000)
	l := New(Config{RequestsPerSecond: 10, CrawlDelayMs: &delay})
	if l.minInterval() != 5*time.Second {
		t.Fatalf("expected 5s interval, got %v", l.minInterval())
	}
	l.SetCrawlDelay(nil)
	want := time.Duration(1000/10) * time.Millisecond
	if l.minInterval() != want {
		t.Fatalf("expected %v after clearing override, got %v", want, l.minInterval())
	}
}
