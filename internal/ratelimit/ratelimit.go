// Package ratelimit implements the single-slot, jittered rate limiter with
// optional robots.txt crawl-delay override.
//
// Grounded on the teacher's engine/internal/ratelimit/token_bucket.go +
// clock.go idiom: an injectable Clock for deterministic tests and a
// jitter-on-sleep pattern.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"

	"ultrareader/internal/clock"
)

// Config configures a Limiter.
type Config struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	JitterFactor      float64 `yaml:"jitterFactor" json:"jitterFactor"`   // default 0.3
	CrawlDelayMs      *int64  `yaml:"crawlDelayMs" json:"crawlDelayMs"` // overrides 1000/rps when set
}

// Limiter is a serialized (concurrency=1) token spacer with jitter.
type Limiter struct {
	mu           sync.Mutex
	cfg          Config
	lastSlot     time.Time
	hasLastSlot  bool
	clock        clock.Clock
	rng          *rand.Rand
}

// Option customizes a Limiter at construction.
type Option func(*Limiter)

// WithClock injects a deterministic clock for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithRand injects a deterministic RNG for tests.
func WithRand(r *rand.Rand) Option {
	return func(l *Limiter) { l.rng = r }
}

// New builds a Limiter. JitterFactor defaults to 0.3 when zero.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.JitterFactor == 0 {
		cfg.JitterFactor = 0.3
	}
	l := &Limiter{cfg: cfg, clock: clock.Default, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) minInterval() time.Duration {
	if l.cfg.CrawlDelayMs != nil {
		return time.Duration(*l.cfg.CrawlDelayMs) * time.Millisecond
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return 0
	}
	return time.Duration(1000/l.cfg.RequestsPerSecond) * time.Millisecond
}

// SetCrawlDelay overrides (or, when nil, clears) the crawl-delay override.
func (l *Limiter) SetCrawlDelay(ms *int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.CrawlDelayMs = ms
}

// WaitForNextSlot blocks (via the injected Clock) until the next admitted
// slot per spec.md §4.3's algorithm.
func (l *Limiter) WaitForNextSlot() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	minInterval := l.minInterval()

	if !l.hasLastSlot {
		l.lastSlot = now
		l.hasLastSlot = true
		return
	}

	elapsed := now.Sub(l.lastSlot)
	if elapsed < minInterval {
		wait := jitteredDelay(minInterval-elapsed, l.cfg.JitterFactor, l.rng)
		l.clock.Sleep(wait)
	} else if l.cfg.JitterFactor > 0 {
		jittered := jitteredDelay(50*time.Millisecond, l.cfg.JitterFactor, l.rng)
		if jittered > 10*time.Millisecond {
			l.clock.Sleep(jittered)
		}
	}
	l.lastSlot = l.clock.Now()
}

// JitteredDelay returns floor(base*(1-f) + rand*base*2f), exported for use
// by other components (challenge polling, retry backoff) that need the same
// jitter shape.
func JitteredDelay(base time.Duration, f float64, rng *rand.Rand) time.Duration {
	return jitteredDelay(base, f, rng)
}

func jitteredDelay(base time.Duration, f float64, rng *rand.Rand) time.Duration {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	lower := float64(base) * (1 - f)
	span := float64(base) * 2 * f
	return time.Duration(lower + rng.Float64()*span)
}
