// Package affinity implements the per-domain Engine Affinity Cache of
// spec.md §4.10: an LRU+TTL record of which fetch engine has historically
// succeeded for a domain, used to reorder the orchestrator's cascade.
//
// Grounded on the teacher's engine/resources/manager.go container/list LRU,
// swapped for golang/groupcache/lru (already present, indirectly, in the
// teacher's module graph via colly) plus cespare/xxhash/v2 for snapshot keys.
package affinity

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/groupcache/lru"

	"ultrareader/internal/clock"
)

const (
	defaultMaxEntries          = 1000
	defaultPreferredMinSamples = 2
	defaultPreferredMinRate    = 0.6
	defaultTTL                 = 24 * time.Hour
)

// Entry is one (domain, engine) affinity record.
type Entry struct {
	Successes      int
	Failures       int
	LastSuccess    time.Time
	LastFailure    time.Time
	AvgResponseMs  float64
	hasAvg         bool
	updatedAt      time.Time
}

func (e Entry) total() int { return e.Successes + e.Failures }

func (e Entry) successRate() float64 {
	if e.total() == 0 {
		return 0
	}
	return float64(e.Successes) / float64(e.total())
}

func (e Entry) laplaceScore() float64 {
	return float64(e.Successes+1) / float64(e.total()+2)
}

// DomainSnapshot is a read-only view of a domain's known engine entries.
type DomainSnapshot map[string]Entry

// Config controls cache bounds and preference thresholds.
type Config struct {
	MaxEntries          int
	TTL                 time.Duration
	PreferredMinSamples int
	PreferredMinRate    float64
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.PreferredMinSamples <= 0 {
		c.PreferredMinSamples = defaultPreferredMinSamples
	}
	if c.PreferredMinRate <= 0 {
		c.PreferredMinRate = defaultPreferredMinRate
	}
	return c
}

type domainRecord struct {
	engines   map[string]*Entry
	updatedAt time.Time
}

// Cache is the process-local, LRU-bounded engine affinity cache.
type Cache struct {
	mu    sync.Mutex
	cfg   Config
	lru   *lru.Cache
	clock clock.Clock
}

// Option customizes a Cache at construction.
type Option func(*Cache)

// WithClock injects a deterministic clock for tests.
func WithClock(c clock.Clock) Option {
	return func(ch *Cache) { ch.clock = c }
}

// New builds a Cache.
func New(cfg Config, opts ...Option) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{cfg: cfg, clock: clock.Default}
	c.lru = &lru.Cache{MaxEntries: cfg.MaxEntries}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) getOrCreate(domain string) *domainRecord {
	if v, ok := c.lru.Get(lru.Key(domain)); ok {
		rec := v.(*domainRecord)
		if c.clock.Now().Sub(rec.updatedAt) > c.cfg.TTL {
			rec = &domainRecord{engines: map[string]*Entry{}, updatedAt: c.clock.Now()}
			c.lru.Add(lru.Key(domain), rec)
		}
		return rec
	}
	rec := &domainRecord{engines: map[string]*Entry{}, updatedAt: c.clock.Now()}
	c.lru.Add(lru.Key(domain), rec)
	return rec
}

// RecordResult updates (or creates, resetting if TTL-expired) the
// (domain, engine) entry. EMA (lambda=0.3) is only updated for finite
// samples no larger than 10 minutes.
func (c *Cache) RecordResult(domain, engine string, success bool, responseMs *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.getOrCreate(domain)
	rec.updatedAt = c.clock.Now()

	e, ok := rec.engines[engine]
	if !ok {
		e = &Entry{}
		rec.engines[engine] = e
	}
	now := c.clock.Now()
	if success {
		e.Successes++
		e.LastSuccess = now
	} else {
		e.Failures++
		e.LastFailure = now
	}
	if responseMs != nil && *responseMs >= 0 && *responseMs <= 10*60*1000 {
		if !e.hasAvg {
			e.AvgResponseMs = *responseMs
			e.hasAvg = true
		} else {
			e.AvgResponseMs = 0.7*e.AvgResponseMs + 0.3*(*responseMs)
		}
	}
	e.updatedAt = now
	c.lru.Add(lru.Key(domain), rec) // touch: reinsert at MRU
}

// GetOrderedEngines returns defaultOrder verbatim if there is no valid
// (non-expired) record for domain; otherwise reorders per spec.md §4.10's
// five-key sort.
func (c *Cache) GetOrderedEngines(domain string, defaultOrder []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(lru.Key(domain))
	if !ok {
		return append([]string(nil), defaultOrder...)
	}
	rec := v.(*domainRecord)
	if c.clock.Now().Sub(rec.updatedAt) > c.cfg.TTL {
		c.lru.Remove(lru.Key(domain))
		return append([]string(nil), defaultOrder...)
	}
	if len(rec.engines) == 0 {
		return append([]string(nil), defaultOrder...)
	}

	type scored struct {
		engine string
		e      Entry
		idx    int
	}
	items := make([]scored, len(defaultOrder))
	for i, eng := range defaultOrder {
		entry := Entry{}
		if e, ok := rec.engines[eng]; ok {
			entry = *e
		}
		items[i] = scored{engine: eng, e: entry, idx: i}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		as, bs := neutralScore(a.e), neutralScore(b.e)
		if as != bs {
			return as > bs
		}
		if a.e.total() != b.e.total() {
			return a.e.total() > b.e.total()
		}
		if !a.e.LastSuccess.Equal(b.e.LastSuccess) {
			return a.e.LastSuccess.After(b.e.LastSuccess)
		}
		if a.e.AvgResponseMs != b.e.AvgResponseMs {
			if a.e.hasAvg != b.e.hasAvg {
				return a.e.hasAvg // has a measurement beats none
			}
			return a.e.AvgResponseMs < b.e.AvgResponseMs
		}
		return a.idx < b.idx
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.engine
	}
	return out
}

func neutralScore(e Entry) float64 {
	if e.total() == 0 {
		return 0.5
	}
	return e.laplaceScore()
}

// GetPreferredEngine returns the engine with >= PreferredMinSamples samples
// and success rate >= PreferredMinRate, highest rate first, ties by sample
// count. Returns "", false if none qualify.
func (c *Cache) GetPreferredEngine(domain string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(lru.Key(domain))
	if !ok {
		return "", false
	}
	rec := v.(*domainRecord)
	if c.clock.Now().Sub(rec.updatedAt) > c.cfg.TTL {
		return "", false
	}

	var best string
	var bestRate float64
	var bestSamples int
	found := false
	for eng, e := range rec.engines {
		if e.total() < c.cfg.PreferredMinSamples {
			continue
		}
		rate := e.successRate()
		if rate < c.cfg.PreferredMinRate {
			continue
		}
		if !found || rate > bestRate || (rate == bestRate && e.total() > bestSamples) {
			best, bestRate, bestSamples, found = eng, rate, e.total(), true
		}
	}
	return best, found
}

// GetDomainSnapshot returns a read-only, TTL-expiring view of domain's
// known engine entries.
func (c *Cache) GetDomainSnapshot(domain string) (DomainSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(lru.Key(domain))
	if !ok {
		return nil, false
	}
	rec := v.(*domainRecord)
	if c.clock.Now().Sub(rec.updatedAt) > c.cfg.TTL {
		c.lru.Remove(lru.Key(domain))
		return nil, false
	}
	snap := make(DomainSnapshot, len(rec.engines))
	for k, v := range rec.engines {
		snap[k] = *v
	}
	return snap, true
}

// snapshotKey hashes a (domain, engine) pair; exposed for callers (e.g.
// metrics label cardinality limiting) that want a compact cache key without
// holding a domain string around.
func snapshotKey(domain, engine string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(domain)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(engine)
	return h.Sum64()
}

// SnapshotKey is the exported form of snapshotKey.
func SnapshotKey(domain, engine string) uint64 { return snapshotKey(domain, engine) }
