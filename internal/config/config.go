// Package config implements the layered runtime configuration of spec.md
// §7: global defaults overridden per-domain, loaded from YAML with optional
// filesystem hot reload.
//
// Grounded on the teacher's engine/configx/layers.go precedence model
// (global < environment < domain, generalized here to global < domain
// since this spec has no separate environment/site/ephemeral tiers) and
// packages/engine/config/runtime.go's fsnotify-driven hot-reload loop,
// simplified from that file's full version-history/A-B-testing apparatus
// down to the load/merge/watch concerns this spec actually needs.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"ultrareader/internal/affinity"
	"ultrareader/internal/breaker"
	"ultrareader/internal/ratelimit"
)

// EngineSettings is the tunable knobs of one acquisition run, layered
// global-then-domain.
type EngineSettings struct {
	EngineOrder      []string              `yaml:"engineOrder" json:"engineOrder"`
	RateLimit        ratelimit.Config      `yaml:"rateLimit" json:"rateLimit"`
	Breaker          breaker.Config        `yaml:"breaker" json:"breaker"`
	Affinity         affinity.Config       `yaml:"affinity" json:"affinity"`
	CaptchaBudgetMax int                   `yaml:"captchaBudgetMax" json:"captchaBudgetMax"`
	HoneypotEnabled  bool                  `yaml:"honeypotEnabled" json:"honeypotEnabled"`
	HoneypotThreshold int                  `yaml:"honeypotThreshold" json:"honeypotThreshold"`
}

// Document is the on-disk shape: a global baseline plus per-domain overrides
// keyed by registrable domain.
type Document struct {
	Global        EngineSettings            `yaml:"global" json:"global"`
	DomainOverrides map[string]EngineSettings `yaml:"domainOverrides" json:"domainOverrides"`
}

// DefaultDocument matches spec.md's stated defaults across the sub-configs.
func DefaultDocument() Document {
	return Document{
		Global: EngineSettings{
			EngineOrder:       []string{"http", "tlsclient", "hero"},
			RateLimit:         ratelimit.Config{RequestsPerSecond: 1, JitterFactor: 0.3},
			Breaker:           breaker.DefaultConfig(),
			Affinity:          affinity.Config{},
			CaptchaBudgetMax:  50,
			HoneypotEnabled:   true,
			HoneypotThreshold: 8,
		},
		DomainOverrides: map[string]EngineSettings{},
	}
}

// mergeSettings overlays override fields atop base, so a domain override
// need only specify what it changes. The RateLimit, Breaker and Affinity
// sub-configs are replaced whole when the override sets their key fields
// (RequestsPerSecond; FailureThreshold; MaxEntries or TTL), not merged field
// by field. HoneypotEnabled is true if either side enables it, so an
// override cannot turn it off.
func mergeSettings(base, override EngineSettings) EngineSettings {
	merged := base
	if len(override.EngineOrder) > 0 {
		merged.EngineOrder = override.EngineOrder
	}
	if override.RateLimit.RequestsPerSecond > 0 {
		merged.RateLimit = override.RateLimit
	}
	if override.Breaker.FailureThreshold > 0 {
		merged.Breaker = override.Breaker
	}
	if override.Affinity.MaxEntries > 0 || override.Affinity.TTL > 0 {
		merged.Affinity = override.Affinity
	}
	if override.CaptchaBudgetMax > 0 {
		merged.CaptchaBudgetMax = override.CaptchaBudgetMax
	}
	merged.HoneypotEnabled = override.HoneypotEnabled || base.HoneypotEnabled
	if override.HoneypotThreshold > 0 {
		merged.HoneypotThreshold = override.HoneypotThreshold
	}
	return merged
}

// Store holds a loaded Document and resolves per-domain effective settings.
type Store struct {
	mu       sync.RWMutex
	doc      Document
	path     string
	checksum string
}

// NewStore loads path if it exists, else starts from DefaultDocument.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, doc: DefaultDocument()}
	if path == "" {
		return s, nil
	}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Resolve returns the effective settings for a domain: global baseline
// overlaid with any domain-specific override.
func (s *Store) Resolve(domain string) EngineSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if override, ok := s.doc.DomainOverrides[domain]; ok {
		return mergeSettings(s.doc.Global, override)
	}
	return s.doc.Global
}

// Document returns a copy of the current loaded document.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc Document
	defaultDoc := DefaultDocument()
	doc = defaultDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	if doc.DomainOverrides == nil {
		doc.DomainOverrides = map[string]EngineSettings{}
	}

	s.mu.Lock()
	s.doc = doc
	s.checksum = checksumOf(doc)
	s.mu.Unlock()
	return nil
}

func checksumOf(doc Document) string {
	b, _ := json.Marshal(doc)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Watch starts an fsnotify watch on the store's backing file, reloading on
// every write and delivering a notification on changesCh whenever the
// reloaded document's checksum actually differs from the last loaded one.
// It returns as soon as the watch is running (or with an error if the
// watcher fails to start); the watch itself runs until ctx is cancelled,
// then closes the returned channel.
func (s *Store) Watch(ctx context.Context) (<-chan Document, error) {
	changesCh := make(chan Document, 4)
	if s.path == "" {
		close(changesCh)
		return changesCh, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(changesCh)
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		close(changesCh)
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		defer close(changesCh)
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				debounce.Reset(50 * time.Millisecond)
			case <-debounce.C:
				s.mu.RLock()
				prev := s.checksum
				s.mu.RUnlock()
				if err := s.reload(); err != nil {
					continue
				}
				s.mu.RLock()
				cur := s.checksum
				doc := s.doc
				s.mu.RUnlock()
				if cur != prev {
					select {
					case changesCh <- doc:
					default:
					}
				}
			case <-watcher.Errors:
				continue
			case <-ctx.Done():
				return
			}
		}
	}()

	return changesCh, nil
}
