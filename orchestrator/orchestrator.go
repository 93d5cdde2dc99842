// Package orchestrator implements the multi-engine fetch cascade of
// spec.md §4.12: per-domain engine ordering via affinity, a circuit-breaker
// gate in front of every attempt, bounded per-engine timeouts, and the
// shouldRetry classification that decides cascade continuation.
//
// Grounded on the teacher's engine/engine.go facade (single entry point
// wiring independently-owned subsystems behind one Scrape-like call) and
// engine/strategies/strategies.go's FallbackFetching idiom, generalized
// from a parallel/sequential processing-strategy enum to the spec's fixed
// sequential-cascade-with-classified-retry algorithm.
package orchestrator

import (
	"context"
	"net/url"
	"time"

	"ultrareader/internal/affinity"
	"ultrareader/internal/breaker"
	"ultrareader/internal/enginefetch"
	"ultrareader/internal/models"
)

// Result is one successful (or exhausted) cascade's full outcome: the
// winning engine's result plus the bookkeeping the caller needs to reason
// about what the cascade tried along the way.
type Result struct {
	*models.EngineResult
	AttemptedEngines []string
	EngineErrors     map[string]models.EngineError
}

// Config configures a Orchestrator at construction, mirroring spec.md
// §4.12's `{engines?, skipEngines?, forceEngine?, affinityCache?,
// circuitBreaker?, logger?, verbose?}`.
type Config struct {
	Engines        map[string]enginefetch.Engine
	DefaultOrder   []string
	SkipEngines    map[string]bool
	ForceEngine    string
	AffinityCache  *affinity.Cache
	CircuitBreaker *breaker.Breaker
	Logger         models.Logger
	Verbose        bool
}

var defaultOrder = []string{"http", "tlsclient", "hero"}

// Orchestrator is the cascade engine of spec.md §4.12.
type Orchestrator struct {
	engines       map[string]enginefetch.Engine
	defaultOrder  []string
	skipEngines   map[string]bool
	forceEngine   string
	affinityCache *affinity.Cache
	breakerGate   *breaker.Breaker
	logger        models.Logger
}

// New builds an Orchestrator from cfg, applying spec defaults for any
// zero-valued optional field.
func New(cfg Config) *Orchestrator {
	order := cfg.DefaultOrder
	if len(order) == 0 {
		order = defaultOrder
	}
	logger := cfg.Logger
	if logger == nil {
		logger = models.NopLogger{}
	}
	return &Orchestrator{
		engines:       cfg.Engines,
		defaultOrder:  order,
		skipEngines:   cfg.SkipEngines,
		forceEngine:   cfg.ForceEngine,
		affinityCache: cfg.AffinityCache,
		breakerGate:   cfg.CircuitBreaker,
		logger:        logger,
	}
}

// Scrape runs the cascade for one URL per spec.md §4.12's per-scrape
// algorithm.
func (o *Orchestrator) Scrape(ctx context.Context, meta models.EngineMeta) (*Result, error) {
	domain := domainOf(meta.URL)
	order := o.resolveOrder(domain)
	if len(order) == 0 {
		return nil, models.NewAllEnginesFailedError(nil, map[string]models.EngineError{})
	}

	attempted := make([]string, 0, len(order))
	engineErrors := make(map[string]models.EngineError, len(order))
	blocked := false

	for _, name := range order {
		engine, ok := o.engines[name]
		if !ok || engine == nil {
			continue
		}

		if o.breakerGate != nil && !o.breakerGate.CanRequest(domain) {
			blocked = true
			break
		}

		attempted = append(attempted, name)

		start := time.Now()
		attemptCtx, cancel := boundedContext(ctx, engine.Config().MaxTimeout)
		res, err := engine.Scrape(attemptCtx, meta)
		cancel()
		elapsed := time.Since(start)
		elapsedMs := float64(elapsed.Milliseconds())

		if err == nil {
			if o.affinityCache != nil {
				o.affinityCache.RecordResult(domain, name, true, &elapsedMs)
			}
			if o.breakerGate != nil {
				o.breakerGate.RecordSuccess(domain)
			}
			o.logger.Info("engine succeeded", "engine", name, "domain", domain, "duration_ms", elapsed.Milliseconds())
			return &Result{EngineResult: res, AttemptedEngines: attempted, EngineErrors: engineErrors}, nil
		}

		engErr := models.AsEngineError(name, err)
		engineErrors[name] = engErr
		if o.affinityCache != nil {
			o.affinityCache.RecordResult(domain, name, false, &elapsedMs)
		}
		if o.breakerGate != nil {
			o.breakerGate.RecordFailure(domain)
		}
		o.logger.Warn("engine failed", "engine", name, "domain", domain, "error", engErr.Error())

		if !shouldRetry(engErr) {
			break
		}
	}

	if blocked {
		return nil, models.NewAllEnginesFailedErrorBlocked(attempted, engineErrors)
	}
	return nil, models.NewAllEnginesFailedError(attempted, engineErrors)
}

// resolveOrder computes this scrape's fixed engine order: forceEngine wins
// outright, else affinity (when present) reorders the default/available
// set, always intersected with availability and the skip set.
func (o *Orchestrator) resolveOrder(domain string) []string {
	if o.forceEngine != "" {
		if _, ok := o.engines[o.forceEngine]; ok {
			return []string{o.forceEngine}
		}
		return nil
	}

	available := make([]string, 0, len(o.defaultOrder))
	for _, name := range o.defaultOrder {
		if o.skipEngines != nil && o.skipEngines[name] {
			continue
		}
		engine, ok := o.engines[name]
		if !ok || engine == nil || !engine.IsAvailable() {
			continue
		}
		available = append(available, name)
	}

	if o.affinityCache != nil {
		return o.affinityCache.GetOrderedEngines(domain, available)
	}
	return available
}

// shouldRetry classifies err per spec.md §4.12's shouldRetry table.
func shouldRetry(err models.EngineError) bool {
	if err == nil {
		return true
	}
	switch e := err.(type) {
	case *models.ChallengeDetectedError, *models.InsufficientContentError, *models.EngineTimeoutError:
		return true
	case *models.HTTPError:
		s := e.StatusCode
		return s == 403 || s == 404 || s == 429 || s >= 500
	case *models.EngineUnavailableError:
		return true
	default:
		return err.Retryable()
	}
}

// boundedContext links parent's cancellation to a fresh timeout scoped to
// the engine being attempted, so a slow engine cannot outlive its own
// configured budget regardless of the caller's deadline.
func boundedContext(parent context.Context, maxTimeout time.Duration) (context.Context, context.CancelFunc) {
	if maxTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, maxTimeout)
}

// domainOf extracts the hostname from rawURL, best-effort; an
// unparseable URL degrades to the raw string itself so affinity/breaker
// keys stay stable rather than empty.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
