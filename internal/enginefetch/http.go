package enginefetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"ultrareader/internal/models"
	"ultrareader/internal/useragent"
)

const httpEngineName = "http"
const httpMaxTimeout = 10 * time.Second
const httpMaxBodyBytes = 10 << 20

// HTTPEngine is the always-available fetch engine, grounded verbatim on the
// teacher's colly-based fetcher (engine/internal/crawler/colly_fetcher.go):
// a fresh colly.Collector per request, headers applied in OnRequest, the
// response classified in OnResponse/OnError. robots.txt compliance is this
// module's own internal/robots.Policy, not colly's built-in handling, so
// that is explicitly disabled on the collector.
type HTTPEngine struct {
	rotator *useragent.Rotator
}

// NewHTTPEngine builds an HTTPEngine with its own UA rotator (or shares one
// injected by the orchestrator).
func NewHTTPEngine(rotator *useragent.Rotator) *HTTPEngine {
	return &HTTPEngine{rotator: rotator}
}

func (e *HTTPEngine) Config() models.EngineConfig {
	return models.EngineConfig{Name: httpEngineName, MaxTimeout: httpMaxTimeout, Features: models.EngineFeatures{}}
}

func (e *HTTPEngine) IsAvailable() bool { return true }

func (e *HTTPEngine) Scrape(ctx context.Context, meta models.EngineMeta) (*models.EngineResult, error) {
	ctx, cancel := boundContext(ctx, httpMaxTimeout)
	defer cancel()

	ua := resolveUA(meta.Options, meta.URL, e.rotator)
	headers := buildHeaders(meta.URL, ua, meta.Options, false, meta.Options.Proxy, e.rotator)

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(), // classify 4xx/5xx bodies ourselves instead of colly discarding them
	)
	c.SetRequestTimeout(httpMaxTimeout)
	c.MaxBodySize = httpMaxBodyBytes
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1}); err != nil {
		return nil, models.NewEngineError(httpEngineName, "configuring collector failed", err)
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	start := time.Now()
	var (
		result  *models.EngineResult
		engErr  error
		handled bool
	)

	c.OnResponse(func(r *colly.Response) {
		handled = true
		html := string(r.Body)
		duration := time.Since(start)

		respHeaders := make(map[string]string)
		if r.Headers != nil {
			for k := range *r.Headers {
				respHeaders[k] = r.Headers.Get(k)
			}
		}

		if r.StatusCode >= 400 {
			if _, ok := hasChallengePattern(html); ok {
				challengeType := "bot-detection"
				if looksLikeCloudflare(html, respHeaders) {
					challengeType = "cloudflare"
				}
				engErr = models.NewChallengeDetectedError(httpEngineName, challengeType, "")
				return
			}
			engErr = models.NewHTTPError(httpEngineName, r.StatusCode, http.StatusText(r.StatusCode))
			return
		}

		if _, ok := hasChallengePattern(html); ok {
			challengeType := "bot-detection"
			if looksLikeCloudflare(html, respHeaders) {
				challengeType = "cloudflare"
			}
			engErr = models.NewChallengeDetectedError(httpEngineName, challengeType, "")
			return
		}

		if err := checkSufficientContent(httpEngineName, html); err != nil {
			engErr = err
			return
		}

		finalURL := meta.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}

		result = &models.EngineResult{
			HTML:        r.Body,
			FinalURL:    finalURL,
			StatusCode:  r.StatusCode,
			ContentType: strings.TrimSpace(respHeaders["Content-Type"]),
			Headers:     respHeaders,
			EngineName:  httpEngineName,
			DurationMs:  duration.Milliseconds(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if handled {
			return // OnResponse already classified this attempt
		}
		handled = true
		if ctx.Err() == context.DeadlineExceeded {
			engErr = models.NewEngineTimeoutError(httpEngineName, httpMaxTimeout.Milliseconds())
			return
		}
		engErr = models.NewEngineError(httpEngineName, "request failed", err)
	})

	if err := c.Visit(meta.URL); err != nil && !handled {
		if ctx.Err() == context.DeadlineExceeded {
			engErr = models.NewEngineTimeoutError(httpEngineName, httpMaxTimeout.Milliseconds())
		} else {
			engErr = models.NewEngineError(httpEngineName, "request failed", err)
		}
	}

	if engErr != nil {
		return nil, engErr
	}
	return result, nil
}
