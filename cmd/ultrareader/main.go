// Command ultrareader is a thin demonstration CLI over the acquisition
// core, grounded on the teacher's cli/cmd/ariadne/main.go flag-parsing and
// signal-handling style (seed gathering, graceful-shutdown on SIGINT,
// optional metrics endpoint), trimmed to what one orchestrator.Scrape call
// per URL needs.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"ultrareader/internal/affinity"
	"ultrareader/internal/breaker"
	"ultrareader/internal/config"
	"ultrareader/internal/enginefetch"
	"ultrareader/internal/models"
	"ultrareader/internal/ratelimit"
	"ultrareader/internal/telemetry/logging"
	"ultrareader/internal/telemetry/metrics"
	"ultrareader/internal/telemetry/tracing"
	"ultrareader/internal/useragent"
	"ultrareader/orchestrator"
)

func main() {
	var (
		urlList     string
		urlFile     string
		forceEngine string
		configPath  string
		metricsAddr string
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&urlList, "urls", "", "Comma separated list of URLs to fetch")
	flag.StringVar(&urlFile, "url-file", "", "Path to file containing one URL per line")
	flag.StringVar(&forceEngine, "force-engine", "", "Skip cascade ordering and always use this engine")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file (global + per-domain overrides)")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose Prometheus metrics on address (e.g. :9090)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("ultrareader – hardened acquisition core demo CLI")
		return
	}

	urls, err := gatherURLs(urlList, urlFile)
	if err != nil {
		log.Fatalf("collect urls: %v", err)
	}
	if len(urls) == 0 {
		fmt.Println("No URLs provided. Use -urls or -url-file.")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger := logging.New(base)

	tracer, tp := tracing.New("ultrareader")
	defer func() { _ = tp.Shutdown(context.Background()) }()

	recorder := metrics.New()

	cfgStore, err := config.NewStore(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	settings := cfgStore.Resolve("")

	rotator := useragent.New(useragent.Options{})
	affinityCache := affinity.New(settings.Affinity)
	domainBreaker := breaker.New(settings.Breaker)

	engines := map[string]enginefetch.Engine{
		"http":      enginefetch.NewHTTPEngine(rotator),
		"tlsclient": enginefetch.NewTLSEngine(rotator),
	}
	// The browser engine needs a live browser pool; omitted from this demo
	// CLI so it runs without a Chromium dependency on the host. A caller
	// wiring the hero engine constructs internal/browser.NewPool and passes
	// it to enginefetch.NewBrowserEngine, then adds it to this map under
	// "hero".

	limiter := ratelimit.New(settings.RateLimit)

	orc := orchestrator.New(orchestrator.Config{
		Engines:        engines,
		DefaultOrder:   settings.EngineOrder,
		ForceEngine:    forceEngine,
		AffinityCache:  affinityCache,
		CircuitBreaker: domainBreaker,
		Logger:         logger,
		Verbose:        verbose,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Warn("signal received; shutting down")
		cancel()
	}()

	if metricsAddr != "" {
		go func() {
			srv := &http.Server{Addr: metricsAddr, Handler: recorder.Handler()}
			go func() {
				<-ctx.Done()
				_ = srv.Shutdown(context.Background())
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "error", err.Error())
			}
		}()
	}

	for _, u := range urls {
		limiter.WaitForNextSlot()

		acqCtx, span := tracer.StartAcquisition(ctx, u)
		start := time.Now()

		res, err := orc.Scrape(acqCtx, models.EngineMeta{URL: u, Logger: logger})
		elapsed := time.Since(start)

		if err != nil {
			tracer.RecordError(acqCtx, "cascade", err)
			tracing.Finish(span, false)
			recorder.ObserveFetch("all", "failure", elapsed.Seconds())
			fmt.Printf("FAIL  %s  %v\n", u, err)
			continue
		}
		tracing.Finish(span, true)
		recorder.ObserveFetch(res.EngineName, "success", elapsed.Seconds())
		fmt.Printf("OK    %s  engine=%s status=%d bytes=%d attempted=%v\n",
			u, res.EngineName, res.StatusCode, len(res.HTML), res.AttemptedEngines)

		if ctx.Err() != nil {
			break
		}
	}
}

func gatherURLs(list, file string) ([]string, error) {
	var out []string
	if list != "" {
		for _, u := range strings.Split(list, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				out = append(out, u)
			}
		}
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				out = append(out, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
