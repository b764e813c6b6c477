// Command scrape runs a single search against one platform and writes the
// results to stdout or a file. Useful for ad-hoc pulls without the service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/browser"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/config"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/scraper"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/sink"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/targets"
)

func main() {
	var (
		platform   = flag.String("platform", "", "Platform to scrape: "+strings.Join(targets.Names(), ", "))
		query      = flag.String("query", "", "Search query")
		location   = flag.String("location", "", "Location hint (pincode or store id, target-specific)")
		maxPages   = flag.Int("pages", 0, "Maximum number of pages (0 = configured default)")
		format     = flag.String("format", "json", "Output format: json or csv")
		outputFile = flag.String("output", "", "Output file (default stdout)")
	)
	flag.Parse()

	if *platform == "" || *query == "" {
		fmt.Println("Both -platform and -query are required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Keep the data stream clean: logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	writer, err := sink.ForFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Targets that mint tokens through a browser flow need one; the rest
	// run fine without.
	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Scraper.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		Locale:         cfg.Browser.Locale,
		MaxConcurrent:  1,
	})
	if err != nil {
		logger.Warn("browser unavailable, browser-backed targets will fail", "error", err)
	} else {
		defer b.Close()
	}

	registry := targets.All(targets.Deps{
		Browser:     b,
		HTTPTimeout: cfg.Scraper.HTTPTimeout,
		UserAgent:   cfg.Scraper.UserAgent,
		Logger:      logger,
	})
	sessions := session.NewCache(cfg.Scraper.SessionCacheSize, cfg.Scraper.SessionTTL, logger)
	fetcher := pipeline.NewHTTPFetcher(cfg.Scraper.HTTPTimeout, cfg.Scraper.UserAgent, logger)
	svc := scraper.NewService(registry, sessions, fetcher, cfg.Scraper, pipeline.NewMetrics(), logger)

	result, err := svc.Search(ctx, *platform, *query, *location, *maxPages)
	if err != nil && result == nil {
		logger.Error("search failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		// Partial results still get written; the exit code tells the story.
		logger.Warn("search ended early", "error", err, "reason", result.Reason)
	}

	logger.Info("search finished",
		"platform", *platform,
		"query", *query,
		"reason", result.Reason,
		"pages", result.Pages,
		"products", len(result.Products),
		"duplicates", result.Duplicates,
		"skipped", result.Skipped,
	)

	var out io.Writer = os.Stdout
	if *outputFile != "" {
		f, ferr := os.Create(*outputFile)
		if ferr != nil {
			logger.Error("failed to create output file", "error", ferr)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if werr := writer.Write(out, result.Products); werr != nil {
		logger.Error("failed to write results", "error", werr)
		os.Exit(1)
	}

	if err != nil || errors.Is(ctx.Err(), context.Canceled) {
		os.Exit(2)
	}
}
