package handler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/task"
)

// scrapeFanoutConcurrency bounds how many fanout links a single scrape
// pass creates Content rows for at once.
const scrapeFanoutConcurrency = 8

// Scrape invokes configured scrapers for payload.sources (or every
// configured source, when absent or ["all"]). Scraper output becomes new
// Content rows; creating them enqueues their own analyze_url follow-up, so
// Scrape itself terminates as soon as its sources have been fetched.
func Scrape(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	sources := payloadStrings(env.Payload, "sources")
	if len(sources) == 0 {
		sources = []string{"all"}
	}
	if len(sources) == 1 && sources[0] == "all" {
		sources = resolveAllSources(tctx)
	}

	for _, source := range sources {
		if err := runScraper(ctx, tctx, source); err != nil {
			return task.FailNetwork(fmt.Sprintf("scraper %q failed: %v", source, err))
		}
	}
	return task.Ok()
}

// resolveAllSources stands in for the configured scraper registry; wiring
// concrete scrapers (RSS crawlers, bookmark importers, etc.) is out of
// scope here, so "all" currently resolves to no sources.
func resolveAllSources(tctx *dispatcher.Context) []string {
	return nil
}

// runScraper fetches source and fans out a self-submitted Content row (plus
// its analyze_url follow-up) for every link it finds.
func runScraper(ctx context.Context, tctx *dispatcher.Context, source string) error {
	body, _, err := tctx.HTTP.Fetch(ctx, source)
	if err != nil {
		return err
	}

	links := dedupeLinks(externalLinkPattern.FindAllString(body, -1))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scrapeFanoutConcurrency)
	for _, link := range links {
		link := link
		g.Go(func() error {
			return fanoutChildURL(gctx, tctx, link)
		})
	}
	return g.Wait()
}
