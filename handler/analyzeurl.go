package handler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// urlFanoutConcurrency bounds how many child links a single tweet or
// plain-classification pass creates Content rows for at once.
const urlFanoutConcurrency = 8

// tweetURLPattern recognizes twitter.com/x.com status URLs.
var tweetURLPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:twitter\.com|x\.com)/(?:i/)?(?:status|[^/]+/status)/(\d+)`)

// externalLinkPattern is a loose http(s) link extractor for tweet bodies
// and instruction-flow scrapes. It is intentionally permissive: false
// positives are filtered by a later analyze_url fast-path/LLM pass anyway.
var externalLinkPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// AnalyzeURL classifies a content row's URL and fans out follow-up work:
// feed subscription, tweet fanout, or plain content_type/platform
// detection, each followed by enqueuing process_content for the parent
// (except the feed-subscription short circuit, which marks the content
// skipped instead).
func AnalyzeURL(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.Status != store.ContentStatusNew && content.Status != store.ContentStatusProcessing {
		// Already analyzed by a prior attempt at this at-least-once task.
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)

	subscribe, _ := env.Payload["subscribe_to_feed"].(bool)
	if !subscribe {
		subscribe, _ = flat["subscribe_to_feed"].(bool)
	}
	if subscribe {
		return handleFeedSubscription(ctx, tctx, content, base)
	}

	if tweetID := tweetURLPattern.FindStringSubmatch(content.URL); tweetID != nil {
		return handleTweetFanout(ctx, tctx, content, base, tweetID[1])
	}

	return handlePlainClassification(ctx, tctx, content, base)
}

func handleFeedSubscription(ctx context.Context, tctx *dispatcher.Context, content *store.Content, base map[string]any) *task.Result {
	body, _, err := tctx.HTTP.Fetch(ctx, content.URL)
	detectedFeed := ""
	if err == nil {
		detectedFeed = detectFeedLink(body, content.URL)
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"detected_feed": detectedFeed,
	})
	skipped := store.ContentStatusSkipped
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record feed subscription metadata: %v", err))
	}
	if _, err := tctx.Store.UpdateContent(ctx, &store.UpdateContent{ID: content.ID, Status: &skipped}); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to mark content %d skipped: %v", content.ID, err))
	}
	return task.Ok()
}

// detectFeedLink does a best-effort scan of an HTML document for a
// <link rel="alternate" type="application/rss+xml" ...> tag, the common
// case of feed autodiscovery. Anything more elaborate is out of core scope.
var feedLinkPattern = regexp.MustCompile(`(?is)<link[^>]+rel=["']alternate["'][^>]+href=["']([^"']+)["']`)

func detectFeedLink(html, pageURL string) string {
	match := feedLinkPattern.FindStringSubmatch(html)
	if match == nil {
		return ""
	}
	resolved, err := resolveURL(pageURL, match[1])
	if err != nil {
		return match[1]
	}
	return resolved
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

func handleTweetFanout(ctx context.Context, tctx *dispatcher.Context, content *store.Content, base map[string]any, tweetID string) *task.Result {
	body, _, err := tctx.HTTP.Fetch(ctx, content.URL)
	if err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to fetch tweet %s: %v", tweetID, err))
	}

	externalLinks := dedupeLinks(externalLinkPattern.FindAllString(body, -1))

	newURL := content.URL
	if len(externalLinks) > 0 {
		newURL = externalLinks[0]
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"tweet_enrichment": map[string]any{"tweet_id": tweetID, "external_links": externalLinks},
	})
	typeArticle := store.ContentTypeArticle
	platformTwitter := "twitter"
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record tweet enrichment: %v", err))
	}
	if _, err := tctx.Store.UpdateContent(ctx, &store.UpdateContent{
		ID:          content.ID,
		URL:         &newURL,
		ContentType: &typeArticle,
		Platform:    &platformTwitter,
	}); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to update content %d after tweet fanout: %v", content.ID, err))
	}

	if len(externalLinks) > 1 {
		if err := fanoutChildURLs(ctx, tctx, externalLinks[1:]); err != nil {
			return task.FailNetwork(err.Error())
		}
	}

	if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeProcessContent, &content.ID, nil, nil); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to enqueue process_content for %d: %v", content.ID, err))
	}
	return task.Ok()
}

// fanoutChildURLs runs fanoutChildURL across links with bounded concurrency.
func fanoutChildURLs(ctx context.Context, tctx *dispatcher.Context, links []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(urlFanoutConcurrency)
	for _, link := range links {
		link := link
		g.Go(func() error {
			return fanoutChildURL(gctx, tctx, link)
		})
	}
	return g.Wait()
}

// fanoutChildURL ensures a Content row exists for link, tagged as a self
// submission, and enqueues analyze_url for it.
func fanoutChildURL(ctx context.Context, tctx *dispatcher.Context, link string) error {
	selfSubmission := "self submission"
	child, _, err := tctx.Store.CreateContent(ctx, &store.CreateContent{URL: link, Source: &selfSubmission})
	if err != nil {
		return fmt.Errorf("failed to create fanout content for %s: %w", link, err)
	}
	if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeAnalyzeURL, &child.ID, nil, nil); err != nil {
		return fmt.Errorf("failed to enqueue analyze_url for fanout content %d: %w", child.ID, err)
	}
	return nil
}

func dedupeLinks(links []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(links))
	for _, link := range links {
		if seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}

func handlePlainClassification(ctx context.Context, tctx *dispatcher.Context, content *store.Content, base map[string]any) *task.Result {
	contentType, platform, matched := defaultClassifier.classify(content.URL)
	links := []string(nil)

	if !matched {
		instruction, _ := metadata.FlatView(base)["instruction"].(string)
		analysis, err := tctx.LLM.AnalyzeURL(ctx, content.URL, instruction)
		if err != nil {
			return task.FailNetwork(fmt.Sprintf("llm classification failed for %d: %v", content.ID, err))
		}
		contentType = normalizeLLMContentType(analysis.ContentType)
		links = analysis.Links
	}
	if contentType == "" {
		contentType = store.ContentTypeArticle
	}

	updated := base
	if platform != "" {
		updated = metadata.UpdateProcessing(base, map[string]any{"platform_hint": platform})
	}
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record classification metadata for %d: %v", content.ID, err))
	}

	contentTypeCopy := contentType
	var platformPtr *string
	if platform != "" {
		platformPtr = &platform
	}
	if _, err := tctx.Store.UpdateContent(ctx, &store.UpdateContent{
		ID:          content.ID,
		ContentType: &contentTypeCopy,
		Platform:    platformPtr,
	}); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to set content_type for %d: %v", content.ID, err))
	}

	if err := fanoutChildURLs(ctx, tctx, links); err != nil {
		return task.FailNetwork(err.Error())
	}

	if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeProcessContent, &content.ID, nil, nil); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to enqueue process_content for %d: %v", content.ID, err))
	}
	return task.Ok()
}

func normalizeLLMContentType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case store.ContentTypePodcast:
		return store.ContentTypePodcast
	case store.ContentTypeNews:
		return store.ContentTypeNews
	case store.ContentTypeArticle:
		return store.ContentTypeArticle
	default:
		return ""
	}
}
