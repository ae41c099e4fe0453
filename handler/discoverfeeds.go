package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/task"
)

// DiscoverFeeds runs feed/podcast discovery for a user's configured
// sources, fanning out analyze_url for every discovered item. It also
// renders an Atom record of the items found; the record is only checked
// for a rendering error and is neither stored nor returned.
func DiscoverFeeds(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	userID, ok := payloadInt(env.Payload, "user_id")
	if !ok {
		return task.Fail("missing user_id", false)
	}
	sources := payloadStrings(env.Payload, "sources")
	if len(sources) == 0 {
		return task.Ok()
	}

	feed := &feeds.Feed{
		Title:   fmt.Sprintf("discovered feeds for user %d", userID),
		Link:    &feeds.Link{Href: ""},
		Created: time.Now(),
	}

	for _, source := range sources {
		body, _, err := tctx.HTTP.Fetch(ctx, source)
		if err != nil {
			continue
		}
		links := dedupeLinks(externalLinkPattern.FindAllString(body, -1))
		for _, link := range links {
			feed.Items = append(feed.Items, &feeds.Item{Link: &feeds.Link{Href: link}, Created: time.Now()})
			if err := fanoutChildURL(ctx, tctx, link); err != nil {
				return task.FailNetwork(err.Error())
			}
		}
	}

	if _, err := feed.ToAtom(); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to build atom record for discovery run: %v", err))
	}
	return task.Ok()
}

func payloadInt(payload map[string]any, key string) (int64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func payloadStrings(payload map[string]any, key string) []string {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
