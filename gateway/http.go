// Package gateway wraps the pipeline's outbound integrations — plain HTTP
// fetches, the LLM provider, and the Telegram chat surface — behind small
// interfaces so handlers depend on behavior, not on a concrete SDK client.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// HTTPGateway fetches remote content for scraping and feed detection.
type HTTPGateway interface {
	// Fetch retrieves url and returns its body and content-type header.
	Fetch(ctx context.Context, url string) (body string, contentType string, err error)
}

// httpGateway is the default HTTPGateway, rate-limited per profile.Profile.
type httpGateway struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPGateway builds an HTTPGateway with the given timeout and a token
// bucket limiter of ratePerSec with the given burst.
func NewHTTPGateway(timeout time.Duration, ratePerSec float64, burst int) HTTPGateway {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &httpGateway{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

func (g *httpGateway) Fetch(ctx context.Context, url string) (string, string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", "", errors.Wrapf(err, "rate limiter wait failed for %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to build request for %s", url)
	}
	req.Header.Set("User-Agent", "contentpipe-worker/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", errors.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to read response body from %s", url)
	}
	return string(b), resp.Header.Get("Content-Type"), nil
}
