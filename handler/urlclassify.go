package handler

import (
	"net/url"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/hrygo/contentpipe/store"
)

// classificationRule is one entry of the pattern-based fast path: if expr
// evaluates true against the parsed URL's host/path, the URL is classified
// as contentType/platform without needing an LLM round trip.
type classificationRule struct {
	expr        string
	contentType string
	platform    string
}

// defaultClassificationRules is the built-in rule set for well-known
// platforms. It is ordered; the first match wins. A deployment could swap
// this for a config-loaded list without changing the evaluator.
var defaultClassificationRules = []classificationRule{
	{expr: `host.endsWith("twitter.com") || host.endsWith("x.com")`, contentType: store.ContentTypeArticle, platform: "twitter"},
	{expr: `host.endsWith("open.spotify.com") && path.startsWith("/episode")`, contentType: store.ContentTypePodcast, platform: "spotify"},
	{expr: `host.endsWith("podcasts.apple.com")`, contentType: store.ContentTypePodcast, platform: "apple_podcasts"},
	{expr: `host.endsWith("news.ycombinator.com") || host.endsWith("reddit.com")`, contentType: store.ContentTypeNews, platform: "aggregator"},
}

// urlClassifier evaluates classificationRules with a CEL environment built
// once and reused across URLs.
type urlClassifier struct {
	env     *cel.Env
	rules   []classificationRule
	program map[string]cel.Program
}

func newURLClassifier(rules []classificationRule) (*urlClassifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("host", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("url", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment for url classification")
	}

	programs := make(map[string]cel.Program, len(rules))
	for _, rule := range rules {
		ast, issues := env.Compile(rule.expr)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "invalid classification rule %q", rule.expr)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build program for rule %q", rule.expr)
		}
		programs[rule.expr] = prg
	}
	return &urlClassifier{env: env, rules: rules, program: programs}, nil
}

// classify returns the first matching rule's (contentType, platform), or
// ("", "") when no fast-path rule matches and the caller should fall back
// to LLM-assisted classification.
func (c *urlClassifier) classify(rawURL string) (contentType, platform string, matched bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	vars := map[string]any{
		"host": strings.ToLower(parsed.Host),
		"path": parsed.Path,
		"url":  rawURL,
	}
	for _, rule := range c.rules {
		out, _, err := c.program[rule.expr].Eval(vars)
		if err != nil {
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return rule.contentType, rule.platform, true
		}
	}
	return "", "", false
}

var defaultClassifier = func() *urlClassifier {
	c, err := newURLClassifier(defaultClassificationRules)
	if err != nil {
		// The built-in rule set is compiled once at package init; a broken
		// default rule is a programming error, not a runtime condition.
		panic(err)
	}
	return c
}()
