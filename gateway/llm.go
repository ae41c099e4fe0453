package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// AnalysisResult is the structured outcome of classifying and describing a
// submitted URL, used by the analyze_url handler to route follow-up tasks.
type AnalysisResult struct {
	Title       string
	Summary     string
	ContentType string
	Links       []string
}

// SummaryRequest carries everything the summarizer needs to produce a
// content-type-appropriate summary.
type SummaryRequest struct {
	Content         string
	ContentType     string
	Title           string
	MaxBulletPoints int
	MaxQuotes       int
}

// SummaryResult is the LLM's rendering of a SummaryRequest.
type SummaryResult struct {
	Markdown string
	Bullets  []string
}

// LLMGateway is the facade over the configured LLM provider used by the
// analyze_url and summarize handlers, and image generation by
// generate_image.
type LLMGateway interface {
	AnalyzeURL(ctx context.Context, url, instruction string) (*AnalysisResult, error)
	Summarize(ctx context.Context, req *SummaryRequest) (*SummaryResult, error)
	GenerateImage(ctx context.Context, prompt string) (url string, err error)
}

// openaiGateway is the default LLMGateway, backed by an OpenAI-compatible
// chat completions and image generation API.
type openaiGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway builds an LLMGateway against apiKey/baseURL, defaulting
// baseURL to the public OpenAI API when empty.
func NewOpenAIGateway(apiKey, baseURL, model string, timeout time.Duration) LLMGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient.Timeout = timeout
	return &openaiGateway{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *openaiGateway) AnalyzeURL(ctx context.Context, url, instruction string) (*AnalysisResult, error) {
	prompt := "Classify and summarize the page at " + url + "."
	if instruction != "" {
		prompt += " " + instruction
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You classify and summarize web content for a reading pipeline. Reply with a short title on the first line and a summary after."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "llm analyze_url request failed for %s", url)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Errorf("llm analyze_url returned no choices for %s", url)
	}

	title, summary := splitFirstLine(resp.Choices[0].Message.Content)
	return &AnalysisResult{Title: title, Summary: summary}, nil
}

func (g *openaiGateway) Summarize(ctx context.Context, req *SummaryRequest) (*SummaryResult, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You produce concise bulleted summaries of " + req.ContentType + " content."},
			{Role: openai.ChatMessageRoleUser, Content: req.Content},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "llm summarize request failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm summarize returned no choices")
	}
	return &SummaryResult{Markdown: resp.Choices[0].Message.Content}, nil
}

func (g *openaiGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt: prompt,
		N:      1,
		Size:   openai.CreateImageSize1024x1024,
	})
	if err != nil {
		return "", errors.Wrap(err, "llm generate_image request failed")
	}
	if len(resp.Data) == 0 {
		return "", errors.New("llm generate_image returned no data")
	}
	return resp.Data[0].URL, nil
}

func splitFirstLine(s string) (first, rest string) {
	for i, r := range s {
		if r == '\n' {
			return s[:i], trimLeadingNewlines(s[i+1:])
		}
	}
	return s, ""
}

func trimLeadingNewlines(s string) string {
	for len(s) > 0 && (s[0] == '\n' || s[0] == '\r') {
		s = s[1:]
	}
	return s
}
