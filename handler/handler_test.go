package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/hrygo/contentpipe/checkout"
	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/gateway"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/queue"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/storetest"
)

// fakeHTTP is a scripted HTTPGateway double: each call pops the next
// fetchResponse queued for the requested URL, falling back to a default
// response when nothing is queued.
type fakeHTTP struct {
	responses map[string][]fetchResponse
	calls     []string
}

type fetchResponse struct {
	body        string
	contentType string
	err         error
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{responses: map[string][]fetchResponse{}}
}

func (f *fakeHTTP) queue(url string, resp fetchResponse) {
	f.responses[url] = append(f.responses[url], resp)
}

func (f *fakeHTTP) Fetch(ctx context.Context, url string) (string, string, error) {
	f.calls = append(f.calls, url)
	q := f.responses[url]
	if len(q) == 0 {
		return "", "", nil
	}
	resp := q[0]
	f.responses[url] = q[1:]
	return resp.body, resp.contentType, resp.err
}

// fakeLLM is a scripted LLMGateway double.
type fakeLLM struct {
	analysis    *gateway.AnalysisResult
	analysisErr error
	summary     *gateway.SummaryResult
	summaryErr  error
	imageURL    string
	imageErr    error
}

func (f *fakeLLM) AnalyzeURL(ctx context.Context, url, instruction string) (*gateway.AnalysisResult, error) {
	if f.analysisErr != nil {
		return nil, f.analysisErr
	}
	if f.analysis != nil {
		return f.analysis, nil
	}
	return &gateway.AnalysisResult{ContentType: store.ContentTypeArticle}, nil
}

func (f *fakeLLM) Summarize(ctx context.Context, req *gateway.SummaryRequest) (*gateway.SummaryResult, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &gateway.SummaryResult{Markdown: "summary of: " + req.Content}, nil
}

func (f *fakeLLM) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if f.imageErr != nil {
		return "", f.imageErr
	}
	if f.imageURL != "" {
		return f.imageURL, nil
	}
	return "https://images.example/generated.png", nil
}

// fakeChat is a scripted ChatGateway double recording every post.
type fakeChat struct {
	posts []chatPost
	err   error
}

type chatPost struct {
	chatID int64
	text   string
}

func (f *fakeChat) PostMessage(ctx context.Context, chatID int64, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.posts = append(f.posts, chatPost{chatID: chatID, text: text})
	return fmt.Sprintf("msg-%d", len(f.posts)), nil
}

// testHarness wires a storetest-backed Context plus the dispatcher
// dependencies every handler test needs.
type testHarness struct {
	Store    *store.Store
	Queue    *queue.Service
	Checkout *checkout.Manager
	HTTP     *fakeHTTP
	LLM      *fakeLLM
	Chat     *fakeChat
	Context  *dispatcher.Context
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	mock := storetest.New()
	p := &profile.Profile{MaxRetries: 3, CheckoutTimeoutMinutes: 30}
	s := store.New(mock, p)
	q := queue.New(s)
	h := &testHarness{
		Store:    s,
		Queue:    q,
		Checkout: checkout.New(s, p.CheckoutTimeoutMinutes),
		HTTP:     newFakeHTTP(),
		LLM:      &fakeLLM{},
		Chat:     &fakeChat{},
	}
	h.Context = &dispatcher.Context{
		Store:    s,
		Queue:    q,
		Checkout: h.Checkout,
		Profile:  p,
		HTTP:     h.HTTP,
		LLM:      h.LLM,
		Chat:     h.Chat,
		WorkerID: "test-worker",
	}
	return h
}

// createContent is a test convenience wrapper around store.CreateContent.
func createContent(t *testing.T, h *testHarness, create *store.CreateContent) *store.Content {
	t.Helper()
	c, _, err := h.Store.CreateContent(context.Background(), create)
	if err != nil {
		t.Fatalf("failed to create content: %v", err)
	}
	return c
}

// reloadContent re-reads a content row by id.
func reloadContent(t *testing.T, h *testHarness, id int64) *store.Content {
	t.Helper()
	c, err := h.Store.GetContent(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to reload content %d: %v", id, err)
	}
	return c
}
