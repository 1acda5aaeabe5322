package agents

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-agent/pkg/research"
	"github.com/mikeboe/research-agent/pkg/resilience"
)

// fakeModel scripted responses. When streamTokens is set the response is
// also pushed through the request's streaming func.
type fakeModel struct {
	calls        int
	response     string
	err          error
	streamTokens []string
	lastPrompts  []llms.MessageContent
	lastOpts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.lastPrompts = messages
	f.lastOpts = llms.CallOptions{}
	for _, opt := range options {
		opt(&f.lastOpts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.lastOpts.StreamingFunc != nil {
		for _, tok := range f.streamTokens {
			if err := f.lastOpts.StreamingFunc(ctx, []byte(tok)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testLLM(model llms.Model) *ResilientLLM {
	logger := slog.New(slog.DiscardHandler)
	return NewResilientLLM(model, "test", resilience.CallerConfig{
		FailureThreshold:      5,
		MaxRetryAttempts:      0,
		MaxConcurrentRequests: 4,
		RequestsPerSecond:     1000,
	}, logger)
}

func TestPlannerParsesPlan(t *testing.T) {
	model := &fakeModel{response: `{"goal":"understand raft","subtasks":[{"description":"basics","searchQuery":"raft consensus","priority":1}],"keyConcepts":["raft"]}`}
	p := NewPlanner(testLLM(model), slog.New(slog.DiscardHandler))

	plan, err := p.Plan(context.Background(), "explain raft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Goal != "understand raft" || len(plan.Subtasks) != 1 {
		t.Errorf("plan = %+v, want parsed goal and subtask", plan)
	}
	if !model.lastOpts.JSONMode {
		t.Errorf("planner must request JSON mode")
	}
	if len(model.lastPrompts) != 2 {
		t.Errorf("prompts = %d, want system and human messages", len(model.lastPrompts))
	}
}

func TestPlannerFallsBackOnMalformedResponse(t *testing.T) {
	model := &fakeModel{response: "not json at all"}
	p := NewPlanner(testLLM(model), slog.New(slog.DiscardHandler))

	plan, err := p.Plan(context.Background(), "explain raft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Subtasks) != 1 || plan.Subtasks[0].SearchQuery != "explain raft" {
		t.Errorf("fallback plan = %+v, want one subtask from the raw prompt", plan)
	}
}

func TestPlannerStripsCodeFences(t *testing.T) {
	model := &fakeModel{response: "```json\n{\"goal\":\"g\",\"subtasks\":[{\"description\":\"d\",\"searchQuery\":\"q\",\"priority\":1}]}\n```"}
	p := NewPlanner(testLLM(model), slog.New(slog.DiscardHandler))

	plan, err := p.Plan(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Goal != "g" {
		t.Errorf("goal = %q, want fenced JSON parsed", plan.Goal)
	}
}

func TestClarifierDegradesToNoQuestions(t *testing.T) {
	model := &fakeModel{err: errors.New("llm down")}
	c := NewClarifier(testLLM(model), slog.New(slog.DiscardHandler))

	clar, err := c.Clarify(context.Background(), "topic")
	if err != nil {
		t.Fatalf("clarifier failure must not propagate: %v", err)
	}
	if len(clar.Questions) != 0 {
		t.Errorf("questions = %v, want none", clar.Questions)
	}
}

func TestClarifierReturnsQuestions(t *testing.T) {
	model := &fakeModel{response: `{"questions":["which era?"],"rationale":"scope"}`}
	c := NewClarifier(testLLM(model), slog.New(slog.DiscardHandler))

	clar, err := c.Clarify(context.Background(), "history of music")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clar.Questions) != 1 || clar.Questions[0] != "which era?" {
		t.Errorf("questions = %v", clar.Questions)
	}
}

func newReflectionRequest() research.ReflectionRequest {
	info := research.NewGatheredInformation()
	info.Append([]research.SearchResult{{Title: "t", URL: "http://t"}})
	return research.ReflectionRequest{Query: "q", Synthesis: "answer", Info: info}
}

func TestReflectorClampsConfidentVerdicts(t *testing.T) {
	model := &fakeModel{response: `{"confidenceScore":0.9,"requiresMoreResearch":true,"suggestedAdditionalSearches":["more"]}`}
	r := NewReflector(testLLM(model), 0.75, slog.New(slog.DiscardHandler))

	result, err := r.Reflect(context.Background(), newReflectionRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RequiresMoreResearch {
		t.Errorf("confidence %.2f above threshold must stop the loop", result.ConfidenceScore)
	}
}

func TestReflectorBelowThresholdKeepsVerdict(t *testing.T) {
	model := &fakeModel{response: `{"confidenceScore":0.4,"requiresMoreResearch":true,"suggestedAdditionalSearches":["more"]}`}
	r := NewReflector(testLLM(model), 0.75, slog.New(slog.DiscardHandler))

	result, err := r.Reflect(context.Background(), newReflectionRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RequiresMoreResearch || len(result.SuggestedAdditionalSearches) != 1 {
		t.Errorf("result = %+v, want the model's verdict kept", result)
	}
}

func TestReflectorMalformedResponseStopsIteration(t *testing.T) {
	model := &fakeModel{response: "garbage"}
	r := NewReflector(testLLM(model), 0.75, slog.New(slog.DiscardHandler))

	result, err := r.Reflect(context.Background(), newReflectionRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RequiresMoreResearch || result.ConfidenceScore != 0.5 {
		t.Errorf("result = %+v, want neutral stop verdict", result)
	}
}

func TestSynthesizerStreamsTokens(t *testing.T) {
	model := &fakeModel{response: "full answer", streamTokens: []string{"full ", "answer"}}
	s := NewSynthesizer(testLLM(model), slog.New(slog.DiscardHandler))

	info := research.NewGatheredInformation()
	info.Append([]research.SearchResult{{Title: "src", URL: "http://s", Snippet: "sn"}})

	var streamed strings.Builder
	text, err := s.Synthesize(context.Background(), research.SynthesisRequest{
		Query: "q",
		Info:  info,
		Style: research.StyleConcise,
	}, func(tok string) error {
		streamed.WriteString(tok)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "full answer" || streamed.String() != "full answer" {
		t.Errorf("text = %q, streamed = %q", text, streamed.String())
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := cleanJSONResponse(tt.in); got != tt.want {
			t.Errorf("cleanJSONResponse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

const arxivFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Attention Is All You Need</title>
    <summary>We propose the Transformer.</summary>
    <published>2017-06-12T00:00:00Z</published>
    <link href="http://arxiv.org/abs/1706.03762" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/1706.03762" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivProviderParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search_query"); got != "transformers" {
			t.Errorf("search_query = %q", got)
		}
		w.Write([]byte(arxivFixture))
	}))
	defer srv.Close()

	p := NewArxivProvider(slog.New(slog.DiscardHandler))
	p.baseURL = srv.URL

	results, err := p.Search(context.Background(), "transformers", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.Title != "Attention Is All You Need" {
		t.Errorf("title = %q", r.Title)
	}
	if r.URL != "http://arxiv.org/pdf/1706.03762" {
		t.Errorf("url = %q, want the pdf link preferred", r.URL)
	}
	if r.Snippet == "" {
		t.Errorf("missing snippet")
	}
}

func TestArxivProviderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewArxivProvider(slog.New(slog.DiscardHandler))
	p.baseURL = srv.URL

	_, err := p.Search(context.Background(), "q", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if !resilience.IsTransient(err) {
		t.Errorf("server error must be transient, got %v", err)
	}
}

func TestArxivProviderClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewArxivProvider(slog.New(slog.DiscardHandler))
	p.baseURL = srv.URL

	_, err := p.Search(context.Background(), "q", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if resilience.IsTransient(err) {
		t.Errorf("client error must be permanent, got %v", err)
	}
}

func TestResilientSearcherReportsUnavailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewArxivProvider(slog.New(slog.DiscardHandler))
	p.baseURL = srv.URL

	s := NewResilientSearcher(p, resilience.CallerConfig{
		FailureThreshold:      5,
		MaxRetryAttempts:      0,
		MaxConcurrentRequests: 1,
		RequestsPerSecond:     1000,
	}, slog.New(slog.DiscardHandler))

	_, err := s.Search(context.Background(), "q", 1)
	if !errors.Is(err, resilience.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable after exhausted budget", err)
	}
}

func TestResilientSearcherPassesResultsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(arxivFixture))
	}))
	defer srv.Close()

	p := NewArxivProvider(slog.New(slog.DiscardHandler))
	p.baseURL = srv.URL

	s := NewResilientSearcher(p, resilience.CallerConfig{
		FailureThreshold:      5,
		MaxRetryAttempts:      1,
		MaxConcurrentRequests: 1,
		RequestsPerSecond:     1000,
	}, slog.New(slog.DiscardHandler))

	results, err := s.Search(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}
