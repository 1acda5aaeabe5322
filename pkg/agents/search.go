package agents

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/research-agent/pkg/research"
	"github.com/mikeboe/research-agent/pkg/resilience"
)

const defaultArxivBaseURL = "https://export.arxiv.org/api/query"

type arxivEntry struct {
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// ArxivProvider searches the arXiv API. Network and server failures are
// marked transient so the resilience layer retries them; a malformed feed is
// permanent.
type ArxivProvider struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewArxivProvider(logger *slog.Logger) *ArxivProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArxivProvider{
		baseURL: defaultArxivBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

func (p *ArxivProvider) Search(ctx context.Context, query string, k int) ([]research.SearchResult, error) {
	if k <= 0 {
		k = 5
	}

	params := url.Values{}
	params.Add("search_query", query)
	params.Add("max_results", strconv.Itoa(k))
	params.Add("start", "0")
	apiURL := p.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("arxiv request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("arxiv returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.Transient(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("failed to read arxiv response: %w", err))
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse arxiv feed: %w", err)
	}

	results := make([]research.SearchResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		r := research.SearchResult{
			Title:   strings.TrimSpace(entry.Title),
			Snippet: strings.TrimSpace(entry.Summary),
			Content: strings.TrimSpace(entry.Summary),
		}
		for _, link := range entry.Link {
			if link.Type == "application/pdf" {
				r.URL = link.Href
				break
			}
			if r.URL == "" {
				r.URL = link.Href
			}
		}
		if r.URL == "" {
			continue
		}
		results = append(results, r)
	}
	p.log.Info("arxiv search complete", "query", query, "results", len(results))
	return results, nil
}

type searchInput struct {
	query string
	k     int
}

// ResilientSearcher wraps a search provider in the shared resilience policy.
type ResilientSearcher struct {
	provider research.Searcher
	caller   *resilience.Caller[searchInput, []research.SearchResult]
}

func NewResilientSearcher(provider research.Searcher, cfg resilience.CallerConfig, logger *slog.Logger) *ResilientSearcher {
	return &ResilientSearcher{
		provider: provider,
		caller:   resilience.NewCaller[searchInput, []research.SearchResult]("search", cfg, logger),
	}
}

// Breaker exposes the capability's circuit breaker for health reporting.
func (s *ResilientSearcher) Breaker() *resilience.Breaker {
	return s.caller.Breaker()
}

func (s *ResilientSearcher) Search(ctx context.Context, query string, k int) ([]research.SearchResult, error) {
	return s.caller.Execute(ctx, func(ctx context.Context, in searchInput) ([]research.SearchResult, error) {
		return s.provider.Search(ctx, in.query, in.k)
	}, searchInput{query: query, k: k})
}
