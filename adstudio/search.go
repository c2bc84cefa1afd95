package adstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voice_ad_assistant/workflow"
)

const DefaultSearchEndpoint = "https://google.serper.dev/search"

// SearchResult is one organic hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResp struct {
	Organic []SearchResult `json:"organic"`
	Message string         `json:"message"`
}

// Searcher queries the Serper web search API.
type Searcher struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	limit    int
	logger   *zap.Logger
}

type SearcherOption func(*Searcher)

func WithSearchEndpoint(endpoint string) SearcherOption {
	return func(s *Searcher) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

func WithSearchHTTPClient(client *http.Client) SearcherOption {
	return func(s *Searcher) {
		if client != nil {
			s.client = client
		}
	}
}

// WithSearchRate caps outgoing queries per second.
func WithSearchRate(rps float64, burst int) SearcherOption {
	return func(s *Searcher) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func WithSearchLogger(logger *zap.Logger) SearcherOption {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSearcher(apiKey string, opts ...SearcherOption) (*Searcher, error) {
	if apiKey == "" {
		return nil, errors.New("search api key missing; provide search.api_key")
	}
	s := &Searcher{
		apiKey:   apiKey,
		endpoint: DefaultSearchEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(2), 2),
		limit:    5,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "search"))
	return s, nil
}

func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is empty")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, workflow.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, workflow.Transient(fmt.Errorf("search failed: %d %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	var data searchResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed: %d %s", resp.StatusCode, data.Message)
	}
	s.logger.Debug("search", zap.String("query", query), zap.Int("results", len(data.Organic)))
	if len(data.Organic) > s.limit {
		data.Organic = data.Organic[:s.limit]
	}
	return data.Organic, nil
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"what to look up on the web"`
}

// Tool exposes Search as web_search, formatted for the model.
func (s *Searcher) Tool() workflow.Tool {
	return workflow.MustNewFuncTool(
		"web_search",
		"Search the web for facts about a product, brand, market or competitor. Returns the top results.",
		func(ctx context.Context, _ *workflow.ToolContext, args searchArgs) (string, error) {
			results, err := s.Search(ctx, args.Query)
			if err != nil {
				return "", err
			}
			return FormatResults(results), nil
		})
}

func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n", i+1, r.Title, r.Link, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}
