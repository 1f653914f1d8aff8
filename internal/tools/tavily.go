// Package tools provides executors for the agent tool registry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
)

// TavilySearchName is the registered name of the web search tool.
const TavilySearchName = "tavily_web_search"

const (
	tavilyBaseURL        = "https://api.tavily.com"
	defaultMaxResults    = 5
	maxResultsLimit      = 10
	defaultSearchTimeout = 30 * time.Second
)

// TavilySearch runs web searches against the Tavily API.
type TavilySearch struct {
	client *resty.Client
	logger *zap.Logger
}

// TavilyOption customizes a TavilySearch.
type TavilyOption func(*TavilySearch)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) TavilyOption {
	return func(s *TavilySearch) {
		s.client.SetBaseURL(url)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) TavilyOption {
	return func(s *TavilySearch) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTavilySearch creates a search executor authenticated with apiKey.
func NewTavilySearch(apiKey string, opts ...TavilyOption) *TavilySearch {
	s := &TavilySearch{
		client: resty.New().
			SetBaseURL(tavilyBaseURL).
			SetTimeout(defaultSearchTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetAuthToken(apiKey),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spec declares the tool to the model.
func (s *TavilySearch) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        TavilySearchName,
		Description: "Search the web for current documentation, release notes and best practices for a library or framework.",
		Parameters: []agent.ToolParam{
			{Name: "query", Type: "string", Description: "The search query", Required: true},
			{Name: "search_depth", Type: "string", Description: "basic for quick lookups, advanced for thorough research", Enum: []string{"basic", "advanced"}},
			{Name: "max_results", Type: "integer", Description: "Number of results to return (1-10)"},
		},
	}
}

// Register adds the tool to reg.
func (s *TavilySearch) Register(reg *agent.ToolRegistry) {
	reg.Register(s.Spec(), s.Execute)
}

type searchArgs struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Results []searchResult `json:"results"`
}

type errorResponse struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// Execute runs one search. Arguments are validated and normalized first:
// search_depth defaults to basic and max_results is clamped to 1..10.
func (s *TavilySearch) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	req := searchRequest{
		Query:       args.Query,
		SearchDepth: normalizeDepth(args.SearchDepth),
		MaxResults:  clampResults(args.MaxResults),
	}

	var out searchResponse
	var errResp errorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errResp).
		Post("/search")
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	if resp.IsError() {
		msg := errResp.Detail.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", fmt.Errorf("search failed with status %d: %s", resp.StatusCode(), msg)
	}

	s.logger.Debug("web search complete",
		zap.String("query", req.Query),
		zap.Int("results", len(out.Results)),
		zap.Duration("duration", resp.Time()))

	return formatResults(out), nil
}

func normalizeDepth(depth string) string {
	if depth == "advanced" {
		return depth
	}
	return "basic"
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return defaultMaxResults
	case n > maxResultsLimit:
		return maxResultsLimit
	default:
		return n
	}
}

func formatResults(resp searchResponse) string {
	if len(resp.Results) == 0 && resp.Answer == "" {
		return "No results found."
	}
	var b strings.Builder
	if resp.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n\n", resp.Answer)
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	return b.String()
}
