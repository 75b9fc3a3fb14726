package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Provider contract
// ---------------------------------------------------------------------------

// Result is one summarized web page.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// Provider runs a web search and returns summarized results.
type Provider interface {
	Search(ctx context.Context, query string, numResults int) ([]Result, error)
	Name() string
}

// ErrMissingAPIKey is returned when the search backend has no credentials.
var ErrMissingAPIKey = errors.New("search: EXA_API_KEY is not set")

// DefaultNumResults matches what the browser client asks for.
const DefaultNumResults = 8

// ---------------------------------------------------------------------------
// Exa
// ---------------------------------------------------------------------------

const (
	defaultExaURL = "https://api.exa.ai"
	exaTimeout    = 30 * time.Second
)

// ExaConfig configures the Exa client.
type ExaConfig struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`
}

// ExaClient calls Exa's search endpoint with per-result summaries steered
// by the query itself.
type ExaClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewExaClient creates an Exa-backed provider.
func NewExaClient(cfg ExaConfig) *ExaClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultExaURL
	}
	return &ExaClient{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: exaTimeout},
	}
}

// Name implements Provider.
func (c *ExaClient) Name() string { return "exa" }

type exaSearchRequest struct {
	Query      string      `json:"query"`
	NumResults int         `json:"numResults"`
	Type       string      `json:"type"`
	Contents   exaContents `json:"contents"`
}

type exaContents struct {
	Summary exaSummary `json:"summary"`
}

type exaSummary struct {
	Query string `json:"query"`
}

type exaSearchResponse struct {
	Results []struct {
		ID      string  `json:"id"`
		Title   *string `json:"title"`
		URL     string  `json:"url"`
		Summary string  `json:"summary"`
	} `json:"results"`
}

// Search implements Provider.
func (c *ExaClient) Search(ctx context.Context, query string, numResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if numResults <= 0 {
		numResults = DefaultNumResults
	}

	body, err := json.Marshal(exaSearchRequest{
		Query:      query,
		NumResults: numResults,
		Type:       "auto",
		Contents: exaContents{
			Summary: exaSummary{Query: query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search/exa: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search/exa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search/exa: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search/exa: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded exaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search/exa: decode response: %w", err)
	}

	out := make([]Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		title := "(untitled)"
		if r.Title != nil && *r.Title != "" {
			title = *r.Title
		}
		out = append(out, Result{
			Title:   title,
			URL:     r.URL,
			Summary: r.Summary,
			Domain:  Domain(r.URL),
		})
	}
	return out, nil
}

// Domain returns the host of rawURL without a leading "www.", or "" when
// it cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
