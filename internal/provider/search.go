package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// SearchClient talks to a web search endpoint for product grounding and
// video-tutorial lookup (the latter is the same search with a site filter,
// not a dedicated video index).
type SearchClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSearchClient creates a web search client.
func NewSearchClient(baseURL, apiKey string) *SearchClient {
	return &SearchClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Price   string `json:"price"`
		Source  string `json:"source"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search runs a grounded web search. Returns an empty slice (not an error)
// when nothing matches. Titles arrive from the provider with markup at times;
// they are stripped to plain text before use.
func (c *SearchClient) Search(ctx context.Context, query, regionHint string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("api_key", c.apiKey)
	if regionHint != "" {
		q.Set("location", regionHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Link == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:  StripHTML(r.Title),
			URL:    r.Link,
			Price:  r.Price,
			Source: r.Source,
		})
	}
	return results, nil
}

// StripHTML reduces a fragment to its text content. Malformed input falls
// back to the raw string.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	node, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.TrimSpace(sb.String())
}
