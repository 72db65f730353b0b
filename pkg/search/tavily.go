package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is a single ranked hit returned by the web search provider.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Client is the web search collaborator used by the researcher stage.
// Implementations may return zero results without error.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyClient calls the Tavily search API.
type TavilyClient struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		APIKey:  apiKey,
		BaseURL: defaultTavilyURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

// Search runs one query against Tavily and returns the ranked results.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY is not set")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	reqBody := map[string]interface{}{
		"query":        query,
		"max_results":  maxResults,
		"search_depth": "basic",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}

	return parsed.Results, nil
}
