// Package notion is the persistence collaborator: every completed research
// session is filed as one append-only page in a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/mikeboe/deep-researcher/pkg/report"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"

	// apiVersion pins the Notion API revision this client is written against.
	apiVersion = "2022-06-28"
)

type Client struct {
	Token      string
	DatabaseID string
	BaseURL    string
	HTTP       *http.Client
}

func NewClient(token, databaseID string) *Client {
	return &Client{
		Token:      token,
		DatabaseID: databaseID,
		BaseURL:    defaultBaseURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// SaveReport creates one page for the finished report. Returns the page URL.
func (c *Client) SaveReport(ctx context.Context, doc report.Document) (string, error) {
	if c.Token == "" || c.DatabaseID == "" {
		return "", fmt.Errorf("notion credentials are not configured")
	}

	now := time.Now()
	sections := report.ParseSections(doc.Content)

	payload := map[string]interface{}{
		"parent":     map[string]interface{}{"database_id": c.DatabaseID},
		"properties": buildProperties(doc, now),
		"children":   buildChildren(sections, doc.SourceCount, now),
	}

	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/pages", payload, &created); err != nil {
		return "", fmt.Errorf("failed to create research page: %w", err)
	}

	return created.URL, nil
}

// PageSummary is one row from the research database.
type PageSummary struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Status  string `json:"status"`
	Quality string `json:"quality"`
	Sources int    `json:"sources"`
	URL     string `json:"url"`
}

// Query searches past research by keyword over the Name, Topic and Brief
// properties.
func (c *Client) Query(ctx context.Context, keyword string) ([]PageSummary, error) {
	payload := map[string]interface{}{
		"filter": map[string]interface{}{
			"or": []interface{}{
				map[string]interface{}{"property": "Name", "title": map[string]interface{}{"contains": keyword}},
				map[string]interface{}{"property": "Topic", "rich_text": map[string]interface{}{"contains": keyword}},
				map[string]interface{}{"property": "Brief", "rich_text": map[string]interface{}{"contains": keyword}},
			},
		},
	}
	return c.queryPages(ctx, payload)
}

// List returns all research pages, newest first.
func (c *Client) List(ctx context.Context) ([]PageSummary, error) {
	payload := map[string]interface{}{
		"sorts": []interface{}{
			map[string]interface{}{"property": "Date", "direction": "descending"},
		},
	}
	return c.queryPages(ctx, payload)
}

func (c *Client) queryPages(ctx context.Context, payload map[string]interface{}) ([]PageSummary, error) {
	var resp queryResponse
	path := fmt.Sprintf("/databases/%s/query", c.DatabaseID)
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to query research database: %w", err)
	}

	summaries := make([]PageSummary, 0, len(resp.Results))
	for _, page := range resp.Results {
		summaries = append(summaries, PageSummary{
			Title:   page.titleOf("Name"),
			Date:    page.dateOf("Date"),
			Status:  page.selectOf("Status"),
			Quality: page.selectOf("Quality"),
			Sources: page.numberOf("Sources"),
			URL:     page.URL,
		})
	}
	return summaries, nil
}

// Stats aggregates the research database into dashboard numbers.
type Stats struct {
	TotalReports int        `json:"total_reports"`
	ThisMonth    int        `json:"this_month"`
	TotalSources int        `json:"total_sources"`
	AvgSources   float64    `json:"avg_sources"`
	TopTopics    []TagCount `json:"top_topics"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var resp queryResponse
	path := fmt.Sprintf("/databases/%s/query", c.DatabaseID)
	if err := c.do(ctx, http.MethodPost, path, map[string]interface{}{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to query research database: %w", err)
	}

	stats := &Stats{TotalReports: len(resp.Results)}
	now := time.Now()
	tags := map[string]int{}

	for _, page := range resp.Results {
		if date, err := time.Parse(time.RFC3339, page.dateOf("Date")); err == nil {
			if date.Year() == now.Year() && date.Month() == now.Month() {
				stats.ThisMonth++
			}
		}
		stats.TotalSources += page.numberOf("Sources")
		for _, tag := range page.multiSelectOf("Tags") {
			tags[tag]++
		}
	}

	if stats.TotalReports > 0 {
		stats.AvgSources = float64(stats.TotalSources) / float64(stats.TotalReports)
	}

	for tag, count := range tags {
		stats.TopTopics = append(stats.TopTopics, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(stats.TopTopics, func(i, j int) bool {
		if stats.TopTopics[i].Count != stats.TopTopics[j].Count {
			return stats.TopTopics[i].Count > stats.TopTopics[j].Count
		}
		return stats.TopTopics[i].Tag < stats.TopTopics[j].Tag
	})
	if len(stats.TopTopics) > 5 {
		stats.TopTopics = stats.TopTopics[:5]
	}

	return stats, nil
}

// --- response decoding ---

type queryResponse struct {
	Results []pageObject `json:"results"`
}

type pageObject struct {
	ID         string                   `json:"id"`
	URL        string                   `json:"url"`
	Properties map[string]propertyValue `json:"properties"`
}

type propertyValue struct {
	Title       []richTextValue `json:"title"`
	RichText    []richTextValue `json:"rich_text"`
	Date        *dateValue      `json:"date"`
	Select      *selectValue    `json:"select"`
	MultiSelect []selectValue   `json:"multi_select"`
	Number      *float64        `json:"number"`
}

type richTextValue struct {
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text"`
}

type dateValue struct {
	Start string `json:"start"`
}

type selectValue struct {
	Name string `json:"name"`
}

func (p pageObject) titleOf(name string) string {
	prop, ok := p.Properties[name]
	if !ok || len(prop.Title) == 0 {
		return "Untitled"
	}
	rt := prop.Title[0]
	if rt.PlainText != "" {
		return rt.PlainText
	}
	if rt.Text != nil {
		return rt.Text.Content
	}
	return "Untitled"
}

func (p pageObject) dateOf(name string) string {
	if prop, ok := p.Properties[name]; ok && prop.Date != nil {
		return prop.Date.Start
	}
	return ""
}

func (p pageObject) selectOf(name string) string {
	if prop, ok := p.Properties[name]; ok && prop.Select != nil {
		return prop.Select.Name
	}
	return ""
}

func (p pageObject) numberOf(name string) int {
	if prop, ok := p.Properties[name]; ok && prop.Number != nil {
		return int(*prop.Number)
	}
	return 0
}

func (p pageObject) multiSelectOf(name string) []string {
	prop, ok := p.Properties[name]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(prop.MultiSelect))
	for _, s := range prop.MultiSelect {
		names = append(names, s.Name)
	}
	return names
}
