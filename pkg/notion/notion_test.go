package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mikeboe/deep-researcher/pkg/report"
)

func TestCleanTag(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "coral reefs", "coral reefs"},
		{"commas replaced", "reefs, plastics", "reefs - plastics"},
		{"empty", "", "General"},
		{"whitespace only", "   ", "General"},
		{"long tag truncated", strings.Repeat("a", 120), strings.Repeat("a", 97) + "..."},
		{"long multibyte tag truncated on rune boundary", strings.Repeat("ü", 120), strings.Repeat("ü", 97) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanTag(tt.input)
			if got != tt.want {
				t.Errorf("cleanTag(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("cleanTag(%q) produced invalid UTF-8", tt.input)
			}
		})
	}
}

func TestTruncateMultibyte(t *testing.T) {
	got := truncate(strings.Repeat("é", 50), 10)
	if got != strings.Repeat("é", 10) {
		t.Errorf("truncate() = %q, want 10 runes", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate() produced invalid UTF-8: %q", got)
	}
	if short := truncate("abc", 10); short != "abc" {
		t.Errorf("truncate() = %q, want input unchanged", short)
	}
}

func TestBuildChildren(t *testing.T) {
	sections := report.Sections{
		ExecutiveSummary: "Summary text.",
		KeyFindings:      []string{"finding one", "finding two"},
		DetailedAnalysis: "Analysis text.",
		Recommendations:  []string{"do this"},
		Sources:          []string{"https://example.org/a"},
	}

	children := buildChildren(sections, 4, time.Now())

	counts := map[string]int{}
	for _, child := range children {
		b, ok := child.(map[string]interface{})
		if !ok {
			t.Fatalf("child is not a block map: %T", child)
		}
		counts[b["type"].(string)]++
	}

	want := map[string]int{
		"heading_1":          1,
		"heading_2":          5,
		"paragraph":          2,
		"bulleted_list_item": 2,
		"numbered_list_item": 1,
		"toggle":             1,
		"divider":            2,
		"callout":            1,
	}
	for blockType, n := range want {
		if counts[blockType] != n {
			t.Errorf("%s count = %d, want %d", blockType, counts[blockType], n)
		}
	}
}

func TestBuildChildrenSkipsEmptySections(t *testing.T) {
	children := buildChildren(report.Sections{}, 0, time.Now())

	for _, child := range children {
		b := child.(map[string]interface{})
		if b["type"] == "heading_2" {
			t.Errorf("empty sections should not produce section headings: %v", b)
		}
	}
}

func TestSaveReport(t *testing.T) {
	var gotPath, gotVersion string
	var gotPayload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.Header.Get("Notion-Version")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":  "page-1",
			"url": "https://notion.so/page-1",
		})
	}))
	defer srv.Close()

	c := NewClient("secret", "db-1")
	c.BaseURL = srv.URL

	url, err := c.SaveReport(context.Background(), report.Document{
		Title:       "Reef Plastics",
		Brief:       "How do microplastics affect coral reefs?",
		Content:     "EXECUTIVE SUMMARY\nShort summary line here.",
		KeyTopics:   []string{"reefs", "plastics, marine"},
		SourceCount: 3,
	})
	if err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	if url != "https://notion.so/page-1" {
		t.Errorf("url = %q, want page URL", url)
	}
	if gotPath != "/pages" {
		t.Errorf("path = %q, want /pages", gotPath)
	}
	if gotVersion != apiVersion {
		t.Errorf("Notion-Version = %q, want %q", gotVersion, apiVersion)
	}

	parent := gotPayload["parent"].(map[string]interface{})
	if parent["database_id"] != "db-1" {
		t.Errorf("parent database_id = %v, want db-1", parent["database_id"])
	}
	props := gotPayload["properties"].(map[string]interface{})
	for _, key := range []string{"Name", "Topic", "Date", "Status", "Quality", "Sources", "Tags", "Brief"} {
		if _, ok := props[key]; !ok {
			t.Errorf("properties missing %q", key)
		}
	}
}

func TestSaveReportMissingCredentials(t *testing.T) {
	c := NewClient("", "")
	if _, err := c.SaveReport(context.Background(), report.Document{Title: "x"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestSaveReportServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "validation error"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("secret", "db-1")
	c.BaseURL = srv.URL

	if _, err := c.SaveReport(context.Background(), report.Document{Title: "x"}); err == nil {
		t.Fatal("expected error on 400 response")
	}
}

func TestQueryDecodesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/databases/db-1/query") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"results": [{
				"id": "p1",
				"url": "https://notion.so/p1",
				"properties": {
					"Name": {"title": [{"plain_text": "Reef Plastics"}]},
					"Date": {"date": {"start": "2026-03-14T09:30:00Z"}},
					"Status": {"select": {"name": "Complete"}},
					"Quality": {"select": {"name": "High"}},
					"Sources": {"number": 7}
				}
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient("secret", "db-1")
	c.BaseURL = srv.URL

	pages, err := c.Query(context.Background(), "reef")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}

	p := pages[0]
	if p.Title != "Reef Plastics" || p.Status != "Complete" || p.Sources != 7 || p.URL != "https://notion.so/p1" {
		t.Errorf("unexpected page summary: %+v", p)
	}
}

func TestStats(t *testing.T) {
	thisMonth := time.Now().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"id": "p1", "url": "u1",
					"properties": map[string]interface{}{
						"Date":    map[string]interface{}{"date": map[string]interface{}{"start": thisMonth}},
						"Sources": map[string]interface{}{"number": 4},
						"Tags":    map[string]interface{}{"multi_select": []map[string]interface{}{{"name": "reefs"}, {"name": "plastics"}}},
					},
				},
				{
					"id": "p2", "url": "u2",
					"properties": map[string]interface{}{
						"Date":    map[string]interface{}{"date": map[string]interface{}{"start": "2020-01-02T00:00:00Z"}},
						"Sources": map[string]interface{}{"number": 2},
						"Tags":    map[string]interface{}{"multi_select": []map[string]interface{}{{"name": "reefs"}}},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("secret", "db-1")
	c.BaseURL = srv.URL

	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.TotalReports != 2 || stats.ThisMonth != 1 || stats.TotalSources != 6 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.AvgSources != 3 {
		t.Errorf("avg sources = %v, want 3", stats.AvgSources)
	}
	if len(stats.TopTopics) == 0 || stats.TopTopics[0].Tag != "reefs" || stats.TopTopics[0].Count != 2 {
		t.Errorf("unexpected top topics: %v", stats.TopTopics)
	}
}
