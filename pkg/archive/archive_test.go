package archive

import (
	"testing"

	"github.com/mikeboe/deep-researcher/pkg/pipeline"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "research_findings", true},
		{"Valid with underscore", "my_collection", true},
		{"Valid with numbers", "collection123", true},
		{"Valid short", "a", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true}, // 63 chars
		{"Invalid start with number", "1collection", false},
		{"Invalid special chars", "collection-name", false},
		{"Invalid space", "collection name", false},
		{"Invalid SQL injection", "users; DROP TABLE research_findings", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false}, // 64 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTableName(tt.input); got != tt.expected {
				t.Errorf("isValidTableName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestChunkMetadata(t *testing.T) {
	meta := chunkMetadata("sess-1", "coral reefs", pipeline.Finding{
		Title:   "Reef Study A",
		URL:     "https://example.org/a",
		Content: "body",
	})

	want := map[string]string{
		"session_id": "sess-1",
		"topic":      "coral reefs",
		"source":     "https://example.org/a",
		"title":      "Reef Study A",
	}
	for key, value := range want {
		if meta[key] != value {
			t.Errorf("metadata[%q] = %v, want %q", key, meta[key], value)
		}
	}
}
