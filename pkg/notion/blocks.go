package notion

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikeboe/deep-researcher/pkg/report"
)

// cleanTag normalizes a key topic into a valid multi-select option.
// Notion rejects commas in option names and caps their length.
func cleanTag(tag string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(tag, ",", " -"))
	if runes := []rune(cleaned); len(runes) > 100 {
		cleaned = string(runes[:97]) + "..."
	}
	if cleaned == "" {
		return "General"
	}
	return cleaned
}

// truncate caps s at max runes, never splitting a multi-byte sequence.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

func buildProperties(doc report.Document, now time.Time) map[string]interface{} {
	tags := make([]interface{}, 0, 3)
	for i, topic := range doc.KeyTopics {
		if i >= 3 {
			break
		}
		tags = append(tags, map[string]interface{}{"name": cleanTag(topic)})
	}

	return map[string]interface{}{
		"Name":    map[string]interface{}{"title": []interface{}{textValue(doc.Title)}},
		"Topic":   map[string]interface{}{"rich_text": []interface{}{textValue(truncate(doc.Title, 100))}},
		"Date":    map[string]interface{}{"date": map[string]interface{}{"start": now.Format(time.RFC3339)}},
		"Status":  map[string]interface{}{"select": map[string]interface{}{"name": "Complete"}},
		"Quality": map[string]interface{}{"select": map[string]interface{}{"name": "⭐⭐⭐⭐⭐"}},
		"Sources": map[string]interface{}{"number": doc.SourceCount},
		"Tags":    map[string]interface{}{"multi_select": tags},
		"Brief":   map[string]interface{}{"rich_text": []interface{}{textValue(truncate(doc.Brief, 2000))}},
	}
}

// buildChildren renders the parsed report sections as page content blocks.
func buildChildren(sections report.Sections, sourceCount int, now time.Time) []interface{} {
	children := []interface{}{
		heading1("Research Report"),
		divider(),
	}

	if sections.ExecutiveSummary != "" {
		children = append(children,
			heading2("Executive Summary"),
			paragraph(truncate(sections.ExecutiveSummary, 2000)),
		)
	}

	if len(sections.KeyFindings) > 0 {
		children = append(children, heading2("Key Findings"))
		for i, finding := range sections.KeyFindings {
			if i >= 10 {
				break
			}
			children = append(children, bulleted(finding))
		}
	}

	if sections.DetailedAnalysis != "" {
		children = append(children,
			heading2("Detailed Analysis"),
			paragraph(truncate(sections.DetailedAnalysis, 2000)),
		)
	}

	if len(sections.Recommendations) > 0 {
		children = append(children, heading2("Recommendations"))
		for i, rec := range sections.Recommendations {
			if i >= 10 {
				break
			}
			children = append(children, numbered(rec))
		}
	}

	if len(sections.Sources) > 0 {
		var sourceBlocks []interface{}
		for i, source := range sections.Sources {
			if i >= 25 {
				break
			}
			sourceBlocks = append(sourceBlocks, paragraph(source))
		}
		children = append(children,
			heading2("Sources"),
			toggle(fmt.Sprintf("View all %d sources", sourceCount), sourceBlocks),
		)
	}

	children = append(children,
		divider(),
		callout(fmt.Sprintf("Generated: %s | Sources: %d | System: Deep Researcher",
			now.Format("2006-01-02 15:04:05"), sourceCount)),
	)

	return children
}

// --- block constructors ---

func textValue(content string) map[string]interface{} {
	return map[string]interface{}{
		"text": map[string]interface{}{"content": content},
	}
}

func richText(content string) []interface{} {
	return []interface{}{
		map[string]interface{}{
			"type": "text",
			"text": map[string]interface{}{"content": content},
		},
	}
}

func block(blockType string, value map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"object":  "block",
		"type":    blockType,
		blockType: value,
	}
}

func heading1(text string) map[string]interface{} {
	return block("heading_1", map[string]interface{}{"rich_text": richText(text)})
}

func heading2(text string) map[string]interface{} {
	return block("heading_2", map[string]interface{}{"rich_text": richText(text)})
}

func paragraph(text string) map[string]interface{} {
	return block("paragraph", map[string]interface{}{"rich_text": richText(text)})
}

func bulleted(text string) map[string]interface{} {
	return block("bulleted_list_item", map[string]interface{}{"rich_text": richText(text)})
}

func numbered(text string) map[string]interface{} {
	return block("numbered_list_item", map[string]interface{}{"rich_text": richText(text)})
}

func divider() map[string]interface{} {
	return block("divider", map[string]interface{}{})
}

func toggle(text string, children []interface{}) map[string]interface{} {
	return block("toggle", map[string]interface{}{
		"rich_text": richText(text),
		"children":  children,
	})
}

func callout(text string) map[string]interface{} {
	return block("callout", map[string]interface{}{
		"rich_text": richText(text),
		"icon":      map[string]interface{}{"emoji": "🤖"},
	})
}
