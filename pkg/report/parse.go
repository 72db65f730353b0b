package report

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sections is the decomposed form of a formatted report, used to build the
// structured page in the note store.
type Sections struct {
	ExecutiveSummary string
	KeyFindings      []string
	DetailedAnalysis string
	Recommendations  []string
	Sources          []string
}

// ParseSections splits a formatted report into its named sections. Section
// headers are matched loosely so model output variations still parse.
func ParseSections(content string) Sections {
	raw := map[string][]string{}
	current := ""

	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))

		switch {
		case strings.Contains(lower, "executive summary"):
			current = "summary"
		case strings.Contains(lower, "key finding"):
			current = "findings"
		case strings.Contains(lower, "detailed analysis"):
			current = "analysis"
		case strings.Contains(lower, "recommendation"):
			current = "recommendations"
		case strings.Contains(lower, "sources consulted"):
			current = "sources"
		default:
			if current != "" && strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "=") {
				raw[current] = append(raw[current], line)
			}
		}
	}

	return Sections{
		ExecutiveSummary: strings.TrimSpace(strings.Join(raw["summary"], "\n")),
		KeyFindings:      listItems(raw["findings"]),
		DetailedAnalysis: strings.TrimSpace(strings.Join(raw["analysis"], "\n")),
		Recommendations:  listItems(raw["recommendations"]),
		Sources:          sourceItems(raw["sources"]),
	}
}

// listItems extracts bulleted or numbered entries from section lines.
func listItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(line)
		if first != '-' && first != '*' && first != '•' && !unicode.IsDigit(first) {
			continue
		}
		cleaned := stripListMarker(line)
		if cleaned != "" {
			items = append(items, cleaned)
		}
	}
	return items
}

// stripListMarker removes a leading bullet ("-", "*", "•") or an enumerator
// like "3." / "3)". Bare numbers inside the text ("89% of corals") survive.
func stripListMarker(line string) string {
	line = strings.TrimSpace(strings.TrimLeft(line, "-*• "))
	if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 {
		enum := true
		for _, r := range line[:i] {
			if !unicode.IsDigit(r) {
				enum = false
				break
			}
		}
		if enum {
			line = strings.TrimSpace(line[i+1:])
		}
	}
	return line
}

// sourceItems extracts source lines, which are either bare URLs or numbered
// entries from the appendix.
func sourceItems(lines []string) []string {
	var sources []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(line)
		if !strings.HasPrefix(line, "http") && !unicode.IsDigit(first) {
			continue
		}
		cleaned := strings.TrimSpace(strings.TrimLeft(line, "0123456789. "))
		if len(cleaned) > 10 {
			sources = append(sources, cleaned)
		}
	}
	return sources
}
