// Package report shapes draft reports into their final published form and
// parses that form back into sections for the persistence layer.
package report

import (
	"fmt"
	"strings"
	"time"
)

const (
	banner = "======================================================================"

	// maxSources caps the sources appendix so the report stays readable.
	maxSources = 25
)

// Document is the finished report plus the metadata the persistence
// collaborator needs to file it.
type Document struct {
	Title       string
	Brief       string
	Content     string
	KeyTopics   []string
	SourceCount int
}

// Format frames an approved draft as the final report: sources appendix,
// generation stamp and iteration count.
func Format(draft string, sources []string, findingsCount, iterations int, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(banner + "\n")
	sb.WriteString("DEEP RESEARCHER - COMPREHENSIVE REPORT\n")
	sb.WriteString(banner + "\n\n")
	sb.WriteString(draft)
	sb.WriteString("\n\n")
	sb.WriteString(banner + "\n")
	sb.WriteString("SOURCES CONSULTED\n")
	sb.WriteString(banner + "\n")

	for i, source := range sources {
		if i >= maxSources {
			break
		}
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, source))
	}

	sb.WriteString("\n" + banner + "\n")
	sb.WriteString(fmt.Sprintf("Report Generated: %s\n", now.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Research Quality: %d sources analyzed\n", findingsCount))
	sb.WriteString(fmt.Sprintf("Reflection Iterations: %d\n", iterations))
	sb.WriteString(banner)

	return sb.String()
}

// Title extracts a page title from a draft: the first substantial line,
// capped at 100 characters.
func Title(draft string) string {
	for i, line := range strings.Split(draft, "\n") {
		if i >= 10 {
			break
		}
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#= "))
		if len(line) > 10 {
			// Cap on a rune boundary so multi-byte titles stay valid UTF-8.
			if runes := []rune(line); len(runes) > 100 {
				return string(runes[:100])
			}
			return line
		}
	}
	return "Research Report"
}
