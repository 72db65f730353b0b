package report

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestFormat(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	sources := []string{"https://example.org/a", "https://example.org/b"}

	out := Format("Draft body here.", sources, 8, 2, now)

	for _, want := range []string{
		"Draft body here.",
		"SOURCES CONSULTED",
		"1. https://example.org/a",
		"2. https://example.org/b",
		"Report Generated: 2026-03-14 09:30:00",
		"Research Quality: 8 sources analyzed",
		"Reflection Iterations: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q", want)
		}
	}
}

func TestFormatCapsSources(t *testing.T) {
	var sources []string
	for i := 0; i < 40; i++ {
		sources = append(sources, fmt.Sprintf("https://example.org/%d", i))
	}

	out := Format("Draft", sources, 40, 0, time.Now())

	if !strings.Contains(out, "25. https://example.org/24") {
		t.Error("expected 25th source to be listed")
	}
	if strings.Contains(out, "26. https://example.org/25") {
		t.Error("sources appendix should stop at 25 entries")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		draft string
		want  string
	}{
		{
			name:  "plain first line",
			draft: "Microplastic Accumulation in Reef Ecosystems\n\nBody text.",
			want:  "Microplastic Accumulation in Reef Ecosystems",
		},
		{
			name:  "markdown heading",
			draft: "# Microplastic Accumulation in Reef Ecosystems\nBody.",
			want:  "Microplastic Accumulation in Reef Ecosystems",
		},
		{
			name:  "skips banner and short lines",
			draft: "======\nTITLE:\nThe Long Descriptive Report Title\nBody.",
			want:  "The Long Descriptive Report Title",
		},
		{
			name:  "caps at 100 chars",
			draft: strings.Repeat("x", 150),
			want:  strings.Repeat("x", 100),
		},
		{
			name:  "caps multibyte on a rune boundary",
			draft: strings.Repeat("海", 120),
			want:  strings.Repeat("海", 100),
		},
		{
			name:  "fallback",
			draft: "\n\nshort\n",
			want:  "Research Report",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Title(tt.draft)
			if got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Title() produced invalid UTF-8: %q", got)
			}
		})
	}
}

const sampleReport = `
======================================================================
DEEP RESEARCHER - COMPREHENSIVE REPORT
======================================================================

Reef Plastics: State of the Evidence

EXECUTIVE SUMMARY
Microplastics are now detectable on most surveyed reefs.
Concentrations correlate with coastal runoff.

KEY FINDINGS
- Plastic loads doubled between 2015 and 2024
- 89% of sampled corals contained particles
* Branching corals trap more debris than massive corals

DETAILED ANALYSIS
Field studies from twelve reef systems show consistent uptake
pathways through feeding and sediment contact.

PRACTICAL RECOMMENDATIONS
1. Expand monitoring to mesophotic reefs
2. Standardize particle-size reporting

======================================================================
SOURCES CONSULTED
======================================================================
1. https://example.org/reef-study
2. https://example.org/plastic-flux
not a source line
`

func TestParseSections(t *testing.T) {
	s := ParseSections(sampleReport)

	if !strings.Contains(s.ExecutiveSummary, "detectable on most surveyed reefs") {
		t.Errorf("unexpected executive summary: %q", s.ExecutiveSummary)
	}

	wantFindings := []string{
		"Plastic loads doubled between 2015 and 2024",
		"89% of sampled corals contained particles",
		"Branching corals trap more debris than massive corals",
	}
	if len(s.KeyFindings) != len(wantFindings) {
		t.Fatalf("got %d findings, want %d: %v", len(s.KeyFindings), len(wantFindings), s.KeyFindings)
	}
	for i, want := range wantFindings {
		if s.KeyFindings[i] != want {
			t.Errorf("finding[%d] = %q, want %q", i, s.KeyFindings[i], want)
		}
	}

	if !strings.Contains(s.DetailedAnalysis, "twelve reef systems") {
		t.Errorf("unexpected detailed analysis: %q", s.DetailedAnalysis)
	}

	if len(s.Recommendations) != 2 || s.Recommendations[0] != "Expand monitoring to mesophotic reefs" {
		t.Errorf("unexpected recommendations: %v", s.Recommendations)
	}

	wantSources := []string{"https://example.org/reef-study", "https://example.org/plastic-flux"}
	if len(s.Sources) != 2 || s.Sources[0] != wantSources[0] || s.Sources[1] != wantSources[1] {
		t.Errorf("unexpected sources: %v", s.Sources)
	}
}

func TestParseSectionsEmpty(t *testing.T) {
	s := ParseSections("no recognizable headers here")
	if s.ExecutiveSummary != "" || len(s.KeyFindings) != 0 || len(s.Sources) != 0 {
		t.Errorf("expected empty sections, got %+v", s)
	}
}
