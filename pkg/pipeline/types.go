package pipeline

import (
	"context"
	"time"

	"github.com/mikeboe/deep-researcher/pkg/report"
)

// Status tracks where a session is in the pipeline. Terminal statuses are
// StatusCompleted, StatusCompletedUnsaved and StatusFailed.
type Status string

const (
	StatusPending          Status = "pending"
	StatusClarifying       Status = "clarifying"
	StatusPlanning         Status = "planning"
	StatusResearching      Status = "researching"
	StatusSynthesizing     Status = "synthesizing"
	StatusDrafting         Status = "drafting"
	StatusCritiquing       Status = "critiquing"
	StatusFinalizing       Status = "finalizing"
	StatusCompleted        Status = "completed"
	StatusCompletedUnsaved Status = "completed_unsaved"
	StatusFailed           Status = "failed"
)

// Finding is one attributed piece of search-derived text.
type Finding struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Critique is the reviewer's verdict on a draft.
type Critique struct {
	NeedsRevision bool     `json:"needs_revision"`
	Reasoning     string   `json:"reasoning"`
	Issues        []string `json:"issues"`
	Improvements  []string `json:"improvements"`
}

// State is the research record threaded through the stages. One instance per
// session, owned by the driver; sessions share nothing.
type State struct {
	Topic            string    `json:"topic"`
	Brief            string    `json:"brief"`
	KeyTopics        []string  `json:"key_topics"`
	Queries          []string  `json:"queries"`
	Findings         []Finding `json:"findings"`
	Notes            string    `json:"notes"`
	DraftReport      string    `json:"draft_report"`
	Critique         *Critique `json:"critique,omitempty"`
	CritiqueFeedback string    `json:"critique_feedback,omitempty"`
	FinalReport      string    `json:"final_report"`
	ReportURL        string    `json:"report_url,omitempty"`
	Iteration        int       `json:"iteration"`
	QualityNote      string    `json:"quality_note,omitempty"`
	Status           Status    `json:"status"`
}

// Sources returns the distinct source URLs across all findings, in order.
func (s *State) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range s.Findings {
		if f.URL == "" || seen[f.URL] {
			continue
		}
		seen[f.URL] = true
		out = append(out, f.URL)
	}
	return out
}

// Config holds the per-session pipeline knobs.
type Config struct {
	MaxQueries       int
	MaxRevisions     int
	MaxClarifyRounds int
	SearchResults    int
	SearchWorkers    int
	StageTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueries <= 0 {
		c.MaxQueries = 7
	}
	if c.MaxRevisions < 0 {
		c.MaxRevisions = 0
	}
	if c.MaxClarifyRounds <= 0 {
		c.MaxClarifyRounds = 3
	}
	if c.SearchResults <= 0 {
		c.SearchResults = 5
	}
	if c.SearchWorkers <= 0 {
		c.SearchWorkers = 3
	}
	return c
}

// Store files the finished report with the external note service.
// Creation is append-only; one record per session.
type Store interface {
	SaveReport(ctx context.Context, doc report.Document) (string, error)
}

// Asker relays a clarifying question to the user and returns their answer.
// A nil Asker makes the pipeline continue with its best-effort reading.
type Asker func(question string) (string, error)
