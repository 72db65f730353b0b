package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/report"
)

// clarify settles the scope of the request and distills it into a brief.
// Without an Asker, or when the user stops answering, it proceeds with its
// best-effort reading of the topic.
func (p *Pipeline) clarify(ctx context.Context) error {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	conversation := "user: " + p.State.Topic

	type clarifyResponse struct {
		NeedClarification bool   `json:"need_clarification"`
		Question          string `json:"question"`
		Verification      string `json:"verification"`
	}

	for round := 0; round < p.Config.MaxClarifyRounds; round++ {
		var clarifyResp clarifyResponse

		_, err := p.generateWithRetry(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, clarifySystemPrompt+"\n\n# Response Format:\n"+clarifySchema()),
			llms.TextParts(llms.ChatMessageTypeHuman, conversation),
		}, func(content string) error {
			clarifyResp = clarifyResponse{}
			if err := json.Unmarshal([]byte(content), &clarifyResp); err != nil {
				return fmt.Errorf("json parse error: %w", err)
			}
			if clarifyResp.NeedClarification && strings.TrimSpace(clarifyResp.Question) == "" {
				return fmt.Errorf("clarification requested without a question")
			}
			return nil
		})
		if err != nil {
			return err
		}

		if !clarifyResp.NeedClarification {
			p.Logger.Info("Request is clear", "verification", clarifyResp.Verification)
			break
		}

		if p.Asker == nil {
			p.Logger.Warn("Clarification wanted but no asker configured, proceeding", "question", clarifyResp.Question)
			break
		}

		answer, err := p.Asker(clarifyResp.Question)
		if err != nil || strings.TrimSpace(answer) == "" {
			p.Logger.Warn("No clarification answer, proceeding with best-effort reading")
			break
		}
		conversation += "\nassistant: " + clarifyResp.Question + "\nuser: " + answer
	}

	type briefResponse struct {
		Brief     string `json:"brief"`
		Reasoning string `json:"reasoning"`
	}
	var briefResp briefResponse

	_, err := p.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, briefSystemPrompt+"\n\n# Response Format:\n"+briefSchema()),
		llms.TextParts(llms.ChatMessageTypeHuman, conversation),
	}, func(content string) error {
		briefResp = briefResponse{}
		if err := json.Unmarshal([]byte(content), &briefResp); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if strings.TrimSpace(briefResp.Brief) == "" {
			return fmt.Errorf("empty brief")
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.State.Brief = briefResp.Brief
	p.Logger.Info("Research brief ready", "length", len(briefResp.Brief))
	return nil
}

// plan decomposes the brief into deduplicated search queries, capped at
// Config.MaxQueries.
func (p *Pipeline) plan(ctx context.Context) error {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	type planResponse struct {
		Queries   []string `json:"queries"`
		KeyTopics []string `json:"key_topics"`
		Reasoning string   `json:"reasoning"`
	}
	var planResp planResponse
	var queries []string

	_, err := p.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, planSystemPrompt(p.Config.MaxQueries)+"\n\n# Response Format:\n"+planSchema(p.Config.MaxQueries)),
		llms.TextParts(llms.ChatMessageTypeHuman, "Research Brief: "+p.State.Brief),
	}, func(content string) error {
		planResp = planResponse{}
		if err := json.Unmarshal([]byte(content), &planResp); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		queries = uniqueQueries(planResp.Queries, p.Config.MaxQueries)
		if len(queries) == 0 {
			return fmt.Errorf("empty queries list")
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.State.Queries = queries
	p.State.KeyTopics = planResp.KeyTopics
	p.Logger.Info("Research plan ready", "queries", queries, "key_topics", planResp.KeyTopics)
	return nil
}

func uniqueQueries(raw []string, max int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(raw))
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

// research runs the planned queries through the search client with a bounded
// worker pool. Individual query failures are logged and skipped; the stage
// fails only when no query yields a finding.
func (p *Pipeline) research(ctx context.Context) error {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		all      []Finding
		failures int
	)

	semaphore := make(chan struct{}, p.Config.SearchWorkers)

	for _, q := range p.State.Queries {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results, err := p.Search.Search(ctx, query, p.Config.SearchResults)
			if err != nil {
				p.Logger.Warn("Search query failed", "query", query, "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			p.Logger.Info("Search query done", "query", query, "results", len(results))

			mu.Lock()
			for _, r := range results {
				if strings.TrimSpace(r.Content) == "" {
					continue
				}
				all = append(all, Finding{Title: r.Title, URL: r.URL, Content: r.Content})
			}
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	findings := dedupeFindings(all)
	if len(findings) == 0 {
		return fmt.Errorf("%w: no findings from %d queries (%d failed)",
			ErrUpstreamUnavailable, len(p.State.Queries), failures)
	}

	p.State.Findings = findings
	p.Logger.Info("Research done", "findings", len(findings), "failed_queries", failures)
	return nil
}

// dedupeFindings removes duplicate sources by URL, falling back to the title
// when a result carries no URL. First occurrence wins.
func dedupeFindings(findings []Finding) []Finding {
	seen := make(map[string]bool)
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		key := f.URL
		if key == "" {
			key = f.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// synthesize compresses the findings into attributed research notes.
func (p *Pipeline) synthesize(ctx context.Context) error {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	notes, err := p.generateText(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, synthesisPrompt(p.State.Brief, p.State.KeyTopics, p.State.Findings)),
	})
	if err != nil {
		return err
	}

	p.State.Notes = notes
	p.Logger.Info("Notes synthesized", "length", len(notes))
	return nil
}

// write produces the draft report, folding in reviewer feedback on revisions.
func (p *Pipeline) write(ctx context.Context) error {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	draft, err := p.generateText(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, writePrompt(p.State.Brief, p.State.Notes, p.State.CritiqueFeedback)),
	})
	if err != nil {
		return err
	}

	p.State.DraftReport = draft
	p.Logger.Info("Draft written", "length", len(draft), "iteration", p.State.Iteration)
	return nil
}

// critique reviews the draft against the brief.
func (p *Pipeline) critique(ctx context.Context) (*Critique, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	input := fmt.Sprintf("Research Brief: %s\n\nDraft Report:\n%s", p.State.Brief, p.State.DraftReport)

	var critique Critique
	_, err := p.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, critiqueSystemPrompt+"\n\n# Response Format:\n"+critiqueSchema()),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		critique = Critique{}
		if err := json.Unmarshal([]byte(content), &critique); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if critique.NeedsRevision && len(critique.Issues) == 0 {
			return fmt.Errorf("revision requested without issues")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.Logger.Info("Critique done", "needs_revision", critique.NeedsRevision, "issues", len(critique.Issues))
	return &critique, nil
}

// finalize formats the approved draft and files it with the store. The final
// report is set on the state before the save is attempted, so a save failure
// never loses the report.
func (p *Pipeline) finalize(ctx context.Context) error {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	st := p.State
	sources := st.Sources()
	st.FinalReport = report.Format(st.DraftReport, sources, len(st.Findings), st.Iteration, p.now())

	if p.Store == nil {
		return fmt.Errorf("no report store configured")
	}

	url, err := p.Store.SaveReport(ctx, report.Document{
		Title:       report.Title(st.DraftReport),
		Brief:       st.Brief,
		Content:     st.FinalReport,
		KeyTopics:   st.KeyTopics,
		SourceCount: len(sources),
	})
	if err != nil {
		p.Logger.Error("Failed to file report", "error", err)
		return err
	}

	st.ReportURL = url
	p.Logger.Info("Report filed", "url", url)
	return nil
}
