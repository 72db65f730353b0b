// Package pipeline runs a research session through a fixed sequence of
// stages: clarify, plan, research, synthesize, write, critique and finalize.
// The only back-edge is critique sending the draft back to write, bounded by
// Config.MaxRevisions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-researcher/pkg/search"
)

type Pipeline struct {
	Config Config
	State  *State
	LLM    llms.Model
	Search search.Client
	Store  Store
	Asker  Asker
	Logger *slog.Logger

	// OnStateUpdate fires after every status transition with a copy of the
	// state, so callers can persist progress.
	OnStateUpdate func(state State)

	now func() time.Time
}

func New(cfg Config, llm llms.Model, searchClient search.Client, store Store) *Pipeline {
	return &Pipeline{
		Config: cfg.withDefaults(),
		LLM:    llm,
		Search: searchClient,
		Store:  store,
		Logger: slog.Default(),
		now:    time.Now,
	}
}

func (p *Pipeline) update(status Status) {
	p.State.Status = status
	if p.OnStateUpdate != nil {
		p.OnStateUpdate(*p.State)
	}
}

// stageContext bounds a single stage. A zero StageTimeout disables the bound.
func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Config.StageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.Config.StageTimeout)
}

// Run drives a session from topic to filed report. The returned state is
// always non-nil once the topic validates; on error its Status records how
// far the session got.
func (p *Pipeline) Run(ctx context.Context, topic string) (*State, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: research topic is empty", ErrInvalidInput)
	}

	p.State = &State{Topic: topic, Status: StatusPending}
	p.Logger.Info("Starting research session", "topic", topic)

	fail := func(err error) (*State, error) {
		p.update(StatusFailed)
		return p.State, err
	}

	p.update(StatusClarifying)
	if err := p.clarify(ctx); err != nil {
		return fail(fmt.Errorf("clarification failed: %w", err))
	}

	p.update(StatusPlanning)
	if err := p.plan(ctx); err != nil {
		return fail(fmt.Errorf("planning failed: %w", err))
	}

	p.update(StatusResearching)
	if err := p.research(ctx); err != nil {
		return fail(fmt.Errorf("research failed: %w", err))
	}

	p.update(StatusSynthesizing)
	if err := p.synthesize(ctx); err != nil {
		return fail(fmt.Errorf("synthesis failed: %w", err))
	}

	for {
		p.update(StatusDrafting)
		if err := p.write(ctx); err != nil {
			return fail(fmt.Errorf("drafting failed: %w", err))
		}

		p.update(StatusCritiquing)
		critique, err := p.critique(ctx)
		if err != nil {
			return fail(fmt.Errorf("critique failed: %w", err))
		}
		p.State.Critique = critique

		if !critique.NeedsRevision {
			p.Logger.Info("Draft approved", "iteration", p.State.Iteration)
			break
		}
		if p.State.Iteration >= p.Config.MaxRevisions {
			p.State.QualityNote = fmt.Sprintf(
				"revision budget of %d exhausted with open critique issues; publishing the last draft",
				p.Config.MaxRevisions)
			p.Logger.Warn("Revision budget exhausted", "max_revisions", p.Config.MaxRevisions)
			break
		}

		p.State.Iteration++
		p.State.CritiqueFeedback = critiqueFeedback(critique)
		p.Logger.Info("Revision requested", "iteration", p.State.Iteration, "max", p.Config.MaxRevisions)
	}

	p.update(StatusFinalizing)
	if err := p.finalize(ctx); err != nil {
		// The report survives; only filing it did not.
		p.update(StatusCompletedUnsaved)
		return p.State, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	p.update(StatusCompleted)
	p.Logger.Info("Research session complete", "iterations", p.State.Iteration, "sources", len(p.State.Sources()))
	return p.State, nil
}

// generateWithRetry attempts a JSON-mode generation and validates the content
// with the provided function. It retries up to 3 times with linear backoff.
func (p *Pipeline) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			p.Logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second * time.Duration(i)):
			}
		}

		resp, err := p.LLM.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("%w: operation failed after %d retries: %v", ErrUpstreamUnavailable, maxRetries, lastErr)
}

// generateText is the free-form counterpart for stages that produce prose.
func (p *Pipeline) generateText(ctx context.Context, prompts []llms.MessageContent) (string, error) {
	resp, err := p.LLM.GenerateContent(ctx, prompts)
	if err != nil {
		return "", fmt.Errorf("%w: llm generation failed: %v", ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: llm returned no choices", ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Content, nil
}
