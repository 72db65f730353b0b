package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-researcher/pkg/archive"
	"github.com/mikeboe/deep-researcher/pkg/clients"
	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/database"
	"github.com/mikeboe/deep-researcher/pkg/notion"
	"github.com/mikeboe/deep-researcher/pkg/pipeline"
	"github.com/mikeboe/deep-researcher/pkg/search"
)

type Service struct {
	DB      *database.PostgresDB
	Cfg     *config.Config
	Archive *archive.Archive
}

func NewService(db *database.PostgresDB, cfg *config.Config, arch *archive.Archive) *Service {
	return &Service{
		DB:      db,
		Cfg:     cfg,
		Archive: arch,
	}
}

type Session struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	Brief       *string         `json:"brief,omitempty"`
	Status      string          `json:"status"`
	Report      *string         `json:"report,omitempty"`
	NotionURL   *string         `json:"notion_url,omitempty"`
	QualityNote *string         `json:"quality_note,omitempty"`
	Iterations  int             `json:"iterations"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Config      json.RawMessage `json:"config,omitempty"`
}

type CreateSessionRequest struct {
	Topic string `json:"topic"`
}

var ErrEmptyTopic = errors.New("topic is required")

func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	configJSON, _ := json.Marshal(map[string]interface{}{
		"max_revisions": s.Cfg.MaxRevisions,
		"max_queries":   s.Cfg.MaxQueries,
		"collection":    s.Cfg.CollectionName,
	})

	sessionID := uuid.New()
	query := `
		INSERT INTO research_sessions (id, topic, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, topic, status, iterations, created_at, updated_at
	`

	session := &Session{}
	err := s.DB.Pool.QueryRow(ctx, query, sessionID, topic, configJSON).Scan(
		&session.ID, &session.Topic, &session.Status, &session.Iterations, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// Start background worker
	go s.runWorker(session.ID, topic)

	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, topic, brief, status, report, notion_url, quality_note, iterations, created_at, updated_at, config
		FROM research_sessions
		WHERE id = $1
	`
	session := &Session{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&session.ID, &session.Topic, &session.Brief, &session.Status, &session.Report,
		&session.NotionURL, &session.QualityNote, &session.Iterations,
		&session.CreatedAt, &session.UpdatedAt, &session.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	query := `
		SELECT id, topic, brief, status, report, notion_url, quality_note, iterations, created_at, updated_at, config
		FROM research_sessions
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(
			&session.ID, &session.Topic, &session.Brief, &session.Status, &session.Report,
			&session.NotionURL, &session.QualityNote, &session.Iterations,
			&session.CreatedAt, &session.UpdatedAt, &session.Config,
		); err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetSessionLogs(ctx context.Context, sessionID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_session_logs
		WHERE session_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *Service) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxQueries:       s.Cfg.MaxQueries,
		MaxRevisions:     s.Cfg.MaxRevisions,
		MaxClarifyRounds: s.Cfg.MaxClarifyRounds,
		SearchResults:    s.Cfg.SearchResults,
		SearchWorkers:    s.Cfg.SearchWorkers,
		StageTimeout:     time.Duration(s.Cfg.StageTimeoutSec) * time.Second,
	}
}

func (s *Service) runWorker(sessionID uuid.UUID, topic string) {
	ctx := context.Background()

	dbLogger := slog.New(NewDBLogHandler(s.DB, sessionID))

	llm, err := clients.GoogleAI(ctx, s.Cfg.GeminiAPIKey, s.Cfg.ReasoningModel)
	if err != nil {
		s.failSession(ctx, sessionID, fmt.Sprintf("Failed to init LLM: %v", err))
		return
	}

	var store pipeline.Store
	if s.Cfg.NotionToken != "" && s.Cfg.NotionDatabaseID != "" {
		store = notion.NewClient(s.Cfg.NotionToken, s.Cfg.NotionDatabaseID)
	}

	p := pipeline.New(s.pipelineConfig(), llm, search.NewTavilyClient(s.Cfg.TavilyAPIKey), store)
	p.Logger = dbLogger

	// Persist every status transition so clients can poll progress.
	p.OnStateUpdate = func(state pipeline.State) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			dbLogger.Error("Failed to marshal state", "error", err)
			return
		}

		_, err = s.DB.Pool.Exec(context.Background(),
			"UPDATE research_sessions SET state = $2, status = $3, iterations = $4, updated_at = NOW() WHERE id = $1",
			sessionID, stateJSON, string(state.Status), state.Iteration)
		if err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
	}

	state, err := p.Run(ctx, topic)
	switch {
	case err == nil:
		s.saveOutcome(ctx, sessionID, state, dbLogger)

	case errors.Is(err, pipeline.ErrPersistenceFailure) && state != nil:
		// The report exists, only filing it externally failed.
		dbLogger.Warn("Report finished but could not be filed", "error", err)
		s.saveOutcome(ctx, sessionID, state, dbLogger)

	default:
		s.failSession(ctx, sessionID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	if s.Archive != nil && len(state.Findings) > 0 {
		if err := s.Archive.Init(ctx); err != nil {
			dbLogger.Error("Failed to init findings archive", "error", err)
			return
		}
		s.Archive.IndexFindings(ctx, sessionID.String(), state.Topic, state.Findings)
	}
}

func (s *Service) saveOutcome(ctx context.Context, sessionID uuid.UUID, state *pipeline.State, logger *slog.Logger) {
	_, err := s.DB.Pool.Exec(ctx, `
		UPDATE research_sessions
		SET status = $2, brief = $3, report = $4, notion_url = $5, quality_note = $6, iterations = $7, updated_at = NOW()
		WHERE id = $1`,
		sessionID, string(state.Status), state.Brief, state.FinalReport,
		state.ReportURL, state.QualityNote, state.Iteration)
	if err != nil {
		logger.Error("Failed to save session outcome", "error", err)
	}
}

func (s *Service) failSession(ctx context.Context, sessionID uuid.UUID, reason string) {
	dbLogger := slog.New(NewDBLogHandler(s.DB, sessionID))
	dbLogger.Error(reason)

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_sessions SET status = 'failed', updated_at = NOW() WHERE id = $1", sessionID)
}
