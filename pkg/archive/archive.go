// Package archive keeps a searchable vector index of every finding gathered
// across research sessions, so earlier research remains queryable after the
// session that collected it is done.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/mikeboe/deep-researcher/pkg/database"
	"github.com/mikeboe/deep-researcher/pkg/pipeline"
)

type Archive struct {
	DB           *database.PostgresDB
	Embedder     Embedder
	Table        string
	ChunkSize    int
	ChunkOverlap int
	Logger       *slog.Logger

	store *store
}

func New(db *database.PostgresDB, embedder Embedder, table string, chunkSize, chunkOverlap int) (*Archive, error) {
	st, err := newStore(db.Pool, table)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Archive{
		DB:           db,
		Embedder:     embedder,
		Table:        table,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Logger:       slog.Default(),
		store:        st,
	}, nil
}

// Init makes sure the pgvector extension and the findings table exist.
func (a *Archive) Init(ctx context.Context) error {
	if err := a.DB.EnsureVectorExtension(ctx); err != nil {
		return fmt.Errorf("failed to ensure vector extension: %w", err)
	}
	if err := a.DB.CreateEmbeddingsTable(ctx, a.Table, Dimension); err != nil {
		return fmt.Errorf("failed to create findings table: %w", err)
	}
	return nil
}

// IndexFindings chunks, embeds and stores the findings of one session.
// Individual findings that fail to embed are logged and skipped; indexing is
// best effort and never blocks report delivery.
func (a *Archive) IndexFindings(ctx context.Context, sessionID, topic string, findings []pipeline.Finding) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(a.ChunkSize),
		textsplitter.WithChunkOverlap(a.ChunkOverlap),
	)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 3)

	for _, f := range findings {
		wg.Add(1)
		go func(f pipeline.Finding) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			pieces, err := splitter.SplitText(f.Content)
			if err != nil {
				a.Logger.Error("Failed to split finding", "title", f.Title, "error", err)
				return
			}
			if len(pieces) == 0 {
				return
			}

			vectors, err := a.Embedder.EmbedTexts(ctx, pieces)
			if err != nil {
				a.Logger.Error("Failed to embed finding", "title", f.Title, "error", err)
				return
			}

			chunks := make([]Chunk, len(pieces))
			for i, piece := range pieces {
				chunks[i] = Chunk{
					Content:   piece,
					Metadata:  chunkMetadata(sessionID, topic, f),
					Embedding: vectors[i],
				}
			}

			if err := a.store.addChunks(ctx, chunks); err != nil {
				a.Logger.Error("Failed to index finding", "title", f.Title, "error", err)
				return
			}
			a.Logger.Info("Finding indexed", "title", f.Title, "chunks", len(chunks))
		}(f)
	}
	wg.Wait()
}

func chunkMetadata(sessionID, topic string, f pipeline.Finding) map[string]interface{} {
	return map[string]interface{}{
		"session_id": sessionID,
		"topic":      topic,
		"source":     f.URL,
		"title":      f.Title,
	}
}

// Search embeds the query and returns the nearest archived chunks. An empty
// topic searches across all sessions.
func (a *Archive) Search(ctx context.Context, query string, topK int, topic string) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	vector, err := a.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return a.store.similaritySearch(ctx, vector, topK, topic)
}

// SessionChunks returns everything indexed under one session.
func (a *Archive) SessionChunks(ctx context.Context, sessionID string) ([]Chunk, error) {
	return a.store.bySession(ctx, sessionID)
}
