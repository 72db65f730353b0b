package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-researcher/pkg/archive"
	"github.com/mikeboe/deep-researcher/pkg/clients"
	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/database"
	"github.com/mikeboe/deep-researcher/pkg/notion"
	"github.com/mikeboe/deep-researcher/pkg/pipeline"
	"github.com/mikeboe/deep-researcher/pkg/search"
)

var topic string

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-researcher",
		Short: "A terminal-based deep research agent",
		Long: `Deep Researcher runs a research topic through a staged pipeline:
clarify, plan, search, synthesize, write, review and file to Notion.`,
		Run: func(cmd *cobra.Command, args []string) {
			runResearch(cmd, cfg)
		},
	}
	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")

	rootCmd.AddCommand(listCmd(cfg), searchCmd(cfg), statsCmd(cfg), similarCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func runResearch(cmd *cobra.Command, cfg *config.Config) {
	reader := bufio.NewReader(os.Stdin)

	if !cmd.Flags().Changed("topic") {
		fmt.Print("Enter research topic: ")
		input, _ := reader.ReadString('\n')
		topic = strings.TrimSpace(input)
	}
	if topic == "" {
		slog.Error("Topic cannot be empty")
		os.Exit(1)
	}

	ctx := context.Background()

	llm, err := clients.GoogleAI(ctx, cfg.GeminiAPIKey, cfg.ReasoningModel)
	if err != nil {
		slog.Error("Failed to init LLM", "error", err)
		os.Exit(1)
	}

	var store pipeline.Store
	if cfg.NotionToken != "" && cfg.NotionDatabaseID != "" {
		store = notion.NewClient(cfg.NotionToken, cfg.NotionDatabaseID)
	} else {
		slog.Warn("Notion is not configured, the report will only be written locally")
	}

	p := pipeline.New(pipeline.Config{
		MaxQueries:       cfg.MaxQueries,
		MaxRevisions:     cfg.MaxRevisions,
		MaxClarifyRounds: cfg.MaxClarifyRounds,
		SearchResults:    cfg.SearchResults,
		SearchWorkers:    cfg.SearchWorkers,
		StageTimeout:     time.Duration(cfg.StageTimeoutSec) * time.Second,
	}, llm, search.NewTavilyClient(cfg.TavilyAPIKey), store)

	// Clarifying questions go straight to the terminal.
	p.Asker = func(question string) (string, error) {
		fmt.Printf("\n%s\n> ", question)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(answer), nil
	}

	state, err := p.Run(ctx, topic)
	if err != nil && state == nil {
		slog.Error("Research failed", "error", err)
		os.Exit(1)
	}
	if err != nil && state.Status != pipeline.StatusCompletedUnsaved {
		slog.Error("Research failed", "error", err, "status", state.Status)
		os.Exit(1)
	}

	// Keep a local copy regardless of Notion.
	filename := fmt.Sprintf("report_%d.md", time.Now().Unix())
	if writeErr := os.WriteFile(filename, []byte(state.FinalReport), 0644); writeErr != nil {
		slog.Warn("Failed to save report locally", "error", writeErr)
	} else {
		slog.Info("Report saved locally", "filename", filename)
	}

	if state.ReportURL != "" {
		slog.Info("Report filed in Notion", "url", state.ReportURL)
	} else if err != nil {
		slog.Warn("Report could not be filed in Notion", "error", err)
	}
	if state.QualityNote != "" {
		slog.Warn("Quality note", "note", state.QualityNote)
	}

	indexFindings(ctx, cfg, state)
}

// indexFindings archives the session findings when a database is configured.
func indexFindings(ctx context.Context, cfg *config.Config, state *pipeline.State) {
	if cfg.DatabaseURL == "" || cfg.GeminiAPIKey == "" || len(state.Findings) == 0 {
		return
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Warn("Skipping findings archive", "error", err)
		return
	}
	defer db.Close()

	embedder, err := archive.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GeminiAPIKey)
	if err != nil {
		slog.Warn("Skipping findings archive", "error", err)
		return
	}

	arch, err := archive.New(db, embedder, cfg.CollectionName, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		slog.Warn("Skipping findings archive", "error", err)
		return
	}
	if err := arch.Init(ctx); err != nil {
		slog.Warn("Skipping findings archive", "error", err)
		return
	}

	arch.IndexFindings(ctx, fmt.Sprintf("cli-%d", time.Now().Unix()), state.Topic, state.Findings)
}

func notionClient(cfg *config.Config) (*notion.Client, error) {
	if cfg.NotionToken == "" || cfg.NotionDatabaseID == "" {
		return nil, fmt.Errorf("NOTION_TOKEN and NOTION_DATABASE_ID must be set")
	}
	return notion.NewClient(cfg.NotionToken, cfg.NotionDatabaseID), nil
}

func listCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past research reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := notionClient(cfg)
			if err != nil {
				return err
			}
			pages, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			printPages(pages)
			return nil
		},
	}
}

func searchCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search past research reports by keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := notionClient(cfg)
			if err != nil {
				return err
			}
			pages, err := client.Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPages(pages)
			return nil
		},
	}
}

func statsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show research database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := notionClient(cfg)
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Total reports:  %d\n", stats.TotalReports)
			fmt.Printf("This month:     %d\n", stats.ThisMonth)
			fmt.Printf("Total sources:  %d\n", stats.TotalSources)
			fmt.Printf("Avg sources:    %.1f\n", stats.AvgSources)
			if len(stats.TopTopics) > 0 {
				fmt.Println("Top topics:")
				for _, t := range stats.TopTopics {
					fmt.Printf("  %s (%d)\n", t.Tag, t.Count)
				}
			}
			return nil
		},
	}
}

func similarCmd(cfg *config.Config) *cobra.Command {
	var topK int
	var filterTopic string

	cmd := &cobra.Command{
		Use:   "similar <query>",
		Short: "Semantic search over archived findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL must be set for the findings archive")
			}

			db, err := database.NewPostgresDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			embedder, err := archive.NewGoogleEmbedder(cmd.Context(), cfg.EmbeddingModel, cfg.GeminiAPIKey)
			if err != nil {
				return err
			}
			arch, err := archive.New(db, embedder, cfg.CollectionName, cfg.ChunkSize, cfg.ChunkOverlap)
			if err != nil {
				return err
			}

			hits, err := arch.Search(cmd.Context(), args[0], topK, filterTopic)
			if err != nil {
				return err
			}
			for _, hit := range hits {
				fmt.Printf("[%.3f] %v (%v)\n", hit.Score, hit.Chunk.Metadata["title"], hit.Chunk.Metadata["source"])
				fmt.Printf("  %s\n\n", firstLine(hit.Chunk.Content))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 5, "Number of results")
	cmd.Flags().StringVar(&filterTopic, "topic", "", "Restrict to one research topic")
	return cmd
}

func printPages(pages []notion.PageSummary) {
	if len(pages) == 0 {
		fmt.Println("No reports found.")
		return
	}
	for _, p := range pages {
		fmt.Printf("%-10s  %-50s  %d sources\n  %s\n", formatDate(p.Date), p.Title, p.Sources, p.URL)
	}
}

func formatDate(raw string) string {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("2006-01-02")
	}
	if len(raw) >= 10 {
		return raw[:10]
	}
	return raw
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
