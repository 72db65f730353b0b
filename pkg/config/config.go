package config

import (
	"os"
	"strconv"
)

type Config struct {
	GeminiAPIKey     string
	TavilyAPIKey     string
	NotionToken      string
	NotionDatabaseID string
	DatabaseURL      string
	Port             string
	ReasoningModel   string
	EmbeddingModel   string
	CollectionName   string
	MaxRevisions     int
	MaxQueries       int
	MaxClarifyRounds int
	SearchResults    int
	SearchWorkers    int
	StageTimeoutSec  int
	ChunkSize        int
	ChunkOverlap     int
}

func Load() *Config {
	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		// Older deployments set GOOGLE_API_KEY instead
		apiKey = getEnv("GOOGLE_API_KEY", "")
	}

	return &Config{
		GeminiAPIKey:     apiKey,
		TavilyAPIKey:     getEnv("TAVILY_API_KEY", ""),
		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Port:             getEnv("PORT", "8081"),
		ReasoningModel:   getEnv("REASONING_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName:   getEnv("COLLECTION_NAME", "research_findings"),
		MaxRevisions:     getEnvAsInt("MAX_REVISIONS", 2),
		MaxQueries:       getEnvAsInt("MAX_QUERIES", 7),
		MaxClarifyRounds: getEnvAsInt("MAX_CLARIFY_ROUNDS", 3),
		SearchResults:    getEnvAsInt("SEARCH_RESULTS", 5),
		SearchWorkers:    getEnvAsInt("SEARCH_WORKERS", 3),
		StageTimeoutSec:  getEnvAsInt("STAGE_TIMEOUT_SEC", 120),
		ChunkSize:        getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 200),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
