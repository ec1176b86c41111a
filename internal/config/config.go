package config

import (
	"barker/pkg/config"
)

// Config stores environment configuration for Barker.
type Config struct {
	Port                string
	DatabaseURL         string
	JWTSecret           string
	LLMProvider         string
	LLMModel            string
	LLMAPIKey           string
	LLMAPIURL           string
	LLMMaxTokens        int
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingAPIURL     string
	EmbeddingDimensions int
	SearchLimit         int
	MaxHistoryMessages  int
	ChunkTokenLimit     int
	ChunkTokenOverlap   int
}

// LoadConfig loads the Barker configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:                config.GetEnv("PORT", "18030"),
		DatabaseURL:         config.RequireEnv("DATABASE_URL"),
		JWTSecret:           config.RequireEnv("JWT_SECRET"),
		LLMProvider:         config.GetEnv("LLM_PROVIDER", ""),
		LLMModel:            config.GetEnv("LLM_MODEL", ""),
		LLMAPIKey:           config.GetEnv("LLM_API_KEY", ""),
		LLMAPIURL:           config.GetEnv("LLM_API_URL", ""),
		LLMMaxTokens:        config.GetEnvInt("LLM_MAX_TOKENS", 4096),
		EmbeddingProvider:   config.GetEnv("EMBEDDING_PROVIDER", config.GetEnv("LLM_PROVIDER", "")),
		EmbeddingModel:      config.GetEnv("EMBEDDING_MODEL", config.GetEnv("LLM_MODEL", "")),
		EmbeddingAPIKey:     config.GetEnv("EMBEDDING_API_KEY", config.GetEnv("LLM_API_KEY", "")),
		EmbeddingAPIURL:     config.GetEnv("EMBEDDING_API_URL", config.GetEnv("LLM_API_URL", "")),
		EmbeddingDimensions: config.GetEnvInt("EMBEDDING_DIMENSIONS", 0),
		SearchLimit:         config.GetEnvInt("BARKER_SEARCH_LIMIT", 5),
		MaxHistoryMessages:  config.GetEnvInt("BARKER_MAX_HISTORY_MESSAGES", 20),
		ChunkTokenLimit:     config.GetEnvInt("CHUNK_TOKEN_LIMIT", 500),
		ChunkTokenOverlap:   config.GetEnvInt("CHUNK_TOKEN_OVERLAP", 50),
	}
}
