package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL         string
	Model          string
	ModelsFile     string
	ExportDir      string
	LogFile        string
	ConnectTimeout int
	ChromeBin      string

	// Development backend
	Port         string
	GoogleApiKey string
	LLMModel     string
	ArxivURL     string
	MaxQueries   int
	ArxivResults int
}

const (
	DefaultAPIURL   = "http://localhost:8000"
	DefaultModel    = "openai/gpt-4o-mini"
	DefaultArxivURL = "https://export.arxiv.org/api/query"
)

// Load reads .env (when present) and the process environment.
func Load() *Config {
	// A missing .env is fine as long as the variables are exported.
	_ = godotenv.Load()

	return &Config{
		APIURL:         strings.TrimRight(getEnv("RESEARCH_API_URL", DefaultAPIURL), "/"),
		Model:          getEnv("RESEARCH_MODEL", DefaultModel),
		ModelsFile:     getEnv("RESEARCH_MODELS_FILE", ""),
		ExportDir:      getEnv("RESEARCH_EXPORT_DIR", "."),
		LogFile:        getEnv("RESEARCH_LOG_FILE", "research-console.log"),
		ConnectTimeout: getEnvAsInt("RESEARCH_CONNECT_TIMEOUT", 10),
		ChromeBin:      getEnv("RESEARCH_CHROME_BIN", ""),
		Port:           getEnv("PORT", "8000"),
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		LLMModel:       getEnv("RESEARCH_LLM_MODEL", "gemini-3-flash-preview"),
		ArxivURL:       getEnv("ARXIV_API_URL", DefaultArxivURL),
		MaxQueries:     getEnvAsInt("RESEARCH_MAX_QUERIES", 3),
		ArxivResults:   getEnvAsInt("RESEARCH_ARXIV_RESULTS", 2),
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
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
