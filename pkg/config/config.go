package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	RAG      RAGConfig
	Cache    CacheConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is the per-client request ceiling per minute at the HTTP boundary.
	RateLimit int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	VisionModel    string
	Temperature    float32
	RequestTimeout time.Duration
	// AnalysisTimeout bounds multi-page document analysis calls, which run
	// much longer than chat completions.
	AnalysisTimeout time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
}

type RAGConfig struct {
	// Country is the default jurisdiction when the question names none.
	Country string
	TopK    int
	// Similarity floors per evidence category.
	CodeThreshold     float64
	DocumentThreshold float64
	LegalThreshold    float64
	// MinResults is the floor below which the keyword fallback kicks in.
	MinResults int
	// SemanticWeight blends semantic vs keyword rank in hybrid fusion.
	SemanticWeight  float64
	MaxPassages     int
	PassageBudget   int
	RerankerEnabled bool
	EmbedCacheTTL   time.Duration
}

type CacheConfig struct {
	// SimilarityThreshold gates fuzzy cache hits. Stricter than retrieval
	// thresholds so a near-but-wrong answer is never served.
	SimilarityThreshold float64
	Retention           time.Duration
}

func Load() (*Config, error) {
	// Optional .env; environment variables win (Docker/K8s).
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "120"))
	rateLimit, _ := strconv.Atoi(getEnv("SERVER_RATE_LIMIT", "30"))

	temperature, _ := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.2"), 32)
	requestTimeout, _ := strconv.Atoi(getEnv("LLM_REQUEST_TIMEOUT", "45"))
	analysisTimeout, _ := strconv.Atoi(getEnv("LLM_ANALYSIS_TIMEOUT", "180"))
	maxRetries, _ := strconv.Atoi(getEnv("LLM_MAX_RETRIES", "3"))

	topK, _ := strconv.Atoi(getEnv("RAG_TOP_K", "8"))
	codeThreshold, _ := strconv.ParseFloat(getEnv("RAG_CODE_THRESHOLD", "0.78"), 64)
	docThreshold, _ := strconv.ParseFloat(getEnv("RAG_DOCUMENT_THRESHOLD", "0.70"), 64)
	legalThreshold, _ := strconv.ParseFloat(getEnv("RAG_LEGAL_THRESHOLD", "0.72"), 64)
	minResults, _ := strconv.Atoi(getEnv("RAG_MIN_RESULTS", "3"))
	semanticWeight, _ := strconv.ParseFloat(getEnv("RAG_SEMANTIC_WEIGHT", "0.7"), 64)
	maxPassages, _ := strconv.Atoi(getEnv("RAG_MAX_PASSAGES", "6"))
	passageBudget, _ := strconv.Atoi(getEnv("RAG_PASSAGE_BUDGET", "8000"))
	rerankerEnabled := getEnv("RAG_RERANKER_ENABLED", "true") == "true"
	embedCacheTTL, _ := strconv.Atoi(getEnv("RAG_EMBED_CACHE_TTL", "120"))

	cacheSimilarity, _ := strconv.ParseFloat(getEnv("CACHE_SIMILARITY_THRESHOLD", "0.92"), 64)
	cacheRetentionDays, _ := strconv.Atoi(getEnv("CACHE_RETENTION_DAYS", "7"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
			RateLimit:    rateLimit,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "douane_rag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LLM: LLMConfig{
			APIKey:          getEnv("LLM_API_KEY", ""),
			BaseURL:         getEnv("LLM_BASE_URL", ""),
			Model:           getEnv("LLM_MODEL", "gpt-4o-mini"),
			EmbeddingModel:  getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			VisionModel:     getEnv("LLM_VISION_MODEL", "gpt-4o"),
			Temperature:     float32(temperature),
			RequestTimeout:  time.Duration(requestTimeout) * time.Second,
			AnalysisTimeout: time.Duration(analysisTimeout) * time.Second,
			MaxRetries:      maxRetries,
			InitialBackoff:  time.Second,
		},
		RAG: RAGConfig{
			Country:           getEnv("RAG_COUNTRY", "MA"),
			TopK:              topK,
			CodeThreshold:     codeThreshold,
			DocumentThreshold: docThreshold,
			LegalThreshold:    legalThreshold,
			MinResults:        minResults,
			SemanticWeight:    semanticWeight,
			MaxPassages:       maxPassages,
			PassageBudget:     passageBudget,
			RerankerEnabled:   rerankerEnabled,
			EmbedCacheTTL:     time.Duration(embedCacheTTL) * time.Second,
		},
		Cache: CacheConfig{
			SimilarityThreshold: cacheSimilarity,
			Retention:           time.Duration(cacheRetentionDays) * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
