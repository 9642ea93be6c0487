package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables, optionally
// overlaid from a .env file in the working directory.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("HOST")), "0.0.0.0")
	cfg.Port = intFromEnv("PORT", 8090)

	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.LogPayloads = boolFromEnv("LOG_PAYLOADS", false)

	cfg.Anthropic = AnthropicConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		BaseURL:   strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
		Model:     firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")), "claude-sonnet-4-5"),
		MaxTokens: int64(intFromEnv("ANTHROPIC_MAX_TOKENS", 4096)),
		PromptCache: AnthropicPromptCacheConfig{
			Enabled: boolFromEnv("ANTHROPIC_PROMPT_CACHE", true),
			TTL:     firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE_TTL")), "5m"),
		},
	}

	cfg.OpenAI = OpenAIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:   strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
	}

	cfg.Obs = ObsConfig{
		ServiceName:    firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "voxpersona"),
		ServiceVersion: firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_VERSION")), "dev"),
		Environment:    firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_ENVIRONMENT")), "development"),
		OTLP:           strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ClickHouse: ClickHouseConfig{
			DSN:            strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN")),
			Database:       firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_DATABASE")), "voxpersona"),
			UsageTable:     firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_USAGE_TABLE")), "llm_usage"),
			TimeoutSeconds: intFromEnv("CLICKHOUSE_TIMEOUT_SECONDS", 10),
		},
	}

	cfg.DB = DBConfig{
		RelationalDSN: strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		Search: DBBackendConfig{
			Backend: firstNonEmpty(strings.TrimSpace(os.Getenv("SEARCH_BACKEND")), "memory"),
			DSN:     firstNonEmpty(strings.TrimSpace(os.Getenv("SEARCH_DSN")), strings.TrimSpace(os.Getenv("DATABASE_DSN"))),
			Index:   strings.TrimSpace(os.Getenv("SEARCH_INDEX")),
		},
		Vector: DBBackendConfig{
			Backend:    firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_BACKEND")), "memory"),
			DSN:        firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_DSN")), strings.TrimSpace(os.Getenv("DATABASE_DSN"))),
			Index:      firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_COLLECTION")), "voxpersona_chunks"),
			Dimensions: intFromEnv("VECTOR_DIMENSIONS", 768),
			Metric:     firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_METRIC")), "cosine"),
		},
	}

	cfg.Embedding = EmbeddingConfig{
		BaseURL:    strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
		Model:      strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")),
		APIKey:     strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")),
		APIHeader:  firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_HEADER")), "Authorization"),
		Path:       firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PATH")), "/v1/embeddings"),
		Dimensions: intFromEnv("VECTOR_DIMENSIONS", 768),
		Timeout:    intFromEnv("EMBEDDING_TIMEOUT_SECONDS", 30),
	}

	cfg.Redis = RedisConfig{
		Addr:     firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_ADDR")), "localhost:6379"),
		Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DB:       intFromEnv("REDIS_DB", 0),
	}

	kafkaBrokers := parseCommaSeparatedList(strings.TrimSpace(os.Getenv("KAFKA_BROKERS")))
	cfg.Kafka = KafkaConfig{
		Enabled:    boolFromEnv("KAFKA_ENABLED", len(kafkaBrokers) > 0),
		Brokers:    kafkaBrokers,
		AuditTopic: firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_AUDIT_TOPIC")), "voxpersona.audit-events"),
	}

	cfg.Blob = BlobConfig{
		Endpoint:     strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:       firstNonEmpty(strings.TrimSpace(os.Getenv("S3_REGION")), "us-east-1"),
		Bucket:       firstNonEmpty(strings.TrimSpace(os.Getenv("S3_BUCKET")), "voxpersona-audio"),
		AccessKey:    strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		UsePathStyle: boolFromEnv("S3_USE_PATH_STYLE", false),
	}

	cfg.Whisper = WhisperConfig{
		ModelPath: strings.TrimSpace(os.Getenv("WHISPER_MODEL_PATH")),
		Language:  firstNonEmpty(strings.TrimSpace(os.Getenv("WHISPER_LANGUAGE")), "auto"),
		WindowMS:  intFromEnv("ASR_WINDOW_MS", 180000),
		Threads:   intFromEnv("WHISPER_THREADS", 4),
	}

	creds, err := loadCredentials()
	if err != nil {
		return cfg, err
	}
	cfg.Credentials = creds

	cfg.RAG = RAGConfig{
		IndexDir:     firstNonEmpty(strings.TrimSpace(os.Getenv("RAG_INDEX_DIR")), "./data/rag-index"),
		SavePeriod:   intFromEnv("RAG_SAVE_PERIOD_SECONDS", 900),
		TopKFast:     intFromEnv("RAG_TOPK_FAST", 15),
		TopKDeep:     intFromEnv("RAG_TOPK_DEEP", 40),
		ChunkTokens:  intFromEnv("RAG_CHUNK_TOKENS", 1000),
		ChunkOverlap: intFromEnv("RAG_CHUNK_OVERLAP", 100),
	}

	cfg.DeepSearchDefault = boolFromEnv("DEEP_SEARCH_DEFAULT", false)
	cfg.RequestDeadlineSeconds = intFromEnv("REQUEST_DEADLINE_SECONDS", 0)

	return cfg, nil
}

// loadCredentials parses the CREDENTIALS_JSON env var, a JSON array of
// {id,secret,tpm,rpm} objects describing the credential pool.
func loadCredentials() ([]CredentialConfig, error) {
	raw := strings.TrimSpace(os.Getenv("CREDENTIALS_JSON"))
	if raw == "" {
		return nil, nil
	}
	var creds []CredentialConfig
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return def
}
