// Package config loads VoxPersona's runtime configuration from the
// environment (with an optional .env overlay), applying defaults for
// anything left unset.
package config

// AnthropicPromptCacheConfig controls Anthropic prompt-caching headers.
type AnthropicPromptCacheConfig struct {
	Enabled bool
	TTL     string // "5m" or "1h", per the Anthropic cache-control header
}

// AnthropicConfig holds the settings needed to talk to the Anthropic API.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	PromptCache AnthropicPromptCacheConfig
}

// OpenAIConfig holds the settings needed to talk to an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ClickHouseConfig points the analytics sink at a ClickHouse deployment.
type ClickHouseConfig struct {
	DSN             string
	Database        string
	UsageTable      string
	TimeoutSeconds  int
}

// ObsConfig controls OpenTelemetry tracing/metrics and the ClickHouse
// usage-analytics sink.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
	ClickHouse     ClickHouseConfig
}

// DBBackendConfig selects and connects a single full-text or vector backend.
type DBBackendConfig struct {
	Backend    string // memory, auto, postgres, qdrant, none
	DSN        string
	Index      string
	Dimensions int
	Metric     string // cosine, dot, euclid
}

// DBConfig groups the full-text search and vector store backends used by
// the RAG index, plus the relational DSN used by the audit repository.
type DBConfig struct {
	RelationalDSN string
	Search        DBBackendConfig
	Vector        DBBackendConfig
}

// EmbeddingConfig points at the embedding HTTP endpoint.
type EmbeddingConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	APIHeader  string
	Headers    map[string]string
	Path       string
	Dimensions int
	Timeout    int // seconds
}

// RedisConfig points at a Redis instance used to cache token counts and
// hot RAG queries.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig points the audit event bus at a Kafka cluster. When Enabled
// is false, AuditCompleted events are dropped rather than published.
type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
}

// S3SSEConfig controls server-side encryption on S3 puts/copies.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

// BlobConfig points the object store (raw audio, ASR transcripts) at an
// S3-compatible bucket.
type BlobConfig struct {
	Endpoint              string
	Region                string
	Bucket                string
	Prefix                string
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
	AccessKey             string
	SecretKey     string
	UsePathStyle  bool
}

// WhisperConfig controls the whisper.cpp transcription backend.
type WhisperConfig struct {
	ModelPath   string
	Language    string
	WindowMS    int
	Threads     int
}

// CredentialConfig is one entry of the credential pool.
type CredentialConfig struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	TPM    int    `json:"tpm"`
	RPM    int    `json:"rpm"`
}

// RAGConfig controls chunking, indexing, and snapshotting of the dialog
// RAG index.
type RAGConfig struct {
	IndexDir     string
	SavePeriod   int // seconds
	TopKFast     int
	TopKDeep     int
	ChunkTokens  int
	ChunkOverlap int
}

// Config is the fully resolved VoxPersona runtime configuration.
type Config struct {
	Host string
	Port int

	LogPath     string
	LogLevel    string
	LogPayloads bool

	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Obs       ObsConfig
	DB        DBConfig
	Embedding EmbeddingConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Blob      BlobConfig
	Whisper   WhisperConfig

	Credentials []CredentialConfig

	RAG RAGConfig

	DeepSearchDefault      bool
	RequestDeadlineSeconds int // 0 means derive from chain length
}
