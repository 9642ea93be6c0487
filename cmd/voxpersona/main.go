// Command voxpersona wires the analysis core's components (C1-C11) into a
// running process: load config, stand up storage and provider clients, and
// hand a session.Store backed by internal/analysis.Service to whatever
// front-end surface drives it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"voxpersona/internal/analysis"
	"voxpersona/internal/analytics"
	"voxpersona/internal/audit"
	"voxpersona/internal/blobstore"
	"voxpersona/internal/cache"
	"voxpersona/internal/config"
	"voxpersona/internal/credentials"
	"voxpersona/internal/daemon"
	"voxpersona/internal/dialog"
	"voxpersona/internal/eventbus"
	"voxpersona/internal/httpapi"
	"voxpersona/internal/llm"
	"voxpersona/internal/llm/anthropic"
	"voxpersona/internal/llm/openai"
	"voxpersona/internal/llmcaller"
	"voxpersona/internal/llmgateway"
	"voxpersona/internal/logging"
	"voxpersona/internal/objectstore"
	"voxpersona/internal/observability"
	"voxpersona/internal/persistence/databases"
	"voxpersona/internal/promptstore"
	"voxpersona/internal/rag"
	"voxpersona/internal/rag/embedder"
	"voxpersona/internal/session"
	"voxpersona/internal/transcriber"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("voxpersona")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	logging.Configure(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	shutdownOTel, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing/metrics export")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 60 * time.Second})

	pool := credentials.New(cfg.Credentials)

	anthropicClient := anthropic.New(cfg.Anthropic, httpClient)
	openaiClient := openai.New(cfg.OpenAI, httpClient)
	resolve := providerResolver(cfg, anthropicClient, openaiClient)
	gateway := llmgateway.New(resolve)

	sink, err := analytics.New(baseCtx, cfg.Obs.ClickHouse)
	if err != nil {
		return fmt.Errorf("init clickhouse usage sink: %w", err)
	}

	redisCache := cache.New(cfg.Redis)
	defer func() {
		if cerr := redisCache.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing redis client")
		}
	}()

	caller := &llmcaller.Caller{
		Pool:      pool,
		Gateway:   gateway,
		Model:     cfg.Anthropic.Model,
		MaxTokens: int(cfg.Anthropic.MaxTokens),
		Sink:      sink,
		Cache:     redisCache,
	}

	dbPool, err := pgxpool.New(baseCtx, cfg.DB.RelationalDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbPool.Close()

	kafkaPublisher := eventbus.New(cfg.Kafka)
	defer func() {
		if cerr := kafkaPublisher.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing kafka publisher")
		}
	}()

	auditRepo := audit.New(baseCtx, dbPool, kafkaPublisher)
	prompts := promptstore.New(baseCtx, dbPool)

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	asr, err := transcriber.NewWhisperASR(cfg.Whisper)
	if err != nil {
		return fmt.Errorf("load whisper model: %w", err)
	}
	defer func() {
		if cerr := asr.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing whisper model")
		}
	}()

	facade := &transcriber.Facade{
		Blobs:   blobs,
		ASR:     asr,
		Repo:    auditRepo,
		Prompts: prompts,
		Caller:  caller,
	}
	if cfg.Whisper.WindowMS > 0 {
		facade.WindowSamples = cfg.Whisper.WindowMS * 16 // 16kHz samples/ms
	}

	ragEmbedder := newEmbedder(cfg.Embedding)
	ragBackend := func(ctx context.Context, scopeKey string) (databases.Manager, error) {
		return databases.NewManager(ctx, cfg.DB)
	}
	ragManager := rag.New(ragBackend, ragEmbedder, cfg.RAG)

	persistenceDaemon := daemon.New(ragManager)
	if cfg.RAG.SavePeriod > 0 {
		persistenceDaemon.Period = time.Duration(cfg.RAG.SavePeriod) * time.Second
	}

	svc := &analysis.Service{
		Prompts:     prompts,
		Transcriber: facade,
		Caller:      caller,
		Repo:        auditRepo,
		Pool:        pool,
	}
	sessions := session.New(svc)

	answerer := &dialog.Answerer{
		Prompts:  prompts,
		Rag:      ragManager,
		Caller:   caller,
		Cache:    redisCache,
		FastTopK: cfg.RAG.TopKFast,
		DeepTopK: cfg.RAG.TopKDeep,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	daemonDone := make(chan struct{})
	go func() {
		persistenceDaemon.Run(ctx)
		close(daemonDone)
	}()

	api := &httpapi.Server{Sessions: sessions, Answerer: answerer}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: api.NewMux()}

	go func() {
		log.Info().Str("addr", addr).Int("credentials", pool.Size()).Msg("voxpersona analysis core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}

	<-daemonDone
	return nil
}

// providerResolver routes every credential through the same provider
// family: Anthropic when the credential secret looks like an Anthropic key
// (sk-ant- prefix, matching Anthropic's published key format), OpenAI (or a
// self-hosted OpenAI-compatible endpoint) otherwise. VoxPersona ships both
// providers behind the same llm.Provider interface so a deployment can mix
// credentials across vendors without the gateway caring which is which.
func providerResolver(cfg config.Config, anthropicClient *anthropic.Client, openaiClient *openai.Client) llmgateway.ProviderResolver {
	secretByID := make(map[string]string, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		secretByID[c.ID] = c.Secret
	}
	return func(credentialID string) llm.Provider {
		secret := secretByID[credentialID]
		if len(secret) >= 7 && secret[:7] == "sk-ant-" {
			return anthropicClient
		}
		return openaiClient
	}
}

func newBlobStore(cfg config.Config) (blobstore.Store, error) {
	if cfg.Blob.Endpoint == "" && cfg.Blob.AccessKey == "" {
		return blobstore.New(objectstore.NewMemoryStore()), nil
	}
	s3Store, err := objectstore.NewS3Store(context.Background(), cfg.Blob)
	if err != nil {
		return nil, err
	}
	return blobstore.New(s3Store), nil
}

func newEmbedder(cfg config.EmbeddingConfig) embedder.Embedder {
	if cfg.BaseURL == "" {
		return embedder.NewDeterministic(cfg.Dimensions, true, 0)
	}
	return embedder.NewClient(cfg, cfg.Dimensions)
}
