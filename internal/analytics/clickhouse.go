// Package analytics records one row per completed LLM Gateway (C3) call
// to ClickHouse for long-horizon cost analysis, independent of the OTel
// metrics path in internal/llm/observability.go: OTel is for dashboards
// and alerting, these rows are never sampled or aggregated before being
// written.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"voxpersona/internal/config"
	"voxpersona/internal/logging"
)

// UsageRow is one completed call, as recorded by Sink.Record.
type UsageRow struct {
	CredentialID     string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Status           string // "ok", "rate_limited", "overloaded", "credential_error", "unavailable"
	OccurredAt       time.Time
}

// Sink writes UsageRow values to ClickHouse. A nil/disabled Sink drops
// every row: the ClickHouse sink is cost-reporting, never in the request
// path's success criteria.
type Sink struct {
	conn  clickhouse.Conn
	table string
	now   func() time.Time
}

// New connects to ClickHouse and best-effort creates the usage table. When
// cfg.DSN is empty, the returned Sink is a no-op: Record becomes a cheap
// discard rather than an error, matching the Persistence Daemon's
// crash-and-skip-don't-abort posture for non-critical side channels.
func New(ctx context.Context, cfg config.ClickHouseConfig) (*Sink, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return &Sink{now: time.Now}, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	table := cfg.UsageTable
	if table == "" {
		table = "llm_usage"
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(ctxTimeout); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if err := conn.Exec(ctxTimeout, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	occurred_at       DateTime64(3),
	credential_id     String,
	model             String,
	prompt_tokens     UInt32,
	completion_tokens UInt32,
	latency_ms        UInt32,
	status            String
) ENGINE = MergeTree()
ORDER BY (occurred_at, credential_id)
`, table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create usage table: %w", err)
	}

	return &Sink{conn: conn, table: table, now: time.Now}, nil
}

// Record writes one usage row. Failures are logged and swallowed: a
// ClickHouse outage must never fail an LLM Gateway call.
func (s *Sink) Record(ctx context.Context, row UsageRow) {
	if s == nil || s.conn == nil {
		return
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = s.now().UTC()
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.conn.Exec(wctx, fmt.Sprintf(`
INSERT INTO %s (occurred_at, credential_id, model, prompt_tokens, completion_tokens, latency_ms, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, s.table),
		row.OccurredAt, row.CredentialID, row.Model, row.PromptTokens, row.CompletionTokens, row.LatencyMS, row.Status)
	if err != nil {
		logging.Log.WithError(err).Warn("analytics: record usage row failed")
	}
}

// Close releases the underlying ClickHouse connection, if any.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
