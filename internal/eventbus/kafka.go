// Package eventbus publishes AuditCompleted events after the Audit
// Repository's (C9) transaction commits, for downstream analytics/indexing
// consumers. Publish failures are logged, never propagated: the audit
// write itself is the durability boundary (spec.md §9 resolves the
// decorator-based-DB-transactions pattern as a UnitOfWork; the event bus
// sits strictly outside that boundary).
package eventbus

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"voxpersona/internal/config"
	"voxpersona/internal/logging"
)

// AuditCompleted mirrors SPEC_FULL.md §11.1: the event published once per
// successful C5 Execute.
type AuditCompleted struct {
	AuditID        int64     `json:"audit_id"`
	ScenarioID     int64     `json:"scenario_id"`
	ReportTypeID   int64     `json:"report_type_id"`
	BuildingTypeID int64     `json:"building_type_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher publishes AuditCompleted events, best-effort.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	now    func() time.Time
}

// New constructs a Kafka-backed Publisher. When cfg.Enabled is false, the
// returned Publisher drops every event without dialing Kafka.
func New(cfg config.KafkaConfig) *Publisher {
	p := &Publisher{topic: cfg.AuditTopic, now: time.Now}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return p
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return p
}

// PublishAuditCompleted implements audit.EventPublisher. A nil writer
// (Kafka disabled, or not configured) is a no-op.
func (p *Publisher) PublishAuditCompleted(ctx context.Context, auditID, scenarioID, reportTypeID, buildingTypeID int64) {
	if p == nil || p.writer == nil {
		return
	}
	evt := AuditCompleted{
		AuditID:        auditID,
		ScenarioID:     scenarioID,
		ReportTypeID:   reportTypeID,
		BuildingTypeID: buildingTypeID,
		OccurredAt:     p.now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		logging.Log.WithError(err).Warn("eventbus: marshal audit-completed event")
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte("audit-" + strconv.FormatInt(auditID, 10)),
		Value: payload,
	}); err != nil {
		logging.Log.WithError(err).WithField("audit_id", auditID).Warn("eventbus: publish audit-completed failed")
	}
}

// Close releases the underlying Kafka writer, if any.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
