package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
	"github.com/arklim/social-platform-sessions/internal/infra/config"
)

const (
	schemaVersion      = "1.0"
	securityEventTopic = "security.events"
)

// AuditPublisher implements port.SecurityEventPublisher on the Kafka ingest bus
// of the external audit sink.
type AuditPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditPublisher constructs a Kafka-backed security event publisher.
func NewAuditPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditPublisher {
	return &AuditPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	Severity   string            `json:"severity"`
	OwnerID    string            `json:"owner_id,omitempty"`
	FamilyID   string            `json:"family_id,omitempty"`
	TokenID    string            `json:"token_id,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Version    string            `json:"version"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PublishSecurityEvent serializes the event and hands it to the async producer.
func (p *AuditPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	envelope := eventEnvelope{
		EventID:    id,
		EventType:  string(event.Type),
		Severity:   string(event.Severity),
		OwnerID:    event.OwnerID,
		FamilyID:   event.FamilyID,
		TokenID:    event.TokenID,
		Detail:     event.Detail,
		OccurredAt: ts.UTC(),
		Version:    schemaVersion,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(securityEventTopic),
		Key:   sarama.StringEncoder(event.FamilyID),
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.SecurityEventPublisher = (*AuditPublisher)(nil)
