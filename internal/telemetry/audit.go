package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chat-client/internal/rabbitmq"
)

// AuditEmitter records session and consent lifecycle events to the ops
// broker, when one is configured.
type AuditEmitter struct {
	publisher   rabbitmq.Publisher
	routingKey  string
	service     string
	environment string
	log         *zap.Logger
}

// AuditEnvelope is the broker-side event schema.
type AuditEnvelope struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	OccurredAt    string         `json:"occurred_at"`
	Service       string         `json:"service"`
	Environment   string         `json:"environment"`
	UserID        int            `json:"user_id"`
	Payload       map[string]any `json:"payload"`
}

// NewAuditEmitter builds an emitter bound to a publisher.
func NewAuditEmitter(publisher rabbitmq.Publisher, routingKey, service, environment string, log *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes one audit event. Failures are logged, never surfaced: audit
// must not affect the session.
func (e *AuditEmitter) Emit(ctx context.Context, eventType string, userID int, payload map[string]any) {
	if e == nil {
		return
	}
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		UserID:        userID,
		Payload:       payload,
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", zap.Error(err))
	}
}
