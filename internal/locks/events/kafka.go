package events

import (
	"context"
	"fmt"

	"wasteops/pkg/kafka"
	"wasteops/pkg/logger"
	"wasteops/pkg/middleware"
	"wasteops/pkg/model"
)

const (
	schemaVersion = "1"

	HeaderReleaseReason = "release-reason"
)

// MessagePublisher is implemented by kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher writes lock events to the shared topic so other instances
// can relay them to their own WebSocket clients.
type KafkaPublisher struct {
	producer   MessagePublisher
	source     string
	instanceID string
}

func NewKafkaPublisher(producer MessagePublisher, source, instanceID string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source, instanceID: instanceID}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.LockEvent) error {
	key := model.LockKey{
		Date:         event.Payload.Date,
		ResourceType: event.Payload.ResourceType,
		ID:           event.Payload.ID,
	}
	builder := kafka.NewMessage().
		WithKey(key.String()).
		WithValue(event).
		WithEventType(event.Name).
		WithSource(p.source).
		WithInstanceID(p.instanceID).
		WithSchemaVersion(schemaVersion)
	if requestID := middleware.RequestIDFrom(ctx); requestID != "" {
		builder.WithCorrelationID(requestID)
	}
	if event.Reason != "" {
		builder.WithHeader(HeaderReleaseReason, event.Reason)
	}

	msg, err := builder.Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

// NewRelayHandler forwards events published by other instances to local.
// Events carrying this instance's id were already delivered locally and are skipped.
func NewRelayHandler(instanceID string, local Publisher, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.GetInstanceID() == instanceID {
			return nil
		}

		var event model.LockEvent
		if err := msg.DecodeValue(&event); err != nil {
			return kafka.NewPermanentError("failed to decode lock event", err)
		}
		switch event.Name {
		case model.EventResourceReserved, model.EventResourceReleased:
		default:
			return kafka.NewPermanentError(fmt.Sprintf("unknown lock event %q", event.Name), nil)
		}

		if err := local.Publish(ctx, event); err != nil {
			log.Warn("failed to relay lock event",
				"event", event.Name,
				"source_instance", msg.GetInstanceID(),
				"error", err,
			)
		}
		return nil
	}
}
