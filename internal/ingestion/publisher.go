package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MarginCore/internal/monitor"
	"MarginCore/internal/observability"
)

// EventStreamName is the JetStream stream carrying monitor events for
// downstream consumers (trade history, notifications, accounting).
const EventStreamName = "MARGIN_EVENTS"

// EventSubjectPrefix is the subject prefix for published monitor
// events; the event type is appended as the last token.
const EventSubjectPrefix = "margin.monitor.events"

// EventPublisher publishes monitor events to NATS JetStream. Events
// are published synchronously in emission order so consumers observe
// activation before close for the same position.
type EventPublisher struct {
	js      jetstream.JetStream
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewEventPublisher(js jetstream.JetStream, metrics *observability.Metrics, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{js: js, metrics: metrics, logger: logger}
}

// EnsureEventStream creates the outbound event stream if it does not exist.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     EventStreamName,
		Subjects: []string{EventSubjectPrefix + ".>"},
		MaxAge:   72 * time.Hour,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", EventStreamName, err)
	}
	return nil
}

// Publish serializes and publishes one monitor event. The payload is
// the event struct itself; the concrete type is carried in the subject.
func (p *EventPublisher) Publish(ctx context.Context, event monitor.Event) error {
	eventType := event.EventType().String()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	subject := EventSubjectPrefix + "." + eventType
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		if p.metrics != nil {
			p.metrics.PublishErrors.Inc()
		}
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	if p.metrics != nil {
		p.metrics.PublishedEvents.WithLabelValues(eventType).Inc()
	}
	return nil
}

// PublishAll publishes a batch of events, logging and counting
// failures without halting the batch. A dropped event is preferable to
// stalling the tick loop behind a broker outage.
func (p *EventPublisher) PublishAll(ctx context.Context, events []monitor.Event) {
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			p.logger.Error().Err(err).
				Str("event_type", event.EventType().String()).
				Msg("publish monitor event")
		}
	}
}
