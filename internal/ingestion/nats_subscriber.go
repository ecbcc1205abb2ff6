package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MarginCore/internal/observability"
	"MarginCore/internal/position"
)

// TickStreamName is the JetStream stream carrying price ticks.
const TickStreamName = "MARGIN_PRICES"

// TickSubject is the subject filter for price ticks; producers publish
// to margin.prices.{instrument}.
const TickSubject = "margin.prices.>"

// TickSubscriber consumes price ticks from NATS JetStream and feeds
// parsed BidAsk values into tickChan for the monitor loop. Ticks that
// fail to parse are ACKed and dropped: redelivery cannot fix a bad
// payload.
type TickSubscriber struct {
	js       jetstream.JetStream
	tickChan chan<- *position.BidAsk
	metrics  *observability.Metrics
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewTickSubscriber(
	js jetstream.JetStream,
	tickChan chan<- *position.BidAsk,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *TickSubscriber {
	return &TickSubscriber{
		js:       js,
		tickChan: tickChan,
		metrics:  metrics,
		logger:   logger,
	}
}

// EnsureTickStream creates the tick stream if it does not exist.
func EnsureTickStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     TickStreamName,
		Subjects: []string{TickSubject},
		MaxAge:   time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", TickStreamName, err)
	}
	return nil
}

// Subscribe creates the durable tick consumer and starts delivery.
func (s *TickSubscriber) Subscribe(ctx context.Context, consumerName string) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, TickStreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: TickSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if s.metrics != nil {
			s.metrics.TicksReceived.WithLabelValues("nats").Inc()
		}

		bidask, err := ParseBidAsk(msg.Data())
		if err != nil {
			if s.metrics != nil {
				s.metrics.ParseErrors.WithLabelValues("nats").Inc()
			}
			s.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("drop unparsable tick")
			msg.Ack()
			return
		}

		select {
		case s.tickChan <- bidask:
			msg.Ack()
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	s.consumer = consumeCtx
	return nil
}

// Stop halts tick delivery.
func (s *TickSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}
