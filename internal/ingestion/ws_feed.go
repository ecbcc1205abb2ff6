package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"MarginCore/internal/observability"
	"MarginCore/internal/position"
)

// WSFeedConfig controls the WebSocket price feed connection.
type WSFeedConfig struct {
	URL            string
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	// Subscriptions are replayed as JSON frames after every (re)connect.
	Subscriptions []interface{}
}

func DefaultWSFeedConfig(url string) WSFeedConfig {
	return WSFeedConfig{
		URL:            url,
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

// WSFeed is a direct WebSocket price feed, an alternative tick source
// to the NATS stream for deployments without a broker in the price
// path. Reconnects with exponential backoff and replays subscriptions
// after every reconnect.
type WSFeed struct {
	cfg      WSFeedConfig
	tickChan chan<- *position.BidAsk
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewWSFeed(
	cfg WSFeedConfig,
	tickChan chan<- *position.BidAsk,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *WSFeed {
	return &WSFeed{cfg: cfg, tickChan: tickChan, metrics: metrics, logger: logger}
}

// Run connects and consumes the feed until ctx is canceled. Dropped
// connections are retried with exponential backoff, reset to the
// initial delay after a successful session.
func (f *WSFeed) Run(ctx context.Context) error {
	delay := f.cfg.InitialDelay

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := f.dial(ctx)
		if err != nil {
			if f.metrics != nil {
				f.metrics.FeedReconnects.Inc()
			}
			f.logger.Warn().Err(err).Dur("retry_in", delay).Msg("feed dial failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > f.cfg.MaxDelay {
				delay = f.cfg.MaxDelay
			}
			continue
		}

		f.logger.Info().Str("url", f.cfg.URL).Msg("feed connected")
		delay = f.cfg.InitialDelay

		err = f.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.metrics != nil {
			f.metrics.FeedReconnects.Inc()
		}
		f.logger.Warn().Err(err).Msg("feed disconnected, reconnecting")
	}
}

func (f *WSFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}

	for _, sub := range f.cfg.Subscriptions {
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}
	return conn, nil
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when ctx is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	pingTicker := time.NewTicker(f.cfg.PingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				conn.SetWriteDeadline(time.Now().Add(f.cfg.ConnectTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if f.metrics != nil {
			f.metrics.TicksReceived.WithLabelValues("websocket").Inc()
		}

		bidask, err := ParseBidAsk(message)
		if err != nil {
			if f.metrics != nil {
				f.metrics.ParseErrors.WithLabelValues("websocket").Inc()
			}
			f.logger.Warn().Err(err).Msg("drop unparsable feed message")
			continue
		}

		select {
		case f.tickChan <- bidask:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
