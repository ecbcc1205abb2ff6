package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"MarginCore/internal/observability"
	"MarginCore/internal/position"
)

// Worker drains closed positions from the input channel and
// batch-writes them to Postgres. It flushes when the batch is full or
// the flush timeout expires. Failed flushes are retried with
// exponential backoff; closed positions are never dropped while the
// context is alive.
type Worker struct {
	writer       *ClosedPositionWriter
	inputChan    <-chan *position.ClosedPosition
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan *position.ClosedPosition,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewClosedPositionWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run blocks until ctx is canceled or the input channel closes. On
// shutdown it flushes whatever is buffered with a background context so
// the final batch is not lost.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]ClosedPositionRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.writer.WriteBatch(context.Background(), batch); err != nil {
					w.logger.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case closed, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.writer.WriteBatch(context.Background(), batch); err != nil {
						w.logger.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			row, err := NewClosedPositionRow(closed)
			if err != nil {
				if w.metrics != nil {
					w.metrics.PersistErrors.Inc()
				}
				w.logger.Error().Err(err).Str("position_id", closed.ID.String()).Msg("drop unencodable position")
				continue
			}
			batch = append(batch, row)

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

func (w *Worker) flushWithRetry(ctx context.Context, rows []ClosedPositionRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", len(rows)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), rows); err != nil {
					w.logger.Error().Err(err).Int("rows", len(rows)).Msg("shutdown flush failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, rows)
		if err == nil {
			if attempt > 0 {
				w.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.Inc()
		}
		w.logger.Error().Err(err).Int("rows", len(rows)).Msg("persistence flush failed")
	}
}

func (w *Worker) flush(ctx context.Context, rows []ClosedPositionRow) error {
	start := time.Now()
	if err := w.writer.WriteBatch(ctx, rows); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistWrites.Add(float64(len(rows)))
	}
	return nil
}
