package worker

import (
	"context"
	"time"

	"korty/internal/domain"
	"korty/internal/events"
	"korty/internal/metrics"
	"korty/internal/models"

	"github.com/rs/zerolog"
)

// Sink is one delivery target for committed events: the realtime stream,
// the broker, the notifier.
type Sink struct {
	Name   string
	Fanout domain.EventFanout
}

// Dispatcher drains the transactional outbox and pushes each committed row
// to every sink. Rows only exist for transactions that committed, so nothing
// is ever announced that did not happen. Delivery is at least once per sink;
// consumers deduplicate on the envelope id.
type Dispatcher struct {
	store        domain.OutboxStore
	sinks        []Sink
	retry        RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewDispatcher builds a dispatcher with sane defaults for the zero-value
// fields of the policy.
func NewDispatcher(store domain.OutboxStore, sinks []Sink, retry RetryPolicy, logger *zerolog.Logger) *Dispatcher {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &Dispatcher{
		store:        store,
		sinks:        sinks,
		retry:        retry,
		wake:         make(chan struct{}, 1),
		pollInterval: 2 * time.Second,
		batchSize:    50,
		logger:       logger,
	}
}

// Nudge wakes the dispatcher after a commit so delivery does not wait out
// the poll interval. Never blocks.
func (d *Dispatcher) Nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the drain loop until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Int("sinks", len(d.sinks)).Msg("Outbox dispatcher started")
	defer d.logger.Info().Msg("Outbox dispatcher stopped")

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		d.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-ticker.C:
		}
	}
}

// drain works through pending rows until the backlog is empty. Rows whose
// next attempt lies in the future are not returned by the store, so failed
// deliveries cannot hot-loop here.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		rows, err := d.store.PendingOutbox(ctx, d.batchSize)
		if err != nil {
			d.logger.Error().Err(err).Msg("Failed to load pending outbox")
			return
		}
		if len(rows) == 0 {
			return
		}

		for _, row := range rows {
			if ctx.Err() != nil {
				return
			}
			d.deliver(ctx, row)
		}

		if len(rows) < d.batchSize {
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, row *models.OutboxEvent) {
	env := events.FromOutbox(row)

	for _, sink := range d.sinks {
		if err := sink.Fanout.Publish(ctx, env); err != nil {
			d.retryOrBury(ctx, row, sink.Name, err)
			return
		}
		metrics.IncEventDelivered(sink.Name)
	}

	if err := d.store.MarkOutboxDelivered(ctx, row.ID); err != nil {
		d.logger.Error().Err(err).Int64("event_id", row.ID).Msg("Failed to mark event delivered")
	}
}

func (d *Dispatcher) retryOrBury(ctx context.Context, row *models.OutboxEvent, sinkName string, cause error) {
	attempts := row.Attempts + 1
	if d.retry.Exhausted(attempts) {
		d.logger.Error().Err(cause).
			Int64("event_id", row.ID).
			Str("sink", sinkName).
			Int("attempts", attempts).
			Msg("Event delivery gave up, moving to dead letter")
		if err := d.store.MarkOutboxDead(ctx, row.ID, attempts); err != nil {
			d.logger.Error().Err(err).Int64("event_id", row.ID).Msg("Failed to mark event dead")
		}
		return
	}

	next := time.Now().UTC().Add(d.retry.NextDelay(attempts))
	d.logger.Warn().Err(cause).
		Int64("event_id", row.ID).
		Str("sink", sinkName).
		Time("next_attempt", next).
		Msg("Event delivery failed, will retry")
	if err := d.store.MarkOutboxRetry(ctx, row.ID, attempts, next); err != nil {
		d.logger.Error().Err(err).Int64("event_id", row.ID).Msg("Failed to schedule event retry")
	}
}
