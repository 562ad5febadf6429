// Package dispatcher drains the Raw Event queue with at-most-one
// concurrent processing per event, across any number of dispatcher
// instances. Adapted from the ticking background-worker shape in
// discovery-service's scan poller, generalized from a fixed ticker poll
// to a SKIP LOCKED batch lease.
package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/store/db"
)

// Handler processes one raw event's payload. Handlers are expected to be
// side-effect-idempotent because redelivery is normal.
type Handler func(ctx context.Context, q db.Querier, event db.RawEvent) error

// echoPublisher is the narrow slice of eventbus.Client the Dispatcher
// depends on, so tests can substitute a stub without a real NATS
// connection.
type echoPublisher interface {
	Publish(eventType string, payload []byte) error
}

// Dispatcher owns the handler registry and the lease loop.
type Dispatcher struct {
	pool      *pgxpool.Pool
	batchSize int32
	interval  time.Duration
	logger    *zap.Logger
	echo      echoPublisher

	handlers map[string]Handler
}

// New constructs a Dispatcher. Register handlers with On before calling
// Run. echo may be nil, in which case processed events are not echoed to
// the domain-event bus.
func New(pool *pgxpool.Pool, batchSize int32, interval time.Duration, logger *zap.Logger, echo echoPublisher) *Dispatcher {
	return &Dispatcher{
		pool:      pool,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
		echo:      echo,
		handlers:  make(map[string]Handler),
	}
}

// On registers a handler for eventType.
func (d *Dispatcher) On(eventType string, h Handler) {
	d.handlers[eventType] = h
}

// Run blocks in a ticking lease loop until ctx is cancelled. A stop
// signal lets the current transaction finish; no in-flight event is
// abandoned.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", zap.Duration("interval", d.interval), zap.Int32("batch_size", d.batchSize))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.leaseAndProcess(ctx)
		}
	}
}

// leaseAndProcess runs one pass: open a transaction, select-for-update
// skip-locked a batch of pending events, and process each in turn. A
// handler that returns an error without a failed statement leaves only
// its own event unprocessed; the rest of the batch goes on. The whole
// batch commits together, matching every processed_at write to the same
// transaction that held the row locks, so a failed statement inside any
// handler aborts that transaction and the commit rolls back the whole
// batch, leaving every event in it to be leased again on a later pass.
func (d *Dispatcher) leaseAndProcess(ctx context.Context) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		d.logger.Error("failed to begin dispatcher transaction", zap.Error(err))
		return
	}
	defer tx.Rollback(ctx)

	qtx := db.New(tx)

	events, err := qtx.LeasePendingRawEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to lease pending raw events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	for _, event := range events {
		d.processOne(ctx, qtx, event)
	}

	if err := tx.Commit(ctx); err != nil {
		d.logger.Error("failed to commit dispatcher batch", zap.Error(err))
	}
}

// processOne routes event to its registered handler and marks it
// processed on success. An event whose type has no handler is still
// marked processed to prevent queue bloat, but is logged.
func (d *Dispatcher) processOne(ctx context.Context, qtx db.Querier, event db.RawEvent) {
	handler, ok := d.handlers[event.EventType]
	if !ok {
		d.logger.Warn("no handler registered for event type",
			zap.String("event_type", event.EventType),
			zap.String("raw_event_id", event.ID.String()),
		)
		if err := qtx.MarkRawEventProcessed(ctx, event.ID); err != nil {
			d.logger.Error("failed to mark unhandled event processed", zap.Error(err))
		}
		return
	}

	if err := handler(ctx, qtx, event); err != nil {
		// Leave processed_at null; the event is re-attempted on a later
		// pass once this transaction's row lock is released.
		d.logger.Error("handler failed, event will be retried",
			zap.String("event_type", event.EventType),
			zap.String("raw_event_id", event.ID.String()),
			zap.Error(err),
		)
		return
	}

	d.echoEvent(event)

	if err := qtx.MarkRawEventProcessed(ctx, event.ID); err != nil {
		d.logger.Error("failed to mark event processed", zap.Error(err))
	}
}

// echoEvent republishes a successfully processed event onto the domain
// event bus. This is a secondary, best-effort channel: a publish failure
// is logged but never reopens the event for redelivery.
func (d *Dispatcher) echoEvent(event db.RawEvent) {
	if d.echo == nil {
		return
	}
	if err := d.echo.Publish(event.EventType, event.Payload); err != nil {
		d.logger.Warn("failed to echo processed event to domain event bus",
			zap.String("event_type", event.EventType),
			zap.String("raw_event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

// DecodePayload is a convenience used by handlers to re-decode the queued
// JSON payload into a generic map when a typed variant isn't needed.
func DecodePayload(raw json.RawMessage) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
