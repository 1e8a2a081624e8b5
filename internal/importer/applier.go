package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/metrics"
)

// SubjectWriter is the write side of the subject store.
type SubjectWriter interface {
	Upsert(ctx context.Context, subjects ...lanes.Subject) error
	Delete(ctx context.Context, ids ...string) error
}

// Invalidator drops cached layouts.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Applier writes consumed import events to the store. Writes mark the
// layout cache dirty; RunInvalidator flushes it at most once per interval
// instead of once per message.
type Applier struct {
	store   SubjectWriter
	metrics *metrics.Metrics
	dirty   atomic.Bool
	logger  *slog.Logger
}

// NewApplier creates an Applier. m may be nil.
func NewApplier(store SubjectWriter, m *metrics.Metrics) *Applier {
	return &Applier{
		store:   store,
		metrics: m,
		logger:  slog.Default().With("component", "import-applier"),
	}
}

// Handle is a kafka.MessageHandler. Undecodable or invalid events are
// skipped; store failures are returned so the consumer retries them.
func (a *Applier) Handle(ctx context.Context, key []byte, value []byte) error {
	ev, err := kafka.DecodeJSON[SubjectEvent](value)
	if err != nil {
		a.count("unknown", "skipped")
		return err
	}
	if err := validateEvent(ev.Op, ev.Subject); err != nil {
		a.count(string(ev.Op), "skipped")
		return fmt.Errorf("%w: batch %s subject %q: %v", kafka.ErrSkip, ev.BatchID, ev.Subject.ID, err)
	}

	switch ev.Op {
	case OpUpsert:
		err = a.store.Upsert(ctx, ev.Subject)
	case OpDelete:
		err = a.store.Delete(ctx, ev.Subject.ID)
	default:
		a.count(string(ev.Op), "skipped")
		return fmt.Errorf("%w: unknown op %q", kafka.ErrSkip, ev.Op)
	}
	if err != nil {
		a.count(string(ev.Op), "failed")
		return fmt.Errorf("applying %s of %q: %w", ev.Op, ev.Subject.ID, err)
	}

	a.dirty.Store(true)
	a.count(string(ev.Op), "applied")
	a.logger.Debug("import event applied",
		"batch_id", ev.BatchID,
		"op", ev.Op,
		"subject_id", ev.Subject.ID,
		"kind", string(key),
	)
	return nil
}

// Dirty reports whether writes happened since the last flush.
func (a *Applier) Dirty() bool {
	return a.dirty.Load()
}

// Flush invalidates the cache if anything was written since the last
// flush. A failed invalidation leaves the applier dirty.
func (a *Applier) Flush(ctx context.Context, inv Invalidator) error {
	if !a.dirty.Swap(false) {
		return nil
	}
	if _, err := inv.Invalidate(ctx); err != nil {
		a.dirty.Store(true)
		return err
	}
	return nil
}

// RunInvalidator flushes every interval until ctx ends, then flushes once
// more with a short grace period.
func (a *Applier) RunInvalidator(ctx context.Context, inv Invalidator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.Flush(ctx, inv); err != nil {
				a.logger.Warn("layout cache invalidation failed", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.Flush(final, inv); err != nil {
				a.logger.Warn("final layout cache invalidation failed", "error", err)
			}
			cancel()
			return
		}
	}
}

func (a *Applier) count(op, status string) {
	if a.metrics != nil {
		a.metrics.ImportEventsTotal.WithLabelValues(op, status).Inc()
	}
}
