package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/kafka"
	"github.com/google/uuid"
)

const defaultChunkSize = 500

// EventProducer is satisfied by *kafka.Producer.
type EventProducer interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Publisher turns subject lists into import events.
type Publisher struct {
	producer  EventProducer
	chunkSize int
	now       func() time.Time
	logger    *slog.Logger
}

func NewPublisher(producer EventProducer) *Publisher {
	return &Publisher{
		producer:  producer,
		chunkSize: defaultChunkSize,
		now:       time.Now,
		logger:    slog.Default().With("component", "import-publisher"),
	}
}

// Publish validates every subject, then publishes them in chunks under a
// fresh batch id. Nothing is published if any subject is invalid. A
// failure part way through leaves earlier chunks published; the returned
// result counts them.
func (p *Publisher) Publish(ctx context.Context, op Op, subjects []lanes.Subject) (BatchResult, error) {
	result := BatchResult{BatchID: uuid.NewString(), Op: op}
	if err := validateBatch(op, subjects); err != nil {
		return result, err
	}

	publishedAt := p.now().UTC()
	for start := 0; start < len(subjects); start += p.chunkSize {
		end := min(start+p.chunkSize, len(subjects))
		events := make([]kafka.Event, 0, end-start)
		for _, s := range subjects[start:end] {
			events = append(events, kafka.Event{
				Key: s.Kind,
				Value: SubjectEvent{
					BatchID:     result.BatchID,
					Op:          op,
					Subject:     s,
					PublishedAt: publishedAt,
				},
			})
		}
		if err := p.producer.Publish(ctx, events...); err != nil {
			p.logger.Error("import batch interrupted",
				"batch_id", result.BatchID,
				"published", result.Published,
				"total", len(subjects),
				"error", err,
			)
			return result, fmt.Errorf("publishing batch %s: %w", result.BatchID, err)
		}
		result.Published += len(events)
	}

	p.logger.Info("import batch published",
		"batch_id", result.BatchID,
		"op", op,
		"subjects", result.Published,
	)
	return result, nil
}

func validateBatch(op Op, subjects []lanes.Subject) error {
	if op != OpUpsert && op != OpDelete {
		return fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, op)
	}
	var errs []error
	for i, s := range subjects {
		if err := validateEvent(op, s); err != nil {
			errs = append(errs, fmt.Errorf("subject %d (%q): %w", i, s.ID, err))
		}
	}
	return errors.Join(errs...)
}

// validateEvent checks what op needs: deletes only need an id.
func validateEvent(op Op, s lanes.Subject) error {
	if op == OpDelete {
		if s.ID == "" {
			return &validator.ValidationError{Fields: map[string]string{"id": "id is required"}}
		}
		return nil
	}
	return validator.ValidateSubject(s)
}
