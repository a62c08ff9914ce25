// Package consumer drains ingest messages from the queue in batches and
// commits them to the catalog store, publishing a classification event for
// every committed entry.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/catalog-import-service/internal/config"
	"github.com/fairyhunter13/catalog-import-service/internal/model"
	"github.com/fairyhunter13/catalog-import-service/internal/obs"
	"github.com/fairyhunter13/catalog-import-service/internal/pubsub"
	"github.com/fairyhunter13/catalog-import-service/internal/queue"
)

// SubjectProductCreated is the human-readable subject attached to every
// classification event.
const SubjectProductCreated = "New product created"

// AttrPrice is the filterable numeric attribute carrying the entry price.
const AttrPrice = "price"

var validate = validator.New()

// Receiver is the queue contract the consumer drains from.
type Receiver interface {
	ReceiveBatch(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error)
	Ack(receipt string)
	Nack(receipt string)
}

// Committer performs the atomic dual-write into the catalog tables.
type Committer interface {
	Commit(ctx context.Context, p model.Product, s model.Stock) error
}

// Publisher emits classification events.
type Publisher interface {
	Publish(ctx context.Context, ev pubsub.Event) error
}

// Result reports the outcome of one message. Retryable results are nacked
// for redelivery; non-retryable ones (bad input) are acked and surfaced.
type Result struct {
	MessageID string
	ProductID string
	Err       error
	Retryable bool
}

// Runner polls the queue and processes batches until stopped.
type Runner struct {
	queue     Receiver
	store     Committer
	topic     Publisher
	batchSize int
	pollWait  time.Duration
}

// NewRunner constructs a Runner from the service configuration.
func NewRunner(q Receiver, st Committer, t Publisher, cfg config.Config) *Runner {
	return &Runner{
		queue:     q,
		store:     st,
		topic:     t,
		batchSize: cfg.BatchSize,
		pollWait:  cfg.PollWait,
	}
}

// Run polls for batches until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		msgs, err := r.queue.ReceiveBatch(ctx, r.batchSize, r.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("receive batch failed")
			continue
		}
		if len(msgs) > 0 {
			r.ProcessBatch(ctx, msgs)
		}
	}
}

// ProcessBatch handles each message of the batch independently: commit
// failures are nacked for redelivery, invalid messages are acked so the queue
// does not redeliver input that can never succeed. Every failure is surfaced.
func (r *Runner) ProcessBatch(ctx context.Context, msgs []queue.Message) []Result {
	results := make([]Result, 0, len(msgs))
	for _, msg := range msgs {
		obs.MessagesConsumed.Inc()
		res := r.process(ctx, msg)
		results = append(results, res)
		if res.Err == nil {
			r.queue.Ack(msg.Receipt)
			continue
		}
		if res.Retryable {
			r.queue.Nack(msg.Receipt)
			log.Error().Err(res.Err).Str("message_id", msg.ID).Str("product_id", res.ProductID).
				Str("body", string(msg.Body)).Int("receive_count", msg.ReceiveCount).
				Msg("message failed, redelivery requested")
		} else {
			r.queue.Ack(msg.Receipt)
			log.Error().Err(res.Err).Str("message_id", msg.ID).
				Str("body", string(msg.Body)).Msg("message rejected")
		}
	}
	return results
}

// process commits one ingest message. The dual-write is atomic and
// re-applying it under the same id is a safe overwrite, so at-least-once
// delivery needs no further guarding here. A publish failure after a
// successful commit propagates: the entry exists but the event was not sent,
// and redelivery closes the window by re-committing and re-publishing.
func (r *Runner) process(ctx context.Context, msg queue.Message) Result {
	var in model.IngestMessage
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		return Result{MessageID: msg.ID, Err: fmt.Errorf("unmarshal: %w", err)}
	}
	if err := validate.Struct(in); err != nil {
		return Result{MessageID: msg.ID, Err: fmt.Errorf("validate: %w", err)}
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	var count int64
	if in.Count != nil {
		count = *in.Count
	}
	product := model.Product{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Price:       *in.Price,
	}
	stock := model.Stock{ProductID: id, Count: count}

	if err := r.store.Commit(ctx, product, stock); err != nil {
		return Result{MessageID: msg.ID, ProductID: id, Err: fmt.Errorf("commit: %w", err), Retryable: true}
	}
	log.Info().Str("product_id", id).Str("title", product.Title).Msg("product committed")

	body, err := json.Marshal(model.View(product, count))
	if err != nil {
		return Result{MessageID: msg.ID, ProductID: id, Err: fmt.Errorf("encode event: %w", err), Retryable: true}
	}
	ev := pubsub.Event{
		Subject:    SubjectProductCreated,
		Body:       body,
		Attributes: map[string]float64{AttrPrice: product.Price},
	}
	if err := r.topic.Publish(ctx, ev); err != nil {
		return Result{MessageID: msg.ID, ProductID: id, Err: fmt.Errorf("publish event: %w", err), Retryable: true}
	}
	obs.EventsPublished.Inc()
	return Result{MessageID: msg.ID, ProductID: id}
}
