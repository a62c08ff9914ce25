package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/catalog-import-service/internal/blob"
	"github.com/fairyhunter13/catalog-import-service/internal/config"
	"github.com/fairyhunter13/catalog-import-service/internal/model"
	"github.com/fairyhunter13/catalog-import-service/internal/obs"
)

// ObjectStore is the slice of the blob store the dispatcher needs.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Copy(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
}

// Sender publishes one message body to the ingestion queue.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Dispatcher turns uploaded files into queue messages: one IngestMessage per
// CSV row, published sequentially, followed by relocation of the source
// object into the processed namespace. Any row that fails to parse or publish
// aborts the file with no relocation, so a retry reprocesses it whole.
type Dispatcher struct {
	store           ObjectStore
	sender          Sender
	incomingPrefix  string
	processedPrefix string
	extension       string
}

// NewDispatcher constructs a Dispatcher from the service configuration.
func NewDispatcher(store ObjectStore, sender Sender, cfg config.Config) *Dispatcher {
	return &Dispatcher{
		store:           store,
		sender:          sender,
		incomingPrefix:  cfg.IncomingPrefix,
		processedPrefix: cfg.ProcessedPrefix,
		extension:       strings.ToLower(cfg.UploadExtension),
	}
}

// DecodeObjectKey reverses the URL encoding applied to object keys in
// storage-change notifications, including the historical "+" for space.
func DecodeObjectKey(key string) (string, error) {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", key, err)
	}
	return decoded, nil
}

// Run consumes storage-change notifications until the context is cancelled.
// Errors are logged and left for the next trigger; the failed object stays in
// the incoming namespace.
func (d *Dispatcher) Run(ctx context.Context, events <-chan blob.ObjectCreated) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := d.HandleObjectCreated(ctx, []blob.ObjectCreated{ev}); err != nil {
				log.Error().Err(err).Str("bucket", ev.Bucket).Str("key", ev.Key).
					Msg("file dispatch failed, object retained for retry")
			}
		}
	}
}

// HandleObjectCreated processes a storage-change trigger. Objects outside the
// incoming namespace or without the accepted extension are skipped.
func (d *Dispatcher) HandleObjectCreated(ctx context.Context, recs []blob.ObjectCreated) error {
	for _, rec := range recs {
		key, err := DecodeObjectKey(rec.Key)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(key, d.incomingPrefix) || !strings.HasSuffix(strings.ToLower(key), d.extension) {
			log.Debug().Str("key", key).Msg("object ignored by dispatcher")
			continue
		}
		rows, err := d.processObject(ctx, key)
		if err != nil {
			obs.FilesFailed.Inc()
			return fmt.Errorf("dispatch %s: %w", key, err)
		}
		if err := d.relocate(ctx, key); err != nil {
			obs.FilesFailed.Inc()
			return fmt.Errorf("relocate %s: %w", key, err)
		}
		obs.FilesProcessed.Inc()
		log.Info().Str("bucket", rec.Bucket).Str("key", key).Int("rows", rows).
			Msg("file dispatched and relocated")
	}
	return nil
}

// processObject streams the object's rows onto the queue. Each row is
// published before the next one is parsed.
func (d *Dispatcher) processObject(ctx context.Context, key string) (int, error) {
	r, err := d.store.Open(ctx, key)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	rr := NewRowReader(r)
	for rr.Next() {
		msg, err := rowToMessage(rr.Row())
		if err != nil {
			return rr.Count(), fmt.Errorf("row %d: %w", rr.Count(), err)
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return rr.Count(), fmt.Errorf("row %d: %w", rr.Count(), err)
		}
		if err := d.sender.Send(ctx, body); err != nil {
			return rr.Count(), fmt.Errorf("publish row %d: %w", rr.Count(), err)
		}
		obs.MessagesPublished.Inc()
	}
	if err := rr.Err(); err != nil {
		return rr.Count(), fmt.Errorf("parse: %w", err)
	}
	return rr.Count(), nil
}

// relocate moves the object into the processed namespace: copy first, then
// delete. The copy is idempotent and retried; the delete never runs unless
// the copy succeeded, so a partial relocation cannot lose the object.
func (d *Dispatcher) relocate(ctx context.Context, key string) error {
	dst := d.processedPrefix + strings.TrimPrefix(key, d.incomingPrefix)
	err := retry.Do(
		func() error { return d.store.Copy(ctx, key, dst) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := d.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete after copy: %w", err)
	}
	return nil
}

// rowToMessage maps header-derived fields onto an IngestMessage. Numeric
// fields present but unparseable fail the row; absent numerics stay unset and
// are judged by the consumer.
func rowToMessage(row Row) (model.IngestMessage, error) {
	msg := model.IngestMessage{
		ID:          row["id"],
		Title:       row["title"],
		Description: row["description"],
	}
	if v := strings.TrimSpace(row["price"]); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return msg, fmt.Errorf("invalid price %q", v)
		}
		msg.Price = &price
	}
	if v := strings.TrimSpace(row["count"]); v != "" {
		count, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return msg, fmt.Errorf("invalid count %q", v)
		}
		msg.Count = &count
	}
	return msg, nil
}
