package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/catalog-import-service/internal/config"
	"github.com/fairyhunter13/catalog-import-service/internal/model"
	"github.com/fairyhunter13/catalog-import-service/internal/pubsub"
	"github.com/fairyhunter13/catalog-import-service/internal/queue"
	"github.com/fairyhunter13/catalog-import-service/internal/store"
)

type fakeReceiver struct {
	acked  []string
	nacked []string
}

func (f *fakeReceiver) ReceiveBatch(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error) {
	return nil, nil
}
func (f *fakeReceiver) Ack(receipt string)  { f.acked = append(f.acked, receipt) }
func (f *fakeReceiver) Nack(receipt string) { f.nacked = append(f.nacked, receipt) }

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, ev pubsub.Event) error {
	p.calls++
	return errors.New("topic unavailable")
}

func msgOf(t *testing.T, in model.IngestMessage) queue.Message {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	return queue.Message{ID: "m1", Receipt: "r1", Body: body, ReceiveCount: 1}
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }

func newRunner(rcv Receiver, st *store.Store, topic *pubsub.Topic) *Runner {
	return NewRunner(rcv, st, topic, config.Config{BatchSize: 5, PollWait: 10 * time.Millisecond})
}

func TestProcessCommitsBothRowsAndPublishes(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	topic := pubsub.NewTopic("t")
	events := topic.Subscribe("test", 8, nil)
	r := newRunner(rcv, st, topic)

	results := r.ProcessBatch(context.Background(), []queue.Message{msgOf(t, model.IngestMessage{
		Title: "Widget", Description: "Blue", Price: ptrF(19.99), Count: ptrI(10),
	})})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.NotEmpty(t, results[0].ProductID)
	require.Equal(t, []string{"r1"}, rcv.acked)
	require.Empty(t, rcv.nacked)

	id := results[0].ProductID
	ctx := context.Background()
	p, ok, err := st.GetProduct(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Widget", p.Title)
	stk, ok, err := st.GetStock(ctx, id)
	require.NoError(t, err)
	require.True(t, ok, "stock row must be written with the product")
	require.Equal(t, int64(10), stk.Count)

	select {
	case ev := <-events:
		require.Equal(t, SubjectProductCreated, ev.Subject)
		require.Equal(t, 19.99, ev.Attributes[AttrPrice])
		var view model.ProductView
		require.NoError(t, json.Unmarshal(ev.Body, &view))
		require.Equal(t, id, view.ID)
		require.Equal(t, int64(10), view.Count)
	case <-time.After(time.Second):
		t.Fatal("no classification event published")
	}
}

func TestProcessKeepsProvidedID(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	r := newRunner(rcv, st, pubsub.NewTopic("t"))

	results := r.ProcessBatch(context.Background(), []queue.Message{msgOf(t, model.IngestMessage{
		ID: "fixed-id", Title: "Widget", Price: ptrF(5),
	})})
	require.NoError(t, results[0].Err)
	require.Equal(t, "fixed-id", results[0].ProductID)
}

func TestProcessDefaultsAbsentCountToZero(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	r := newRunner(rcv, st, pubsub.NewTopic("t"))

	results := r.ProcessBatch(context.Background(), []queue.Message{msgOf(t, model.IngestMessage{
		ID: "p", Title: "Widget", Price: ptrF(5),
	})})
	require.NoError(t, results[0].Err)
	stk, ok, err := st.GetStock(context.Background(), "p")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), stk.Count)
}

func TestProcessMissingPriceIsRejectedNotRetried(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	topic := pubsub.NewTopic("t")
	events := topic.Subscribe("test", 8, nil)
	r := newRunner(rcv, st, topic)

	results := r.ProcessBatch(context.Background(), []queue.Message{msgOf(t, model.IngestMessage{
		Title: "No price",
	})})
	require.Error(t, results[0].Err)
	require.False(t, results[0].Retryable)
	require.Equal(t, []string{"r1"}, rcv.acked, "invalid input is acked, not redelivered")
	require.Equal(t, 0, st.Len())
	select {
	case <-events:
		t.Fatal("no event may be emitted for a failed message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessMissingTitleIsRejected(t *testing.T) {
	rcv := &fakeReceiver{}
	r := newRunner(rcv, store.New(), pubsub.NewTopic("t"))
	results := r.ProcessBatch(context.Background(), []queue.Message{msgOf(t, model.IngestMessage{
		Price: ptrF(10),
	})})
	require.Error(t, results[0].Err)
	require.False(t, results[0].Retryable)
}

func TestProcessMalformedBodyIsRejected(t *testing.T) {
	rcv := &fakeReceiver{}
	r := newRunner(rcv, store.New(), pubsub.NewTopic("t"))
	results := r.ProcessBatch(context.Background(), []queue.Message{{ID: "m1", Receipt: "r1", Body: []byte("{not json")}})
	require.Error(t, results[0].Err)
	require.False(t, results[0].Retryable)
}

func TestProcessCommitFailureNacksAndSkipsEvent(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	st.SetCommitHook(func(model.Product, model.Stock) error {
		return errors.New("transaction aborted")
	})
	topic := pubsub.NewTopic("t")
	events := topic.Subscribe("test", 8, nil)
	r := newRunner(rcv, st, topic)

	results := r.ProcessBatch(context.Background(), []queue.Message{msgOf(t, model.IngestMessage{
		Title: "Widget", Price: ptrF(5),
	})})
	require.Error(t, results[0].Err)
	require.True(t, results[0].Retryable)
	require.Equal(t, []string{"r1"}, rcv.nacked)
	require.Empty(t, rcv.acked)
	require.Equal(t, 0, st.Len(), "atomic write must leave no partial state")
	select {
	case <-events:
		t.Fatal("no event may follow a failed commit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessPublishFailureAfterCommitPropagates(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	pub := &failingPublisher{}
	r := NewRunner(rcv, st, pub, config.Config{BatchSize: 5, PollWait: 10 * time.Millisecond})

	msg := msgOf(t, model.IngestMessage{ID: "p1", Title: "Widget", Price: ptrF(5)})
	results := r.ProcessBatch(context.Background(), []queue.Message{msg})
	require.Error(t, results[0].Err)
	require.True(t, results[0].Retryable)
	require.Equal(t, []string{"r1"}, rcv.nacked)

	// the write landed: acknowledged inconsistency window, not a rollback
	_, ok, err := st.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)

	// redelivery re-commits idempotently and publishes exactly once
	topic := pubsub.NewTopic("t")
	events := topic.Subscribe("test", 8, nil)
	r2 := newRunner(rcv, st, topic)
	results = r2.ProcessBatch(context.Background(), []queue.Message{msg})
	require.NoError(t, results[0].Err)
	require.Equal(t, 1, st.Len())
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("redelivery must publish the event")
	}
}

func TestProcessDuplicateDeliveryIsIdempotent(t *testing.T) {
	rcv := &fakeReceiver{}
	st := store.New()
	r := newRunner(rcv, st, pubsub.NewTopic("t"))

	msg := msgOf(t, model.IngestMessage{ID: "dup", Title: "Widget", Price: ptrF(5), Count: ptrI(3)})
	_ = r.ProcessBatch(context.Background(), []queue.Message{msg})
	_ = r.ProcessBatch(context.Background(), []queue.Message{msg})

	require.Equal(t, 1, st.Len())
	stk, ok, err := st.GetStock(context.Background(), "dup")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), stk.Count)
}

func TestRunDrainsQueueEndToEnd(t *testing.T) {
	q := queue.New(time.Minute)
	st := store.New()
	topic := pubsub.NewTopic("t")
	r := NewRunner(q, st, topic, config.Config{BatchSize: 2, PollWait: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for i := 0; i < 6; i++ {
		body, err := json.Marshal(model.IngestMessage{Title: "Bulk", Price: ptrF(float64(i + 1))})
		require.NoError(t, err)
		require.NoError(t, q.Send(ctx, body))
	}

	require.Eventually(t, func() bool { return st.Len() == 6 }, 3*time.Second, 20*time.Millisecond)
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelDrain()
	require.True(t, q.DrainUntil(ctxDrain))
}
