// Package pubsub implements a topic with attribute-filtered subscriptions.
// Filtering happens at the topic: publishers attach numeric attributes and
// each subscription declares which values it wants to see.
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Event is one published notification. Attributes are typed, filterable
// metadata carried alongside the body.
type Event struct {
	Subject    string
	Body       []byte
	Attributes map[string]float64
}

// Filter decides whether a subscription receives an event.
type Filter interface {
	Matches(ev Event) bool
}

// NumericGreaterThan matches events whose named attribute is strictly greater
// than Threshold. Events lacking the attribute never match.
type NumericGreaterThan struct {
	Attribute string
	Threshold float64
}

// Matches implements Filter.
func (f NumericGreaterThan) Matches(ev Event) bool {
	v, ok := ev.Attributes[f.Attribute]
	return ok && v > f.Threshold
}

type subscription struct {
	name    string
	ch      chan Event
	filter  Filter
	dropped atomic.Uint64
}

// Topic fans events out to its subscriptions.
type Topic struct {
	name string
	mu   sync.RWMutex
	subs []*subscription

	published atomic.Uint64
}

// NewTopic creates an empty topic.
func NewTopic(name string) *Topic {
	return &Topic{name: name}
}

// Subscribe registers a subscription with the given channel buffer. A nil
// filter receives every event. Slow subscribers never block Publish; events
// that do not fit the buffer are dropped and counted.
func (t *Topic) Subscribe(name string, buffer int, filter Filter) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{name: name, ch: make(chan Event, buffer), filter: filter}
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return sub.ch
}

// Publish delivers the event to every matching subscription.
func (t *Topic) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.published.Add(1)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subs {
		if sub.filter != nil && !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			log.Warn().Str("topic", t.name).Str("subscription", sub.name).
				Str("subject", ev.Subject).Msg("subscriber buffer full, event dropped")
		}
	}
	return nil
}

// Published returns the number of events published to the topic.
func (t *Topic) Published() uint64 { return t.published.Load() }
