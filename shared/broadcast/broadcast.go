package broadcast

import (
	"context"
	"sync"

	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/metricsx"
)

// Publisher is the capability the ingestion path depends on. The in-process
// Hub implements it directly; when redis is configured the RedisPublisher
// implements it instead and the bridge feeds remote messages back into the
// local hub.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg events.Message) error
}

// Delivery is one message as seen by a subscriber.
type Delivery struct {
	Channel string
	Payload []byte
}

// Hub is an in-process fan-out over named channels. Publishing is
// fire-and-forget: with zero subscribers the message is dropped without
// error, and a subscriber that cannot keep up loses messages rather than
// blocking the publisher. No history is kept.
type Hub struct {
	mu      sync.RWMutex
	bufSize int
	subs    map[string]map[*Subscription]struct{}
}

func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Hub{
		bufSize: bufSize,
		subs:    make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Publish(ctx context.Context, channel string, msg events.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	h.PublishRaw(channel, payload)
	return nil
}

// PublishRaw fans a pre-encoded payload out to every current subscriber of
// the channel. Each subscriber receives its own copy of the delivery.
func (h *Hub) PublishRaw(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[channel] {
		select {
		case sub.ch <- Delivery{Channel: channel, Payload: payload}:
		default:
			metricsx.IncBroadcastDropped(channel)
		}
	}
}

// Subscribe opens a feed over one or more channels. The subscription receives
// every message published after this call returns; Close releases it.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		hub:      h,
		channels: append([]string(nil), channels...),
		ch:       make(chan Delivery, h.bufSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, channel := range sub.channels {
		if h.subs[channel] == nil {
			h.subs[channel] = make(map[*Subscription]struct{})
		}
		h.subs[channel][sub] = struct{}{}
	}
	metricsx.SetActiveSubscriptions(h.subscriberCountLocked())
	return sub
}

// SubscriberCount reports how many subscriptions are currently bound to the
// channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) subscriberCountLocked() int {
	seen := make(map[*Subscription]struct{})
	for _, subs := range h.subs {
		for sub := range subs {
			seen[sub] = struct{}{}
		}
	}
	return len(seen)
}

type Subscription struct {
	hub      *Hub
	channels []string
	ch       chan Delivery
	once     sync.Once
}

// C yields deliveries in publish order per channel. No ordering is guaranteed
// across channels on a multi-channel subscription.
func (s *Subscription) C() <-chan Delivery {
	return s.ch
}

// Close unsubscribes from every bound channel and closes the feed. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		for _, channel := range s.channels {
			delete(s.hub.subs[channel], s)
			if len(s.hub.subs[channel]) == 0 {
				delete(s.hub.subs, channel)
			}
		}
		metricsx.SetActiveSubscriptions(s.hub.subscriberCountLocked())
		s.hub.mu.Unlock()
		close(s.ch)
	})
}
