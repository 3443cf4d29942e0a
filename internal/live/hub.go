// Package live fans out "something changed" nudges to the open live feeds, so a
// peer sees a new message on its next poll instead of after a full interval.
package live

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Nudge says that From wrote into Conversation ("direct:<peer>" or "group:<id>").
type Nudge struct {
	From         string `json:"from"`
	Conversation string `json:"conversation"`
}

// Subscriber is one live feed.
type Subscriber interface {
	// Wants reports whether the nudge concerns what the feed has open.
	Wants(n Nudge) bool
	// Wake must not block.
	Wake()
}

// Broker carries nudges between hub instances.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

type Hub struct {
	subscribers map[Subscriber]bool
	incoming    chan []byte
	register    chan Subscriber
	unregister  chan Subscriber
	done        chan struct{}
	broker      Broker
	log         logrus.FieldLogger
}

func NewHub(broker Broker, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		subscribers: make(map[Subscriber]bool),
		incoming:    make(chan []byte, 64),
		register:    make(chan Subscriber),
		unregister:  make(chan Subscriber),
		done:        make(chan struct{}),
		broker:      broker,
		log:         log,
	}
}

// Register and Unregister are no-ops once Run has returned.
func (h *Hub) Register(s Subscriber) {
	select {
	case h.register <- s:
	case <-h.done:
	}
}

func (h *Hub) Unregister(s Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Publish hands the nudge to the broker; every hub subscribed to it, this one
// included, delivers it.
func (h *Hub) Publish(ctx context.Context, n Nudge) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return h.broker.Publish(ctx, payload)
}

// Run owns the subscriber set until ctx ends. Call it once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			h.subscribers[s] = true
		case s := <-h.unregister:
			delete(h.subscribers, s)
		case payload := <-h.incoming:
			var n Nudge
			if err := json.Unmarshal(payload, &n); err != nil {
				h.log.WithError(err).Warn("dropping malformed nudge")
				continue
			}
			for s := range h.subscribers {
				if s.Wants(n) {
					s.Wake()
				}
			}
		}
	}
}

// Listen forwards broker traffic into the hub until ctx ends.
func (h *Hub) Listen(ctx context.Context) error {
	ch, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			select {
			case h.incoming <- payload:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
