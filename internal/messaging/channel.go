// Package messaging is the privileged cross-context channel between the relay
// and the forwarder. Sends are one-way and never wait for a reply.
package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/akave-ai/apicapture/internal/mailbox"
	"github.com/akave-ai/apicapture/internal/model"
)

const DefaultCapacity = 1024

var (
	ErrClosed = errors.New("messaging: channel closed")
	ErrFull   = errors.New("messaging: channel full")
)

// Message is {type: "CAPTURED_REQUEST", data: record} on the wire.
type Message struct {
	Type string       `json:"type"`
	Data model.Record `json:"data"`
}

// Channel delivers messages to its listeners on a single loop.
type Channel struct {
	box *mailbox.Mailbox[Message]
	log zerolog.Logger

	mu        sync.RWMutex
	listeners []func(Message)
}

func New(capacity int, logger zerolog.Logger) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		box: mailbox.New[Message](capacity),
		log: logger.With().Str("component", "messaging").Logger(),
	}
}

// OnMessage registers fn for every delivered message.
func (c *Channel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SendMessage queues msg without blocking.
func (c *Channel) SendMessage(msg Message) error {
	if c.box.Closed() {
		return ErrClosed
	}
	if !c.box.Post(msg) {
		if c.box.Closed() {
			return ErrClosed
		}
		return ErrFull
	}
	return nil
}

// Run delivers messages until ctx is done or the channel is closed.
func (c *Channel) Run(ctx context.Context) {
	c.box.Run(ctx, c.dispatch)
}

// Close tears the channel down; later sends fail with ErrClosed.
func (c *Channel) Close() { c.box.Close() }

func (c *Channel) Stats() mailbox.Stats { return c.box.Stats() }

func (c *Channel) dispatch(msg Message) {
	c.mu.RLock()
	listeners := make([]func(Message), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().Interface("panic", r).Str("type", msg.Type).Msg("message handler panicked")
				}
			}()
			fn(msg)
		}()
	}
}
