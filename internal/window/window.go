// Package window provides the same-document broadcast used inside the page
// context: code posts a message to a window, and every listener attached to
// that window receives it on the window's own delivery loop.
package window

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/akave-ai/apicapture/internal/mailbox"
)

const DefaultCapacity = 1024

// MessageEvent is what listeners receive. Source is the window the message
// was posted from; listeners compare it against their own window.
type MessageEvent struct {
	Source *Window
	Origin string
	Data   any
}

// Window is a same-origin message target.
type Window struct {
	origin string
	box    *mailbox.Mailbox[MessageEvent]
	log    zerolog.Logger

	mu        sync.RWMutex
	listeners []func(MessageEvent)
}

// New returns a window for origin buffering up to capacity undelivered messages.
func New(origin string, capacity int, logger zerolog.Logger) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		origin: origin,
		box:    mailbox.New[MessageEvent](capacity),
		log:    logger.With().Str("component", "window").Logger(),
	}
}

func (w *Window) Origin() string { return w.origin }

// AddListener registers fn for every message delivered to w.
func (w *Window) AddListener(fn func(MessageEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// PostMessage queues data for delivery to w's listeners as if sent from source.
// It never blocks; false means the message was dropped (window full or closed).
func (w *Window) PostMessage(source *Window, data any) bool {
	origin := ""
	if source != nil {
		origin = source.origin
	}
	return w.box.Post(MessageEvent{Source: source, Origin: origin, Data: data})
}

// Run delivers messages until ctx is done or Close is called.
func (w *Window) Run(ctx context.Context) {
	w.box.Run(ctx, w.dispatch)
}

func (w *Window) Close() { w.box.Close() }

func (w *Window) Stats() mailbox.Stats { return w.box.Stats() }

func (w *Window) dispatch(ev MessageEvent) {
	w.mu.RLock()
	listeners := make([]func(MessageEvent), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.RUnlock()
	for _, fn := range listeners {
		w.invoke(fn, ev)
	}
}

func (w *Window) invoke(fn func(MessageEvent), ev MessageEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("message listener panicked")
		}
	}()
	fn(ev)
}
