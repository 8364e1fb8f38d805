// Package relay bridges the page window to the privileged messaging channel.
package relay

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/akave-ai/apicapture/internal/messaging"
	"github.com/akave-ai/apicapture/internal/model"
	"github.com/akave-ai/apicapture/internal/window"
)

// Sender is the privileged side of the relay.
type Sender interface {
	SendMessage(msg messaging.Message) error
}

// Relay forwards capture envelopes posted by its own window, unmodified, as
// CAPTURED_REQUEST messages. It never buffers, batches or retries.
type Relay struct {
	win *window.Window
	out Sender
	log zerolog.Logger

	forwarded atomic.Int64
	discarded atomic.Int64
	failed    atomic.Int64
}

type Stats struct {
	Forwarded int64 `json:"forwarded"`
	Discarded int64 `json:"discarded"`
	Failed    int64 `json:"failed"`
}

func New(win *window.Window, out Sender, logger zerolog.Logger) *Relay {
	return &Relay{
		win: win,
		out: out,
		log: logger.With().Str("component", "relay").Logger(),
	}
}

// Attach starts listening on the window.
func (r *Relay) Attach() {
	r.win.AddListener(r.handle)
}

func (r *Relay) handle(ev window.MessageEvent) {
	if ev.Source != r.win {
		r.discarded.Add(1)
		return
	}
	env, ok := ev.Data.(model.CaptureEnvelope)
	if !ok || env.Type != model.CaptureLogType {
		r.discarded.Add(1)
		return
	}
	err := r.out.SendMessage(messaging.Message{Type: model.CapturedRequestType, Data: env.Payload})
	if err != nil {
		r.failed.Add(1)
		r.log.Debug().Err(err).Str("url", env.Payload.URL).Msg("forward dropped")
		return
	}
	r.forwarded.Add(1)
}

func (r *Relay) Stats() Stats {
	return Stats{
		Forwarded: r.forwarded.Load(),
		Discarded: r.discarded.Load(),
		Failed:    r.failed.Load(),
	}
}
