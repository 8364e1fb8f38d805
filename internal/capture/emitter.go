package capture

import (
	"github.com/akave-ai/apicapture/internal/model"
	"github.com/akave-ai/apicapture/internal/window"
)

// Emitter receives finished records. Emit must not block.
type Emitter interface {
	Emit(rec model.Record)
}

type EmitterFunc func(rec model.Record)

func (f EmitterFunc) Emit(rec model.Record) { f(rec) }

// WindowEmitter broadcasts records on the page window wrapped in a
// CaptureEnvelope, with the window itself as the source.
type WindowEmitter struct {
	win *window.Window
}

func NewWindowEmitter(w *window.Window) *WindowEmitter {
	return &WindowEmitter{win: w}
}

func (e *WindowEmitter) Emit(rec model.Record) {
	e.win.PostMessage(e.win, model.CaptureEnvelope{Type: model.CaptureLogType, Payload: rec})
}
