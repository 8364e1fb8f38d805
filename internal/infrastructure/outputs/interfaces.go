package outputs

import (
	"context"

	"github.com/akave-ai/apicapture/internal/model"
)

// RecordOutput is the minimal interface implemented by all output types.
// It can be started and stopped, and receives forwarded records.
type RecordOutput interface {
	Start() error
	Stop() error
	Write(ctx context.Context, rec model.Record) error
}
