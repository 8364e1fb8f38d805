package o3output

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/akave-ai/apicapture/internal/batcher"
	"github.com/akave-ai/apicapture/internal/model"
	"github.com/rs/zerolog"
)

// Store is the part of storage.O3Client the output needs.
type Store interface {
	batcher.Uploader
	EnsureBucket(ctx context.Context) error
}

// Stats describes the most recent upload.
type Stats struct {
	Uploads   int       `json:"uploads"`
	LastKey   string    `json:"last_key,omitempty"`
	LastCount int       `json:"last_count"`
	LastAt    time.Time `json:"last_at,omitempty"`
	Pending   int       `json:"pending"`
}

// Output buffers records in a batcher that uploads to the store.
type Output struct {
	store  Store
	cfg    batcher.BatcherConfig
	source string
	logger zerolog.Logger

	mu    sync.Mutex
	b     *batcher.Batcher
	stats Stats
}

func NewOutput(store Store, cfg batcher.BatcherConfig, source string, logger zerolog.Logger) *Output {
	return &Output{store: store, cfg: cfg, source: source, logger: logger}
}

// Start makes sure the bucket exists and starts the batcher.
// A bucket error is logged; uploads are still attempted.
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.b != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.EnsureBucket(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("ensure bucket failed, uploads may fail")
	}
	o.b = batcher.NewBatcher(o.cfg, o.store, o.source, &batcher.BatcherOpts{
		OnFlush: o.onFlush,
		Logger:  &o.logger,
	})
	o.logger.Info().Int("batch", o.cfg.MaxBatchSize).Dur("interval", o.cfg.FlushInterval).Msg("o3 output started")
	return nil
}

// Stop flushes pending records.
func (o *Output) Stop() error {
	o.mu.Lock()
	b := o.b
	o.b = nil
	o.mu.Unlock()
	if b != nil {
		b.Stop()
	}
	return nil
}

func (o *Output) Write(_ context.Context, rec model.Record) error {
	o.mu.Lock()
	b := o.b
	o.mu.Unlock()
	if b == nil {
		return errors.New("o3 output not started")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b.Insert(data)
	return nil
}

func (o *Output) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stats
	if o.b != nil {
		st.Pending = o.b.Pending()
	}
	return st
}

func (o *Output) onFlush(count int, key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Uploads++
	o.stats.LastKey = key
	o.stats.LastCount = count
	o.stats.LastAt = time.Now().UTC()
}
