package batcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/akave-ai/apicapture/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Uploader stores a finished batch under key.
type Uploader interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// BatcherConfig controls when a batch is flushed.
type BatcherConfig struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	UploadTimeout time.Duration
}

// DefaultBatcherConfig flushes every 100 records or 10 seconds, whichever comes first.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxBatchSize:  100,
		FlushInterval: 10 * time.Second,
		UploadTimeout: 30 * time.Second,
	}
}

// BatcherOpts are optional hooks.
type BatcherOpts struct {
	OnFlush func(count int, key string)
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Batcher collects JSON documents and uploads them as gzipped JSON arrays.
// Insert never blocks on the upload; a failed batch is logged and dropped.
type Batcher struct {
	cfg      BatcherConfig
	uploader Uploader
	source   string
	opts     BatcherOpts
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []json.RawMessage
	flushes chan []json.RawMessage
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewBatcher starts the flush loop. source becomes the second path segment of every key.
func NewBatcher(cfg BatcherConfig, uploader Uploader, source string, opts *BatcherOpts) *Batcher {
	def := DefaultBatcherConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = def.UploadTimeout
	}
	b := &Batcher{
		cfg:      cfg,
		uploader: uploader,
		source:   source,
		logger:   zerolog.Nop(),
		flushes:  make(chan []json.RawMessage, 4),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if opts != nil {
		b.opts = *opts
		if opts.Logger != nil {
			b.logger = opts.Logger.With().Str("component", "batcher").Logger()
		}
	}
	if b.opts.Now == nil {
		b.opts.Now = time.Now
	}
	go b.loop()
	return b
}

// Insert queues one JSON document. Invalid JSON is dropped.
func (b *Batcher) Insert(p []byte) {
	if !json.Valid(p) {
		b.logger.Warn().Int("bytes", len(p)).Msg("dropping invalid json document")
		return
	}
	doc := make(json.RawMessage, len(p))
	copy(doc, p)

	b.mu.Lock()
	b.pending = append(b.pending, doc)
	var full []json.RawMessage
	if len(b.pending) >= b.cfg.MaxBatchSize {
		full = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if full != nil {
		select {
		case b.flushes <- full:
		case <-b.done:
		}
	}
}

// Pending returns the number of documents waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop flushes what is pending and waits for the last upload.
func (b *Batcher) Stop() {
	b.once.Do(func() { close(b.stop) })
	<-b.done
}

func (b *Batcher) loop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case batch := <-b.flushes:
			b.upload(batch)
		case <-ticker.C:
			b.upload(b.take())
		case <-b.stop:
		drain:
			for {
				select {
				case batch := <-b.flushes:
					b.upload(batch)
				default:
					break drain
				}
			}
			b.upload(b.take())
			return
		}
	}
}

func (b *Batcher) take() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.pending
	b.pending = nil
	return batch
}

func (b *Batcher) upload(batch []json.RawMessage) {
	if len(batch) == 0 {
		return
	}
	data, err := encode(batch)
	if err != nil {
		b.logger.Error().Err(err).Int("count", len(batch)).Msg("encode batch")
		return
	}
	key := storage.KeyForBatch(b.source, uuid.NewString(), storage.BatchExt, b.opts.Now())

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.UploadTimeout)
	defer cancel()
	if err := b.uploader.PutObject(ctx, key, data, storage.BatchContentType); err != nil {
		b.logger.Error().Err(err).Str("key", key).Int("count", len(batch)).Msg("upload batch")
		return
	}
	b.logger.Debug().Str("key", key).Int("count", len(batch)).Msg("batch uploaded")
	if b.opts.OnFlush != nil {
		b.opts.OnFlush(len(batch), key)
	}
}

func encode(batch []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(batch); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
