package o3output

import (
	"errors"

	"github.com/akave-ai/apicapture/internal/batcher"
	"github.com/akave-ai/apicapture/internal/config"
	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
	"github.com/akave-ai/apicapture/internal/storage"
	"github.com/rs/zerolog/log"
)

func init() {
	outputs.GlobalRegistry.Register(&Factory{})
}

// Factory creates outputs that batch records into gzipped JSON objects on Akave O3. Registers as "o3".
type Factory struct{}

func (f *Factory) Name() string {
	return "o3"
}

func (f *Factory) ConfigSpec() outputs.OutputTypeInfo {
	return outputs.OutputTypeInfo{
		Type:        "o3",
		Description: "Batches records and uploads them as gzipped JSON arrays to an S3-compatible bucket (Akave O3).",
		Fields: []outputs.ConfigField{
			{Name: "endpoint", Type: "string", Required: true, Description: "S3-compatible endpoint", Example: "https://o3-rc2.akave.xyz"},
			{Name: "bucket", Type: "string", Required: true, Description: "Bucket name", Example: "apicapture"},
			{Name: "access_key", Type: "string", Required: false, Description: "Access key id"},
			{Name: "secret_key", Type: "string", Required: false, Description: "Secret access key"},
			{Name: "region", Type: "string", Required: false, Description: "Signing region", Example: "us-east-1"},
			{Name: "source", Type: "string", Required: false, Description: "Key segment after captures/", Example: "default"},
			{Name: "max_batch_size", Type: "number", Required: false, Description: "Records per object", Example: "100"},
			{Name: "flush_interval", Type: "duration", Required: false, Description: "Upload a partial batch after this long", Example: "10s"},
		},
	}
}

func (f *Factory) ValidateConfig(cfg outputs.Config) error {
	if cfg.String("endpoint", "") == "" {
		return errors.New("missing 'endpoint'")
	}
	if cfg.String("bucket", "") == "" {
		return errors.New("missing 'bucket'")
	}
	return nil
}

func (f *Factory) Create(cfg outputs.Config) (outputs.RecordOutput, error) {
	if err := f.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	client, err := storage.NewO3Client(&config.O3Config{
		Endpoint:  cfg.String("endpoint", ""),
		Bucket:    cfg.String("bucket", ""),
		AccessKey: cfg.String("access_key", ""),
		SecretKey: cfg.String("secret_key", ""),
		Region:    cfg.String("region", ""),
	})
	if err != nil {
		return nil, err
	}
	bc := batcher.DefaultBatcherConfig()
	bc.MaxBatchSize = cfg.Int("max_batch_size", bc.MaxBatchSize)
	bc.FlushInterval = cfg.Duration("flush_interval", bc.FlushInterval)

	logger := log.Logger.With().Str("output", "o3").Logger()
	return NewOutput(client, bc, cfg.String("source", "default"), logger), nil
}
