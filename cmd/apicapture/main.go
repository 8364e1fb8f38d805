package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akave-ai/apicapture/internal/capture"
	"github.com/akave-ai/apicapture/internal/config"
	"github.com/akave-ai/apicapture/internal/database"
	"github.com/akave-ai/apicapture/internal/forwarder"
	"github.com/akave-ai/apicapture/internal/handler"
	"github.com/akave-ai/apicapture/internal/infrastructure/outputs"
	"github.com/akave-ai/apicapture/internal/logger"
	"github.com/akave-ai/apicapture/internal/messaging"
	"github.com/akave-ai/apicapture/internal/model"
	"github.com/akave-ai/apicapture/internal/observability"
	"github.com/akave-ai/apicapture/internal/relay"
	"github.com/akave-ai/apicapture/internal/repository"
	"github.com/akave-ai/apicapture/internal/server"
	"github.com/akave-ai/apicapture/internal/storage"
	"github.com/akave-ai/apicapture/internal/window"
)

const pageOrigin = "apicapture://agent"

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}

	l := logger.New(cfg.Observability)
	log.Logger = l

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error().Err(err).Msg("apicapture exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l zerolog.Logger) error {
	nrApp, err := observability.NewApplication(cfg.Observability, l)
	if err != nil {
		return err
	}
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	var repo repository.OutputStore = repository.NewMemoryOutputRepository()
	if cfg.Database != nil {
		if err := database.RunMigrations(ctx, cfg.Database, l); err != nil {
			return err
		}
		pool, err := database.NewPool(ctx, cfg.Database, l, cfg.Observability.LogLevel())
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = repository.NewOutputRepository(pool)
	} else {
		l.Info().Msg("no database configured, output definitions are kept in memory")
	}

	outs := handler.NewOutputHandler(outputs.GlobalRegistry, repo, l)
	outs.RestoreOutputs(ctx)
	if err := ensureConfiguredOutputs(ctx, cfg, outs, repo); err != nil {
		return err
	}

	win := window.New(pageOrigin, cfg.Capture.WindowBuffer, l)
	ch := messaging.New(cfg.Capture.ChannelBuffer, l)
	interceptor := capture.New(capture.NewWindowEmitter(win), capture.Options{
		SinkBaseURL:  cfg.Capture.SinkBaseURL,
		MaxBodyBytes: cfg.Capture.MaxBodyBytes,
		Logger:       l,
	})
	rl := relay.New(win, ch, l)
	rl.Attach()
	fw := forwarder.New(forwarder.Options{
		Targets:  outs,
		Recent:   forwarder.NewRecentStore(cfg.Capture.RecentSize),
		NewRelic: nrApp,
		Logger:   l,
	})
	fw.Attach(ch)

	go win.Run(ctx)
	go ch.Run(ctx)
	defer ch.Close()
	defer win.Close()

	var o3 *storage.O3Client
	if cfg.Storage != nil {
		if o3, err = storage.NewO3Client(cfg.Storage.O3); err != nil {
			l.Warn().Err(err).Msg("o3 client, uploads routes disabled")
			o3 = nil
		}
	}

	srv, err := server.New(cfg, server.Deps{
		Logger:      l,
		Interceptor: interceptor,
		Window:      win,
		Channel:     ch,
		Relay:       rl,
		Forwarder:   fw,
		Outputs:     outs,
		O3:          o3,
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

// ensureConfiguredOutputs starts the outputs implied by the environment (the
// collector sink and the O3 batch store) unless an equal one was restored.
func ensureConfiguredOutputs(ctx context.Context, cfg *config.Config, outs *handler.OutputHandler, repo repository.OutputStore) error {
	var wanted []outputs.OutputSpec
	if cfg.Capture.ForwardToSink {
		endpoint := cfg.Capture.SinkBaseURL
		if endpoint == "" {
			endpoint = capture.DefaultSinkBaseURL
		}
		wanted = append(wanted, outputs.OutputSpec{Type: "http", Title: "collector", Config: outputs.Config{"endpoint": endpoint}})
	}
	if cfg.Storage != nil && cfg.Storage.O3 != nil && cfg.Storage.O3.Endpoint != "" && cfg.Storage.O3.Bucket != "" {
		o3 := cfg.Storage.O3
		c := outputs.Config{
			"endpoint":   o3.Endpoint,
			"bucket":     o3.Bucket,
			"access_key": o3.AccessKey,
			"secret_key": o3.SecretKey,
			"region":     o3.Region,
		}
		if b := cfg.Batcher; b != nil {
			if b.MaxBatchSize > 0 {
				c["max_batch_size"] = b.MaxBatchSize
			}
			if b.FlushInterval != "" {
				c["flush_interval"] = b.FlushInterval
			}
		}
		wanted = append(wanted, outputs.OutputSpec{Type: "o3", Title: "o3-batches", Config: c})
	}
	if len(wanted) == 0 {
		return nil
	}

	existing, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, spec := range wanted {
		if hasTitle(existing, spec.Type, spec.Title) {
			continue
		}
		if _, err := outs.Add(ctx, spec.Type, spec.Title, spec.Config); err != nil {
			return err
		}
	}
	return nil
}

func hasTitle(list []model.Output, typeName, title string) bool {
	for _, o := range list {
		if o.Type == typeName && o.Title == title {
			return true
		}
	}
	return false
}
